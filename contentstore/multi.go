package contentstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yakrover/agent-registry/interfaces"
)

// MultiStore aggregates several content stores with fallback. Documents are
// stored to every available backend and fetched from the first one that has
// the content; content addressing guarantees all backends agree on the
// address.
type MultiStore struct {
	backends []interfaces.ContentStore
	log      *slog.Logger
}

// NewMultiStore creates a multi-backend content store.
func NewMultiStore(backends []interfaces.ContentStore, log *slog.Logger) *MultiStore {
	if log == nil {
		log = slog.Default()
	}
	return &MultiStore{backends: backends, log: log}
}

// Put stores the document to all available backends and returns the shared
// content address. At least one backend must succeed.
func (m *MultiStore) Put(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	start := time.Now()
	want := interfaces.ComputeContentAddress(data)

	var stored bool
	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("backend unavailable", slog.String("backend", backend.Name()))
			continue
		}

		addr, err := backend.Put(ctx, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("failed to store to backend",
				slog.String("backend", backend.Name()),
				"err", err)
			continue
		}

		if addr != want {
			// Identical bytes must produce the same address everywhere.
			m.log.Warn("inconsistent address from backend",
				slog.String("backend", backend.Name()),
				slog.String("expected", want.String()),
				slog.String("actual", addr.String()))
		}
		stored = true
	}

	if !stored {
		m.log.Error("all backends failed to store document",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("%w: all backends failed: %v", interfaces.ErrStoreUnavailable, errs)
	}
	return want, nil
}

// Get fetches the document from the first backend that has it. Returns
// ErrNotFound only when every reachable backend reported absence.
func (m *MultiStore) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	start := time.Now()

	var errs []error
	attempted := 0
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("backend unavailable",
				slog.String("backend", backend.Name()),
				slog.String("address", addr.String()))
			continue
		}
		attempted++

		data, err := backend.Get(ctx, addr)
		if err == nil {
			m.log.Debug("fetched document",
				slog.String("backend", backend.Name()),
				slog.String("address", addr.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}

	if attempted == 0 {
		return nil, fmt.Errorf("%w: no backend reachable for %s", interfaces.ErrStoreUnavailable, addr)
	}

	for _, err := range errs {
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("all backends failed to fetch %s: %v", addr, errs)
		}
	}
	return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, addr)
}

// Available reports whether any backend is reachable.
func (m *MultiStore) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns a unique identifier for this backend.
func (m *MultiStore) Name() string {
	return "multi-store"
}

// LocationURI returns the combined URI of all backends.
func (m *MultiStore) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
