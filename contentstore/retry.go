package contentstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yakrover/agent-registry/interfaces"
)

// RetryingStore decorates a content store with bounded exponential backoff
// for transient failures. NotFound is never retried; exhausting the budget
// surfaces ErrStoreUnavailable, fatal to the calling workflow step.
type RetryingStore struct {
	inner     interfaces.ContentStore
	attempts  int
	baseDelay time.Duration
	log       *slog.Logger
}

// NewRetryingStore wraps inner with the default policy of 3 attempts and a
// doubling base delay of 250ms.
func NewRetryingStore(inner interfaces.ContentStore, log *slog.Logger) *RetryingStore {
	return &RetryingStore{inner: inner, attempts: 3, baseDelay: 250 * time.Millisecond, log: log}
}

// WithPolicy overrides the retry budget. Mostly for tests.
func (s *RetryingStore) WithPolicy(attempts int, baseDelay time.Duration) *RetryingStore {
	s.attempts = attempts
	s.baseDelay = baseDelay
	return s
}

// Put uploads with retries and returns the content address.
func (s *RetryingStore) Put(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	var addr interfaces.ContentAddress
	attempt := 0

	operation := func() error {
		attempt++
		result, err := s.inner.Put(ctx, data)
		if err != nil {
			s.log.Debug("content store put failed",
				slog.String("backend", s.inner.Name()),
				slog.Int("attempt", attempt),
				"err", err)
			return err
		}
		addr = result
		return nil
	}

	if err := backoff.Retry(operation, s.newBackOff(ctx)); err != nil {
		return "", fmt.Errorf("%w: put failed after %d attempts: %v", interfaces.ErrStoreUnavailable, attempt, err)
	}
	return addr, nil
}

// Get fetches with retries. True absence is surfaced immediately.
func (s *RetryingStore) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	var data []byte
	attempt := 0

	operation := func() error {
		attempt++
		result, err := s.inner.Get(ctx, addr)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return backoff.Permanent(err)
			}
			s.log.Debug("content store get failed",
				slog.String("backend", s.inner.Name()),
				slog.String("address", addr.String()),
				slog.Int("attempt", attempt),
				"err", err)
			return err
		}
		data = result
		return nil
	}

	if err := backoff.Retry(operation, s.newBackOff(ctx)); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get failed after %d attempts: %v", interfaces.ErrStoreUnavailable, attempt, err)
	}
	return data, nil
}

// Available delegates to the wrapped store.
func (s *RetryingStore) Available(ctx context.Context) bool {
	return s.inner.Available(ctx)
}

// Name returns the wrapped store's identifier.
func (s *RetryingStore) Name() string {
	return s.inner.Name()
}

// LocationURI returns the wrapped store's URI.
func (s *RetryingStore) LocationURI() string {
	return s.inner.LocationURI()
}

func (s *RetryingStore) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.baseDelay
	bo.Multiplier = 2
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.attempts-1)), ctx)
}
