package contentstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yakrover/agent-registry/interfaces"
)

// FileStore stores capability documents on the local filesystem, one file
// per content address. Used for development and tests.
type FileStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a file-backed content store under baseDir.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	docDir := filepath.Join(baseDir, "documents")
	if err := os.MkdirAll(docDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	return &FileStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Put writes document bytes under their content address. Re-putting
// identical bytes hits the same path and returns the same address.
func (s *FileStore) Put(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	addr := interfaces.ComputeContentAddress(data)
	path := s.documentPath(addr)

	if _, err := os.Stat(path); err == nil {
		// Content addressing: the file already holds these exact bytes.
		return addr, nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}

	s.log.Debug("stored document",
		slog.String("address", addr.String()),
		slog.Int("size", len(data)))
	return addr, nil
}

// Get reads document bytes by content address.
func (s *FileStore) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	data, err := os.ReadFile(s.documentPath(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, addr)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

// Available checks that the base directory is accessible.
func (s *FileStore) Available(ctx context.Context) bool {
	_, err := os.Stat(s.baseDir)
	return err == nil
}

// Name returns a unique identifier for this backend.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", s.baseDir)
}

// LocationURI returns the URI this backend was constructed from.
func (s *FileStore) LocationURI() string {
	return s.locationURI
}

func (s *FileStore) documentPath(addr interfaces.ContentAddress) string {
	return filepath.Join(s.baseDir, "documents", addr.String())
}
