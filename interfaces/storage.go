package interfaces

import "context"

// ContentStore stores and retrieves immutable capability documents by
// content address. Implementations are stateless between calls.
type ContentStore interface {
	// Put uploads document bytes and returns their content address. Put is
	// idempotent: uploading identical bytes twice returns the same address
	// without error.
	Put(ctx context.Context, data []byte) (ContentAddress, error)

	// Get fetches document bytes by address. It returns ErrNotFound if the
	// address is unknown to the backing store.
	Get(ctx context.Context, addr ContentAddress) ([]byte, error)

	// Available reports whether the backing store is reachable.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string

	// LocationURI returns the URI this backend was constructed from.
	LocationURI() string
}
