package contentstore

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yakrover/agent-registry/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("capability document")

	addr, err := store.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeContentAddress(data), addr)

	fetched, err := store.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	assert.True(t, store.Available(ctx))
}

func TestFileStorePutIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("same bytes")

	first, err := store.Put(ctx, data)
	require.NoError(t, err)

	// Publishing identical bytes twice is a no-op with the same address.
	second, err := store.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	fetched, err := store.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestFileStoreGetMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	missing := interfaces.ComputeContentAddress([]byte("never stored"))
	_, err = store.Get(context.Background(), missing)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
