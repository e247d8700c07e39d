package contentstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yakrover/agent-registry/interfaces"
)

// fakeStore is a scriptable in-memory backend for multi-store and retry
// tests. failPuts/failGets make the first n calls fail with putErr/getErr
// then succeed; -1 fails every call.
type fakeStore struct {
	name     string
	docs     map[interfaces.ContentAddress][]byte
	down     bool
	putErr   error
	getErr   error
	putCalls int
	getCalls int
	failPuts int
	failGets int
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{name: name, docs: make(map[interfaces.ContentAddress][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, data []byte) (interfaces.ContentAddress, error) {
	f.putCalls++
	if f.failPuts != 0 {
		if f.failPuts > 0 {
			f.failPuts--
		}
		return "", f.putErr
	}
	addr := interfaces.ComputeContentAddress(data)
	f.docs[addr] = data
	return addr, nil
}

func (f *fakeStore) Get(ctx context.Context, addr interfaces.ContentAddress) ([]byte, error) {
	f.getCalls++
	if f.failGets != 0 {
		if f.failGets > 0 {
			f.failGets--
		}
		return nil, f.getErr
	}
	data, ok := f.docs[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, addr)
	}
	return data, nil
}

func (f *fakeStore) Available(ctx context.Context) bool { return !f.down }
func (f *fakeStore) Name() string                       { return f.name }
func (f *fakeStore) LocationURI() string                { return "fake://" + f.name }

func TestMultiStorePutStoresToAllAvailable(t *testing.T) {
	primary := newFakeStore("primary")
	secondary := newFakeStore("secondary")
	offline := newFakeStore("offline")
	offline.down = true

	multi := NewMultiStore([]interfaces.ContentStore{primary, secondary, offline}, testLogger())

	data := []byte("replicated document")
	addr, err := multi.Put(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeContentAddress(data), addr)

	assert.Contains(t, primary.docs, addr)
	assert.Contains(t, secondary.docs, addr)
	assert.Zero(t, offline.putCalls, "unavailable backends must be skipped")
}

func TestMultiStorePutSucceedsWithOneBackend(t *testing.T) {
	broken := newFakeStore("broken")
	broken.putErr = errors.New("disk full")
	broken.failPuts = -1
	working := newFakeStore("working")

	multi := NewMultiStore([]interfaces.ContentStore{broken, working}, testLogger())

	addr, err := multi.Put(context.Background(), []byte("doc"))
	require.NoError(t, err)
	assert.Contains(t, working.docs, addr)
}

func TestMultiStorePutAllFail(t *testing.T) {
	broken := newFakeStore("broken")
	broken.putErr = errors.New("disk full")
	broken.failPuts = -1
	offline := newFakeStore("offline")
	offline.down = true

	multi := NewMultiStore([]interfaces.ContentStore{broken, offline}, testLogger())

	_, err := multi.Put(context.Background(), []byte("doc"))
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)
}

func TestMultiStoreGetFallsBack(t *testing.T) {
	empty := newFakeStore("empty")
	holder := newFakeStore("holder")

	data := []byte("doc")
	addr, err := holder.Put(context.Background(), data)
	require.NoError(t, err)

	multi := NewMultiStore([]interfaces.ContentStore{empty, holder}, testLogger())

	fetched, err := multi.Get(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
	assert.Equal(t, 1, empty.getCalls)
}

func TestMultiStoreGetNotFound(t *testing.T) {
	multi := NewMultiStore([]interfaces.ContentStore{newFakeStore("a"), newFakeStore("b")}, testLogger())

	missing := interfaces.ComputeContentAddress([]byte("never stored"))
	_, err := multi.Get(context.Background(), missing)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMultiStoreGetNoBackendReachable(t *testing.T) {
	offline := newFakeStore("offline")
	offline.down = true

	multi := NewMultiStore([]interfaces.ContentStore{offline}, testLogger())

	_, err := multi.Get(context.Background(), interfaces.ComputeContentAddress([]byte("x")))
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)
	assert.False(t, multi.Available(context.Background()))
}
