package index

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yakrover/agent-registry/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func indexService(t *testing.T, entries []interfaces.IndexEntry, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*requests++
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/search", r.URL.Path)

		var req struct {
			Filter map[string]string `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var matches []interfaces.IndexEntry
		for _, entry := range entries {
			matched := true
			for k, v := range req.Filter {
				if entry.Attributes[k] != v {
					matched = false
					break
				}
			}
			if matched {
				matches = append(matches, entry)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"entries": matches})
	}))
}

func TestHTTPIndexReaderSearch(t *testing.T) {
	entries := []interfaces.IndexEntry{
		{
			EntityID:   interfaces.EntityID{ChainID: 1, SequenceNumber: 1},
			Attributes: map[string]string{"category": "translation"},
		},
		{
			EntityID:   interfaces.EntityID{ChainID: 1, SequenceNumber: 2},
			Attributes: map[string]string{"category": "search"},
		},
	}

	requests := 0
	srv := indexService(t, entries, &requests)
	defer srv.Close()

	reader := NewHTTPIndexReader(srv.URL, 0, testLogger())

	got, err := reader.Search(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].EntityID.SequenceNumber)

	got, err = reader.Search(context.Background(), map[string]string{"category": "nothing"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHTTPIndexReaderCachesResponses(t *testing.T) {
	requests := 0
	srv := indexService(t, nil, &requests)
	defer srv.Close()

	reader := NewHTTPIndexReader(srv.URL, time.Minute, testLogger())

	filter := map[string]string{"category": "translation"}
	_, err := reader.Search(context.Background(), filter)
	require.NoError(t, err)
	_, err = reader.Search(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, requests, "second identical search must hit the cache")

	_, err = reader.Search(context.Background(), map[string]string{"category": "other"})
	require.NoError(t, err)
	assert.Equal(t, 2, requests, "distinct filters are cached separately")
}

func TestHTTPIndexReaderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	reader := NewHTTPIndexReader(srv.URL, 0, testLogger())
	_, err := reader.Search(context.Background(), map[string]string{"category": "x"})
	assert.Error(t, err)
}

func TestHTTPIndexReaderUnreachable(t *testing.T) {
	reader := NewHTTPIndexReader("http://127.0.0.1:1", 0, testLogger())
	_, err := reader.Search(context.Background(), map[string]string{"category": "x"})
	assert.Error(t, err)
}

func TestStaticIndexReaderFilters(t *testing.T) {
	reader := &StaticIndexReader{Entries: []interfaces.IndexEntry{
		{EntityID: interfaces.EntityID{ChainID: 1, SequenceNumber: 1}, Attributes: map[string]string{"category": "translation", "tier": "pro"}},
		{EntityID: interfaces.EntityID{ChainID: 1, SequenceNumber: 2}, Attributes: map[string]string{"category": "translation", "tier": "free"}},
	}}

	got, err := reader.Search(context.Background(), map[string]string{"category": "translation", "tier": "pro"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].EntityID.SequenceNumber)
}
