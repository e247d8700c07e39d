// Package index queries the secondary index: a fast, eventually-consistent
// projection of the ledger built by replaying its events. The index may lag
// the ledger by an unbounded amount; every caller must treat results as a
// hint set, never ground truth.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/yakrover/agent-registry/interfaces"
)

// HTTPIndexReader queries an index service over HTTP. Responses are cached
// briefly so repeated discovery calls don't hammer the service.
type HTTPIndexReader struct {
	baseURL string
	client  *http.Client
	cache   *gocache.Cache
	log     *slog.Logger
}

// NewHTTPIndexReader creates a reader for the index service at baseURL.
// cacheTTL bounds how long a search response is reused; zero disables
// caching.
func NewHTTPIndexReader(baseURL string, cacheTTL time.Duration, log *slog.Logger) *HTTPIndexReader {
	var cache *gocache.Cache
	if cacheTTL > 0 {
		cache = gocache.New(cacheTTL, 2*cacheTTL)
	}

	return &HTTPIndexReader{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		cache:   cache,
		log:     log,
	}
}

type searchRequest struct {
	Filter map[string]string `json:"filter"`
}

type searchResponse struct {
	Entries []interfaces.IndexEntry `json:"entries"`
}

// Search returns the index's current projection of entities matching every
// key/value pair of the filter.
func (r *HTTPIndexReader) Search(ctx context.Context, filter map[string]string) ([]interfaces.IndexEntry, error) {
	key := cacheKey(filter)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached.([]interfaces.IndexEntry), nil
		}
	}

	body, err := json.Marshal(searchRequest{Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("encoding index query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index query failed: status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding index response: %w", err)
	}

	r.log.Debug("index search",
		slog.Int("entries", len(decoded.Entries)),
		slog.Duration("duration", time.Since(start)))

	if r.cache != nil {
		r.cache.Set(key, decoded.Entries, gocache.DefaultExpiration)
	}
	return decoded.Entries, nil
}

// cacheKey builds a deterministic key from the filter.
func cacheKey(filter map[string]string) string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(filter[k])
		b.WriteByte('&')
	}
	return b.String()
}
