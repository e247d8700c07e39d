package index

import (
	"context"

	"github.com/yakrover/agent-registry/interfaces"
)

// StaticIndexReader serves a fixed set of entries, used by tests to model
// an index in an arbitrary (possibly stale) state. A nil entry slice models
// a cold index; a non-nil Err models an unavailable one.
type StaticIndexReader struct {
	Entries []interfaces.IndexEntry
	Err     error
}

// Search filters the static entries by the requested attributes.
func (r *StaticIndexReader) Search(ctx context.Context, filter map[string]string) ([]interfaces.IndexEntry, error) {
	if r.Err != nil {
		return nil, r.Err
	}

	var matches []interfaces.IndexEntry
	for _, entry := range r.Entries {
		matched := true
		for k, v := range filter {
			if entry.Attributes[k] != v {
				matched = false
				break
			}
		}
		if matched {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}
