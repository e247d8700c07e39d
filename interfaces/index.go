package interfaces

import (
	"context"
	"time"
)

// IndexEntry is a cached, possibly-stale projection of an entity captured
// by the secondary index at its last sync. The index is advisory: absence
// of an entry is not proof an entity does not exist, and presence is not
// proof its attributes are current.
type IndexEntry struct {
	EntityID EntityID `json:"entity_id"`
	Owner    Account  `json:"owner"`

	// Attributes holds whatever attribute values the index captured.
	Attributes map[string]string `json:"attributes"`

	// Pointer is the document pointer as of the last sync, if captured.
	Pointer ContentPointer `json:"pointer,omitempty"`

	// Document is the projected capability document, if the index captured
	// one. Nil means the resolver must fetch it from the content store.
	Document *CapabilityDocument `json:"document,omitempty"`

	// LastSyncedAt marks when the index last replayed this entity's ledger
	// events. Staleness is unbounded.
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// IndexReader queries the fast-but-stale secondary index. Results are a
// hint set, never ground truth.
type IndexReader interface {
	// Search returns the index's current projection of entities matching
	// every key/value pair of the filter.
	Search(ctx context.Context, filter map[string]string) ([]IndexEntry, error)
}
