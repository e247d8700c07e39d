// Package discovery answers "find all entities matching filter F" across
// the secondary index, the ledger, and the content store.
//
// The index is only an acceleration structure: every candidate it yields is
// re-checked against the ledger before being returned, and a cold or broken
// index falls back to a direct ledger scan. Results therefore never depend
// on index freshness for correctness, only for speed.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yakrover/agent-registry/interfaces"
)

// Resolved is one discovery result: the entity's authoritative attributes
// plus its capability document.
type Resolved struct {
	EntityID   interfaces.EntityID            `json:"entity_id"`
	Owner      interfaces.Account             `json:"owner"`
	Attributes map[string]string              `json:"attributes"`
	Pointer    interfaces.ContentPointer      `json:"pointer"`
	Document   *interfaces.CapabilityDocument `json:"document,omitempty"`

	// Partial marks a result whose document could not be resolved (for
	// example the content was garbage-collected by the store). The
	// attribute fields are still authoritative.
	Partial       bool   `json:"partial,omitempty"`
	PartialReason string `json:"partial_reason,omitempty"`
}

// Resolver coordinates the index-first, ledger-authoritative find path.
type Resolver struct {
	index  interfaces.IndexReader
	ledger interfaces.Ledger
	store  interfaces.ContentStore
	log    *slog.Logger
}

// NewResolver creates a resolver over the given stores.
func NewResolver(index interfaces.IndexReader, ledger interfaces.Ledger, store interfaces.ContentStore, log *slog.Logger) *Resolver {
	return &Resolver{index: index, ledger: ledger, store: store, log: log}
}

// Find returns all entities whose current ledger attributes satisfy every
// key/value pair of the filter, in mint order.
//
// Per-candidate resolution failures are reported on the result's Partial
// marker and never abort the overall find. An empty index result and an
// index error are the same fallback trigger: the index cannot distinguish
// "no matches" from "not synced yet".
func (r *Resolver) Find(ctx context.Context, filter map[string]string) ([]Resolved, error) {
	entries, idxErr := r.index.Search(ctx, filter)
	if idxErr != nil {
		r.log.Warn("index search failed, falling back to ledger scan", "err", idxErr)
	}

	var results []Resolved
	if idxErr == nil && len(entries) > 0 {
		for _, entry := range entries {
			resolved, ok := r.verifyCandidate(ctx, entry.EntityID, filter, entry.Document)
			if !ok {
				continue
			}
			results = append(results, resolved)
		}
	} else {
		ids, err := r.ledgerScan(ctx, filter)
		if err != nil {
			if idxErr != nil {
				return nil, fmt.Errorf("index unavailable (%v) and ledger scan failed: %w", idxErr, err)
			}
			if errors.Is(err, interfaces.ErrUnsupportedQuery) {
				// Index is healthy but has no matches, and the ledger
				// cannot scan: report the index's answer.
				return nil, nil
			}
			return nil, err
		}
		for _, id := range ids {
			resolved, ok := r.verifyCandidate(ctx, id, filter, nil)
			if !ok {
				continue
			}
			results = append(results, resolved)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].EntityID.SequenceNumber < results[j].EntityID.SequenceNumber
	})
	return results, nil
}

// ResolveEntity resolves one entity directly from the ledger and content
// store, bypassing the index.
func (r *Resolver) ResolveEntity(ctx context.Context, id interfaces.EntityID) (*Resolved, error) {
	owner, err := r.ledger.OwnerOf(ctx, id)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		EntityID:   id,
		Owner:      owner,
		Attributes: map[string]string{},
	}
	r.attachDocument(ctx, resolved, nil)
	return resolved, nil
}

// verifyCandidate re-reads the candidate's filter attributes from the
// ledger and drops it on any mismatch. Index staleness is overridden by the
// ledger check.
func (r *Resolver) verifyCandidate(ctx context.Context, id interfaces.EntityID, filter map[string]string, projected *interfaces.CapabilityDocument) (Resolved, bool) {
	attributes := make(map[string]string, len(filter))
	for key, want := range filter {
		current, err := r.ledger.GetAttribute(ctx, id, interfaces.AttributeKey(key))
		if err != nil {
			// An unverifiable candidate is dropped: returning it could
			// violate the filter.
			r.log.Debug("dropping unverifiable candidate",
				slog.String("entity", id.String()),
				slog.String("key", key),
				"err", err)
			return Resolved{}, false
		}
		if current.String() != want {
			r.log.Debug("dropping stale index candidate",
				slog.String("entity", id.String()),
				slog.String("key", key),
				slog.String("index_value", want),
				slog.String("ledger_value", current.String()))
			return Resolved{}, false
		}
		attributes[key] = current.String()
	}

	owner, err := r.ledger.OwnerOf(ctx, id)
	if err != nil {
		r.log.Debug("dropping candidate without owner",
			slog.String("entity", id.String()),
			"err", err)
		return Resolved{}, false
	}

	resolved := Resolved{EntityID: id, Owner: owner, Attributes: attributes}
	r.attachDocument(ctx, &resolved, projected)
	return resolved, true
}

// attachDocument fills in the pointer and capability document, marking the
// result Partial instead of failing when the document cannot be resolved.
func (r *Resolver) attachDocument(ctx context.Context, resolved *Resolved, projected *interfaces.CapabilityDocument) {
	pointer, err := r.ledger.GetContentPointer(ctx, resolved.EntityID)
	if err != nil {
		resolved.Partial = true
		resolved.PartialReason = fmt.Sprintf("content pointer unavailable: %v", err)
		return
	}
	resolved.Pointer = pointer

	if projected != nil {
		// The index already projected the full document; the pointer read
		// above confirmed the entity still resolves.
		resolved.Document = projected
		return
	}

	data, err := r.store.Get(ctx, pointer.Address)
	if err != nil {
		resolved.Partial = true
		resolved.PartialReason = fmt.Sprintf("document fetch failed: %v", err)
		return
	}

	doc, err := interfaces.DecodeCapabilityDocument(data)
	if err != nil {
		resolved.Partial = true
		resolved.PartialReason = fmt.Sprintf("document malformed: %v", err)
		return
	}
	resolved.Document = doc
}

// ledgerScan picks one filter pair and asks the ledger for all matching
// entities. The category key is preferred because it is the reserved
// classification attribute and typically the most selective scan the
// ledger serves.
func (r *Resolver) ledgerScan(ctx context.Context, filter map[string]string) ([]interfaces.EntityID, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	key := ""
	if _, ok := filter[string(interfaces.CategoryKey)]; ok {
		key = string(interfaces.CategoryKey)
	} else {
		keys := make([]string, 0, len(filter))
		for k := range filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		key = keys[0]
	}

	return r.ledger.ListEntitiesByAttribute(ctx, interfaces.AttributeKey(key), interfaces.AttributeValue(filter[key]))
}
