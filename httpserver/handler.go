package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yakrover/agent-registry/discovery"
	"github.com/yakrover/agent-registry/interfaces"
	"github.com/yakrover/agent-registry/metrics"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Handler processes HTTP requests for the discovery service. All lookups go
// through the resolver, so responses reflect current ledger state rather
// than raw index projections.
type Handler struct {
	resolver *discovery.Resolver
	log      *slog.Logger
}

// NewHandler creates a discovery request handler.
func NewHandler(resolver *discovery.Resolver, log *slog.Logger) *Handler {
	return &Handler{resolver: resolver, log: log}
}

// findRequest is the body of POST /api/discovery/find.
type findRequest struct {
	Filter map[string]string `json:"filter"`
}

// findResult is one entry of a find response. Partial entries carry
// authoritative attributes but no resolved document.
type findResult struct {
	EntityID            string                          `json:"entity_id"`
	Owner               interfaces.Account              `json:"owner"`
	Attributes          map[string]string               `json:"attributes"`
	Pointer             string                          `json:"pointer,omitempty"`
	Classification      *interfaces.Classification      `json:"classification,omitempty"`
	EndpointDescriptors []interfaces.EndpointDescriptor `json:"endpoint_descriptors,omitempty"`
	Partial             bool                            `json:"partial,omitempty"`
	PartialReason       string                          `json:"partial_reason,omitempty"`
}

func toFindResult(r discovery.Resolved) findResult {
	out := findResult{
		EntityID:      r.EntityID.String(),
		Owner:         r.Owner,
		Attributes:    r.Attributes,
		Partial:       r.Partial,
		PartialReason: r.PartialReason,
	}
	if !r.Pointer.IsZero() {
		out.Pointer = r.Pointer.String()
	}
	if r.Document != nil {
		out.Classification = &r.Document.Classification
		out.EndpointDescriptors = r.Document.EndpointDescriptors
	}
	return out
}

// HandleFind processes discovery queries.
//
// URL format: POST /api/discovery/find
// Request body: {"filter": {"category": "...", ...}}
// Response: JSON array of matching entities in mint order.
func (h *Handler) HandleFind(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req findRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		metrics.DiscoveryRequests.WithLabelValues("bad_request").Inc()
		http.Error(w, "Invalid find request body", http.StatusBadRequest)
		return
	}

	results, err := h.resolver.Find(r.Context(), req.Filter)
	if err != nil {
		h.log.Error("Discovery find failed", "err", err, "filter", req.Filter)
		metrics.DiscoveryRequests.WithLabelValues("error").Inc()
		if errors.Is(err, interfaces.ErrUnsupportedQuery) {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}
		http.Error(w, "Discovery lookup failed", http.StatusBadGateway)
		return
	}

	response := make([]findResult, 0, len(results))
	for _, res := range results {
		if res.Partial {
			metrics.DiscoveryPartialResults.Inc()
		}
		response = append(response, toFindResult(res))
	}

	metrics.DiscoveryRequests.WithLabelValues("ok").Inc()
	metrics.DiscoveryDuration.Observe(time.Since(started).Seconds())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode find response", "err", err)
	}
}

// HandleEntity resolves one entity directly from the ledger.
//
// URL format: GET /api/entities/{entity_id}
// The entity id uses the canonical "<chain>:<sequence>" form.
func (h *Handler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	id, err := interfaces.ParseEntityID(r.PathValue("entity_id"))
	if err != nil {
		metrics.EntityLookups.WithLabelValues("bad_request").Inc()
		http.Error(w, "Invalid entity id format", http.StatusBadRequest)
		return
	}

	resolved, err := h.resolver.ResolveEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			metrics.EntityLookups.WithLabelValues("not_found").Inc()
			http.Error(w, "Entity not found", http.StatusNotFound)
			return
		}
		h.log.Error("Entity lookup failed", "err", err, slog.String("entity", id.String()))
		metrics.EntityLookups.WithLabelValues("error").Inc()
		http.Error(w, "Entity lookup failed", http.StatusBadGateway)
		return
	}

	metrics.EntityLookups.WithLabelValues("ok").Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toFindResult(*resolved)); err != nil {
		h.log.Error("Failed to encode entity response", "err", err)
	}
}
