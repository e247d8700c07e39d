package interfaces

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EndpointDescriptor describes one transport endpoint of an entity and the
// subset of its capabilities reachable through it.
type EndpointDescriptor struct {
	Transport    string   `json:"transport"`
	Address      string   `json:"address"`
	Capabilities []string `json:"capabilities"`
}

// Classification holds the free-form descriptive fields of a capability
// document.
type Classification struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// CapabilityDocument is the immutable off-ledger description of an entity.
// Once published its bytes are content-addressed and never mutated in
// place; updates publish a new document and repoint the entity.
type CapabilityDocument struct {
	DeclaredCapabilities []string             `json:"declared_capabilities"`
	EndpointDescriptors  []EndpointDescriptor `json:"endpoint_descriptors"`
	Classification       Classification       `json:"classification"`
}

// Encode serializes the document into its canonical stored form. The
// encoding is deterministic so identical documents yield identical content
// addresses.
func (d *CapabilityDocument) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding capability document: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCapabilityDocument parses stored document bytes. Malformed data
// fails explicitly rather than producing a partially-populated document.
func DecodeCapabilityDocument(data []byte) (*CapabilityDocument, error) {
	if len(data) == 0 {
		return nil, errors.New("decoding capability document: empty input")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc CapabilityDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding capability document: %w", err)
	}
	return &doc, nil
}
