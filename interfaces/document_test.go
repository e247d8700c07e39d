package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *CapabilityDocument {
	return &CapabilityDocument{
		DeclaredCapabilities: []string{"translate", "summarize"},
		EndpointDescriptors: []EndpointDescriptor{
			{Transport: "https", Address: "https://api.example.com/v1", Capabilities: []string{"translate"}},
			{Transport: "grpc", Address: "grpc.example.com:443", Capabilities: []string{"summarize"}},
		},
		Classification: Classification{
			Name:        "translator",
			Description: "Text translation agent",
			Tags:        map[string]string{"lang": "multi"},
		},
	}
}

func TestDocumentEncodeDeterministic(t *testing.T) {
	doc := sampleDocument()

	first, err := doc.Encode()
	require.NoError(t, err)
	second, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Deterministic encoding is what makes content addresses stable.
	assert.Equal(t, ComputeContentAddress(first), ComputeContentAddress(second))
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := sampleDocument()

	data, err := doc.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCapabilityDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, decoded)
}

func TestDecodeDocumentRejectsMalformed(t *testing.T) {
	_, err := DecodeCapabilityDocument(nil)
	assert.Error(t, err)

	_, err = DecodeCapabilityDocument([]byte("{"))
	assert.Error(t, err)

	_, err = DecodeCapabilityDocument([]byte(`{"unknown_field": true}`))
	assert.Error(t, err, "unknown fields must be rejected")
}
