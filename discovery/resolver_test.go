package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yakrover/agent-registry/contentstore"
	"github.com/yakrover/agent-registry/index"
	"github.com/yakrover/agent-registry/interfaces"
	"github.com/yakrover/agent-registry/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccount(t *testing.T, hex string) interfaces.Account {
	t.Helper()
	acct, err := interfaces.NewAccountFromHex(hex)
	require.NoError(t, err)
	return acct
}

// fixture wires a mock ledger, a file content store, and a static index.
type fixture struct {
	ledger *ledger.MockLedgerClient
	store  interfaces.ContentStore
	index  *index.StaticIndexReader
	owner  interfaces.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := contentstore.NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	return &fixture{
		ledger: ledger.NewMockLedgerClient(1),
		store:  store,
		index:  &index.StaticIndexReader{},
		owner:  testAccount(t, "0x1111111111111111111111111111111111111111"),
	}
}

func (f *fixture) resolver() *Resolver {
	return NewResolver(f.index, f.ledger, f.store, testLogger())
}

// registerEntity publishes a document, mints an entity pointing at it, and
// commits the given attributes directly through the mock ledger.
func (f *fixture) registerEntity(t *testing.T, doc *interfaces.CapabilityDocument, attrs map[string]string) interfaces.EntityID {
	t.Helper()
	ctx := context.Background()

	data, err := doc.Encode()
	require.NoError(t, err)
	addr, err := f.store.Put(ctx, data)
	require.NoError(t, err)

	pointer := interfaces.ContentPointer{Scheme: "ipfs", Address: addr}
	pending, err := f.ledger.SubmitMint(ctx, f.owner, pointer)
	require.NoError(t, err)
	receipt, err := f.ledger.Confirm(ctx, pending)
	require.NoError(t, err)
	require.NotNil(t, receipt.MintedEntity)
	id := *receipt.MintedEntity

	for key, value := range attrs {
		pending, err := f.ledger.SubmitSetAttribute(ctx, id, interfaces.AttributeKey(key), interfaces.AttributeValue(value))
		require.NoError(t, err)
		_, err = f.ledger.Confirm(ctx, pending)
		require.NoError(t, err)
	}
	return id
}

func translatorDoc(name string) *interfaces.CapabilityDocument {
	return &interfaces.CapabilityDocument{
		DeclaredCapabilities: []string{"translate"},
		EndpointDescriptors: []interfaces.EndpointDescriptor{
			{Transport: "https", Address: "https://" + name + ".example.com", Capabilities: []string{"translate"}},
		},
		Classification: interfaces.Classification{Name: name},
	}
}

func TestFindVerifiesIndexCandidates(t *testing.T) {
	f := newFixture(t)
	id := f.registerEntity(t, translatorDoc("alpha"), map[string]string{"category": "translation"})

	f.index.Entries = []interfaces.IndexEntry{
		{EntityID: id, Owner: f.owner, Attributes: map[string]string{"category": "translation"}},
	}

	results, err := f.resolver().Find(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, id, res.EntityID)
	assert.Equal(t, f.owner, res.Owner)
	assert.Equal(t, "translation", res.Attributes["category"])
	assert.False(t, res.Partial)
	require.NotNil(t, res.Document)
	assert.Equal(t, "alpha", res.Document.Classification.Name)
}

func TestFindDropsStaleIndexCandidates(t *testing.T) {
	f := newFixture(t)
	current := f.registerEntity(t, translatorDoc("current"), map[string]string{"category": "translation"})
	moved := f.registerEntity(t, translatorDoc("moved"), map[string]string{"category": "search"})

	// The index still projects the old attribute value for the second
	// entity and an entity the ledger never minted.
	f.index.Entries = []interfaces.IndexEntry{
		{EntityID: current, Attributes: map[string]string{"category": "translation"}},
		{EntityID: moved, Attributes: map[string]string{"category": "translation"}},
		{EntityID: interfaces.EntityID{ChainID: 1, SequenceNumber: 999}, Attributes: map[string]string{"category": "translation"}},
	}

	results, err := f.resolver().Find(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, current, results[0].EntityID)
}

func TestFindFallsBackToLedgerScanOnColdIndex(t *testing.T) {
	f := newFixture(t)
	id := f.registerEntity(t, translatorDoc("alpha"), map[string]string{"category": "translation"})

	// The index has not synced anything yet.
	f.index.Entries = nil

	results, err := f.resolver().Find(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].EntityID)
	require.NotNil(t, results[0].Document)
}

func TestFindFallsBackToLedgerScanOnIndexError(t *testing.T) {
	f := newFixture(t)
	id := f.registerEntity(t, translatorDoc("alpha"), map[string]string{"category": "translation"})

	f.index.Err = errors.New("index unavailable")

	results, err := f.resolver().Find(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].EntityID)
}

func TestFindIndexErrorWithoutScanSupport(t *testing.T) {
	f := newFixture(t)
	f.registerEntity(t, translatorDoc("alpha"), map[string]string{"category": "translation"})

	f.index.Err = errors.New("index unavailable")
	f.ledger.DisableListing()

	_, err := f.resolver().Find(context.Background(), map[string]string{"category": "translation"})
	assert.Error(t, err)
}

func TestFindEmptyIndexWithoutScanSupport(t *testing.T) {
	f := newFixture(t)
	f.ledger.DisableListing()

	results, err := f.resolver().Find(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	assert.Empty(t, results, "a healthy empty index is an answer, not an error")
}

func TestFindMarksPartialWhenDocumentMissing(t *testing.T) {
	f := newFixture(t)

	// Mint pointing at content that was never stored.
	ctx := context.Background()
	pointer := interfaces.ContentPointer{
		Scheme:  "ipfs",
		Address: interfaces.ComputeContentAddress([]byte("garbage collected")),
	}
	pending, err := f.ledger.SubmitMint(ctx, f.owner, pointer)
	require.NoError(t, err)
	receipt, err := f.ledger.Confirm(ctx, pending)
	require.NoError(t, err)
	id := *receipt.MintedEntity

	setAttr, err := f.ledger.SubmitSetAttribute(ctx, id, "category", interfaces.AttributeValue("translation"))
	require.NoError(t, err)
	_, err = f.ledger.Confirm(ctx, setAttr)
	require.NoError(t, err)

	healthy := f.registerEntity(t, translatorDoc("healthy"), map[string]string{"category": "translation"})

	results, err := f.resolver().Find(ctx, map[string]string{"category": "translation"})
	require.NoError(t, err)
	require.Len(t, results, 2, "a broken document must not abort the find")

	assert.Equal(t, id, results[0].EntityID)
	assert.True(t, results[0].Partial)
	assert.NotEmpty(t, results[0].PartialReason)
	assert.Nil(t, results[0].Document)
	assert.Equal(t, "translation", results[0].Attributes["category"])

	assert.Equal(t, healthy, results[1].EntityID)
	assert.False(t, results[1].Partial)
}

func TestFindSortsByMintOrder(t *testing.T) {
	f := newFixture(t)
	first := f.registerEntity(t, translatorDoc("first"), map[string]string{"category": "translation"})
	second := f.registerEntity(t, translatorDoc("second"), map[string]string{"category": "translation"})
	third := f.registerEntity(t, translatorDoc("third"), map[string]string{"category": "translation"})

	// Index returns candidates out of order.
	f.index.Entries = []interfaces.IndexEntry{
		{EntityID: third, Attributes: map[string]string{"category": "translation"}},
		{EntityID: first, Attributes: map[string]string{"category": "translation"}},
		{EntityID: second, Attributes: map[string]string{"category": "translation"}},
	}

	results, err := f.resolver().Find(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, first, results[0].EntityID)
	assert.Equal(t, second, results[1].EntityID)
	assert.Equal(t, third, results[2].EntityID)
}

// A candidate whose ledger re-check errors cannot be verified and must be
// dropped rather than returned unverified.
func TestFindDropsUnverifiableCandidates(t *testing.T) {
	f := newFixture(t)

	id := interfaces.EntityID{ChainID: 1, SequenceNumber: 1}
	f.index.Entries = []interfaces.IndexEntry{
		{EntityID: id, Attributes: map[string]string{"category": "translation"}},
	}

	mockLedger := new(ledger.MockLedger)
	mockLedger.On("GetAttribute", mock.Anything, id, interfaces.AttributeKey("category")).
		Return(nil, errors.New("rpc connection reset"))

	resolver := NewResolver(f.index, mockLedger, f.store, testLogger())
	results, err := resolver.Find(context.Background(), map[string]string{"category": "translation"})
	require.NoError(t, err)
	assert.Empty(t, results)
	mockLedger.AssertExpectations(t)
}

func TestResolveEntity(t *testing.T) {
	f := newFixture(t)
	id := f.registerEntity(t, translatorDoc("alpha"), nil)

	resolved, err := f.resolver().ResolveEntity(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, resolved.EntityID)
	assert.Equal(t, f.owner, resolved.Owner)
	require.NotNil(t, resolved.Document)
	assert.Equal(t, "alpha", resolved.Document.Classification.Name)

	_, err = f.resolver().ResolveEntity(context.Background(), interfaces.EntityID{ChainID: 1, SequenceNumber: 999})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
