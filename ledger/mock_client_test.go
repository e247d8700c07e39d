package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yakrover/agent-registry/interfaces"
)

func testPointer(t *testing.T, content string) interfaces.ContentPointer {
	t.Helper()
	return interfaces.ContentPointer{
		Scheme:  "ipfs",
		Address: interfaces.ComputeContentAddress([]byte(content)),
	}
}

func testAccount(t *testing.T, hex string) interfaces.Account {
	t.Helper()
	acct, err := interfaces.NewAccountFromHex(hex)
	require.NoError(t, err)
	return acct
}

func TestMockLedgerMintAssignsSequence(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(7)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	pending, err := mock.SubmitMint(ctx, owner, testPointer(t, "doc-1"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.WriteMint, pending.Kind())

	receipt, err := mock.Confirm(ctx, pending)
	require.NoError(t, err)
	require.NotNil(t, receipt.MintedEntity)
	assert.Equal(t, uint64(7), receipt.MintedEntity.ChainID)
	assert.Equal(t, uint64(1), receipt.MintedEntity.SequenceNumber)

	gotOwner, err := mock.OwnerOf(ctx, *receipt.MintedEntity)
	require.NoError(t, err)
	assert.Equal(t, owner, gotOwner)

	pointer, err := mock.GetContentPointer(ctx, *receipt.MintedEntity)
	require.NoError(t, err)
	assert.Equal(t, testPointer(t, "doc-1"), pointer)
}

func TestMockLedgerUnsetAttributeReadsEmpty(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(1)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	id := mustMint(t, mock, owner, testPointer(t, "doc"))

	value, err := mock.GetAttribute(ctx, id, "never-set")
	require.NoError(t, err)
	assert.True(t, value.IsAbsent())

	_, err = mock.GetAttribute(ctx, interfaces.EntityID{ChainID: 1, SequenceNumber: 999}, "x")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMockLedgerAttributeWriteReadBack(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(1)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")
	id := mustMint(t, mock, owner, testPointer(t, "doc"))

	pending, err := mock.SubmitSetAttribute(ctx, id, "category", interfaces.AttributeValue("translation"))
	require.NoError(t, err)
	_, err = mock.Confirm(ctx, pending)
	require.NoError(t, err)

	value, err := mock.GetAttribute(ctx, id, "category")
	require.NoError(t, err)
	assert.Equal(t, "translation", value.String())

	// An empty value clears the key.
	pending, err = mock.SubmitSetAttribute(ctx, id, "category", nil)
	require.NoError(t, err)
	_, err = mock.Confirm(ctx, pending)
	require.NoError(t, err)

	value, err = mock.GetAttribute(ctx, id, "category")
	require.NoError(t, err)
	assert.True(t, value.IsAbsent())
}

func TestMockLedgerOutOfOrderConfirmKeepsSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(1)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")
	id := mustMint(t, mock, owner, testPointer(t, "doc"))

	first, err := mock.SubmitSetAttribute(ctx, id, "tier", interfaces.AttributeValue("free"))
	require.NoError(t, err)
	second, err := mock.SubmitSetAttribute(ctx, id, "tier", interfaces.AttributeValue("pro"))
	require.NoError(t, err)

	// Confirm in reverse order; the later submission still wins.
	_, err = mock.Confirm(ctx, second)
	require.NoError(t, err)
	_, err = mock.Confirm(ctx, first)
	require.NoError(t, err)

	value, err := mock.GetAttribute(ctx, id, "tier")
	require.NoError(t, err)
	assert.Equal(t, "pro", value.String())
}

func TestMockLedgerListEntitiesByAttribute(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(1)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	first := mustMint(t, mock, owner, testPointer(t, "doc-1"))
	second := mustMint(t, mock, owner, testPointer(t, "doc-2"))
	third := mustMint(t, mock, owner, testPointer(t, "doc-3"))

	for _, id := range []interfaces.EntityID{first, third} {
		pending, err := mock.SubmitSetAttribute(ctx, id, "category", interfaces.AttributeValue("translation"))
		require.NoError(t, err)
		_, err = mock.Confirm(ctx, pending)
		require.NoError(t, err)
	}
	pending, err := mock.SubmitSetAttribute(ctx, second, "category", interfaces.AttributeValue("search"))
	require.NoError(t, err)
	_, err = mock.Confirm(ctx, pending)
	require.NoError(t, err)

	ids, err := mock.ListEntitiesByAttribute(ctx, "category", interfaces.AttributeValue("translation"))
	require.NoError(t, err)
	assert.Equal(t, []interfaces.EntityID{first, third}, ids)

	mock.DisableListing()
	_, err = mock.ListEntitiesByAttribute(ctx, "category", interfaces.AttributeValue("translation"))
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedQuery)
}

func TestMockLedgerFindEntityByPointer(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(1)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")
	other := testAccount(t, "0x2222222222222222222222222222222222222222")

	pointer := testPointer(t, "doc")
	id := mustMint(t, mock, owner, pointer)

	found, ok, err := mock.FindEntityByPointer(ctx, owner, pointer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, found)

	_, ok, err = mock.FindEntityByPointer(ctx, other, pointer)
	require.NoError(t, err)
	assert.False(t, ok, "pointer match must be scoped to the owner")

	_, ok, err = mock.FindEntityByPointer(ctx, owner, testPointer(t, "other-doc"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMockLedgerTimedOutWriteCanStillLand(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(1)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	pointer := testPointer(t, "doc")
	mock.TimeoutNextConfirms(1, true)

	pending, err := mock.SubmitMint(ctx, owner, pointer)
	require.NoError(t, err)

	_, err = mock.Confirm(ctx, pending)
	assert.ErrorIs(t, err, interfaces.ErrLedgerTimeout)

	// The transaction landed even though the caller stopped waiting.
	found, ok, err := mock.FindEntityByPointer(ctx, owner, pointer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), found.SequenceNumber)
}

func TestMockLedgerRejectedConfirm(t *testing.T) {
	ctx := context.Background()
	mock := NewMockLedgerClient(1)
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")
	id := mustMint(t, mock, owner, testPointer(t, "doc"))

	mock.RejectNextConfirms(1)
	pending, err := mock.SubmitSetAttribute(ctx, id, "category", interfaces.AttributeValue("x"))
	require.NoError(t, err)

	_, err = mock.Confirm(ctx, pending)
	assert.ErrorIs(t, err, interfaces.ErrLedgerRejected)

	value, err := mock.GetAttribute(ctx, id, "category")
	require.NoError(t, err)
	assert.True(t, value.IsAbsent(), "rejected writes must not mutate state")
}

func mustMint(t *testing.T, mock *MockLedgerClient, owner interfaces.Account, pointer interfaces.ContentPointer) interfaces.EntityID {
	t.Helper()
	ctx := context.Background()

	pending, err := mock.SubmitMint(ctx, owner, pointer)
	require.NoError(t, err)
	receipt, err := mock.Confirm(ctx, pending)
	require.NoError(t, err)
	require.NotNil(t, receipt.MintedEntity)
	return *receipt.MintedEntity
}
