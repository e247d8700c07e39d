package sequencer

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func testPointer(content string) interfaces.ContentPointer {
	return interfaces.ContentPointer{
		Scheme:  "ipfs",
		Address: interfaces.ComputeContentAddress([]byte(content)),
	}
}

func mintEntity(t *testing.T, seq *AccountSequencer, owner interfaces.Account) interfaces.EntityID {
	t.Helper()
	results := seq.SubmitOrdered(context.Background(), owner, []Op{Mint(testPointer("doc"))})
	require.Len(t, results, 1)
	require.Equal(t, StatusConfirmed, results[0].Status)
	require.NotNil(t, results[0].Receipt.MintedEntity)
	return *results[0].Receipt.MintedEntity
}

func TestSubmitOrderedConfirmsBatch(t *testing.T) {
	mock := ledger.NewMockLedgerClient(1)
	seq := New(mock, time.Second, testLogger())
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	id := mintEntity(t, seq, owner)

	results := seq.SubmitOrdered(context.Background(), owner, []Op{
		SetAttribute(id, "category", interfaces.AttributeValue("translation")),
		SetAttribute(id, "tier", interfaces.AttributeValue("pro")),
	})

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, StatusConfirmed, res.Status)
		assert.NotNil(t, res.Receipt)
	}

	value, err := mock.GetAttribute(context.Background(), id, "category")
	require.NoError(t, err)
	assert.Equal(t, "translation", value.String())
}

// Confirmations finishing out of order must not reorder the effects of the
// batch: the last-submitted write to a key wins regardless of confirmation
// latency.
func TestSubmitOrderedPreservesOrderUnderConfirmLatency(t *testing.T) {
	mock := ledger.NewMockLedgerClient(1)
	seq := New(mock, 5*time.Second, testLogger())
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	id := mintEntity(t, seq, owner)

	mock.SetConfirmLatency(func(interfaces.WriteKind) time.Duration {
		return time.Duration(rand.Intn(20)) * time.Millisecond
	})

	ops := []Op{
		SetAttribute(id, "tier", interfaces.AttributeValue("v1")),
		SetAttribute(id, "tier", interfaces.AttributeValue("v2")),
		SetAttribute(id, "tier", interfaces.AttributeValue("v3")),
		SetAttribute(id, "tier", interfaces.AttributeValue("v4")),
		SetAttribute(id, "tier", interfaces.AttributeValue("v5")),
	}

	results := seq.SubmitOrdered(context.Background(), owner, ops)
	for _, res := range results {
		require.Equal(t, StatusConfirmed, res.Status)
	}

	value, err := mock.GetAttribute(context.Background(), id, "tier")
	require.NoError(t, err)
	assert.Equal(t, "v5", value.String())
}

func TestSubmitOrderedSkipsAfterRejection(t *testing.T) {
	mock := ledger.NewMockLedgerClient(1)
	seq := New(mock, time.Second, testLogger())
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	id := mintEntity(t, seq, owner)
	mock.FailSubmitOfKey("poisoned", assert.AnError)

	results := seq.SubmitOrdered(context.Background(), owner, []Op{
		SetAttribute(id, "first", interfaces.AttributeValue("landed")),
		SetAttribute(id, "poisoned", interfaces.AttributeValue("x")),
		SetAttribute(id, "after", interfaces.AttributeValue("never submitted")),
	})

	require.Len(t, results, 3)
	assert.Equal(t, StatusConfirmed, results[0].Status)
	assert.Equal(t, StatusRejected, results[1].Status)
	assert.ErrorIs(t, results[1].Err, interfaces.ErrLedgerRejected)
	assert.Equal(t, StatusSkipped, results[2].Status)
	assert.ErrorIs(t, results[2].Err, ErrSkipped)

	// The write before the rejection stays applied; there is no rollback.
	value, err := mock.GetAttribute(context.Background(), id, "first")
	require.NoError(t, err)
	assert.Equal(t, "landed", value.String())

	value, err = mock.GetAttribute(context.Background(), id, "after")
	require.NoError(t, err)
	assert.True(t, value.IsAbsent())
}

func TestSubmitOrderedClassifiesTimeout(t *testing.T) {
	mock := ledger.NewMockLedgerClient(1)
	seq := New(mock, time.Second, testLogger())
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	id := mintEntity(t, seq, owner)
	mock.TimeoutNextConfirms(1, false)

	results := seq.SubmitOrdered(context.Background(), owner, []Op{
		SetAttribute(id, "category", interfaces.AttributeValue("translation")),
	})

	require.Len(t, results, 1)
	assert.Equal(t, StatusTimedOut, results[0].Status)
	assert.ErrorIs(t, results[0].Err, interfaces.ErrLedgerTimeout)
}

func TestSubmitOrderedRejectedConfirmation(t *testing.T) {
	mock := ledger.NewMockLedgerClient(1)
	seq := New(mock, time.Second, testLogger())
	owner := testAccount(t, "0x1111111111111111111111111111111111111111")

	id := mintEntity(t, seq, owner)
	mock.RejectNextConfirms(1)

	results := seq.SubmitOrdered(context.Background(), owner, []Op{
		SetAttribute(id, "category", interfaces.AttributeValue("translation")),
	})

	require.Len(t, results, 1)
	assert.Equal(t, StatusRejected, results[0].Status)
	assert.ErrorIs(t, results[0].Err, interfaces.ErrLedgerRejected)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "confirmed", StatusConfirmed.String())
	assert.Equal(t, "rejected", StatusRejected.String())
	assert.Equal(t, "timed_out", StatusTimedOut.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
}
