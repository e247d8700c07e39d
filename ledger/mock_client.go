package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yakrover/agent-registry/interfaces"
)

// MockLedgerClient is an in-memory implementation of interfaces.Ledger for
// tests and local development, simulating ledger behavior without a chain
// connection.
//
// Writes follow the real submission/confirmation split: a submitted
// operation mutates no state until it is confirmed, and confirmations apply
// in submission order regardless of the order Confirm is called in, mirrors
// how sequence slots serialize writes on the real ledger.
type MockLedgerClient struct {
	mu       sync.RWMutex
	chainID  uint64
	nextSeq  uint64
	nextSlot uint64
	txCount  uint64

	entities map[uint64]*mockEntity
	pending  map[string]*mockPendingOp

	submissions []string // op descriptions in submission order

	listingSupported bool
	failSubmitKeys   map[interfaces.AttributeKey]error
	timeoutConfirms  int
	timeoutLands     bool
	rejectConfirms   int
	confirmLatency   func(kind interfaces.WriteKind) time.Duration
}

type slotValue struct {
	value []byte
	slot  uint64
}

type mockEntity struct {
	owner   interfaces.Account
	pointer slotValue // pointer URI bytes
	attrs   map[interfaces.AttributeKey]slotValue
}

type mockPendingOp struct {
	kind    interfaces.WriteKind
	hash    string
	slot    uint64
	owner   interfaces.Account
	entity  interfaces.EntityID
	key     interfaces.AttributeKey
	value   interfaces.AttributeValue
	pointer interfaces.ContentPointer
	applied bool
}

func (p *mockPendingOp) Kind() interfaces.WriteKind { return p.kind }
func (p *mockPendingOp) Hash() string               { return p.hash }

// NewMockLedgerClient creates a mock ledger for the given chain id with
// empty state and attribute scans enabled.
func NewMockLedgerClient(chainID uint64) *MockLedgerClient {
	return &MockLedgerClient{
		chainID:          chainID,
		nextSeq:          1,
		entities:         make(map[uint64]*mockEntity),
		pending:          make(map[string]*mockPendingOp),
		listingSupported: true,
		failSubmitKeys:   make(map[interfaces.AttributeKey]error),
	}
}

// DisableListing makes ListEntitiesByAttribute fail with
// ErrUnsupportedQuery, simulating an RPC backend without event scans.
func (m *MockLedgerClient) DisableListing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listingSupported = false
}

// FailSubmitOfKey makes any SubmitSetAttribute for key fail with err.
func (m *MockLedgerClient) FailSubmitOfKey(key interfaces.AttributeKey, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSubmitKeys[key] = err
}

// TimeoutNextConfirms makes the next n Confirm calls return
// ErrLedgerTimeout. When stillLands is true the writes are applied anyway,
// simulating a transaction that lands after the caller stopped waiting.
func (m *MockLedgerClient) TimeoutNextConfirms(n int, stillLands bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeoutConfirms = n
	m.timeoutLands = stillLands
}

// RejectNextConfirms makes the next n Confirm calls report an on-chain
// revert without applying the write.
func (m *MockLedgerClient) RejectNextConfirms(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectConfirms = n
}

// SetConfirmLatency installs a hook that delays each confirmation, used to
// simulate out-of-order confirmation completion.
func (m *MockLedgerClient) SetConfirmLatency(f func(kind interfaces.WriteKind) time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmLatency = f
}

// Submissions returns human-readable descriptions of every submitted write
// in submission order.
func (m *MockLedgerClient) Submissions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.submissions))
	copy(out, m.submissions)
	return out
}

// ChainID returns the mock network id.
func (m *MockLedgerClient) ChainID() uint64 {
	return m.chainID
}

// OwnerOf returns the minting account of an entity.
func (m *MockLedgerClient) OwnerOf(ctx context.Context, id interfaces.EntityID) (interfaces.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[id.SequenceNumber]
	if !ok {
		return interfaces.Account{}, fmt.Errorf("%w: entity %s", interfaces.ErrNotFound, id)
	}
	return entity.owner, nil
}

// GetAttribute reads one attribute. Unset keys read as an empty value.
func (m *MockLedgerClient) GetAttribute(ctx context.Context, id interfaces.EntityID, key interfaces.AttributeKey) (interfaces.AttributeValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[id.SequenceNumber]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", interfaces.ErrNotFound, id)
	}
	return interfaces.AttributeValue(entity.attrs[key].value), nil
}

// GetContentPointer reads the entity's current document pointer.
func (m *MockLedgerClient) GetContentPointer(ctx context.Context, id interfaces.EntityID) (interfaces.ContentPointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[id.SequenceNumber]
	if !ok {
		return interfaces.ContentPointer{}, fmt.Errorf("%w: entity %s", interfaces.ErrNotFound, id)
	}
	return interfaces.ParseContentPointer(string(entity.pointer.value))
}

// ListEntitiesByAttribute returns entities whose current value for key
// equals value, in mint order.
func (m *MockLedgerClient) ListEntitiesByAttribute(ctx context.Context, key interfaces.AttributeKey, value interfaces.AttributeValue) ([]interfaces.EntityID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.listingSupported {
		return nil, interfaces.ErrUnsupportedQuery
	}

	var ids []interfaces.EntityID
	for seq, entity := range m.entities {
		if interfaces.AttributeValue(entity.attrs[key].value).Equal(value) {
			ids = append(ids, interfaces.EntityID{ChainID: m.chainID, SequenceNumber: seq})
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].SequenceNumber < ids[j].SequenceNumber })
	return ids, nil
}

// FindEntityByPointer looks for an entity minted by owner whose current
// pointer equals pointer.
func (m *MockLedgerClient) FindEntityByPointer(ctx context.Context, owner interfaces.Account, pointer interfaces.ContentPointer) (interfaces.EntityID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := pointer.String()
	var seqs []uint64
	for seq := range m.entities {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	for _, seq := range seqs {
		entity := m.entities[seq]
		if entity.owner == owner && string(entity.pointer.value) == want {
			return interfaces.EntityID{ChainID: m.chainID, SequenceNumber: seq}, true, nil
		}
	}
	return interfaces.EntityID{}, false, nil
}

// SubmitMint queues an entity creation.
func (m *MockLedgerClient) SubmitMint(ctx context.Context, owner interfaces.Account, pointer interfaces.ContentPointer) (interfaces.PendingWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := m.newPendingOp(interfaces.WriteMint)
	op.owner = owner
	op.pointer = pointer
	m.submissions = append(m.submissions, fmt.Sprintf("mint %s", pointer))
	return op, nil
}

// SubmitSetAttribute queues an attribute overwrite.
func (m *MockLedgerClient) SubmitSetAttribute(ctx context.Context, id interfaces.EntityID, key interfaces.AttributeKey, value interfaces.AttributeValue) (interfaces.PendingWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failSubmitKeys[key]; ok {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrLedgerRejected, err)
	}

	op := m.newPendingOp(interfaces.WriteSetAttribute)
	op.entity = id
	op.key = key
	op.value = value
	m.submissions = append(m.submissions, fmt.Sprintf("set_attribute %s %s=%s", id, key, value))
	return op, nil
}

// SubmitSetContentPointer queues a document repoint.
func (m *MockLedgerClient) SubmitSetContentPointer(ctx context.Context, id interfaces.EntityID, pointer interfaces.ContentPointer) (interfaces.PendingWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := m.newPendingOp(interfaces.WriteSetContentPointer)
	op.entity = id
	op.pointer = pointer
	m.submissions = append(m.submissions, fmt.Sprintf("set_content_pointer %s %s", id, pointer))
	return op, nil
}

// Confirm applies a queued write and returns its receipt. Writes apply in
// submission-slot order even when confirmations are awaited out of order.
func (m *MockLedgerClient) Confirm(ctx context.Context, pending interfaces.PendingWrite) (*interfaces.WriteReceipt, error) {
	m.mu.Lock()
	op, ok := m.pending[pending.Hash()]
	latency := m.confirmLatency
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown pending write %s", pending.Hash())
	}

	if latency != nil {
		select {
		case <-time.After(latency(op.kind)):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s %s", interfaces.ErrLedgerTimeout, op.kind, op.hash)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rejectConfirms > 0 {
		m.rejectConfirms--
		delete(m.pending, op.hash)
		return nil, fmt.Errorf("%w: %s %s reverted", interfaces.ErrLedgerRejected, op.kind, op.hash)
	}

	if m.timeoutConfirms > 0 {
		m.timeoutConfirms--
		if m.timeoutLands {
			m.apply(op)
		}
		return nil, fmt.Errorf("%w: %s %s", interfaces.ErrLedgerTimeout, op.kind, op.hash)
	}

	minted := m.apply(op)
	delete(m.pending, op.hash)

	receipt := &interfaces.WriteReceipt{Kind: op.kind, Hash: op.hash}
	if op.kind == interfaces.WriteMint {
		receipt.MintedEntity = minted
	}
	return receipt, nil
}

// apply mutates entity state. The submission slot guards ordering: a write
// never overwrites the effect of a later-submitted write.
func (m *MockLedgerClient) apply(op *mockPendingOp) *interfaces.EntityID {
	if op.applied {
		if op.kind == interfaces.WriteMint {
			id := op.entity
			return &id
		}
		return nil
	}
	op.applied = true

	switch op.kind {
	case interfaces.WriteMint:
		seq := m.nextSeq
		m.nextSeq++
		m.entities[seq] = &mockEntity{
			owner:   op.owner,
			pointer: slotValue{value: []byte(op.pointer.String()), slot: op.slot},
			attrs:   make(map[interfaces.AttributeKey]slotValue),
		}
		op.entity = interfaces.EntityID{ChainID: m.chainID, SequenceNumber: seq}
		id := op.entity
		return &id

	case interfaces.WriteSetAttribute:
		if entity, ok := m.entities[op.entity.SequenceNumber]; ok {
			if current := entity.attrs[op.key]; current.slot < op.slot {
				entity.attrs[op.key] = slotValue{value: op.value, slot: op.slot}
			}
		}

	case interfaces.WriteSetContentPointer:
		if entity, ok := m.entities[op.entity.SequenceNumber]; ok {
			if entity.pointer.slot < op.slot {
				entity.pointer = slotValue{value: []byte(op.pointer.String()), slot: op.slot}
			}
		}
	}
	return nil
}

func (m *MockLedgerClient) newPendingOp(kind interfaces.WriteKind) *mockPendingOp {
	m.txCount++
	m.nextSlot++
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%d", m.chainID, m.txCount))
	op := &mockPendingOp{
		kind: kind,
		hash: "0x" + hex.EncodeToString(sum[:]),
		slot: m.nextSlot,
	}
	m.pending[op.hash] = op
	return op
}
