package interfaces

import "context"

// WriteKind enumerates the state-changing ledger operations.
type WriteKind int

const (
	// WriteMint creates a new entity with an initial content pointer.
	WriteMint WriteKind = iota
	// WriteSetAttribute overwrites one attribute key of an entity.
	WriteSetAttribute
	// WriteSetContentPointer repoints an entity at a new document.
	WriteSetContentPointer
)

// String returns the operation name.
func (k WriteKind) String() string {
	switch k {
	case WriteMint:
		return "mint"
	case WriteSetAttribute:
		return "set_attribute"
	case WriteSetContentPointer:
		return "set_content_pointer"
	default:
		return "unknown"
	}
}

// PendingWrite is a submitted but unconfirmed ledger write. A pending write
// must never be treated as committed: dependent logic waits for Confirm.
type PendingWrite interface {
	// Kind returns the operation the write performs.
	Kind() WriteKind

	// Hash returns the transaction hash of the submitted write.
	Hash() string
}

// WriteReceipt reports a confirmed ledger write.
type WriteReceipt struct {
	// Kind mirrors the pending write's operation.
	Kind WriteKind

	// Hash is the transaction hash.
	Hash string

	// MintedEntity carries the assigned entity id for WriteMint receipts
	// and is nil otherwise.
	MintedEntity *EntityID
}

// Ledger is the typed client for the authoritative on-chain registry.
//
// Writes are split into submission and confirmation: Submit* methods return
// as soon as the ledger acknowledges the submission, and Confirm blocks
// until finality or the caller's context deadline. Reads are safe for
// unbounded concurrent use; write submissions for one owner account must be
// serialized through the sequencer.
type Ledger interface {
	// ChainID identifies the network this client is connected to.
	ChainID() uint64

	// OwnerOf returns the account that minted the entity. Returns
	// ErrNotFound for unminted ids.
	OwnerOf(ctx context.Context, id EntityID) (Account, error)

	// GetAttribute reads the current value of one attribute key. An unset
	// or cleared key reads as an empty value, not an error.
	GetAttribute(ctx context.Context, id EntityID, key AttributeKey) (AttributeValue, error)

	// GetContentPointer reads the entity's current document pointer.
	GetContentPointer(ctx context.Context, id EntityID) (ContentPointer, error)

	// ListEntitiesByAttribute scans the ledger for entities whose current
	// value for key equals value, in mint order. Backends that cannot scan
	// return ErrUnsupportedQuery.
	ListEntitiesByAttribute(ctx context.Context, key AttributeKey, value AttributeValue) ([]EntityID, error)

	// FindEntityByPointer looks for an entity minted by owner whose current
	// content pointer equals pointer. It is the pre-retry state check for
	// mints that timed out: the original transaction may have landed.
	FindEntityByPointer(ctx context.Context, owner Account, pointer ContentPointer) (EntityID, bool, error)

	// SubmitMint submits an entity creation. The receipt carries the
	// assigned entity id.
	SubmitMint(ctx context.Context, owner Account, pointer ContentPointer) (PendingWrite, error)

	// SubmitSetAttribute submits an attribute overwrite. An empty value
	// clears the key.
	SubmitSetAttribute(ctx context.Context, id EntityID, key AttributeKey, value AttributeValue) (PendingWrite, error)

	// SubmitSetContentPointer submits a document repoint.
	SubmitSetContentPointer(ctx context.Context, id EntityID, pointer ContentPointer) (PendingWrite, error)

	// Confirm waits for a submitted write to reach finality. It returns
	// ErrLedgerRejected if the write failed on-chain, or ErrLedgerTimeout
	// if ctx expires first; on timeout the write may still land later.
	Confirm(ctx context.Context, pending PendingWrite) (*WriteReceipt, error)
}
