// Package sequencer serializes ledger writes against one owner account.
//
// Every write for an account consumes that account's next sequence slot;
// concurrently-submitted writes collide on the same slot and get rejected.
// Firing N attribute writes concurrently against one account is the single
// most common source of registration corruption, so all write submissions
// for an account are funnelled through an AccountSequencer batch.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yakrover/agent-registry/interfaces"
)

// ErrSkipped marks a batch operation that was never submitted because a
// prior operation in the batch was rejected. Its order-dependent effect is
// no longer guaranteed meaningful.
var ErrSkipped = errors.New("operation skipped: prior operation in batch was rejected")

// Op is one state-changing operation in an ordered batch.
type Op struct {
	Kind    interfaces.WriteKind
	Entity  interfaces.EntityID
	Key     interfaces.AttributeKey
	Value   interfaces.AttributeValue
	Pointer interfaces.ContentPointer
}

// Mint builds an entity-creation op. The owner comes from the batch.
func Mint(pointer interfaces.ContentPointer) Op {
	return Op{Kind: interfaces.WriteMint, Pointer: pointer}
}

// SetAttribute builds an attribute-overwrite op.
func SetAttribute(id interfaces.EntityID, key interfaces.AttributeKey, value interfaces.AttributeValue) Op {
	return Op{Kind: interfaces.WriteSetAttribute, Entity: id, Key: key, Value: value}
}

// SetContentPointer builds a document-repoint op.
func SetContentPointer(id interfaces.EntityID, pointer interfaces.ContentPointer) Op {
	return Op{Kind: interfaces.WriteSetContentPointer, Entity: id, Pointer: pointer}
}

// String describes the op for logs and diagnostics.
func (op Op) String() string {
	switch op.Kind {
	case interfaces.WriteMint:
		return fmt.Sprintf("mint %s", op.Pointer)
	case interfaces.WriteSetAttribute:
		return fmt.Sprintf("set_attribute %s %s", op.Entity, op.Key)
	case interfaces.WriteSetContentPointer:
		return fmt.Sprintf("set_content_pointer %s %s", op.Entity, op.Pointer)
	default:
		return "unknown"
	}
}

// Status reports the outcome of one batch operation.
type Status int

const (
	// StatusConfirmed: the write reached finality.
	StatusConfirmed Status = iota
	// StatusRejected: the ledger refused the write at submission or the
	// transaction reverted; not retried.
	StatusRejected
	// StatusTimedOut: confirmation was not observed within the deadline.
	// The write may still land; callers re-check ledger state before any
	// retry.
	StatusTimedOut
	// StatusSkipped: never submitted because a prior op was rejected.
	StatusSkipped
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusRejected:
		return "rejected"
	case StatusTimedOut:
		return "timed_out"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result reports the outcome of one op, in submission order.
type Result struct {
	Op      Op
	Status  Status
	Receipt *interfaces.WriteReceipt
	Err     error
}

// AccountSequencer owns the per-account submission order. The per-account
// sequence slot is managed exclusively here; no other code path may submit
// ledger writes for an account while one of its batches is in flight.
type AccountSequencer struct {
	ledger         interfaces.Ledger
	confirmTimeout time.Duration
	log            *slog.Logger

	mu       sync.Mutex
	accounts map[interfaces.Account]*sync.Mutex
}

// New creates a sequencer over the given ledger. confirmTimeout bounds the
// per-operation confirmation wait.
func New(ledger interfaces.Ledger, confirmTimeout time.Duration, log *slog.Logger) *AccountSequencer {
	if confirmTimeout == 0 {
		confirmTimeout = 2 * time.Minute
	}
	return &AccountSequencer{
		ledger:         ledger,
		confirmTimeout: confirmTimeout,
		log:            log,
		accounts:       make(map[interfaces.Account]*sync.Mutex),
	}
}

// SubmitOrdered submits ops strictly one after the previous submission is
// acknowledged, preserving the account's slot order. Confirmations are
// awaited concurrently and may complete out of order; results come back in
// submission order.
//
// If an op is rejected at submission, all later ops in the batch are
// abandoned and reported StatusSkipped. Ops submitted before the failure
// are left to resolve independently; the ledger has no rollback.
func (s *AccountSequencer) SubmitOrdered(ctx context.Context, owner interfaces.Account, ops []Op) []Result {
	results := make([]Result, len(ops))
	pendings := make([]interfaces.PendingWrite, len(ops))

	lock := s.accountLock(owner)
	lock.Lock()
	rejectedAt := -1
	for i, op := range ops {
		pending, err := s.submit(ctx, owner, op)
		if err != nil {
			s.log.Warn("batch submission rejected",
				slog.String("owner", owner.String()),
				slog.String("op", op.String()),
				slog.Int("position", i),
				"err", err)
			results[i] = Result{Op: op, Status: StatusRejected, Err: err}
			rejectedAt = i
			break
		}
		pendings[i] = pending
	}
	// Slots are assigned at submission; confirmations need no exclusivity.
	lock.Unlock()

	if rejectedAt >= 0 {
		for i := rejectedAt + 1; i < len(ops); i++ {
			results[i] = Result{Op: ops[i], Status: StatusSkipped, Err: ErrSkipped}
		}
	}

	var wg sync.WaitGroup
	for i, pending := range pendings {
		if pending == nil {
			continue
		}
		wg.Add(1)
		go func(i int, op Op, pending interfaces.PendingWrite) {
			defer wg.Done()
			results[i] = s.confirm(ctx, op, pending)
		}(i, ops[i], pending)
	}
	wg.Wait()

	return results
}

func (s *AccountSequencer) submit(ctx context.Context, owner interfaces.Account, op Op) (interfaces.PendingWrite, error) {
	switch op.Kind {
	case interfaces.WriteMint:
		return s.ledger.SubmitMint(ctx, owner, op.Pointer)
	case interfaces.WriteSetAttribute:
		return s.ledger.SubmitSetAttribute(ctx, op.Entity, op.Key, op.Value)
	case interfaces.WriteSetContentPointer:
		return s.ledger.SubmitSetContentPointer(ctx, op.Entity, op.Pointer)
	default:
		return nil, fmt.Errorf("%w: unknown operation kind %d", interfaces.ErrLedgerRejected, op.Kind)
	}
}

func (s *AccountSequencer) confirm(ctx context.Context, op Op, pending interfaces.PendingWrite) Result {
	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	receipt, err := s.ledger.Confirm(confirmCtx, pending)
	switch {
	case err == nil:
		return Result{Op: op, Status: StatusConfirmed, Receipt: receipt}
	case errors.Is(err, interfaces.ErrLedgerTimeout):
		return Result{Op: op, Status: StatusTimedOut, Err: err}
	default:
		return Result{Op: op, Status: StatusRejected, Err: err}
	}
}

func (s *AccountSequencer) accountLock(owner interfaces.Account) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.accounts[owner]
	if !ok {
		lock = &sync.Mutex{}
		s.accounts[owner] = lock
	}
	return lock
}
