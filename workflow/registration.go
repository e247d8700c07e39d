// Package workflow drives an entity registration through its full
// lifecycle: publish the capability document, mint the entity, commit its
// attributes, and verify the result.
//
// Every step is idempotent against ledger state so a registration that
// failed part-way can be re-run without creating duplicate entities or
// re-submitting writes that already landed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/yakrover/agent-registry/interfaces"
	"github.com/yakrover/agent-registry/metrics"
	"github.com/yakrover/agent-registry/sequencer"
)

// DefaultPointerScheme is the scheme registrations write into the on-ledger
// content pointer. Content addresses are backend-independent CIDs, so the
// scheme names the canonical retrieval network rather than the backend the
// document happened to be published through.
const DefaultPointerScheme = "ipfs"

// State is a registration's position in the lifecycle.
type State string

const (
	// StateDraft: nothing durable exists yet.
	StateDraft State = "draft"
	// StateDocumentPublished: the document is in the content store and the
	// pointer is recorded on the registration.
	StateDocumentPublished State = "document_published"
	// StateMinted: the entity exists on the ledger.
	StateMinted State = "minted"
	// StateAttributesCommitted: all attribute writes confirmed.
	StateAttributesCommitted State = "attributes_committed"
	// StateComplete: the verification read-back passed.
	StateComplete State = "complete"
	// StateFailed: a step failed; FailedStep records where to resume.
	StateFailed State = "failed"
)

// Step names used in FailedStep.
const (
	stepPublish    = "publish"
	stepMint       = "mint"
	stepAttributes = "attributes"
	stepVerify     = "verify"
)

// Registration is the durable record of one registration attempt. It is a
// plain JSON-serializable value so callers can persist it between runs and
// resume after a crash.
type Registration struct {
	ID    string             `json:"id"`
	Owner interfaces.Account `json:"owner"`

	Document   *interfaces.CapabilityDocument `json:"document"`
	Attributes map[string]string              `json:"attributes"`

	State         State  `json:"state"`
	FailedStep    string `json:"failed_step,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	// MissingKeys lists attribute keys whose verification read-back did not
	// match the requested value.
	MissingKeys []string `json:"missing_keys,omitempty"`

	// MintAttempted records that a mint was submitted at least once. Any
	// later mint attempt must first reconcile against the ledger.
	MintAttempted bool `json:"mint_attempted,omitempty"`

	EntityID interfaces.EntityID       `json:"entity_id"`
	Pointer  interfaces.ContentPointer `json:"pointer"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRegistration builds a draft registration for the given owner account.
func NewRegistration(owner interfaces.Account, doc *interfaces.CapabilityDocument, attributes map[string]string) *Registration {
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}

	now := time.Now().UTC()
	return &Registration{
		ID:         uuid.New().String(),
		Owner:      owner,
		Document:   doc,
		Attributes: attrs,
		State:      StateDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ResumeRegistration rebuilds a registration for an entity that is already
// minted, for recovery paths where the durable record was lost but the
// entity id is known. The workflow resumes at the attribute step and never
// mints again.
func ResumeRegistration(owner interfaces.Account, entityID interfaces.EntityID, doc *interfaces.CapabilityDocument, attributes map[string]string) *Registration {
	reg := NewRegistration(owner, doc, attributes)
	reg.EntityID = entityID
	reg.State = StateMinted
	return reg
}

// Workflow executes registrations against a content store and a ledger. All
// ledger writes go through the account sequencer.
type Workflow struct {
	store         interfaces.ContentStore
	ledger        interfaces.Ledger
	seq           *sequencer.AccountSequencer
	pointerScheme string
	log           *slog.Logger
}

// New creates a workflow executor.
func New(store interfaces.ContentStore, ledger interfaces.Ledger, seq *sequencer.AccountSequencer, log *slog.Logger) *Workflow {
	return &Workflow{
		store:         store,
		ledger:        ledger,
		seq:           seq,
		pointerScheme: DefaultPointerScheme,
		log:           log,
	}
}

// SetPointerScheme overrides the scheme written into content pointers.
func (w *Workflow) SetPointerScheme(scheme string) {
	w.pointerScheme = scheme
}

// Run drives the registration forward until it completes or a step fails.
// Calling Run again on a failed registration resumes at the failed step;
// a lost mint confirmation is reconciled against the ledger before any
// retry, so an entity is never minted twice for one registration.
func (w *Workflow) Run(ctx context.Context, reg *Registration) error {
	if reg.State == StateFailed {
		w.resume(reg)
	}

	for {
		var err error
		switch reg.State {
		case StateDraft:
			err = w.publishDocument(ctx, reg)
		case StateDocumentPublished:
			err = w.mint(ctx, reg)
		case StateMinted:
			err = w.commitAttributes(ctx, reg)
		case StateAttributesCommitted:
			err = w.verify(ctx, reg)
		case StateComplete:
			return nil
		default:
			return fmt.Errorf("registration %s: unknown state %q", reg.ID, reg.State)
		}

		if err != nil {
			return err
		}
	}
}

// resume maps a failed registration back to the state that re-runs the
// failed step.
func (w *Workflow) resume(reg *Registration) {
	w.log.Info("resuming failed registration",
		slog.String("registration", reg.ID),
		slog.String("failed_step", reg.FailedStep))

	switch reg.FailedStep {
	case stepMint:
		reg.State = StateDocumentPublished
	case stepAttributes, stepVerify:
		reg.State = StateMinted
	default:
		reg.State = StateDraft
	}
	reg.FailedStep = ""
	reg.FailureReason = ""
	reg.MissingKeys = nil
}

func (w *Workflow) publishDocument(ctx context.Context, reg *Registration) error {
	if reg.Document == nil {
		return w.fail(reg, stepPublish, errors.New("registration has no capability document"))
	}

	data, err := reg.Document.Encode()
	if err != nil {
		return w.fail(reg, stepPublish, err)
	}

	addr, err := w.store.Put(ctx, data)
	if err != nil {
		return w.fail(reg, stepPublish, fmt.Errorf("publishing capability document: %w", err))
	}

	reg.Pointer = interfaces.ContentPointer{Scheme: w.pointerScheme, Address: addr}
	w.advance(reg, StateDocumentPublished)
	w.log.Info("capability document published",
		slog.String("registration", reg.ID),
		slog.String("pointer", reg.Pointer.String()))
	return nil
}

// mint creates the entity on the ledger. Before submitting it checks
// whether a previous attempt already landed: a mint that timed out at
// confirmation may still have been included, and minting again would
// create a duplicate entity.
func (w *Workflow) mint(ctx context.Context, reg *Registration) error {
	if !reg.EntityID.IsZero() {
		w.advance(reg, StateMinted)
		return nil
	}

	// A prior attempt that timed out may have landed anyway; reconcile
	// against the ledger before submitting another mint. Fresh
	// registrations skip the scan.
	if reg.MintAttempted {
		if id, found, err := w.ledger.FindEntityByPointer(ctx, reg.Owner, reg.Pointer); err != nil {
			return w.fail(reg, stepMint, fmt.Errorf("checking for prior mint: %w", err))
		} else if found {
			w.log.Info("prior mint landed, adopting entity",
				slog.String("registration", reg.ID),
				slog.String("entity", id.String()))
			reg.EntityID = id
			w.advance(reg, StateMinted)
			return nil
		}
	}

	reg.MintAttempted = true
	results := w.seq.SubmitOrdered(ctx, reg.Owner, []sequencer.Op{sequencer.Mint(reg.Pointer)})
	res := results[0]
	if res.Status != sequencer.StatusConfirmed {
		return w.fail(reg, stepMint, fmt.Errorf("mint %s: %w", res.Status, res.Err))
	}
	if res.Receipt == nil || res.Receipt.MintedEntity == nil {
		return w.fail(reg, stepMint, errors.New("mint confirmed without an entity id"))
	}

	reg.EntityID = *res.Receipt.MintedEntity
	w.advance(reg, StateMinted)
	w.log.Info("entity minted",
		slog.String("registration", reg.ID),
		slog.String("entity", reg.EntityID.String()))
	return nil
}

// commitAttributes writes all requested attributes in one ordered batch.
// Keys are sorted so re-runs submit in a stable order.
func (w *Workflow) commitAttributes(ctx context.Context, reg *Registration) error {
	keys := sortedKeys(reg.Attributes)

	ops := make([]sequencer.Op, 0, len(keys))
	for _, key := range keys {
		ops = append(ops, sequencer.SetAttribute(reg.EntityID,
			interfaces.AttributeKey(key),
			interfaces.AttributeValue(reg.Attributes[key])))
	}

	if err := w.runBatch(ctx, reg.Owner, ops); err != nil {
		return w.fail(reg, stepAttributes, err)
	}

	w.advance(reg, StateAttributesCommitted)
	return nil
}

// verify reads every requested attribute back from the ledger. A confirmed
// write batch should always verify; a mismatch means interference from
// outside the sequencer and is surfaced with the exact keys affected.
func (w *Workflow) verify(ctx context.Context, reg *Registration) error {
	var missing []string
	for _, key := range sortedKeys(reg.Attributes) {
		current, err := w.ledger.GetAttribute(ctx, reg.EntityID, interfaces.AttributeKey(key))
		if err != nil {
			return w.fail(reg, stepVerify, fmt.Errorf("reading back attribute %q: %w", key, err))
		}
		if current.String() != reg.Attributes[key] {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		reg.MissingKeys = missing
		return w.fail(reg, stepVerify, fmt.Errorf("attributes failed verification: %v", missing))
	}

	w.advance(reg, StateComplete)
	w.log.Info("registration complete",
		slog.String("registration", reg.ID),
		slog.String("entity", reg.EntityID.String()))
	return nil
}

// Update publishes a new capability document for an existing entity and
// commits the repoint plus any attribute changes as one ordered batch. The
// old document stays in the content store untouched; only the pointer
// moves.
func (w *Workflow) Update(ctx context.Context, owner interfaces.Account, id interfaces.EntityID, doc *interfaces.CapabilityDocument, attributes map[string]string) (interfaces.ContentPointer, error) {
	data, err := doc.Encode()
	if err != nil {
		return interfaces.ContentPointer{}, err
	}

	addr, err := w.store.Put(ctx, data)
	if err != nil {
		return interfaces.ContentPointer{}, fmt.Errorf("publishing updated document: %w", err)
	}
	pointer := interfaces.ContentPointer{Scheme: w.pointerScheme, Address: addr}

	ops := []sequencer.Op{sequencer.SetContentPointer(id, pointer)}
	for _, key := range sortedKeys(attributes) {
		ops = append(ops, sequencer.SetAttribute(id,
			interfaces.AttributeKey(key),
			interfaces.AttributeValue(attributes[key])))
	}

	if err := w.runBatch(ctx, owner, ops); err != nil {
		return interfaces.ContentPointer{}, err
	}

	w.log.Info("entity updated",
		slog.String("entity", id.String()),
		slog.String("pointer", pointer.String()))
	return pointer, nil
}

// ApplyAttributes reconciles an entity's attributes toward the desired
// values: keys already holding the desired value are skipped, differing
// keys are overwritten, and keys mapped to the empty string are cleared.
// Every applied change is verified by a read-back.
func (w *Workflow) ApplyAttributes(ctx context.Context, owner interfaces.Account, id interfaces.EntityID, desired map[string]string) error {
	keys := sortedKeys(desired)

	var ops []sequencer.Op
	var changed []string
	for _, key := range keys {
		current, err := w.ledger.GetAttribute(ctx, id, interfaces.AttributeKey(key))
		if err != nil {
			return fmt.Errorf("reading attribute %q: %w", key, err)
		}
		if current.String() == desired[key] {
			continue
		}
		ops = append(ops, sequencer.SetAttribute(id,
			interfaces.AttributeKey(key),
			interfaces.AttributeValue(desired[key])))
		changed = append(changed, key)
	}

	if len(ops) == 0 {
		w.log.Info("attributes already in desired state", slog.String("entity", id.String()))
		return nil
	}

	if err := w.runBatch(ctx, owner, ops); err != nil {
		return err
	}

	for _, key := range changed {
		current, err := w.ledger.GetAttribute(ctx, id, interfaces.AttributeKey(key))
		if err != nil {
			return fmt.Errorf("verifying attribute %q: %w", key, err)
		}
		if current.String() != desired[key] {
			return fmt.Errorf("attribute %q failed verification: have %q, want %q", key, current.String(), desired[key])
		}
	}

	w.log.Info("attributes reconciled",
		slog.String("entity", id.String()),
		slog.Int("changed", len(changed)))
	return nil
}

// runBatch submits an ordered batch and folds the per-op outcomes into one
// error. Ops landed before the first failure stay applied; the ledger has
// no rollback.
func (w *Workflow) runBatch(ctx context.Context, owner interfaces.Account, ops []sequencer.Op) error {
	results := w.seq.SubmitOrdered(ctx, owner, ops)

	var failures []string
	for _, res := range results {
		if res.Status == sequencer.StatusConfirmed {
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s (%v)", res.Op, res.Status, res.Err))
	}

	if len(failures) > 0 {
		return fmt.Errorf("batch of %d operations had failures: %v", len(ops), failures)
	}
	return nil
}

func (w *Workflow) advance(reg *Registration, next State) {
	if step := stepReaching(next); step != "" {
		metrics.RegistrationSteps.WithLabelValues(step, "ok").Inc()
	}
	reg.State = next
	reg.UpdatedAt = time.Now().UTC()
}

// stepReaching names the step whose success lands the registration in the
// given state.
func stepReaching(s State) string {
	switch s {
	case StateDocumentPublished:
		return stepPublish
	case StateMinted:
		return stepMint
	case StateAttributesCommitted:
		return stepAttributes
	case StateComplete:
		return stepVerify
	default:
		return ""
	}
}

func (w *Workflow) fail(reg *Registration, step string, err error) error {
	metrics.RegistrationSteps.WithLabelValues(step, "failed").Inc()
	reg.State = StateFailed
	reg.FailedStep = step
	reg.FailureReason = err.Error()
	reg.UpdatedAt = time.Now().UTC()

	w.log.Error("registration step failed",
		slog.String("registration", reg.ID),
		slog.String("step", step),
		"err", err)
	return fmt.Errorf("registration %s failed at %s: %w", reg.ID, step, err)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
