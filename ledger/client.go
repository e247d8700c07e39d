package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yakrover/agent-registry/bindings/identity"
	"github.com/yakrover/agent-registry/interfaces"
)

// ErrNoTransactOpts is returned when a write is attempted without first
// setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// Backend combines the read, transact, receipt and log-filtering surface
// the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// OnchainLedgerClient implements interfaces.Ledger for an IdentityRegistry
// contract deployed on an Ethereum-compatible chain. The underlying
// connection may be shared read-only across goroutines; write submissions
// go through the sequencer.
type OnchainLedgerClient struct {
	registry *identity.Registry
	backend  Backend
	auth     *bind.TransactOpts
	chainID  uint64

	// scanStart is the first block considered when scanning events; set it
	// to the contract deployment block to keep scans bounded.
	scanStart uint64

	// logQueries is false when the RPC endpoint does not serve eth_getLogs,
	// in which case attribute scans fail with ErrUnsupportedQuery and the
	// discovery resolver uses the index path only.
	logQueries bool

	log *slog.Logger
}

// NewOnchainLedgerClient creates a client for the IdentityRegistry contract
// at the specified address. The client starts read-only; call
// SetTransactOpts to enable writes.
func NewOnchainLedgerClient(backend Backend, address common.Address, chainID uint64, log *slog.Logger) (*OnchainLedgerClient, error) {
	registry, err := identity.NewRegistry(address, backend)
	if err != nil {
		return nil, err
	}

	return &OnchainLedgerClient{
		registry:   registry,
		backend:    backend,
		chainID:    chainID,
		logQueries: true,
		log:        log,
	}, nil
}

// SetTransactOpts sets the transaction options required for writes. This
// must be called before any Submit method.
func (c *OnchainLedgerClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// SetScanStart bounds event scans to blocks at or after the given height.
func (c *OnchainLedgerClient) SetScanStart(block uint64) {
	c.scanStart = block
}

// DisableLogQueries marks the RPC endpoint as unable to serve event scans.
func (c *OnchainLedgerClient) DisableLogQueries() {
	c.logQueries = false
}

// ChainID returns the network id the client is connected to.
func (c *OnchainLedgerClient) ChainID() uint64 {
	return c.chainID
}

// OwnerOf returns the minting account of an entity.
func (c *OnchainLedgerClient) OwnerOf(ctx context.Context, id interfaces.EntityID) (interfaces.Account, error) {
	opts := &bind.CallOpts{Context: ctx}

	owner, err := c.registry.OwnerOf(opts, sequenceToTokenID(id))
	if err != nil {
		return interfaces.Account{}, mapCallError(err, id)
	}
	return interfaces.Account(owner), nil
}

// GetAttribute reads the current value of one attribute key. Unset keys
// read as an empty value.
func (c *OnchainLedgerClient) GetAttribute(ctx context.Context, id interfaces.EntityID, key interfaces.AttributeKey) (interfaces.AttributeValue, error) {
	opts := &bind.CallOpts{Context: ctx}

	value, err := c.registry.GetMetadata(opts, sequenceToTokenID(id), string(key))
	if err != nil {
		return nil, mapCallError(err, id)
	}
	return interfaces.AttributeValue(value), nil
}

// GetContentPointer reads the entity's current document pointer.
func (c *OnchainLedgerClient) GetContentPointer(ctx context.Context, id interfaces.EntityID) (interfaces.ContentPointer, error) {
	opts := &bind.CallOpts{Context: ctx}

	uri, err := c.registry.AgentURI(opts, sequenceToTokenID(id))
	if err != nil {
		return interfaces.ContentPointer{}, mapCallError(err, id)
	}
	if uri == "" {
		return interfaces.ContentPointer{}, fmt.Errorf("%w: entity %s has no content pointer", interfaces.ErrNotFound, id)
	}

	pointer, err := interfaces.ParseContentPointer(uri)
	if err != nil {
		return interfaces.ContentPointer{}, fmt.Errorf("entity %s: %w", id, err)
	}
	return pointer, nil
}

// ListEntitiesByAttribute scans MetadataSet events for entities whose
// current value for key equals value, in mint order.
func (c *OnchainLedgerClient) ListEntitiesByAttribute(ctx context.Context, key interfaces.AttributeKey, value interfaces.AttributeValue) ([]interfaces.EntityID, error) {
	if !c.logQueries {
		return nil, interfaces.ErrUnsupportedQuery
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.scanStart),
		Addresses: []common.Address{c.registry.Address()},
		Topics: [][]common.Hash{
			{c.registry.EventID("MetadataSet")},
			nil,
			{crypto.Keccak256Hash([]byte(key))},
		},
	}

	logs, err := c.backend.FilterLogs(ctx, query)
	if err != nil {
		// Public gateways commonly reject eth_getLogs; treat that the same
		// as a backend without scan support so callers take the fallback.
		c.log.Warn("attribute scan failed", "key", string(key), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUnsupportedQuery, err)
	}

	// Logs arrive in chain order, so the last event per entity carries the
	// key's current value.
	current := make(map[uint64][]byte)
	for _, l := range logs {
		event, err := c.registry.ParseMetadataSet(l)
		if err != nil {
			c.log.Debug("skipping unparseable MetadataSet log", "block", l.BlockNumber, "err", err)
			continue
		}
		current[event.AgentId.Uint64()] = event.Value
	}

	var ids []interfaces.EntityID
	for seq, v := range current {
		if interfaces.AttributeValue(v).Equal(value) {
			ids = append(ids, interfaces.EntityID{ChainID: c.chainID, SequenceNumber: seq})
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].SequenceNumber < ids[j].SequenceNumber })
	return ids, nil
}

// FindEntityByPointer scans Registered events for an entity minted by owner
// whose current pointer equals pointer. This is the pre-retry state check
// for mint confirmations that timed out.
func (c *OnchainLedgerClient) FindEntityByPointer(ctx context.Context, owner interfaces.Account, pointer interfaces.ContentPointer) (interfaces.EntityID, bool, error) {
	if !c.logQueries {
		return interfaces.EntityID{}, false, interfaces.ErrUnsupportedQuery
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.scanStart),
		Addresses: []common.Address{c.registry.Address()},
		Topics: [][]common.Hash{
			{c.registry.EventID("Registered")},
			nil,
			{common.BytesToHash(common.LeftPadBytes(owner[:], 32))},
		},
	}

	logs, err := c.backend.FilterLogs(ctx, query)
	if err != nil {
		return interfaces.EntityID{}, false, fmt.Errorf("%w: %v", interfaces.ErrUnsupportedQuery, err)
	}

	for _, l := range logs {
		event, err := c.registry.ParseRegistered(l)
		if err != nil {
			continue
		}

		id := interfaces.EntityID{ChainID: c.chainID, SequenceNumber: event.AgentId.Uint64()}

		// Compare against the current pointer, not the mint-time URI: an
		// entity repointed since mint no longer matches.
		existing, err := c.GetContentPointer(ctx, id)
		if err != nil {
			continue
		}
		if existing == pointer {
			return id, true, nil
		}
	}
	return interfaces.EntityID{}, false, nil
}

// SubmitMint submits an entity creation with the given initial pointer.
func (c *OnchainLedgerClient) SubmitMint(ctx context.Context, owner interfaces.Account, pointer interfaces.ContentPointer) (interfaces.PendingWrite, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}
	if common.Address(owner) != c.auth.From {
		return nil, fmt.Errorf("%w: mint owner %s does not match signer %s", interfaces.ErrLedgerRejected, owner, c.auth.From.Hex())
	}

	tx, err := c.registry.Register(c.transactOpts(ctx), pointer.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrLedgerRejected, err)
	}
	return &onchainPendingWrite{kind: interfaces.WriteMint, tx: tx}, nil
}

// SubmitSetAttribute submits an attribute overwrite. An empty value clears
// the key.
func (c *OnchainLedgerClient) SubmitSetAttribute(ctx context.Context, id interfaces.EntityID, key interfaces.AttributeKey, value interfaces.AttributeValue) (interfaces.PendingWrite, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	tx, err := c.registry.SetMetadata(c.transactOpts(ctx), sequenceToTokenID(id), string(key), value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrLedgerRejected, err)
	}
	return &onchainPendingWrite{kind: interfaces.WriteSetAttribute, tx: tx}, nil
}

// SubmitSetContentPointer submits a document repoint.
func (c *OnchainLedgerClient) SubmitSetContentPointer(ctx context.Context, id interfaces.EntityID, pointer interfaces.ContentPointer) (interfaces.PendingWrite, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	tx, err := c.registry.SetAgentURI(c.transactOpts(ctx), sequenceToTokenID(id), pointer.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrLedgerRejected, err)
	}
	return &onchainPendingWrite{kind: interfaces.WriteSetContentPointer, tx: tx}, nil
}

// Confirm waits for a submitted write to be mined. The caller bounds the
// wait through ctx; on deadline the write may still land later.
func (c *OnchainLedgerClient) Confirm(ctx context.Context, pending interfaces.PendingWrite) (*interfaces.WriteReceipt, error) {
	pw, ok := pending.(*onchainPendingWrite)
	if !ok {
		return nil, fmt.Errorf("pending write %s was not produced by this client", pending.Hash())
	}

	receipt, err := bind.WaitMined(ctx, c.backend, pw.tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s %s", interfaces.ErrLedgerTimeout, pw.kind, pw.Hash())
		}
		return nil, fmt.Errorf("waiting for %s %s: %w", pw.kind, pw.Hash(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s %s reverted", interfaces.ErrLedgerRejected, pw.kind, pw.Hash())
	}

	result := &interfaces.WriteReceipt{Kind: pw.kind, Hash: pw.Hash()}
	if pw.kind == interfaces.WriteMint {
		minted, err := c.mintedEntity(receipt)
		if err != nil {
			return nil, err
		}
		result.MintedEntity = minted
	}
	return result, nil
}

func (c *OnchainLedgerClient) mintedEntity(receipt *types.Receipt) (*interfaces.EntityID, error) {
	registeredID := c.registry.EventID("Registered")
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != registeredID {
			continue
		}
		event, err := c.registry.ParseRegistered(*l)
		if err != nil {
			return nil, fmt.Errorf("parsing Registered event in tx %s: %w", receipt.TxHash.Hex(), err)
		}
		return &interfaces.EntityID{ChainID: c.chainID, SequenceNumber: event.AgentId.Uint64()}, nil
	}
	return nil, fmt.Errorf("mint tx %s confirmed without a Registered event", receipt.TxHash.Hex())
}

func (c *OnchainLedgerClient) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.auth
	opts.Context = ctx
	return &opts
}

// onchainPendingWrite wraps a submitted transaction.
type onchainPendingWrite struct {
	kind interfaces.WriteKind
	tx   *types.Transaction
}

func (p *onchainPendingWrite) Kind() interfaces.WriteKind { return p.kind }
func (p *onchainPendingWrite) Hash() string               { return p.tx.Hash().Hex() }

func sequenceToTokenID(id interfaces.EntityID) *big.Int {
	return new(big.Int).SetUint64(id.SequenceNumber)
}

func mapCallError(err error, id interfaces.EntityID) error {
	if strings.Contains(err.Error(), "execution reverted") {
		return fmt.Errorf("%w: entity %s", interfaces.ErrNotFound, id)
	}
	return err
}
