// Package identity wraps the IdentityRegistry contract: an ERC-721-style
// registry that mints entity ids, stores a per-entity content URI, and
// keeps per-entity key/value metadata.
package identity

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RegistryABI is the contract ABI for the IdentityRegistry.
const RegistryABI = `[
  {"type":"function","name":"register","stateMutability":"nonpayable","inputs":[{"name":"agentURI","type":"string"}],"outputs":[{"name":"agentId","type":"uint256"}]},
  {"type":"function","name":"setMetadata","stateMutability":"nonpayable","inputs":[{"name":"agentId","type":"uint256"},{"name":"key","type":"string"},{"name":"value","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"getMetadata","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"},{"name":"key","type":"string"}],"outputs":[{"name":"value","type":"bytes"}]},
  {"type":"function","name":"setAgentURI","stateMutability":"nonpayable","inputs":[{"name":"agentId","type":"uint256"},{"name":"agentURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"agentURI","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"agentId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"Registered","anonymous":false,"inputs":[{"name":"agentId","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":true},{"name":"agentURI","type":"string","indexed":false}]},
  {"type":"event","name":"MetadataSet","anonymous":false,"inputs":[{"name":"agentId","type":"uint256","indexed":true},{"name":"key","type":"string","indexed":true},{"name":"value","type":"bytes","indexed":false}]},
  {"type":"event","name":"AgentURIUpdated","anonymous":false,"inputs":[{"name":"agentId","type":"uint256","indexed":true},{"name":"agentURI","type":"string","indexed":false}]}
]`

// Registry is a thin hand-written binding over the IdentityRegistry
// contract. It exposes the calls and events the ledger client needs without
// the full abigen output.
type Registry struct {
	abi      abi.ABI
	contract *bind.BoundContract
	address  common.Address
}

// NewRegistry binds the IdentityRegistry contract at the given address.
func NewRegistry(address common.Address, backend bind.ContractBackend) (*Registry, error) {
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, err
	}

	return &Registry{
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:  address,
	}, nil
}

// Address returns the bound contract address.
func (r *Registry) Address() common.Address {
	return r.address
}

// EventID returns the topic hash for a named event.
func (r *Registry) EventID(name string) common.Hash {
	return r.abi.Events[name].ID
}

// Register mints a new entity pointing at agentURI.
func (r *Registry) Register(opts *bind.TransactOpts, agentURI string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "register", agentURI)
}

// SetMetadata overwrites one metadata key of an entity. An empty value
// clears the key.
func (r *Registry) SetMetadata(opts *bind.TransactOpts, agentId *big.Int, key string, value []byte) (*types.Transaction, error) {
	return r.contract.Transact(opts, "setMetadata", agentId, key, value)
}

// SetAgentURI repoints an entity at a new content URI.
func (r *Registry) SetAgentURI(opts *bind.TransactOpts, agentId *big.Int, agentURI string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "setAgentURI", agentId, agentURI)
}

// GetMetadata reads one metadata key. Unset keys return empty bytes.
func (r *Registry) GetMetadata(opts *bind.CallOpts, agentId *big.Int, key string) ([]byte, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getMetadata", agentId, key); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]byte)).(*[]byte), nil
}

// AgentURI reads the entity's current content URI.
func (r *Registry) AgentURI(opts *bind.CallOpts, agentId *big.Int) (string, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "agentURI", agentId); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// OwnerOf reads the entity's minting account.
func (r *Registry) OwnerOf(opts *bind.CallOpts, agentId *big.Int) (common.Address, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "ownerOf", agentId); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// RegistryRegistered is the Registered event payload.
type RegistryRegistered struct {
	AgentId  *big.Int
	Owner    common.Address
	AgentURI string
	Raw      types.Log
}

// ParseRegistered unpacks a Registered event from a raw log.
func (r *Registry) ParseRegistered(log types.Log) (*RegistryRegistered, error) {
	event := new(RegistryRegistered)
	if err := r.contract.UnpackLog(event, "Registered", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// RegistryMetadataSet is the MetadataSet event payload. Key is the keccak
// hash of the metadata key because indexed dynamic types are stored hashed.
type RegistryMetadataSet struct {
	AgentId *big.Int
	Key     common.Hash
	Value   []byte
	Raw     types.Log
}

// ParseMetadataSet unpacks a MetadataSet event from a raw log.
func (r *Registry) ParseMetadataSet(log types.Log) (*RegistryMetadataSet, error) {
	event := new(RegistryMetadataSet)
	if err := r.contract.UnpackLog(event, "MetadataSet", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}
