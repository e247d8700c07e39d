package interfaces

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// EntityID identifies a registered entity. It is assigned by the ledger at
// mint time and never changes.
type EntityID struct {
	// ChainID identifies the network the entity was minted on.
	ChainID uint64 `json:"chain_id"`

	// SequenceNumber is the entity's mint ordinal on that network.
	SequenceNumber uint64 `json:"sequence_number"`
}

// ParseEntityID parses the canonical "<chain>:<sequence>" form.
func ParseEntityID(s string) (EntityID, error) {
	chainStr, seqStr, ok := strings.Cut(s, ":")
	if !ok {
		return EntityID{}, fmt.Errorf("invalid entity id %q: expected <chain>:<sequence>", s)
	}

	chainID, err := strconv.ParseUint(chainStr, 10, 64)
	if err != nil {
		return EntityID{}, fmt.Errorf("invalid chain id in %q: %w", s, err)
	}

	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return EntityID{}, fmt.Errorf("invalid sequence number in %q: %w", s, err)
	}

	return EntityID{ChainID: chainID, SequenceNumber: seq}, nil
}

// String returns the canonical "<chain>:<sequence>" form.
func (id EntityID) String() string {
	return fmt.Sprintf("%d:%d", id.ChainID, id.SequenceNumber)
}

// IsZero reports whether the id has not been assigned.
func (id EntityID) IsZero() bool {
	return id.ChainID == 0 && id.SequenceNumber == 0
}

// Account is a 20-byte ledger account address.
type Account [20]byte

// NewAccountFromHex parses a hex-encoded account address, with or without
// the 0x prefix.
func NewAccountFromHex(s string) (Account, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 40 {
		return Account{}, errors.New("invalid account length: hex string must be 40 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Account{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var acct Account
	copy(acct[:], raw)
	return acct, nil
}

// String returns the 0x-prefixed hex form.
func (a Account) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the account is the zero address.
func (a Account) IsZero() bool {
	return a == Account{}
}

// MarshalJSON encodes the account in its 0x-prefixed hex form.
func (a Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex-encoded account address.
func (a *Account) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewAccountFromHex(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AttributeKey names one on-ledger attribute of an entity. The store
// enforces no schema; CategoryKey carries special discovery meaning.
type AttributeKey string

// AttributeValue is the raw byte-string value of an attribute. An empty
// value is the removal sentinel: the ledger is append-only and attributes
// are never deleted, only cleared.
type AttributeValue []byte

// CategoryKey is the reserved classification attribute used by discovery.
const CategoryKey AttributeKey = "category"

// IsAbsent reports whether the value is unset or cleared.
func (v AttributeValue) IsAbsent() bool {
	return len(v) == 0
}

// Equal compares two attribute values byte for byte.
func (v AttributeValue) Equal(other AttributeValue) bool {
	return bytes.Equal(v, other)
}

// String renders the value for logs and filter comparison.
func (v AttributeValue) String() string {
	return string(v)
}

// ContentAddress identifies an immutable document in the content store. It
// is a CIDv1 (raw codec, sha2-256) of the document bytes: identical bytes
// always yield an identical address, on every backend.
type ContentAddress string

// ComputeContentAddress derives the address for a blob of document bytes.
func ComputeContentAddress(data []byte) ContentAddress {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum cannot fail for SHA2_256 with default length.
		panic(err)
	}
	return ContentAddress(cid.NewCidV1(cid.Raw, sum).String())
}

// ParseContentAddress validates a CID string.
func ParseContentAddress(s string) (ContentAddress, error) {
	if _, err := cid.Decode(s); err != nil {
		return "", fmt.Errorf("invalid content address %q: %w", s, err)
	}
	return ContentAddress(s), nil
}

// String returns the CID string.
func (a ContentAddress) String() string {
	return string(a)
}

// ContentPointer is an entity's on-ledger reference to its capability
// document: a storage scheme plus a content address.
type ContentPointer struct {
	Scheme  string         `json:"scheme"`
	Address ContentAddress `json:"address"`
}

// ParseContentPointer parses a "<scheme>://<address>" URI as stored on the
// ledger, e.g. "ipfs://bafkrei...".
func ParseContentPointer(uri string) (ContentPointer, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return ContentPointer{}, fmt.Errorf("invalid content pointer %q: missing scheme", uri)
	}

	addr, err := ParseContentAddress(rest)
	if err != nil {
		return ContentPointer{}, err
	}

	return ContentPointer{Scheme: scheme, Address: addr}, nil
}

// String returns the "<scheme>://<address>" URI form.
func (p ContentPointer) String() string {
	return p.Scheme + "://" + string(p.Address)
}

// IsZero reports whether the pointer has not been set.
func (p ContentPointer) IsZero() bool {
	return p.Scheme == "" && p.Address == ""
}
