// Package interfaces defines the shared types, error taxonomy, and component
// contracts of the agent capability registry.
//
// The registry spans three independently-lagging stores:
//
//   - the authoritative on-chain identity ledger (Ledger),
//   - an eventually-consistent secondary index (IndexReader),
//   - immutable content-addressed storage for capability documents
//     (ContentStore).
//
// Concrete implementations live in the ledger, index, and contentstore
// packages. The discovery and workflow packages coordinate across them and
// depend only on the contracts declared here.
package interfaces
