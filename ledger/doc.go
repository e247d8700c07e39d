// Package ledger implements interfaces.Ledger against the IdentityRegistry
// contract, plus an in-memory mock used by tests and local development.
//
// Writes are submitted and confirmed in two steps. Submission acknowledges
// that the ledger accepted the transaction into its queue; confirmation
// waits for finality under a caller-supplied deadline. Submissions for one
// owner account consume that account's sequence slots in order, which is
// why they must be funnelled through the sequencer package.
package ledger
