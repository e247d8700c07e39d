package interfaces

import "errors"

var (
	// ErrStoreUnavailable indicates the content store could not be reached
	// after the bounded retry policy was exhausted. Fatal to the calling
	// workflow step.
	ErrStoreUnavailable = errors.New("content store unavailable")

	// ErrNotFound indicates a content address or entity is absent from the
	// backing store. Recoverable; the caller decides.
	ErrNotFound = errors.New("not found")

	// ErrLedgerRejected indicates the ledger refused a transaction. The
	// write did not and will not land; it is not retried.
	ErrLedgerRejected = errors.New("ledger rejected transaction")

	// ErrLedgerTimeout indicates confirmation was not observed within the
	// caller's deadline. The write may still land later: callers must
	// re-check ledger state before retrying.
	ErrLedgerTimeout = errors.New("ledger confirmation timed out")

	// ErrUnsupportedQuery indicates the ledger backend cannot perform a
	// direct attribute scan. Callers fall back to the discovery resolver's
	// index path.
	ErrUnsupportedQuery = errors.New("ledger backend does not support attribute queries")
)
