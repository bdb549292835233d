package ledger

import "errors"

var (
	// ErrInvalidEntry marks an append that violates a structural invariant
	// (zero delta, malformed resource reference). Not retryable as-is.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrInsufficientCredits marks a debit larger than the available
	// balance. The attempted entry is not recorded. Retryable only after a
	// credit event.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrBusy marks a debit that timed out waiting for its per-counselor
	// critical section. Safe to retry with the same cumulative snapshot.
	ErrBusy = errors.New("ledger busy")
)
