package stakeLedger

import "errors"

var (
	// ErrDuplicateRecord marks a funding record whose tx_hash is already in the ledger.
	// It is an idempotent success and is never surfaced to callers as a failure.
	ErrDuplicateRecord    = errors.New("duplicate funding record")
	ErrLedgerWriteFailure = errors.New("ledger write failed")
	ErrInvalidSplit       = errors.New("invalid split percentages")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrStakeNotFound      = errors.New("stake not found")
	ErrStakeInactive      = errors.New("stake is not active")
	ErrNotStakeOwner      = errors.New("stake belongs to a different wallet")
	ErrInvalidDeposit     = errors.New("invalid deposit")
	ErrInvalidTokenClass  = errors.New("invalid token class")
)
