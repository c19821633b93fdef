package types

import "errors"

// Error kinds surfaced by the core services. The HTTP layer maps these to
// response codes in pkg/response.
var (
	// ErrValidation rejects malformed input before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers orders that do not exist, do not belong to the
	// caller, or have already reached a terminal status.
	ErrNotFound = errors.New("not found or already processed")

	// ErrInsufficientAllowance fails an approval-mode settlement whose
	// allowance precondition does not hold. No state is mutated.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrInsufficientVaultBalance fails a vault-mode settlement whose
	// vault balance precondition does not hold. No state is mutated.
	ErrInsufficientVaultBalance = errors.New("insufficient vault balance")

	// ErrSettlement wraps a ledger call that failed or reverted after
	// preconditions passed. The matched orders remain unmodified.
	ErrSettlement = errors.New("settlement failed")

	// ErrPersistence wraps store failures; the operation is treated as
	// not having happened.
	ErrPersistence = errors.New("persistence failed")
)
