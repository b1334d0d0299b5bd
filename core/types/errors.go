package types

import "github.com/pkg/errors"

// Sentinel errors for the four public operations. Callers classify with
// errors.Is; the wrapping around each sentinel carries the detail.
var (
	// ErrorInvalidParameters rejects a malformed create request: past
	// start time, non-positive window, zero deposit, sub-unit rate.
	ErrorInvalidParameters = errors.New("invalid stream parameters")

	// ErrorStreamNotFound means the stream id is unknown (or already settled).
	ErrorStreamNotFound = errors.New("stream not found")

	// ErrorUnauthorized means the caller is neither sender nor recipient.
	ErrorUnauthorized = errors.New("caller is not a party to the stream")

	// ErrorExceedsWithdrawable rejects a withdrawal above the amount
	// accrued to the recipient at the current time.
	ErrorExceedsWithdrawable = errors.New("amount exceeds withdrawable balance")

	// ErrorLedgerTransferFailed wraps an asset ledger rejection. The
	// whole operation aborts; no registry mutation survives it.
	ErrorLedgerTransferFailed = errors.New("asset ledger transfer failed")

	// ErrorInvariantViolation signals corrupted accounting state, such
	// as a negative withdrawable balance. Never recoverable and never
	// clamped; the operation aborts loudly.
	ErrorInvariantViolation = errors.New("stream accounting invariant violated")
)
