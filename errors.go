package reckon

import (
	"errors"

	"github.com/xraph/reckon/types"
)

// Category sentinels. Every error returned by the engine matches exactly one
// of them with errors.Is.
var (
	ErrValidation = types.ErrValidation
	ErrNotFound   = types.ErrNotFound
	ErrConflict   = types.ErrConflict
	ErrPermission = types.ErrPermission
)

// Specific causes, carried inside the typed errors.
var (
	ErrCurrencyMismatch    = types.ErrCurrencyMismatch
	ErrUnknownCurrency     = types.ErrUnknownCurrency
	ErrInactiveCurrency    = types.ErrInactiveCurrency
	ErrOverpayment         = types.ErrOverpayment
	ErrNonPositiveAmount   = types.ErrNonPositiveAmount
	ErrAlreadyVoided       = types.ErrAlreadyVoided
	ErrInvoiceWrittenOff   = types.ErrInvoiceWrittenOff
	ErrIdempotencyMismatch = types.ErrIdempotencyMismatch
	ErrDuplicateRate       = types.ErrDuplicateRate
	ErrFXRateNotFound      = types.ErrFXRateNotFound
	ErrForbiddenField      = types.ErrForbiddenField
	ErrStoreClosed         = types.ErrStoreClosed
	ErrTransactionFailed   = types.ErrTransactionFailed
)

// Typed errors.
type (
	ValidationError = types.ValidationError
	NotFoundError   = types.NotFoundError
	ConflictError   = types.ConflictError
	PermissionError = types.PermissionError
	MultiError      = types.MultiError
)

// IsValidation returns true if err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound returns true if err is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true if err is a state conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsPermission returns true if the permission oracle denied the call.
func IsPermission(err error) bool { return errors.Is(err, ErrPermission) }

// IsRetryable returns true if the error is temporary and the operation can be retried.
// Only transaction failures qualify; a retried payment must reuse its
// idempotency key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}

// isDomain reports whether err is one of the classified outcomes rather
// than an infrastructure failure.
func isDomain(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsConflict(err) || IsPermission(err)
}
