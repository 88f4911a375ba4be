package types

import (
	"errors"
	"fmt"
)

// Category sentinels. Every error returned by reckon satisfies errors.Is
// against exactly one of these.
var (
	ErrValidation = errors.New("reckon: validation failed")
	ErrNotFound   = errors.New("reckon: not found")
	ErrConflict   = errors.New("reckon: conflict")
	ErrPermission = errors.New("reckon: permission denied")
)

// Specific causes. They are carried inside the typed errors below so callers
// can match either the category or the cause.
var (
	ErrCurrencyMismatch    = errors.New("reckon: currency mismatch")
	ErrUnknownCurrency     = errors.New("reckon: unknown currency")
	ErrInactiveCurrency    = errors.New("reckon: currency is inactive")
	ErrOverpayment         = errors.New("reckon: payment exceeds outstanding balance")
	ErrNonPositiveAmount   = errors.New("reckon: amount must be positive")
	ErrAlreadyVoided       = errors.New("reckon: payment already voided")
	ErrInvoiceWrittenOff   = errors.New("reckon: invoice is written off")
	ErrIdempotencyMismatch = errors.New("reckon: idempotency key reused with a different request")
	ErrDuplicateRate       = errors.New("reckon: rate already exists for pair and date")
	ErrFXRateNotFound      = errors.New("reckon: no exchange rate for pair")
	ErrForbiddenField      = errors.New("reckon: forbidden metadata field")
	ErrStoreClosed         = errors.New("reckon: store is closed")
	ErrTransactionFailed   = errors.New("reckon: transaction failed")
)

// ──────────────────────────────────────────────────
// Typed errors
// ──────────────────────────────────────────────────

// ValidationError represents a validation failure on a single field.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reckon: validation failed for %s: %s", e.Field, e.Message)
}

// Is reports category membership.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Unwrap returns the specific cause, if any.
func (e *ValidationError) Unwrap() error { return e.Cause }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Resource string
	ID       string
	Cause    error
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("reckon: %s not found", e.Resource)
	}
	return fmt.Sprintf("reckon: %s %q not found", e.Resource, e.ID)
}

// Is reports category membership.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Unwrap returns the specific cause, if any.
func (e *NotFoundError) Unwrap() error { return e.Cause }

// ConflictError reports a state conflict: duplicate keys, terminal states,
// idempotency key reuse.
type ConflictError struct {
	Resource string
	Reason   string
	Cause    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reckon: %s conflict: %s", e.Resource, e.Reason)
}

// Is reports category membership.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Unwrap returns the specific cause, if any.
func (e *ConflictError) Unwrap() error { return e.Cause }

// PermissionError reports an authorization denial.
type PermissionError struct {
	UserID     string
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("reckon: user %q lacks permission %q", e.UserID, e.Permission)
}

// Is reports category membership.
func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// ──────────────────────────────────────────────────
// Constructors
// ──────────────────────────────────────────────────

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InvalidCause returns a ValidationError carrying a specific cause.
func InvalidCause(field string, cause error) error {
	return &ValidationError{Field: field, Message: cause.Error(), Cause: cause}
}

// NotFound returns a NotFoundError for resource/id.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Conflict returns a ConflictError carrying a specific cause.
func Conflict(resource string, cause error) error {
	return &ConflictError{Resource: resource, Reason: cause.Error(), Cause: cause}
}

// Denied returns a PermissionError.
func Denied(userID, permission string) error {
	return &PermissionError{UserID: userID, Permission: permission}
}

// ──────────────────────────────────────────────────
// MultiError
// ──────────────────────────────────────────────────

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "reckon: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("reckon: %d errors occurred (first: %v)", len(e.Errors), e.Errors[0])
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e *MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *MultiError) Unwrap() []error { return e.Errors }

// ErrOrNil returns e if it holds errors, nil otherwise.
func (e *MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
