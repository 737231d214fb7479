package shared

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors so callers and the HTTP layer can react
// without parsing messages.
type Kind string

const (
	// KindNotFound indicates the record does not exist for the tenant.
	KindNotFound Kind = "not_found"
	// KindInsufficientStock indicates an adjustment would drive stock negative.
	KindInsufficientStock Kind = "insufficient_stock"
	// KindOverReceipt indicates a receipt exceeds the outstanding quantity.
	KindOverReceipt Kind = "over_receipt"
	// KindInvalidTransition indicates an illegal status change.
	KindInvalidTransition Kind = "invalid_transition"
	// KindConflict indicates a concurrent write was detected; caller may retry.
	KindConflict Kind = "conflict"
	// KindValidation indicates malformed input rejected before any mutation.
	KindValidation Kind = "validation_failure"
)

// Error is a recoverable domain error. The message carries enough detail
// (SKU, amounts, statuses) to be shown to a user without further lookups.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any error of the same kind, so errors.Is(err, ErrNotFound)
// succeeds regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel values for errors.Is checks.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrOverReceipt       = &Error{Kind: KindOverReceipt, Message: "over receipt"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "concurrent write detected"}
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation failed"}
)

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockf builds an InsufficientStock error.
func InsufficientStockf(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientStock, Message: fmt.Sprintf(format, args...)}
}

// OverReceiptf builds an OverReceipt error.
func OverReceiptf(format string, args ...any) *Error {
	return &Error{Kind: KindOverReceipt, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionf builds an InvalidTransition error.
func InvalidTransitionf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationFailure error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the domain kind from an error chain. Returns the empty
// string for errors that carry no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
