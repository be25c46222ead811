// Package calmerr defines the closed error-kind taxonomy that crosses the
// Tool Dispatcher boundary. Every error that reaches a dispatcher handler's
// return path is translated into one of these kinds before it is rendered
// into the response envelope.
package calmerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a closed enum of error categories surfaced to callers.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindNotFound         Kind = "not_found"
	KindActiveGHAPExists Kind = "active_ghap_exists"
	KindInsufficientData Kind = "insufficient_data"
	KindTimeout          Kind = "timeout"
	KindBadRequest       Kind = "bad_request"
	KindUnknownTool      Kind = "unknown_tool"
	KindInternal         Kind = "internal_error"
)

// Error is a typed error carrying a closed Kind plus a human-readable message.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's closed category.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the human-readable message without the wrapped cause.
func (e *Error) Message() string { return e.message }

// KindOf extracts the Kind from err if it is (or wraps) a *calmerr.Error,
// defaulting to KindInternal for anything else. This is the one place the
// dispatcher falls back to string sniffing: a plain error whose message
// contains "not found" is normalized to KindNotFound, since several store
// methods still return plain fmt.Errorf "not found" errors rather than a
// *calmerr.Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind()
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return KindNotFound
	}
	return KindInternal
}
