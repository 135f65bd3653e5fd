package fault

import (
	"context"
	"errors"
	"fmt"
)

// Code identifies a failure class. Codes are stable wire-level strings.
type Code string

const (
	// CodeInvalidInput is a validation failure. Not retriable.
	CodeInvalidInput Code = "InvalidInput"

	// CodeNotFound means a referenced element or corpus is absent. Not retriable.
	CodeNotFound Code = "NotFound"

	// CodeConflict means an element kind changed under an existing id. Not retriable.
	CodeConflict Code = "Conflict"

	// CodeDimensionMismatch means an embedding dimension does not match the index. Not retriable.
	CodeDimensionMismatch Code = "DimensionMismatch"

	// CodeUnavailable is a transient adapter failure. Retriable.
	CodeUnavailable Code = "Unavailable"

	// CodeTimeout means a stage or whole-request deadline expired. Retriable once at most.
	CodeTimeout Code = "Timeout"

	// CodeRateLimited means a per-client or per-adapter rate was exceeded. Retriable with backoff.
	CodeRateLimited Code = "RateLimited"

	// CodeCancelled is a user-initiated or upstream cancel.
	CodeCancelled Code = "Cancelled"

	// CodeInternal means a precondition was violated. Not retriable; fatal to the request.
	CodeInternal Code = "Internal"
)

// Error is the unified failure value.
type Error struct {
	Code      Code
	Message   string
	Retriable bool
	Details   map[string]any
	cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a *Error with the same code, so that
// errors.Is(err, &Error{Code: CodeNotFound}) works across wrapping.
func (e *Error) Is(target error) bool {
	var fe *Error
	if !errors.As(target, &fe) {
		return false
	}
	return e.Code == fe.Code
}

// WithDetail attaches a key/value pair to the error's details, returning e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 2)
	}
	e.Details[key] = value
	return e
}

func newError(code Code, retriable bool, cause error, format string, args ...any) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Retriable: retriable,
		cause:     cause,
	}
}

// Invalid builds an InvalidInput error.
func Invalid(format string, args ...any) *Error {
	return newError(CodeInvalidInput, false, nil, format, args...)
}

// NotFound builds a NotFound error.
func NotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, false, nil, format, args...)
}

// Conflict builds a Conflict error.
func Conflict(format string, args ...any) *Error {
	return newError(CodeConflict, false, nil, format, args...)
}

// DimensionMismatch builds a DimensionMismatch error.
func DimensionMismatch(want, got int) *Error {
	return newError(CodeDimensionMismatch, false, nil, "embedding dimension %d does not match index dimension %d", got, want)
}

// Unavailable wraps a transient adapter failure.
func Unavailable(cause error, format string, args ...any) *Error {
	return newError(CodeUnavailable, true, cause, format, args...)
}

// Timeout wraps a deadline expiry.
func Timeout(cause error, format string, args ...any) *Error {
	return newError(CodeTimeout, true, cause, format, args...)
}

// RateLimited builds a RateLimited error.
func RateLimited(format string, args ...any) *Error {
	return newError(CodeRateLimited, true, nil, format, args...)
}

// Cancelled wraps a cancellation.
func Cancelled(cause error) *Error {
	return newError(CodeCancelled, false, cause, "operation cancelled")
}

// Internal wraps an invariant violation.
func Internal(cause error, format string, args ...any) *Error {
	return newError(CodeInternal, false, cause, format, args...)
}

// CodeOf returns the taxonomy code of err, or CodeInternal when err carries
// none. A nil err yields the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// IsRetriable reports whether err advises a retry.
func IsRetriable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retriable
	}
	return false
}

// FromContext maps a context error to the taxonomy. Returns nil when the
// context is still live.
func FromContext(ctx context.Context) *Error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout(err, "deadline expired")
	default:
		return Cancelled(err)
	}
}
