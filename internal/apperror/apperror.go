// Package apperror defines the typed failures the core surfaces to its callers.
//
// Every error carries one sentinel kind, so callers test with errors.Is and the
// HTTP layer maps each kind to a stable status code. The Message is safe to show
// to an end user; the optional Cause keeps the underlying driver error available
// for logging without leaking it into the response.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("temporarily unavailable")
	ErrInternal        = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable message
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Kind returns the sentinel this error was built with.
func (e *AppError) Kind() error {
	return e.Err
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// NotFound is also returned for records owned by someone else, so the message
// must only ever depend on the requested id.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// Unavailable marks a retryable failure, e.g. a locked database or an expired deadline.
func Unavailable(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
		Cause:   cause,
	}
}

func Internal(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
		Cause:   cause,
	}
}
