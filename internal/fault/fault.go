// Package fault defines the error taxonomy shared by the dispatch core.
// Handlers map each kind to a transport status; the core never returns a
// bare error for a failure a caller is expected to branch on.
package fault

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed caller input. Detected
// before any mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a referenced entity is absent.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func NotFound(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports a violated state precondition: duplicate unique
// key, transition out of a non-pending request, no available ambulance.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// ExternalServiceError reports an upstream provider failure or timeout.
// The core does not retry these; retry policy belongs to the caller.
type ExternalServiceError struct {
	Msg string
	Err error
}

func (e *ExternalServiceError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func ExternalService(err error, format string, args ...any) error {
	return &ExternalServiceError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// InternalError reports an unexpected repository-layer failure.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return "internal error: " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

func Internal(err error) error { return &InternalError{Err: err} }

func IsValidation(err error) bool {
	var t *ValidationError
	return errors.As(err, &t)
}

func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

func IsConflict(err error) bool {
	var t *ConflictError
	return errors.As(err, &t)
}

func IsExternalService(err error) bool {
	var t *ExternalServiceError
	return errors.As(err, &t)
}
