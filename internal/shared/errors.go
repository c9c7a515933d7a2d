package shared

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or invalid required field in a request.
// The requested mutation is rejected with no state change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced task, job, or attachment that does not exist.
type NotFoundError struct {
	Kind string // "task", "job", "attachment", "file"
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports an operation rejected because of the target's current
// state, e.g. spawning a task that is already running.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// DispatchError reports a failed outbound trigger to the agent endpoint.
// The originating mutation has already committed, so it is logged or
// returned to the caller depending on the dispatch mode, never rolled back.
type DispatchError struct {
	SessionKey string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.SessionKey, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// TimeoutError is a DispatchError variant for triggers that exceeded the
// fixed transport deadline.
type TimeoutError struct {
	SessionKey string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dispatch %s: timeout", e.SessionKey)
}

// StorageError reports a read or write failure on a backing collection file.
// Surfaced as a server-side failure since the mutation cannot be guaranteed.
type StorageError struct {
	Op   string // "save", "write"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
