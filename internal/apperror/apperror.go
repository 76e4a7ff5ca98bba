// Package apperror defines the error kinds shared by the service, store and
// HTTP layers.
//
// Services return an *AppError wrapping one of the sentinels below. Callers
// branch on the kind with errors.Is and show AppError.Message to the user.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientPoints is a business rule violation. The state it was
	// raised against is left untouched.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrPersistence means a store call failed after the in-memory change was
	// applied. The change is retained, not rolled back.
	ErrPersistence = errors.New("persistence failure")

	// ErrCorrupt marks stored data that failed schema validation on load.
	ErrCorrupt = errors.New("corrupt stored data")

	ErrUnavailable = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable message
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying error, kept for logs
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InsufficientPoints reports that a purchase needs more points than the
// balance holds.
func InsufficientPoints(need, have int) *AppError {
	return &AppError{
		Err:     ErrInsufficientPoints,
		Message: fmt.Sprintf("you need %d points, you have %d", need, have),
		Field:   "totalPoints",
	}
}

// PersistenceFailed wraps a store error. The message is generic on purpose
// since it is shown to end users as is.
func PersistenceFailed(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: fmt.Sprintf("could not save %s, your change is kept on this device", op),
		Cause:   cause,
	}
}

func Corrupt(key string, cause error) *AppError {
	return &AppError{
		Err:     ErrCorrupt,
		Message: fmt.Sprintf("stored %s is malformed", key),
		Field:   key,
		Cause:   cause,
	}
}

func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
