package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
// Adapters return these (possibly wrapped); callers test with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write collides with existing state: an insert
	// reusing a key, a unique-value violation, or a replace carrying a stale version.
	ErrConflict = errors.New("entity conflict")

	// ErrTimeout is returned when a store call exceeds its bounded deadline.
	ErrTimeout = errors.New("store operation timed out")

	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidEntity is returned when the backend rejects a record as malformed,
	// for example a check constraint violation.
	ErrInvalidEntity = errors.New("invalid entity")
)

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity kind (e.g., "booking", "customer")
	Operation string // The operation that failed (e.g., "add", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// Outcome classifies an error into a short label for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidEntity):
		return "invalid"
	default:
		return "error"
	}
}
