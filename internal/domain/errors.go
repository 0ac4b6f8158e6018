package domain

import (
	"errors"
	"strings"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// *ValidationError always matches it via errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrReferenceNotFound is returned when an entity points at another entity
	// that does not exist, e.g. a booking for an unknown customer.
	ErrReferenceNotFound = errors.New("referenced entity not found")
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level details for a rejected entity or request.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

// NewValidationError creates a ValidationError for a single field.
// err is an optional more specific cause such as ErrInvalidID.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Fields: []FieldError{{Field: field, Message: message}},
		Err:    err,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports ErrValidation as a match so callers need not know the concrete type.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap returns the specific cause, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Add appends a field error and returns the receiver.
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	return e
}
