package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks invalid user input. The operation is aborted without writes.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to an id that does not exist
	ErrNotFound = errors.New("not found")
)

// ValidationError describes which input field was rejected
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

// Unwrap allows errors.Is(err, ErrValidation)
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the missing entity and id
type NotFoundError struct {
	Entity string // "card", "transaction", "statement line"
	ID     int64
}

// NewNotFoundError creates a NotFoundError
func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d %s", e.Entity, e.ID, ErrNotFound)
}

// Unwrap allows errors.Is(err, ErrNotFound)
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
