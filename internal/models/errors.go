package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is the sentinel behind every rejected state transition.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrValidation marks input that can never succeed regardless of state.
	ErrValidation = errors.New("validation failed")
)

// InvalidStateError describes an operation attempted from a status that does not allow it.
type InvalidStateError struct {
	Entity    string
	ID        int64
	Operation string
	Current   string
	Allowed   []string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s from status %q (allowed: %s)",
		e.Entity, e.ID, e.Operation, e.Current, strings.Join(e.Allowed, ", "))
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// NewValidationError wraps ErrValidation with a field-level message.
func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
