package services

import (
	"errors"
	"fmt"

	"dinein_backend/internal/models"
	"dinein_backend/internal/repositories"
)

var (
	// ErrNotFound covers missing rows and rows outside the caller's scope.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned for repeated settlement, duplicate rows and lock contention.
	ErrConflict = errors.New("conflicting operation")

	// ErrForbidden is returned when the caller's role may not perform the operation.
	ErrForbidden = errors.New("operation not permitted")
)

// Re-exported so handlers can match every domain error through this package.
var (
	ErrInvalidState = models.ErrInvalidState
	ErrValidation   = models.ErrValidation
)

// mapRepoError translates repository sentinels into service errors.
func mapRepoError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repositories.ErrDuplicateKey):
		return fmt.Errorf("%w: %s already exists", ErrConflict, what)
	case errors.Is(err, repositories.ErrLockConflict):
		return fmt.Errorf("%w: %s is being modified concurrently", ErrConflict, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
