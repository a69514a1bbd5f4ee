package cverr

import (
	"errors"
	"fmt"
)

var (
	// Access control errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownPrincipal = errors.New("unknown principal")

	// Data errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// Invariant errors
	ErrSecurityViolation = errors.New("security violation")

	// Key lifecycle errors
	ErrKeyState = errors.New("key session state error")

	// Backup errors
	ErrIntegrity = errors.New("integrity check failed")
)

func NewPermissionDeniedError(role string, operation string) error {
	return fmt.Errorf("%w: role '%s' is not granted operation '%s'", ErrPermissionDenied, role, operation)
}

func NewUnknownPrincipalError(principalID string) error {
	return fmt.Errorf("%w: principal '%s' is not provisioned", ErrUnknownPrincipal, principalID)
}

func NewValidationError(detail string) error {
	return fmt.Errorf("%w: %s", ErrValidation, detail)
}

func NewNotFoundError(kind string, id string) error {
	return fmt.Errorf("%w: %s '%s'", ErrNotFound, kind, id)
}

func NewSecurityViolationError(detail string) error {
	return fmt.Errorf("%w: %s", ErrSecurityViolation, detail)
}

func NewKeyStateError(detail string) error {
	return fmt.Errorf("%w: %s", ErrKeyState, detail)
}

func NewIntegrityError(detail string) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, detail)
}

// IsAccessError returns true if the error represents an access control rejection.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrUnknownPrincipal)
}

// IsInvariantError returns true if the error represents a blocked mutation.
func IsInvariantError(err error) bool {
	return errors.Is(err, ErrSecurityViolation)
}

// IsKeyError returns true if the error represents key session misuse.
func IsKeyError(err error) bool {
	return errors.Is(err, ErrKeyState)
}
