package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference indicates a malformed or unresolvable owner/principal id.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates a credential mismatch or missing authentication.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated principal lacking a capability.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates a payload rejected by field rules.
	ErrValidation = errors.New("validation rejected")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
