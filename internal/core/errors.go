package core

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the service and the stores. The HTTP layer maps
// them to status codes with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationReason classifies a ValidationError.
type ValidationReason string

const (
	ReasonEmpty          ValidationReason = "empty"
	ReasonTooManyRows    ValidationReason = "too_many_rows"
	ReasonHeaderMismatch ValidationReason = "header_mismatch"
	ReasonInvalid        ValidationReason = "invalid"
)

// ValidationError reports input the service refused before touching storage.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Invalid returns a generic ValidationError for malformed request input.
func Invalid(format string, args ...any) error {
	return newValidationError(ReasonInvalid, format, args...)
}

// notFound wraps ErrNotFound with the entity that was missing.
func notFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}
