package types

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the API boundary. They map onto the error
// taxonomy: not-found/conflict errors are semantically meaningful to the
// caller and never retried; validation and authorization errors are
// rejected before any state changes.
var (
	ErrNotFound              = errors.New("not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrTaskAlreadyStarted    = errors.New("task already started")
	ErrTaskNotRunning        = errors.New("task is not running")
	ErrIncidentNotResolvable = errors.New("incident is already resolved")
)

// ValidationError reports malformed caller input: a bad cron expression,
// an invalid task id, URL, or timeout. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
