package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy. Handlers map these to
// response codes; internal recovery paths match on them with errors.Is.
var (
	// ErrUnavailable means the catalog store or similarity backend could
	// not be reached after retry, and no cached fallback existed.
	ErrUnavailable = errors.New("recommendations temporarily unavailable")

	// ErrProfileNotFound means no profile exists for the requested user.
	ErrProfileNotFound = errors.New("user profile not found")

	// ErrConflict means an optimistic-concurrency check failed and retries
	// were exhausted.
	ErrConflict = errors.New("concurrent profile update conflict")
)

// ValidationError rejects malformed input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for one offending field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// SafetyViolation records an audience mismatch caught by the post-condition
// check. It is never surfaced to callers; the offending item is dropped and
// the violation logged at highest severity.
type SafetyViolation struct {
	ItemID         string
	ItemAudience   string
	StatedAudience string
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("audience safety violation: item %s targets %q but user stated %q",
		e.ItemID, e.ItemAudience, e.StatedAudience)
}
