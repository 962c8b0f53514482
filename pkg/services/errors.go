package services

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP status codes by the API layer.
var (
	ErrAlertNotFound        = errors.New("alert not found")
	ErrIncidentNotFound     = errors.New("incident not found")
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrOverrideNotFound     = errors.New("no active override for team")
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrBadID marks a syntactically invalid resource id (400, not 404).
	ErrBadID = errors.New("malformed id")

	// ErrStoreUnavailable marks persistence failures surfaced as 503.
	ErrStoreUnavailable = errors.New("persistence unavailable")
)

// ValidationError describes rejected input; the API layer maps it to 422.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a field-scoped validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError describes an illegal state transition or uniqueness
// violation; the API layer maps it to 409.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflictError creates a conflict error.
func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
