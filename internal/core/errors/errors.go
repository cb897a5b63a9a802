package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Comment validation
	ErrCommentNotFound        = errors.New("comment not found")
	ErrCommentContentRequired = errors.New("comment content is required")
	ErrCommentContentTooLong  = errors.New("comment content exceeds maximum length")
	ErrResourceIDRequired     = errors.New("resource ID is required")
	ErrAuthorRequired         = errors.New("comment author is required")
	ErrInvalidPriority        = errors.New("invalid priority")
	ErrInvalidStatus          = errors.New("invalid comment status")
	ErrEmptyPatch             = errors.New("comment patch has no changes")

	// Pinpoint anchoring, threads and reactions
	ErrInvalidMediaType = errors.New("invalid media type")
	ErrInvalidPosition  = errors.New("position does not fit the media type")
	ErrReplyPosition    = errors.New("replies cannot carry a position")
	ErrTooManyMentions  = errors.New("too many mentions")
	ErrInvalidReaction  = errors.New("invalid reaction type")

	// Capabilities
	ErrFeatureDisabled = errors.New("feature is disabled")

	// Optimistic mutations
	ErrRevertRequired = errors.New("optimistic mutation applies local state without a revert")

	// Export
	ErrExportInProgress    = errors.New("an export is already running")
	ErrInvalidExportFormat = errors.New("invalid export format")
	ErrScheduleInPast      = errors.New("export schedule must be in the future")

	// Saved filters
	ErrFilterNameRequired = errors.New("filter name is required")
	ErrFilterNotFound     = errors.New("saved filter not found")

	// Presence
	ErrInvalidCoordinates = errors.New("cursor coordinates must be finite")

	// Session lifecycle
	ErrSessionClosed = errors.New("session is closed")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// FeatureDisabledError is returned before any remote call when a capability
// flag is off. It matches ErrFeatureDisabled with errors.Is.
type FeatureDisabledError struct {
	Feature string
}

func (e *FeatureDisabledError) Error() string {
	return fmt.Sprintf("feature %q is disabled", e.Feature)
}

func (e *FeatureDisabledError) Unwrap() error {
	return ErrFeatureDisabled
}

// NewFeatureDisabledError builds the error for the named feature.
func NewFeatureDisabledError(feature string) error {
	return &FeatureDisabledError{Feature: feature}
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewConflictError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "CONFLICT",
		StatusCode: 409,
	}
}

func NewValidationError(err error, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		StatusCode: 422,
		Details:    details,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
