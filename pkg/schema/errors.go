package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeUnknownState       = "UNKNOWN_STATE"
	ErrCodeIllegalTransition  = "ILLEGAL_TRANSITION"
	ErrCodeTerminalState      = "TERMINAL_STATE"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeExecution          = "EXECUTION_ERROR"
)

// OpsError is the structured error type for all workflow operations.
type OpsError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	EntityID string         `json:"entity_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *OpsError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("[%s] entity %s: %s", e.Code, e.EntityID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *OpsError) Unwrap() error {
	return e.Cause
}

// NewError creates a new OpsError.
func NewError(code, message string) *OpsError {
	return &OpsError{Code: code, Message: message}
}

// NewErrorf creates a new OpsError with a formatted message.
func NewErrorf(code, format string, args ...any) *OpsError {
	return &OpsError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithEntity attaches an entity ID to the error.
func (e *OpsError) WithEntity(entityID string) *OpsError {
	e.EntityID = entityID
	return e
}

// WithCause attaches an underlying cause.
func (e *OpsError) WithCause(err error) *OpsError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *OpsError) WithDetails(details map[string]any) *OpsError {
	e.Details = details
	return e
}

// CodeOf returns the error code of an OpsError, or "" for any other error.
func CodeOf(err error) string {
	if oe, ok := err.(*OpsError); ok {
		return oe.Code
	}
	return ""
}
