package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnsupportedFile = "UNSUPPORTED_FILE"
	ErrCodeEmptyDataset    = "EMPTY_DATASET"
	ErrCodeProtocol        = "PROTOCOL_ERROR"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeConfig          = "CONFIG_ERROR"
	ErrCodeStore           = "STORE_ERROR"
)

// NoesisError is the structured error type for all service operations.
type NoesisError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *NoesisError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *NoesisError) Unwrap() error {
	return e.Cause
}

// NewError creates a new NoesisError.
func NewError(code, message string) *NoesisError {
	return &NoesisError{Code: code, Message: message}
}

// NewErrorf creates a new NoesisError with a formatted message.
func NewErrorf(code, format string, args ...any) *NoesisError {
	return &NoesisError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *NoesisError) WithCause(err error) *NoesisError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *NoesisError) WithDetails(details map[string]any) *NoesisError {
	e.Details = details
	return e
}
