package apperror

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Category string

const (
	CategoryValidation Category = "validation"
	CategorySession    Category = "session"
	CategoryProcessing Category = "processing"
	CategorySystem     Category = "system"
)

// ValidationError carries per-field validation failures.
type ValidationError struct {
	Message     string
	Code        string
	FieldErrors map[string][]string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(message string, fieldErrors map[string][]string) *ValidationError {
	return &ValidationError{
		Message:     message,
		Code:        "VALIDATION_ERROR",
		FieldErrors: fieldErrors,
	}
}

// SessionError marks failures tied to a specific survey session.
type SessionError struct {
	Message    string
	Code       string
	SessionKey string
}

func (e *SessionError) Error() string { return e.Message }

func NewSessionError(message, sessionKey string) *SessionError {
	return &SessionError{
		Message:    message,
		Code:       "SESSION_ERROR",
		SessionKey: sessionKey,
	}
}

// ProcessingError marks failures in a named stage of the survey pipeline,
// e.g. "response_processing" or "comparison_generation".
type ProcessingError struct {
	Message string
	Code    string
	Stage   string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s (stage: %s)", e.Message, e.Stage)
}

func NewProcessingError(message, stage string) *ProcessingError {
	return &ProcessingError{
		Message: message,
		Code:    "PROCESSING_ERROR",
		Stage:   stage,
	}
}

// ErrorResponse is the structured shape every operation boundary returns
// instead of raising. Callers inspect Success, never error types.
type ErrorResponse struct {
	Success             bool                `json:"success"`
	ErrorType           string              `json:"error_type"`
	ErrorCode           string              `json:"error_code"`
	Message             string              `json:"message"`
	FieldErrors         map[string][]string `json:"field_errors,omitempty"`
	SessionKey          string              `json:"session_key,omitempty"`
	ProcessingStage     string              `json:"processing_stage,omitempty"`
	Severity            Severity            `json:"severity"`
	Category            Category            `json:"category"`
	Recoverable         bool                `json:"recoverable"`
	RecoverySuggestions []string            `json:"recovery_suggestions"`
}
