package apperror

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler converts arbitrary failures into ErrorResponse values and logs each
// one at a level matching its severity. Construct one at startup and inject it;
// no package-level instance exists.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// HandleValidation classifies a validation failure.
func (h *Handler) HandleValidation(err error) ErrorResponse {
	var verr *ValidationError
	var resp ErrorResponse
	if errors.As(err, &verr) {
		resp = ErrorResponse{
			ErrorType:           "validation_error",
			ErrorCode:           verr.Code,
			Message:             verr.Message,
			FieldErrors:         verr.FieldErrors,
			Severity:            SeverityMedium,
			Category:            CategoryValidation,
			Recoverable:         true,
			RecoverySuggestions: validationSuggestions(verr),
		}
	} else {
		resp = ErrorResponse{
			ErrorType:   "validation_error",
			ErrorCode:   "UNKNOWN_VALIDATION_ERROR",
			Message:     err.Error(),
			FieldErrors: map[string][]string{"__all__": {err.Error()}},
			Severity:    SeverityHigh,
			Category:    CategoryValidation,
			Recoverable: false,
		}
	}
	h.logResponse(resp, err)
	return resp
}

// HandleSession classifies a session failure. sessionKey may be empty when the
// error itself carries one.
func (h *Handler) HandleSession(err error, sessionKey string) ErrorResponse {
	var serr *SessionError
	var resp ErrorResponse
	if errors.As(err, &serr) {
		if sessionKey == "" {
			sessionKey = serr.SessionKey
		}
		resp = ErrorResponse{
			ErrorType:           "session_error",
			ErrorCode:           serr.Code,
			Message:             serr.Message,
			SessionKey:          sessionKey,
			Severity:            SeverityHigh,
			Category:            CategorySession,
			Recoverable:         true,
			RecoverySuggestions: sessionSuggestions(serr.Message),
		}
	} else {
		resp = ErrorResponse{
			ErrorType:   "session_error",
			ErrorCode:   "UNKNOWN_SESSION_ERROR",
			Message:     err.Error(),
			SessionKey:  sessionKey,
			Severity:    SeverityHigh,
			Category:    CategorySession,
			Recoverable: false,
		}
	}
	h.logResponse(resp, err)
	return resp
}

// HandleProcessing classifies a processing-pipeline failure by stage.
func (h *Handler) HandleProcessing(err error, stage string) ErrorResponse {
	var perr *ProcessingError
	var resp ErrorResponse
	if errors.As(err, &perr) {
		if stage == "" {
			stage = perr.Stage
		}
		resp = ErrorResponse{
			ErrorType:           "processing_error",
			ErrorCode:           perr.Code,
			Message:             perr.Message,
			ProcessingStage:     stage,
			Severity:            SeverityHigh,
			Category:            CategoryProcessing,
			Recoverable:         true,
			RecoverySuggestions: processingSuggestions(stage),
		}
	} else {
		if stage == "" {
			stage = "unknown"
		}
		resp = ErrorResponse{
			ErrorType:           "processing_error",
			ErrorCode:           "UNKNOWN_PROCESSING_ERROR",
			Message:             err.Error(),
			ProcessingStage:     stage,
			Severity:            SeverityCritical,
			Category:            CategoryProcessing,
			Recoverable:         true,
			RecoverySuggestions: processingSuggestions(""),
		}
	}
	h.logResponse(resp, err)
	return resp
}

// HandleSystem classifies everything else. The technical detail is logged but
// never surfaced in the user-facing message.
func (h *Handler) HandleSystem(err error) ErrorResponse {
	resp := ErrorResponse{
		ErrorType:   "system_error",
		ErrorCode:   "SYSTEM_ERROR",
		Message:     "A system error occurred. Please try again later.",
		Severity:    SeverityCritical,
		Category:    CategorySystem,
		Recoverable: false,
		RecoverySuggestions: []string{
			"Please try again in a few minutes",
			"Refresh the page to see if the issue is resolved",
			"Your progress has been automatically saved",
			"Contact support if the problem persists",
		},
	}
	h.logResponse(resp, err)
	return resp
}

func (h *Handler) logResponse(resp ErrorResponse, err error) {
	var event *zerolog.Event
	switch resp.Severity {
	case SeverityCritical:
		event = log.Error().Bool("critical", true)
	case SeverityHigh:
		event = log.Error()
	case SeverityMedium:
		event = log.Warn()
	default:
		event = log.Info()
	}
	event.
		Err(err).
		Str("error_type", resp.ErrorType).
		Str("error_code", resp.ErrorCode).
		Str("category", string(resp.Category)).
		Str("severity", string(resp.Severity)).
		Str("session_key", resp.SessionKey).
		Str("processing_stage", resp.ProcessingStage).
		Msg("Survey error handled")
}

func validationSuggestions(err *ValidationError) []string {
	var suggestions []string
	if len(err.FieldErrors) > 0 {
		suggestions = append(suggestions, "Please correct the highlighted fields and try again")
		for field, msgs := range err.FieldErrors {
			for _, msg := range msgs {
				lower := strings.ToLower(msg)
				switch {
				case strings.Contains(lower, "required"):
					suggestions = append(suggestions, "The "+field+" field is required")
				case strings.Contains(lower, "invalid"):
					suggestions = append(suggestions, "Please enter a valid value for "+field)
				case strings.Contains(lower, "length"):
					suggestions = append(suggestions, "Check the length requirements for "+field)
				}
			}
		}
	}
	suggestions = append(suggestions,
		"You can skip optional questions and return to them later",
		"Use the help text provided with each question for guidance",
	)
	return suggestions
}

func sessionSuggestions(message string) []string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "expired"):
		return []string{
			"Your session has expired. You can start a new survey",
			"Consider creating an account to save your progress automatically",
			"Enable browser cookies to maintain your session longer",
		}
	case strings.Contains(lower, "not found"):
		return []string{
			"The survey session could not be found",
			"You may need to start a new survey",
			"Check if you have the correct survey link",
		}
	default:
		return []string{
			"Try refreshing the page to restore your session",
			"Clear your browser cache and cookies if problems persist",
			"Start a new survey if the issue continues",
		}
	}
}

func processingSuggestions(stage string) []string {
	switch stage {
	case "response_processing":
		return []string{
			"Some of your responses may need to be reviewed",
			"Try completing any remaining required questions",
			"You can modify previous responses if needed",
		}
	case "comparison_generation":
		return []string{
			"The system will use basic comparison criteria",
			"Your survey responses have been saved",
			"You can view available policies without personalized ranking",
		}
	default:
		return []string{
			"The system will fall back to basic comparison functionality",
			"Your survey responses have been preserved",
			"You can still view and compare available policies",
		}
	}
}
