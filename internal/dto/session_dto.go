package dto

import "time"

// SessionDTO is the client-facing view of a survey session.
type SessionDTO struct {
	ID                         uint       `json:"id"`
	SessionKey                 string     `json:"session_key"`
	CategoryID                 uint       `json:"category_id"`
	Status                     string     `json:"status"`
	ExpiresAt                  *time.Time `json:"expires_at,omitempty"`
	SurveyResponsesCount       int        `json:"survey_responses_count"`
	SurveyCompletionPercentage float64    `json:"survey_completion_percentage"`
	SurveyCompleted            bool       `json:"survey_completed"`
	FallbackMode               bool       `json:"fallback_mode"`
	FallbackType               string     `json:"fallback_type,omitempty"`
	CreatedAt                  time.Time  `json:"created_at"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

// GetOrCreateSessionRequest resolves the caller's session for a category.
// Authenticated callers send user_id; anonymous ones send their previous
// session_key if they have one.
type GetOrCreateSessionRequest struct {
	Category   string `json:"category" binding:"required"`
	UserID     *uint  `json:"user_id,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
}

type ExtendSessionRequest struct {
	Hours  int    `json:"hours" binding:"required,min=1"`
	Reason string `json:"reason"`
}

// RecoverSessionRequest names the user who should own the recovered session.
// An empty body keeps it anonymous.
type RecoverSessionRequest struct {
	UserID *uint `json:"user_id,omitempty"`
}

type RestoreBackupRequest struct {
	BackupKey string `json:"backup_key" binding:"required"`
}

type CleanupSessionsRequest struct {
	DaysOld int `json:"days_old"`
}

// DegradationRequest tunes how aggressively incomplete data is accepted.
type DegradationRequest struct {
	MinCompletionThreshold float64 `json:"min_completion_threshold"`
}

type FallbackRequest struct {
	FallbackType string `json:"fallback_type"`
}
