package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusExpired   SessionStatus = "EXPIRED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusAbandoned SessionStatus = "ABANDONED"
)

// Session is one user's pass through a category's survey. Sessions are never
// deleted; terminal states only flip the status so the audit trail survives.
type Session struct {
	ID         uint          `gorm:"primarykey" json:"id"`
	SessionKey string        `json:"session_key" gorm:"not null;uniqueIndex"`
	UserID     *uint         `json:"user_id,omitempty" gorm:"index"`
	CategoryID uint          `json:"category_id" gorm:"not null;index"`
	Category   Category      `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Status     SessionStatus `json:"status" gorm:"default:'ACTIVE';index"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty" gorm:"index"`

	// Survey progress aggregates, written back only by the progress service.
	SurveyResponsesCount       int     `json:"survey_responses_count" gorm:"default:0"`
	SurveyCompletionPercentage float64 `json:"survey_completion_percentage" gorm:"default:0"`
	SurveyCompleted            bool    `json:"survey_completed" gorm:"default:false"`

	// Fallback markers set by the degradation service.
	FallbackMode   bool   `json:"fallback_mode" gorm:"default:false"`
	FallbackType   string `json:"fallback_type,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty" gorm:"type:text"`

	// Criteria is the comparison-engine input computed from survey data.
	Criteria datatypes.JSONMap `json:"criteria,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsExpired reports whether the session's expiry has passed. Sessions without
// an expiry never expire.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
