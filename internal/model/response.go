package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	ConfidenceMin     = 1
	ConfidenceMax     = 5
	ConfidenceNeutral = 3
)

// SurveyResponse is one answer in one session. The (session, question) pair is
// unique; saves are upserts with last-write-wins semantics.
type SurveyResponse struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	SessionID       uint           `json:"session_id" gorm:"not null;uniqueIndex:idx_response_session_question;index"`
	Session         Session        `json:"session,omitempty" gorm:"foreignKey:SessionID"`
	QuestionID      uint           `json:"question_id" gorm:"not null;uniqueIndex:idx_response_session_question;index"`
	Question        SurveyQuestion `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
	ResponseValue   datatypes.JSON `json:"response_value"`
	ConfidenceLevel int            `json:"confidence_level" gorm:"default:3"`
	CreatedAt       time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Value decodes the stored response value. The concrete type follows the
// owning question's type: string, float64, []any or bool.
func (r *SurveyResponse) Value() (any, error) {
	if len(r.ResponseValue) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r.ResponseValue, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SetValue encodes a cleaned value into the JSON column.
func (r *SurveyResponse) SetValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.ResponseValue = datatypes.JSON(data)
	return nil
}

// ClampConfidence maps out-of-range confidence levels to the neutral default.
func ClampConfidence(level int) int {
	if level < ConfidenceMin || level > ConfidenceMax {
		return ConfidenceNeutral
	}
	return level
}
