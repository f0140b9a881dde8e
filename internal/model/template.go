package model

import (
	"time"

	"gorm.io/gorm"
)

// SurveyTemplate groups the questions shown for one category. At most one
// template per category should be active; when several are, the most recently
// created one wins (see TemplateRepository.FindActiveByCategory).
type SurveyTemplate struct {
	ID          uint               `gorm:"primarykey" json:"id"`
	CategoryID  uint               `json:"category_id" gorm:"not null;index:idx_template_category_active"`
	Category    Category           `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Name        string             `json:"name" gorm:"not null"`
	Description string             `json:"description,omitempty" gorm:"type:text"`
	Version     string             `json:"version,omitempty"`
	IsActive    bool               `json:"is_active" gorm:"default:true;index:idx_template_category_active"`
	Questions   []TemplateQuestion `json:"questions,omitempty" gorm:"foreignKey:TemplateID"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	DeletedAt   gorm.DeletedAt     `gorm:"index" json:"-"`
}

// TemplateQuestion attaches a question to a template with a display order and
// an optional required-flag override.
type TemplateQuestion struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	TemplateID         uint           `json:"template_id" gorm:"not null;uniqueIndex:idx_template_question"`
	QuestionID         uint           `json:"question_id" gorm:"not null;uniqueIndex:idx_template_question"`
	Question           SurveyQuestion `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
	DisplayOrder       int            `json:"display_order" gorm:"not null;index"`
	IsRequiredOverride *bool          `json:"is_required_override,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsRequired resolves the effective required flag: the template override when
// set, otherwise the question's own flag.
func (tq *TemplateQuestion) IsRequired() bool {
	if tq.IsRequiredOverride != nil {
		return *tq.IsRequiredOverride
	}
	return tq.Question.IsRequired
}
