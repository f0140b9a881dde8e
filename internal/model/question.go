package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestionType is the closed set of supported question kinds. The validator
// switches exhaustively over these; anything else is rejected at validation time.
type QuestionType string

const (
	QuestionTypeText        QuestionType = "TEXT"
	QuestionTypeNumber      QuestionType = "NUMBER"
	QuestionTypeChoice      QuestionType = "CHOICE"
	QuestionTypeMultiChoice QuestionType = "MULTI_CHOICE"
	QuestionTypeRange       QuestionType = "RANGE"
	QuestionTypeBoolean     QuestionType = "BOOLEAN"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeText, QuestionTypeNumber, QuestionTypeChoice,
		QuestionTypeMultiChoice, QuestionTypeRange, QuestionTypeBoolean:
		return true
	}
	return false
}

// ValidationRules holds the type-specific constraints configured per question.
// Numeric bounds are kept as json.Number so NUMBER questions can be compared
// with arbitrary precision instead of floats.
type ValidationRules struct {
	MinLength          *int         `json:"min_length,omitempty"`
	MaxLength          *int         `json:"max_length,omitempty"`
	Pattern            *string      `json:"pattern,omitempty"`
	PatternDescription *string      `json:"pattern_description,omitempty"`
	MinValue           *json.Number `json:"min_value,omitempty"`
	MaxValue           *json.Number `json:"max_value,omitempty"`
	DecimalPlaces      *int         `json:"decimal_places,omitempty"`
	MinSelections      *int         `json:"min_selections,omitempty"`
	MaxSelections      *int         `json:"max_selections,omitempty"`
	Step               *float64     `json:"step,omitempty"`
}

type SurveyQuestion struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	CategoryID      uint           `json:"category_id" gorm:"not null;index:idx_question_category_section;uniqueIndex:idx_question_category_field"`
	Category        Category       `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Section         string         `json:"section" gorm:"not null;index:idx_question_category_section"`
	QuestionText    string         `json:"question_text" gorm:"type:text;not null"`
	QuestionType    QuestionType   `json:"question_type" gorm:"not null"`
	FieldName       string         `json:"field_name" gorm:"not null;uniqueIndex:idx_question_category_field"`
	Choices         datatypes.JSON `json:"choices,omitempty"`
	ValidationRules datatypes.JSON `json:"validation_rules,omitempty"`
	WeightImpact    float64        `json:"weight_impact" gorm:"default:1.0"`
	HelpText        string         `json:"help_text,omitempty" gorm:"type:text"`
	IsRequired      bool           `json:"is_required" gorm:"default:false"`
	DisplayOrder    int            `json:"display_order" gorm:"not null;index"`
	IsActive        bool           `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// Rules decodes the ValidationRules JSON column. An empty column yields the
// zero rule-set.
func (q *SurveyQuestion) Rules() (ValidationRules, error) {
	var rules ValidationRules
	if len(q.ValidationRules) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(q.ValidationRules, &rules); err != nil {
		return ValidationRules{}, err
	}
	return rules, nil
}

// ChoiceValues normalizes the Choices column to the set of selectable values.
// Entries may be bare scalars or {"value": ..., "label": ...} objects.
func (q *SurveyQuestion) ChoiceValues() ([]any, error) {
	if len(q.Choices) == 0 {
		return nil, nil
	}
	var raw []any
	if err := json.Unmarshal(q.Choices, &raw); err != nil {
		return nil, err
	}
	values := make([]any, 0, len(raw))
	for _, choice := range raw {
		if obj, ok := choice.(map[string]any); ok {
			values = append(values, obj["value"])
		} else {
			values = append(values, choice)
		}
	}
	return values, nil
}
