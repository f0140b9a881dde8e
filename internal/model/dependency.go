package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "EQUALS"
	OperatorNotEquals   ConditionOperator = "NOT_EQUALS"
	OperatorGreaterThan ConditionOperator = "GREATER_THAN"
	OperatorLessThan    ConditionOperator = "LESS_THAN"
	OperatorContains    ConditionOperator = "CONTAINS"
	OperatorInList      ConditionOperator = "IN_LIST"
)

// QuestionDependency reveals a child question based on the parent's response.
type QuestionDependency struct {
	ID                uint              `gorm:"primarykey" json:"id"`
	ParentQuestionID  uint              `json:"parent_question_id" gorm:"not null;uniqueIndex:idx_dependency_pair;index:idx_dependency_parent_active"`
	ParentQuestion    SurveyQuestion    `json:"parent_question,omitempty" gorm:"foreignKey:ParentQuestionID"`
	ChildQuestionID   uint              `json:"child_question_id" gorm:"not null;uniqueIndex:idx_dependency_pair"`
	ChildQuestion     SurveyQuestion    `json:"child_question,omitempty" gorm:"foreignKey:ChildQuestionID"`
	ConditionValue    json.RawMessage   `json:"condition_value" gorm:"type:jsonb"`
	ConditionOperator ConditionOperator `json:"condition_operator" gorm:"default:'EQUALS';index:idx_dependency_parent_active"`
	IsActive          bool              `json:"is_active" gorm:"default:true"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Evaluate reports whether the child question should be shown for the given
// parent response. Inactive rules never match.
func (d *QuestionDependency) Evaluate(parentValue any) bool {
	if !d.IsActive {
		return false
	}

	var condition any
	if err := json.Unmarshal(d.ConditionValue, &condition); err != nil {
		return false
	}

	switch d.ConditionOperator {
	case OperatorEquals:
		return looseEqual(parentValue, condition)
	case OperatorNotEquals:
		return !looseEqual(parentValue, condition)
	case OperatorGreaterThan:
		pv, cv, ok := bothNumeric(parentValue, condition)
		return ok && pv > cv
	case OperatorLessThan:
		pv, cv, ok := bothNumeric(parentValue, condition)
		return ok && pv < cv
	case OperatorContains:
		return contains(parentValue, condition)
	case OperatorInList:
		list, ok := condition.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(parentValue, item) {
				return true
			}
		}
		return false
	}
	return false
}

// looseEqual compares values the way JSON round-tripping produces them:
// numbers compare numerically regardless of concrete type.
func looseEqual(a, b any) bool {
	if av, bv, ok := bothNumeric(a, b); ok {
		return av == bv
	}
	return reflect.DeepEqual(a, b)
}

func bothNumeric(a, b any) (float64, float64, bool) {
	av, aok := asFloat(a)
	bv, bok := asFloat(b)
	return av, bv, aok && bok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// contains checks substring containment for strings and membership for lists.
func contains(parentValue, condition any) bool {
	switch pv := parentValue.(type) {
	case string:
		cs, ok := condition.(string)
		return ok && strings.Contains(pv, cs)
	case []any:
		for _, item := range pv {
			if looseEqual(item, condition) {
				return true
			}
		}
	}
	return false
}
