package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestQuestionTypeValid(t *testing.T) {
	for _, qt := range []QuestionType{
		QuestionTypeText, QuestionTypeNumber, QuestionTypeChoice,
		QuestionTypeMultiChoice, QuestionTypeRange, QuestionTypeBoolean,
	} {
		assert.True(t, qt.Valid(), string(qt))
	}
	assert.False(t, QuestionType("MATRIX").Valid())
	assert.False(t, QuestionType("").Valid())
}

func TestRulesDecode(t *testing.T) {
	q := &SurveyQuestion{
		ValidationRules: datatypes.JSON(`{"min_length": 2, "max_length": 50, "min_value": 18, "step": 25}`),
	}

	rules, err := q.Rules()
	require.NoError(t, err)
	require.NotNil(t, rules.MinLength)
	assert.Equal(t, 2, *rules.MinLength)
	require.NotNil(t, rules.MaxLength)
	assert.Equal(t, 50, *rules.MaxLength)
	require.NotNil(t, rules.MinValue)
	assert.Equal(t, "18", rules.MinValue.String())
	require.NotNil(t, rules.Step)
	assert.Equal(t, 25.0, *rules.Step)
	assert.Nil(t, rules.Pattern)
}

func TestRulesEmptyColumn(t *testing.T) {
	q := &SurveyQuestion{}
	rules, err := q.Rules()
	require.NoError(t, err)
	assert.Equal(t, ValidationRules{}, rules)
}

func TestChoiceValuesScalars(t *testing.T) {
	q := &SurveyQuestion{Choices: datatypes.JSON(`["low", "medium", "high"]`)}

	values, err := q.ChoiceValues()
	require.NoError(t, err)
	assert.Equal(t, []any{"low", "medium", "high"}, values)
}

func TestChoiceValuesObjects(t *testing.T) {
	q := &SurveyQuestion{
		Choices: datatypes.JSON(`[{"value": 1, "label": "One"}, {"value": "two", "label": "Two"}]`),
	}

	values, err := q.ChoiceValues()
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, 1.0, values[0])
	assert.Equal(t, "two", values[1])
}

func TestChoiceValuesEmpty(t *testing.T) {
	q := &SurveyQuestion{}
	values, err := q.ChoiceValues()
	require.NoError(t, err)
	assert.Nil(t, values)
}

func TestResponseValueRoundTrip(t *testing.T) {
	r := &SurveyResponse{}
	require.NoError(t, r.SetValue(map[string]any{"answer": "yes"}))

	value, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "yes"}, value)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceNeutral, ClampConfidence(-3))
	assert.Equal(t, ConfidenceNeutral, ClampConfidence(0))
	assert.Equal(t, ConfidenceNeutral, ClampConfidence(9))
	assert.Equal(t, 1, ClampConfidence(1))
	assert.Equal(t, 5, ClampConfidence(5))
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&Session{ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&Session{ExpiresAt: &future}).IsExpired(now))
	assert.False(t, (&Session{}).IsExpired(now))
}
