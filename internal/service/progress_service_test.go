package service

import (
	"testing"

	"github.com/insurelane/surveyd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletion(t *testing.T) {
	svc := NewProgressService(&fakeQuestionRepo{}, &fakeResponseRepo{}, &fakeSessionRepo{})

	// A survey with nothing to answer is complete, not empty.
	assert.Equal(t, 100.0, svc.Completion(0, 0))
	assert.Equal(t, 100.0, svc.Completion(-1, 5))

	assert.Equal(t, 30.0, svc.Completion(10, 3))
	assert.Equal(t, 100.0, svc.Completion(10, 10))
	assert.Equal(t, 100.0, svc.Completion(10, 15))
	assert.Equal(t, 0.0, svc.Completion(10, 0))
}

func progressFixture() (*fakeQuestionRepo, *fakeResponseRepo) {
	questions := []model.SurveyQuestion{
		{ID: 1, Section: "Personal Information", DisplayOrder: 1},
		{ID: 2, Section: "Personal Information", DisplayOrder: 2},
		{ID: 3, Section: "Coverage Preferences", DisplayOrder: 3},
		{ID: 4, Section: "Coverage Preferences", DisplayOrder: 4},
		{ID: 5, Section: "Coverage Preferences", DisplayOrder: 5},
	}
	questionRepo := &fakeQuestionRepo{
		findActiveByCategory: func(uint) ([]model.SurveyQuestion, error) {
			return questions, nil
		},
	}
	responseRepo := &fakeResponseRepo{
		answeredQuestionIDs: func(uint) ([]uint, error) {
			return []uint{1, 2, 3}, nil
		},
	}
	return questionRepo, responseRepo
}

func TestProgressSectionBreakdown(t *testing.T) {
	questionRepo, responseRepo := progressFixture()
	svc := NewProgressService(questionRepo, responseRepo, &fakeSessionRepo{})

	progress, err := svc.Progress(&model.Session{ID: 7, CategoryID: 1})
	require.NoError(t, err)

	assert.Equal(t, 60.0, progress.CompletionPercentage)
	assert.Equal(t, 5, progress.TotalQuestions)
	assert.Equal(t, 3, progress.AnsweredQuestions)
	assert.False(t, progress.IsComplete)

	personal := progress.Sections["Personal Information"]
	assert.Equal(t, 2, personal.TotalQuestions)
	assert.Equal(t, 2, personal.AnsweredQuestions)
	assert.True(t, personal.IsComplete)

	coverage := progress.Sections["Coverage Preferences"]
	assert.Equal(t, 3, coverage.TotalQuestions)
	assert.Equal(t, 1, coverage.AnsweredQuestions)
	assert.False(t, coverage.IsComplete)
	assert.InDelta(t, 33.33, coverage.CompletionPercentage, 0.01)
}

func TestSyncWritesAggregatesBack(t *testing.T) {
	questionRepo, responseRepo := progressFixture()

	var gotCount int
	var gotPct float64
	sessionRepo := &fakeSessionRepo{
		updateProgress: func(sessionID uint, count int, pct float64) error {
			gotCount = count
			gotPct = pct
			return nil
		},
	}
	svc := NewProgressService(questionRepo, responseRepo, sessionRepo)

	session := &model.Session{ID: 7, CategoryID: 1}
	progress, err := svc.Sync(session)
	require.NoError(t, err)

	assert.Equal(t, 3, gotCount)
	assert.Equal(t, 60.0, gotPct)
	assert.Equal(t, 3, session.SurveyResponsesCount)
	assert.Equal(t, 60.0, session.SurveyCompletionPercentage)
	assert.False(t, session.SurveyCompleted)
	assert.Equal(t, progress.CompletionPercentage, session.SurveyCompletionPercentage)
}
