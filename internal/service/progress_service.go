package service

import (
	"fmt"
	"math"

	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/repository"
	"github.com/rs/zerolog/log"
)

type SectionProgress struct {
	TotalQuestions       int     `json:"total_questions"`
	AnsweredQuestions    int     `json:"answered_questions"`
	CompletionPercentage float64 `json:"completion_percentage"`
	IsComplete           bool    `json:"is_complete"`
}

type SessionProgress struct {
	CompletionPercentage float64                    `json:"completion_percentage"`
	TotalQuestions       int                        `json:"total_questions"`
	AnsweredQuestions    int                        `json:"answered_questions"`
	Sections             map[string]SectionProgress `json:"sections"`
	IsComplete           bool                       `json:"is_complete"`
}

// ProgressService computes survey completion and keeps the session's aggregate
// progress fields in sync. Sync is the only code path that mutates those
// fields.
type ProgressService interface {
	Completion(totalActiveQuestions, answeredCount int) float64
	Progress(session *model.Session) (*SessionProgress, error)
	Sync(session *model.Session) (*SessionProgress, error)
}

type progressService struct {
	questionRepo repository.QuestionRepository
	responseRepo repository.ResponseRepository
	sessionRepo  repository.SessionRepository
}

func NewProgressService(
	questionRepo repository.QuestionRepository,
	responseRepo repository.ResponseRepository,
	sessionRepo repository.SessionRepository,
) ProgressService {
	return &progressService{
		questionRepo: questionRepo,
		responseRepo: responseRepo,
		sessionRepo:  sessionRepo,
	}
}

// Completion returns answered/total as a percentage clamped to [0,100].
// Zero active questions means there is nothing left to answer: 100%.
func (s *progressService) Completion(totalActiveQuestions, answeredCount int) float64 {
	if totalActiveQuestions <= 0 {
		return 100.0
	}
	percentage := float64(answeredCount) / float64(totalActiveQuestions) * 100
	return math.Min(100.0, math.Max(0.0, percentage))
}

func (s *progressService) Progress(session *model.Session) (*SessionProgress, error) {
	questions, err := s.questionRepo.FindActiveByCategory(session.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for category %d: %w", session.CategoryID, err)
	}

	answeredIDs, err := s.responseRepo.AnsweredQuestionIDs(session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answered questions for session %d: %w", session.ID, err)
	}
	answered := make(map[uint]struct{}, len(answeredIDs))
	for _, id := range answeredIDs {
		answered[id] = struct{}{}
	}

	sections := make(map[string]SectionProgress)
	answeredCount := 0
	for _, question := range questions {
		section := sections[question.Section]
		section.TotalQuestions++
		if _, ok := answered[question.ID]; ok {
			section.AnsweredQuestions++
			answeredCount++
		}
		sections[question.Section] = section
	}
	for name, section := range sections {
		section.CompletionPercentage = s.Completion(section.TotalQuestions, section.AnsweredQuestions)
		section.IsComplete = section.CompletionPercentage >= 100.0
		sections[name] = section
	}

	completion := round2(s.Completion(len(questions), answeredCount))
	return &SessionProgress{
		CompletionPercentage: completion,
		TotalQuestions:       len(questions),
		AnsweredQuestions:    answeredCount,
		Sections:             sections,
		IsComplete:           completion >= 100.0,
	}, nil
}

// Sync recomputes progress and writes the aggregates back to the session row.
func (s *progressService) Sync(session *model.Session) (*SessionProgress, error) {
	progress, err := s.Progress(session)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.UpdateProgress(session.ID, progress.AnsweredQuestions, progress.CompletionPercentage); err != nil {
		log.Error().Err(err).Uint("sessionID", session.ID).Msg("Failed to persist session progress")
		return nil, fmt.Errorf("failed to update session progress: %w", err)
	}

	session.SurveyResponsesCount = progress.AnsweredQuestions
	session.SurveyCompletionPercentage = progress.CompletionPercentage
	session.SurveyCompleted = progress.IsComplete
	return progress, nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
