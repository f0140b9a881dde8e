package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/repository"
	"github.com/insurelane/surveyd/internal/sessionstate"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionView struct {
	ID              uint               `json:"id"`
	QuestionText    string             `json:"question_text"`
	QuestionType    model.QuestionType `json:"question_type"`
	FieldName       string             `json:"field_name"`
	Choices         datatypes.JSON     `json:"choices,omitempty"`
	ValidationRules datatypes.JSON     `json:"validation_rules,omitempty"`
	HelpText        string             `json:"help_text,omitempty"`
	IsRequired      bool               `json:"is_required"`
	DisplayOrder    int                `json:"display_order"`
	WeightImpact    float64            `json:"weight_impact"`
}

type SurveySection struct {
	Name      string         `json:"name"`
	Questions []QuestionView `json:"questions"`
}

type SaveResult struct {
	Success    bool     `json:"success"`
	ResponseID uint     `json:"response_id,omitempty"`
	Created    bool     `json:"created"`
	Errors     []string `json:"errors"`
}

type SectionResponse struct {
	QuestionID      uint               `json:"question_id"`
	FieldName       string             `json:"field_name"`
	QuestionText    string             `json:"question_text"`
	QuestionType    model.QuestionType `json:"question_type"`
	ResponseValue   any                `json:"response_value"`
	ConfidenceLevel int                `json:"confidence_level"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type SectionSummary struct {
	ResponsesCount int        `json:"responses_count"`
	LatestResponse *time.Time `json:"latest_response,omitempty"`
}

type SurveySummary struct {
	CompletionPercentage float64                   `json:"completion_percentage"`
	TotalResponses       int                       `json:"total_responses"`
	Sections             map[string]SectionSummary `json:"sections"`
	IsCompleted          bool                      `json:"is_completed"`
	Category             string                    `json:"category"`
	TemplateName         *string                   `json:"template_name"`
	LastUpdated          time.Time                 `json:"last_updated"`
}

// SurveyEngine is the survey-facing facade: the question catalogue for a
// category, response validation and persistence, and per-session views. It
// composes the validator and progress services so controllers talk to one
// surface.
type SurveyEngine interface {
	Sections(categorySlug string) ([]SurveySection, error)
	QuestionByID(categorySlug string, questionID uint) (*QuestionView, error)
	ValidateResponse(categorySlug string, questionID uint, raw any) (ValidationResult, error)
	SaveResponse(ctx context.Context, session *model.Session, questionID uint, raw any, confidenceLevel int) (*SaveResult, error)
	SessionResponses(session *model.Session) (map[string][]SectionResponse, error)
	CheckConditionalQuestions(parentQuestionID uint, parentValue any) ([]uint, error)
	Summary(session *model.Session) (*SurveySummary, error)
	// StateSnapshot returns the mirrored in-flight state, or nil when no
	// mirror exists for the session.
	StateSnapshot(ctx context.Context, session *model.Session) (*sessionstate.Snapshot, error)
}

type surveyEngine struct {
	categoryRepo   repository.CategoryRepository
	templateRepo   repository.TemplateRepository
	questionRepo   repository.QuestionRepository
	responseRepo   repository.ResponseRepository
	dependencyRepo repository.DependencyRepository
	validator      ResponseValidator
	progress       ProgressService
	state          *sessionstate.Selector
}

func NewSurveyEngine(
	categoryRepo repository.CategoryRepository,
	templateRepo repository.TemplateRepository,
	questionRepo repository.QuestionRepository,
	responseRepo repository.ResponseRepository,
	dependencyRepo repository.DependencyRepository,
	validator ResponseValidator,
	progress ProgressService,
	state *sessionstate.Selector,
) SurveyEngine {
	return &surveyEngine{
		categoryRepo:   categoryRepo,
		templateRepo:   templateRepo,
		questionRepo:   questionRepo,
		responseRepo:   responseRepo,
		dependencyRepo: dependencyRepo,
		validator:      validator,
		progress:       progress,
		state:          state,
	}
}

// Sections returns the category's questionnaire grouped by section. Question
// order inside a section follows the template's display order, and sections
// are ordered by their first question. A category without an active template
// has no questionnaire.
func (e *surveyEngine) Sections(categorySlug string) ([]SurveySection, error) {
	category, err := e.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		return nil, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}

	template, err := e.templateRepo.FindActiveByCategory(category.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []SurveySection{}, nil
		}
		return nil, fmt.Errorf("failed to load survey template: %w", err)
	}

	templateQuestions, err := e.templateRepo.FindTemplateQuestions(template.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template questions: %w", err)
	}

	grouped := map[string][]QuestionView{}
	for _, tq := range templateQuestions {
		question := tq.Question
		if !question.IsActive {
			continue
		}
		grouped[question.Section] = append(grouped[question.Section], QuestionView{
			ID:              question.ID,
			QuestionText:    question.QuestionText,
			QuestionType:    question.QuestionType,
			FieldName:       question.FieldName,
			Choices:         question.Choices,
			ValidationRules: question.ValidationRules,
			HelpText:        question.HelpText,
			IsRequired:      tq.IsRequired(),
			DisplayOrder:    tq.DisplayOrder,
			WeightImpact:    question.WeightImpact,
		})
	}

	sections := make([]SurveySection, 0, len(grouped))
	for name, questions := range grouped {
		sort.Slice(questions, func(i, j int) bool {
			return questions[i].DisplayOrder < questions[j].DisplayOrder
		})
		sections = append(sections, SurveySection{Name: name, Questions: questions})
	}
	sort.Slice(sections, func(i, j int) bool {
		return sections[i].Questions[0].DisplayOrder < sections[j].Questions[0].DisplayOrder
	})
	return sections, nil
}

func (e *surveyEngine) QuestionByID(categorySlug string, questionID uint) (*QuestionView, error) {
	category, err := e.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		return nil, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}

	question, err := e.questionRepo.FindActiveByID(questionID, category.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load question %d: %w", questionID, err)
	}

	return &QuestionView{
		ID:              question.ID,
		QuestionText:    question.QuestionText,
		QuestionType:    question.QuestionType,
		FieldName:       question.FieldName,
		Choices:         question.Choices,
		ValidationRules: question.ValidationRules,
		HelpText:        question.HelpText,
		IsRequired:      question.IsRequired,
		DisplayOrder:    question.DisplayOrder,
		WeightImpact:    question.WeightImpact,
	}, nil
}

// ValidateResponse checks an answer without saving it. An unknown or inactive
// question yields an invalid result, not an error; failures below the
// repository are the only error case.
func (e *surveyEngine) ValidateResponse(categorySlug string, questionID uint, raw any) (ValidationResult, error) {
	category, err := e.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}

	question, err := e.questionRepo.FindActiveByID(questionID, category.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ValidationResult{IsValid: false, Errors: []string{"Question not found"}}, nil
		}
		return ValidationResult{}, fmt.Errorf("failed to load question %d: %w", questionID, err)
	}

	return e.validator.Validate(question, raw), nil
}

// SaveResponse validates and upserts one answer, then recomputes the
// session's progress. Validation failures come back in the result; they are
// not errors.
func (e *surveyEngine) SaveResponse(ctx context.Context, session *model.Session, questionID uint, raw any, confidenceLevel int) (*SaveResult, error) {
	question, err := e.questionRepo.FindActiveByID(questionID, session.CategoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &SaveResult{Success: false, Errors: []string{"Question not found"}}, nil
		}
		return nil, fmt.Errorf("failed to load question %d: %w", questionID, err)
	}

	validation := e.validator.Validate(question, raw)
	if !validation.IsValid {
		return &SaveResult{Success: false, Errors: validation.Errors}, nil
	}

	response := &model.SurveyResponse{
		SessionID:       session.ID,
		QuestionID:      question.ID,
		ConfidenceLevel: model.ClampConfidence(confidenceLevel),
	}
	if err := response.SetValue(validation.Cleaned); err != nil {
		return nil, fmt.Errorf("failed to encode response value: %w", err)
	}

	created, err := e.responseRepo.Upsert(response)
	if err != nil {
		log.Error().Err(err).Uint("questionID", questionID).Str("sessionKey", session.SessionKey).Msg("Failed to save response")
		return &SaveResult{Success: false, Errors: []string{"Failed to save response"}}, nil
	}

	progress, err := e.progress.Sync(session)
	if err != nil {
		return nil, fmt.Errorf("failed to update session progress: %w", err)
	}

	// Write-through mirror for fast client reads. Anonymous sessions mirror
	// into the cache; authenticated ones rely on their rows alone. Losing a
	// mirror write costs nothing; the row above is the source of truth.
	mirror := e.state.For(session.UserID)
	mirrorErr := mirror.MirrorResponse(ctx, session.SessionKey, sessionstate.MirroredResponse{
		QuestionID:      question.ID,
		FieldName:       question.FieldName,
		Value:           validation.Cleaned,
		ConfidenceLevel: response.ConfidenceLevel,
	})
	if mirrorErr == nil {
		mirrorErr = mirror.MirrorProgress(ctx, session.SessionKey, progress.CompletionPercentage, progress.AnsweredQuestions)
	}
	if mirrorErr != nil {
		log.Warn().Err(mirrorErr).Str("sessionKey", session.SessionKey).Msg("Failed to mirror session state")
	}

	return &SaveResult{
		Success:    true,
		ResponseID: response.ID,
		Created:    created,
		Errors:     []string{},
	}, nil
}

// SessionResponses groups the session's answers by section, each section's
// answers in submission order.
func (e *surveyEngine) SessionResponses(session *model.Session) (map[string][]SectionResponse, error) {
	responses, err := e.responseRepo.FindBySession(session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session responses: %w", err)
	}

	sections := map[string][]SectionResponse{}
	for _, resp := range responses {
		value, err := resp.Value()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response %d: %w", resp.ID, err)
		}
		sections[resp.Question.Section] = append(sections[resp.Question.Section], SectionResponse{
			QuestionID:      resp.QuestionID,
			FieldName:       resp.Question.FieldName,
			QuestionText:    resp.Question.QuestionText,
			QuestionType:    resp.Question.QuestionType,
			ResponseValue:   value,
			ConfidenceLevel: resp.ConfidenceLevel,
			CreatedAt:       resp.CreatedAt,
			UpdatedAt:       resp.UpdatedAt,
		})
	}
	return sections, nil
}

// CheckConditionalQuestions returns the child questions unlocked by an answer
// to the parent question.
func (e *surveyEngine) CheckConditionalQuestions(parentQuestionID uint, parentValue any) ([]uint, error) {
	dependencies, err := e.dependencyRepo.FindActiveByParent(parentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question dependencies: %w", err)
	}

	show := []uint{}
	for _, dep := range dependencies {
		if dep.Evaluate(parentValue) {
			show = append(show, dep.ChildQuestionID)
		}
	}
	return show, nil
}

func (e *surveyEngine) StateSnapshot(ctx context.Context, session *model.Session) (*sessionstate.Snapshot, error) {
	return e.state.For(session.UserID).Snapshot(ctx, session.SessionKey)
}

// Summary condenses the session's survey state: completion, per-section
// response counts with the latest activity, and whether the survey is done.
func (e *surveyEngine) Summary(session *model.Session) (*SurveySummary, error) {
	progress, err := e.progress.Progress(session)
	if err != nil {
		return nil, err
	}
	responses, err := e.SessionResponses(session)
	if err != nil {
		return nil, err
	}

	sections := map[string]SectionSummary{}
	total := 0
	for name, sectionResponses := range responses {
		var latest *time.Time
		for _, resp := range sectionResponses {
			updated := resp.UpdatedAt
			if latest == nil || updated.After(*latest) {
				latest = &updated
			}
		}
		sections[name] = SectionSummary{
			ResponsesCount: len(sectionResponses),
			LatestResponse: latest,
		}
		total += len(sectionResponses)
	}

	summary := &SurveySummary{
		CompletionPercentage: progress.CompletionPercentage,
		TotalResponses:       total,
		Sections:             sections,
		IsCompleted:          progress.CompletionPercentage >= 100.0,
		Category:             session.Category.Slug,
		LastUpdated:          session.UpdatedAt,
	}

	template, err := e.templateRepo.FindActiveByCategory(session.CategoryID)
	if err == nil {
		summary.TemplateName = &template.Name
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load survey template: %w", err)
	}
	return summary, nil
}
