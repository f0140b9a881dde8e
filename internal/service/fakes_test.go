package service

import (
	"time"

	"github.com/insurelane/surveyd/internal/model"
	"gorm.io/gorm"
)

// Hand-rolled fakes for the repository interfaces. Each method delegates to a
// function field; unset fields return not-found or zero values.

type fakeCategoryRepo struct {
	findBySlug func(slug string) (*model.Category, error)
}

func (f *fakeCategoryRepo) FindBySlug(slug string) (*model.Category, error) {
	if f.findBySlug == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.findBySlug(slug)
}

type fakeTemplateRepo struct {
	findActiveByCategory  func(categoryID uint) (*model.SurveyTemplate, error)
	findTemplateQuestions func(templateID uint) ([]model.TemplateQuestion, error)
	countActiveQuestions  func(templateID uint) (int64, error)
}

func (f *fakeTemplateRepo) FindActiveByCategory(categoryID uint) (*model.SurveyTemplate, error) {
	if f.findActiveByCategory == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.findActiveByCategory(categoryID)
}

func (f *fakeTemplateRepo) FindTemplateQuestions(templateID uint) ([]model.TemplateQuestion, error) {
	if f.findTemplateQuestions == nil {
		return nil, nil
	}
	return f.findTemplateQuestions(templateID)
}

func (f *fakeTemplateRepo) CountActiveQuestions(templateID uint) (int64, error) {
	if f.countActiveQuestions == nil {
		return 0, nil
	}
	return f.countActiveQuestions(templateID)
}

type fakeQuestionRepo struct {
	findActiveByID       func(id, categoryID uint) (*model.SurveyQuestion, error)
	findActiveByCategory func(categoryID uint) ([]model.SurveyQuestion, error)
}

func (f *fakeQuestionRepo) FindActiveByID(id, categoryID uint) (*model.SurveyQuestion, error) {
	if f.findActiveByID == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.findActiveByID(id, categoryID)
}

func (f *fakeQuestionRepo) FindActiveByCategory(categoryID uint) ([]model.SurveyQuestion, error) {
	if f.findActiveByCategory == nil {
		return nil, nil
	}
	return f.findActiveByCategory(categoryID)
}

func (f *fakeQuestionRepo) CountActiveByCategory(categoryID uint) (int64, error) {
	questions, err := f.FindActiveByCategory(categoryID)
	return int64(len(questions)), err
}

type fakeResponseRepo struct {
	upsert              func(response *model.SurveyResponse) (bool, error)
	findBySession       func(sessionID uint) ([]model.SurveyResponse, error)
	answeredQuestionIDs func(sessionID uint) ([]uint, error)
}

func (f *fakeResponseRepo) Upsert(response *model.SurveyResponse) (bool, error) {
	if f.upsert == nil {
		return true, nil
	}
	return f.upsert(response)
}

func (f *fakeResponseRepo) FindBySession(sessionID uint) ([]model.SurveyResponse, error) {
	if f.findBySession == nil {
		return nil, nil
	}
	return f.findBySession(sessionID)
}

func (f *fakeResponseRepo) CountBySession(sessionID uint) (int64, error) {
	responses, err := f.FindBySession(sessionID)
	return int64(len(responses)), err
}

func (f *fakeResponseRepo) AnsweredQuestionIDs(sessionID uint) ([]uint, error) {
	if f.answeredQuestionIDs == nil {
		return nil, nil
	}
	return f.answeredQuestionIDs(sessionID)
}

type fakeSessionRepo struct {
	created               []*model.Session
	updated               []*model.Session
	findByKey             func(sessionKey string) (*model.Session, error)
	findByKeyAndCategory  func(sessionKey string, categoryID uint) (*model.Session, error)
	findActiveForUser     func(userID, categoryID uint) (*model.Session, error)
	findActiveForKey      func(sessionKey string, categoryID uint) (*model.Session, error)
	expireAnonymousBefore func(cutoff time.Time) (int64, error)
	updateProgress        func(sessionID uint, count int, pct float64) error
	createWithResponses   func(session *model.Session, responses []model.SurveyResponse) (int, int, error)
	copiedResponses       []model.SurveyResponse
}

func (f *fakeSessionRepo) Create(session *model.Session) error {
	session.ID = uint(len(f.created) + 1)
	f.created = append(f.created, session)
	return nil
}

func (f *fakeSessionRepo) CreateWithResponses(session *model.Session, responses []model.SurveyResponse) (int, int, error) {
	if f.createWithResponses != nil {
		return f.createWithResponses(session, responses)
	}
	if err := f.Create(session); err != nil {
		return 0, 0, err
	}
	copied, skipped := 0, 0
	seen := make(map[uint]bool)
	for _, resp := range responses {
		if seen[resp.QuestionID] {
			skipped++
			continue
		}
		seen[resp.QuestionID] = true
		resp.SessionID = session.ID
		f.copiedResponses = append(f.copiedResponses, resp)
		copied++
	}
	return copied, skipped, nil
}

func (f *fakeSessionRepo) Update(session *model.Session) error {
	f.updated = append(f.updated, session)
	return nil
}

func (f *fakeSessionRepo) FindByKey(sessionKey string) (*model.Session, error) {
	if f.findByKey == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.findByKey(sessionKey)
}

func (f *fakeSessionRepo) FindByKeyAndCategory(sessionKey string, categoryID uint) (*model.Session, error) {
	if f.findByKeyAndCategory == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.findByKeyAndCategory(sessionKey, categoryID)
}

func (f *fakeSessionRepo) FindActiveForUser(userID uint, categoryID uint) (*model.Session, error) {
	if f.findActiveForUser == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.findActiveForUser(userID, categoryID)
}

func (f *fakeSessionRepo) FindActiveForKey(sessionKey string, categoryID uint) (*model.Session, error) {
	if f.findActiveForKey == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.findActiveForKey(sessionKey, categoryID)
}

func (f *fakeSessionRepo) ExpireAnonymousBefore(cutoff time.Time) (int64, error) {
	if f.expireAnonymousBefore == nil {
		return 0, nil
	}
	return f.expireAnonymousBefore(cutoff)
}

func (f *fakeSessionRepo) UpdateProgress(sessionID uint, responsesCount int, completionPercentage float64) error {
	if f.updateProgress == nil {
		return nil
	}
	return f.updateProgress(sessionID, responsesCount, completionPercentage)
}

type fakeDependencyRepo struct {
	findActiveByParent func(parentQuestionID uint) ([]model.QuestionDependency, error)
}

func (f *fakeDependencyRepo) FindActiveByParent(parentQuestionID uint) ([]model.QuestionDependency, error) {
	if f.findActiveByParent == nil {
		return nil, nil
	}
	return f.findActiveByParent(parentQuestionID)
}

type fakeProgress struct {
	progress *SessionProgress
	err      error
}

func (f *fakeProgress) Completion(total, answered int) float64 {
	if total <= 0 {
		return 100.0
	}
	return float64(answered) / float64(total) * 100
}

func (f *fakeProgress) Progress(_ *model.Session) (*SessionProgress, error) {
	return f.progress, f.err
}

func (f *fakeProgress) Sync(session *model.Session) (*SessionProgress, error) {
	if f.err == nil && f.progress != nil {
		session.SurveyResponsesCount = f.progress.AnsweredQuestions
		session.SurveyCompletionPercentage = f.progress.CompletionPercentage
		session.SurveyCompleted = f.progress.IsComplete
	}
	return f.progress, f.err
}
