package repository

import (
	"errors"

	"github.com/insurelane/surveyd/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponseRepository interface {
	// Upsert saves a response for its (session, question) pair with
	// last-write-wins semantics. The returned flag reports whether a new row
	// was created.
	Upsert(response *model.SurveyResponse) (bool, error)
	FindBySession(sessionID uint) ([]model.SurveyResponse, error)
	CountBySession(sessionID uint) (int64, error)
	AnsweredQuestionIDs(sessionID uint) ([]uint, error)
}

type responseRepository struct {
	db *gorm.DB
}

func NewResponseRepository(db *gorm.DB) ResponseRepository {
	return &responseRepository{db: db}
}

func (r *responseRepository) Upsert(response *model.SurveyResponse) (bool, error) {
	var existing model.SurveyResponse
	err := r.db.
		Where("session_id = ? AND question_id = ?", response.SessionID, response.QuestionID).
		First(&existing).Error

	if err == nil {
		existing.ResponseValue = response.ResponseValue
		existing.ConfidenceLevel = response.ConfidenceLevel
		if saveErr := r.db.Save(&existing).Error; saveErr != nil {
			return false, saveErr
		}
		*response = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	// Concurrent saves for the same pair are serialized by the unique index;
	// the conflict clause keeps the last write.
	createErr := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"response_value", "confidence_level", "updated_at"}),
	}).Create(response).Error
	if createErr != nil {
		return false, createErr
	}
	return true, nil
}

func (r *responseRepository) FindBySession(sessionID uint) ([]model.SurveyResponse, error) {
	var responses []model.SurveyResponse
	err := r.db.
		Preload("Question").
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&responses).Error
	if err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *responseRepository) CountBySession(sessionID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.SurveyResponse{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *responseRepository) AnsweredQuestionIDs(sessionID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.SurveyResponse{}).
		Where("session_id = ?", sessionID).
		Pluck("question_id", &ids).Error
	return ids, err
}
