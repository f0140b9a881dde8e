package repository

import (
	"github.com/insurelane/surveyd/internal/model"
	"gorm.io/gorm"
)

type QuestionRepository interface {
	FindActiveByID(id, categoryID uint) (*model.SurveyQuestion, error)
	FindActiveByCategory(categoryID uint) ([]model.SurveyQuestion, error)
	CountActiveByCategory(categoryID uint) (int64, error)
}

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) FindActiveByID(id, categoryID uint) (*model.SurveyQuestion, error) {
	var question model.SurveyQuestion
	err := r.db.
		Where("id = ? AND category_id = ? AND is_active = ?", id, categoryID, true).
		First(&question).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *questionRepository) FindActiveByCategory(categoryID uint) ([]model.SurveyQuestion, error) {
	var questions []model.SurveyQuestion
	err := r.db.
		Where("category_id = ? AND is_active = ?", categoryID, true).
		Order("section ASC, display_order ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepository) CountActiveByCategory(categoryID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.SurveyQuestion{}).
		Where("category_id = ? AND is_active = ?", categoryID, true).
		Count(&count).Error
	return count, err
}
