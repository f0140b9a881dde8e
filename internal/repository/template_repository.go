package repository

import (
	"github.com/insurelane/surveyd/internal/model"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	FindActiveByCategory(categoryID uint) (*model.SurveyTemplate, error)
	FindTemplateQuestions(templateID uint) ([]model.TemplateQuestion, error)
	CountActiveQuestions(templateID uint) (int64, error)
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// FindActiveByCategory returns the active template for a category. When more
// than one is marked active, the most recently created wins.
func (r *templateRepository) FindActiveByCategory(categoryID uint) (*model.SurveyTemplate, error) {
	var template model.SurveyTemplate
	err := r.db.
		Where("category_id = ? AND is_active = ?", categoryID, true).
		Order("created_at DESC").
		First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *templateRepository) FindTemplateQuestions(templateID uint) ([]model.TemplateQuestion, error) {
	var templateQuestions []model.TemplateQuestion
	err := r.db.
		Preload("Question").
		Where("template_id = ?", templateID).
		Order("display_order ASC").
		Find(&templateQuestions).Error
	if err != nil {
		return nil, err
	}
	return templateQuestions, nil
}

func (r *templateRepository) CountActiveQuestions(templateID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.TemplateQuestion{}).
		Joins("JOIN survey_questions ON survey_questions.id = template_questions.question_id").
		Where("template_questions.template_id = ? AND survey_questions.is_active = ?", templateID, true).
		Count(&count).Error
	return count, err
}
