package repository

import (
	"github.com/insurelane/surveyd/internal/model"
	"gorm.io/gorm"
)

type DependencyRepository interface {
	FindActiveByParent(parentQuestionID uint) ([]model.QuestionDependency, error)
}

type dependencyRepository struct {
	db *gorm.DB
}

func NewDependencyRepository(db *gorm.DB) DependencyRepository {
	return &dependencyRepository{db: db}
}

func (r *dependencyRepository) FindActiveByParent(parentQuestionID uint) ([]model.QuestionDependency, error) {
	var dependencies []model.QuestionDependency
	err := r.db.
		Preload("ChildQuestion").
		Where("parent_question_id = ? AND is_active = ?", parentQuestionID, true).
		Find(&dependencies).Error
	if err != nil {
		return nil, err
	}
	return dependencies, nil
}
