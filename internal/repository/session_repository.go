package repository

import (
	"time"

	"github.com/insurelane/surveyd/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository interface {
	Create(session *model.Session) error
	CreateWithResponses(session *model.Session, responses []model.SurveyResponse) (copied int, skipped int, err error)
	Update(session *model.Session) error
	FindByKey(sessionKey string) (*model.Session, error)
	FindByKeyAndCategory(sessionKey string, categoryID uint) (*model.Session, error)
	FindActiveForUser(userID uint, categoryID uint) (*model.Session, error)
	FindActiveForKey(sessionKey string, categoryID uint) (*model.Session, error)
	ExpireAnonymousBefore(cutoff time.Time) (int64, error)
	UpdateProgress(sessionID uint, responsesCount int, completionPercentage float64) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(session *model.Session) error {
	return r.db.Create(session).Error
}

// CreateWithResponses inserts the session and copies the given responses into
// it inside one transaction. Rows that collide on (session, question) are
// skipped rather than failing the whole insert.
func (r *sessionRepository) CreateWithResponses(session *model.Session, responses []model.SurveyResponse) (int, int, error) {
	copied, skipped := 0, 0
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		for _, resp := range responses {
			resp.SessionID = session.ID
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&resp)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				skipped++
				continue
			}
			copied++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return copied, skipped, nil
}

func (r *sessionRepository) Update(session *model.Session) error {
	return r.db.Save(session).Error
}

func (r *sessionRepository) FindByKey(sessionKey string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Preload("Category").Where("session_key = ?", sessionKey).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindByKeyAndCategory(sessionKey string, categoryID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.Preload("Category").
		Where("session_key = ? AND category_id = ?", sessionKey, categoryID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindActiveForUser(userID uint, categoryID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.
		Where("user_id = ? AND category_id = ? AND status = ?", userID, categoryID, model.SessionStatusActive).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindActiveForKey(sessionKey string, categoryID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.
		Where("session_key = ? AND category_id = ? AND status = ?", sessionKey, categoryID, model.SessionStatusActive).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ExpireAnonymousBefore bulk-flips anonymous ACTIVE sessions whose expiry
// passed before the cutoff to EXPIRED. Rows are never deleted; the audit trail
// is preserved.
func (r *sessionRepository) ExpireAnonymousBefore(cutoff time.Time) (int64, error) {
	result := r.db.Model(&model.Session{}).
		Where("user_id IS NULL AND status = ? AND expires_at < ?", model.SessionStatusActive, cutoff).
		Updates(map[string]any{"status": model.SessionStatusExpired, "updated_at": time.Now()})
	return result.RowsAffected, result.Error
}

// UpdateProgress writes the survey progress aggregates. The progress service is
// the only caller; nothing else mutates these fields.
func (r *sessionRepository) UpdateProgress(sessionID uint, responsesCount int, completionPercentage float64) error {
	return r.db.Model(&model.Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"survey_responses_count":       responsesCount,
			"survey_completion_percentage": completionPercentage,
			"survey_completed":             completionPercentage >= 100.0,
		}).Error
}
