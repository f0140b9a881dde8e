package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/insurelane/surveyd/config"
	"github.com/insurelane/surveyd/internal/apperror"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type ExtendResult struct {
	Success       bool       `json:"success"`
	OldExpiry     *time.Time `json:"old_expiry,omitempty"`
	NewExpiry     time.Time  `json:"new_expiry"`
	ExtendedHours int        `json:"extended_hours"`
	Reason        string     `json:"reason"`
}

type CleanupResult struct {
	SessionsCleaned int64     `json:"sessions_cleaned"`
	CutoffDate      time.Time `json:"cutoff_date"`
}

type ExpiryWarning struct {
	NeedsWarning     bool   `json:"needs_warning"`
	Urgency          string `json:"urgency,omitempty"`
	MinutesRemaining int    `json:"minutes_remaining,omitempty"`
	Message          string `json:"message,omitempty"`
	SuggestedAction  string `json:"suggested_action,omitempty"`
}

// SessionService owns the session lifecycle: creation, expiry, extension and
// the externally-invoked cleanup sweep. Expiry is checked lazily on access,
// not by a background timer.
type SessionService interface {
	Create(categorySlug string, userID *uint) (*model.Session, error)
	Find(sessionKey string) (*model.Session, error)
	Get(categorySlug string, sessionKey string) (*model.Session, error)
	GetOrCreate(categorySlug string, userID *uint, sessionKey string) (*model.Session, error)
	Extend(sessionKey string, hours int, reason string) (*ExtendResult, error)
	CleanupExpired(daysOld int) (*CleanupResult, error)
	CheckExpiryWarning(session *model.Session) ExpiryWarning
	MarkCompleted(session *model.Session) error
}

type sessionService struct {
	categoryRepo repository.CategoryRepository
	sessionRepo  repository.SessionRepository
	expiryDays   int
}

func NewSessionService(
	categoryRepo repository.CategoryRepository,
	sessionRepo repository.SessionRepository,
	cfg *config.Config,
) SessionService {
	days := cfg.Session.DefaultExpiryDays
	if days <= 0 {
		days = 7
	}
	return &sessionService{
		categoryRepo: categoryRepo,
		sessionRepo:  sessionRepo,
		expiryDays:   days,
	}
}

func (s *sessionService) Create(categorySlug string, userID *uint) (*model.Session, error) {
	category, err := s.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		return nil, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}

	expiresAt := time.Now().Add(time.Duration(s.expiryDays) * 24 * time.Hour)
	session := &model.Session{
		SessionKey: uuid.NewString(),
		UserID:     userID,
		CategoryID: category.ID,
		Status:     model.SessionStatusActive,
		ExpiresAt:  &expiresAt,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create survey session: %w", err)
	}
	session.Category = *category

	log.Info().Str("sessionKey", session.SessionKey).Str("category", categorySlug).Msg("Survey session created")
	return session, nil
}

// Find loads a session by key alone, regardless of category or status.
func (s *sessionService) Find(sessionKey string) (*model.Session, error) {
	session, err := s.sessionRepo.FindByKey(sessionKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewSessionError("Session not found", sessionKey)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionKey, err)
	}
	return session, nil
}

// Get loads a session by key within a category, regardless of status.
func (s *sessionService) Get(categorySlug string, sessionKey string) (*model.Session, error) {
	category, err := s.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		return nil, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}
	session, err := s.sessionRepo.FindByKeyAndCategory(sessionKey, category.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewSessionError("Session not found", sessionKey)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionKey, err)
	}
	return session, nil
}

// GetOrCreate returns the caller's ACTIVE non-expired session for the
// category. An expired session found on the way is flipped to EXPIRED and a
// fresh one is created instead of returning it.
func (s *sessionService) GetOrCreate(categorySlug string, userID *uint, sessionKey string) (*model.Session, error) {
	category, err := s.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		return nil, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}

	session, err := s.findActive(category.ID, userID, sessionKey)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up active session: %w", err)
		}
		return s.Create(categorySlug, userID)
	}

	if session.IsExpired(time.Now()) {
		session.Status = model.SessionStatusExpired
		if err := s.sessionRepo.Update(session); err != nil {
			return nil, fmt.Errorf("failed to expire stale session %s: %w", session.SessionKey, err)
		}
		log.Info().Str("sessionKey", session.SessionKey).Msg("Stale session marked expired, creating replacement")
		return s.Create(categorySlug, userID)
	}

	session.Category = *category
	return session, nil
}

func (s *sessionService) findActive(categoryID uint, userID *uint, sessionKey string) (*model.Session, error) {
	if userID != nil {
		return s.sessionRepo.FindActiveForUser(*userID, categoryID)
	}
	if sessionKey == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return s.sessionRepo.FindActiveForKey(sessionKey, categoryID)
}

// Extend sets expiry to now + hours. It always jumps forward from now: calling
// with a duration shorter than the remaining time shortens the session, which
// is the caller's responsibility.
func (s *sessionService) Extend(sessionKey string, hours int, reason string) (*ExtendResult, error) {
	session, err := s.sessionRepo.FindByKey(sessionKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewSessionError("Session not found", sessionKey)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionKey, err)
	}

	oldExpiry := session.ExpiresAt
	newExpiry := time.Now().Add(time.Duration(hours) * time.Hour)
	session.ExpiresAt = &newExpiry
	if err := s.sessionRepo.Update(session); err != nil {
		return nil, fmt.Errorf("failed to extend session %s: %w", sessionKey, err)
	}

	log.Info().
		Str("sessionKey", sessionKey).
		Time("newExpiry", newExpiry).
		Str("reason", reason).
		Msg("Session expiry extended")

	return &ExtendResult{
		Success:       true,
		OldExpiry:     oldExpiry,
		NewExpiry:     newExpiry,
		ExtendedHours: hours,
		Reason:        reason,
	}, nil
}

// CleanupExpired marks anonymous ACTIVE sessions whose expiry passed more than
// daysOld days ago as EXPIRED. Rows are retained for audit.
func (s *sessionService) CleanupExpired(daysOld int) (*CleanupResult, error) {
	cutoff := time.Now().AddDate(0, 0, -daysOld)
	affected, err := s.sessionRepo.ExpireAnonymousBefore(cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up expired sessions: %w", err)
	}

	log.Info().Int64("sessionsCleaned", affected).Time("cutoff", cutoff).Msg("Expired session cleanup completed")
	return &CleanupResult{SessionsCleaned: affected, CutoffDate: cutoff}, nil
}

// CheckExpiryWarning classifies how urgently the user should be warned about
// the session's upcoming expiry. Purely advisory; computed on demand.
func (s *sessionService) CheckExpiryWarning(session *model.Session) ExpiryWarning {
	if session.ExpiresAt == nil {
		return ExpiryWarning{NeedsWarning: false}
	}

	minutes := time.Until(*session.ExpiresAt).Minutes()
	remaining := int(minutes)
	message := fmt.Sprintf("Your session will expire in %d minutes", remaining)

	switch {
	case minutes <= 5:
		return ExpiryWarning{NeedsWarning: true, Urgency: "critical", MinutesRemaining: remaining, Message: message, SuggestedAction: "extend_session"}
	case minutes <= 15:
		return ExpiryWarning{NeedsWarning: true, Urgency: "high", MinutesRemaining: remaining, Message: message, SuggestedAction: "save_progress"}
	case minutes <= 30:
		return ExpiryWarning{NeedsWarning: true, Urgency: "medium", MinutesRemaining: remaining, Message: message, SuggestedAction: "continue_survey"}
	}
	return ExpiryWarning{NeedsWarning: false}
}

// MarkCompleted flips an active session to COMPLETED. Callers decide when to
// invoke it (typically once completion reaches 100%); the progress calculator
// never transitions status itself.
func (s *sessionService) MarkCompleted(session *model.Session) error {
	session.Status = model.SessionStatusCompleted
	if err := s.sessionRepo.Update(session); err != nil {
		return fmt.Errorf("failed to mark session %s completed: %w", session.SessionKey, err)
	}
	return nil
}
