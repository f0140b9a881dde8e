package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/insurelane/surveyd/config"
	"github.com/insurelane/surveyd/internal/apperror"
	"github.com/insurelane/surveyd/internal/cache"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	recoveryCachePrefix = "survey_recovery:"
	backupCachePrefix   = "session_backup:"
	backupTTL           = 7 * 24 * time.Hour
)

type SessionValidity struct {
	Valid                bool       `json:"valid"`
	Reason               string     `json:"reason,omitempty"`
	Status               string     `json:"status,omitempty"`
	ExpiredAt            *time.Time `json:"expired_at,omitempty"`
	ExpiredMinutesAgo    int        `json:"expired_minutes_ago,omitempty"`
	CompletionPercentage float64    `json:"completion_percentage"`
	ResponsesCount       int        `json:"responses_count"`
	CanRecover           bool       `json:"can_recover"`
	RecommendedAction    string     `json:"recommended_action,omitempty"`
	RecoveryOptions      []string   `json:"recovery_options,omitempty"`
}

type RecoverySummary struct {
	Success              bool      `json:"success"`
	OldSessionKey        string    `json:"old_session_key"`
	NewSessionKey        string    `json:"new_session_key"`
	ResponsesRecovered   int       `json:"responses_recovered"`
	ResponsesSkipped     int       `json:"responses_skipped"`
	CompletionPercentage float64   `json:"completion_percentage"`
	RecoveredAt          time.Time `json:"recovered_at"`
}

type backupResponse struct {
	QuestionID      uint           `json:"question_id"`
	ResponseValue   datatypes.JSON `json:"response_value"`
	ConfidenceLevel int            `json:"confidence_level"`
}

type SessionBackup struct {
	BackupKey    string           `json:"backup_key"`
	SessionKey   string           `json:"session_key"`
	CategoryID   uint             `json:"category_id"`
	UserID       *uint            `json:"user_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Responses    []backupResponse `json:"responses"`
	ResponsesLen int              `json:"responses_len"`
}

type RestoreResult struct {
	Success           bool   `json:"success"`
	NewSessionKey     string `json:"new_session_key"`
	ResponsesRestored int    `json:"responses_restored"`
}

// RecoveryService deals with sessions the user lost track of: it judges
// whether an old session is worth salvaging, copies its responses into a
// fresh session, and keeps short-lived backups in the cache.
type RecoveryService interface {
	CheckSessionValidity(categorySlug, sessionKey string) (*SessionValidity, error)
	RecoverSessionData(ctx context.Context, categorySlug, oldSessionKey string, userID *uint) (*RecoverySummary, error)
	GetRecoveryInfo(ctx context.Context, sessionKey string) (*RecoverySummary, error)
	ClearRecoveryInfo(ctx context.Context, sessionKey string) error
	CreateSessionBackup(ctx context.Context, sessionKey string) (*SessionBackup, error)
	RestoreFromBackup(ctx context.Context, backupKey string) (*RestoreResult, error)
}

type recoveryService struct {
	categoryRepo repository.CategoryRepository
	sessionRepo  repository.SessionRepository
	responseRepo repository.ResponseRepository
	progress     ProgressService
	cache        cache.Cache
	recoveryTTL  time.Duration
}

func NewRecoveryService(
	categoryRepo repository.CategoryRepository,
	sessionRepo repository.SessionRepository,
	responseRepo repository.ResponseRepository,
	progress ProgressService,
	c cache.Cache,
	cfg *config.Config,
) RecoveryService {
	hours := cfg.Session.RecoveryCacheHours
	if hours <= 0 {
		hours = 24
	}
	return &recoveryService{
		categoryRepo: categoryRepo,
		sessionRepo:  sessionRepo,
		responseRepo: responseRepo,
		progress:     progress,
		cache:        c,
		recoveryTTL:  time.Duration(hours) * time.Hour,
	}
}

// CheckSessionValidity reports whether the session is usable as-is and, if
// not, whether its data is worth recovering into a new session. The lookup is
// scoped to the category so a key cannot be probed across insurance lines.
func (s *recoveryService) CheckSessionValidity(categorySlug, sessionKey string) (*SessionValidity, error) {
	notFound := &SessionValidity{
		Valid:           false,
		Reason:          "session_not_found",
		CanRecover:      false,
		RecoveryOptions: []string{"create_new"},
	}

	category, err := s.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound, nil
		}
		return nil, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}

	session, err := s.sessionRepo.FindByKeyAndCategory(sessionKey, category.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound, nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionKey, err)
	}

	now := time.Now()
	if session.Status == model.SessionStatusActive && !session.IsExpired(now) {
		return &SessionValidity{
			Valid:                true,
			Status:               string(session.Status),
			CompletionPercentage: session.SurveyCompletionPercentage,
			ResponsesCount:       session.SurveyResponsesCount,
		}, nil
	}

	validity := &SessionValidity{
		Valid:  false,
		Reason: "session_expired",
		Status: string(session.Status),
	}
	if session.Status != model.SessionStatusExpired && !session.IsExpired(now) {
		validity.Reason = "session_inactive"
	}

	var expiredFor time.Duration
	if session.ExpiresAt != nil {
		validity.ExpiredAt = session.ExpiresAt
		expiredFor = now.Sub(*session.ExpiresAt)
		if expiredFor > 0 {
			validity.ExpiredMinutesAgo = int(expiredFor.Minutes())
		}
	}

	// The stored aggregates can be stale for an expired session, so recount
	// against the current active question set before recommending anything.
	progress, err := s.progress.Progress(session)
	if err != nil {
		log.Warn().Err(err).Str("sessionKey", sessionKey).Msg("Failed to assess recovery potential")
		validity.CanRecover = false
		validity.RecommendedAction = "create_new"
		validity.RecoveryOptions = []string{"create_new"}
		return validity, nil
	}

	validity.CompletionPercentage = progress.CompletionPercentage
	validity.ResponsesCount = progress.AnsweredQuestions
	validity.CanRecover = progress.AnsweredQuestions > 0
	validity.RecommendedAction = recommendAction(progress.CompletionPercentage, progress.AnsweredQuestions, expiredFor)
	validity.RecoveryOptions = recoveryOptions(progress.CompletionPercentage)
	return validity, nil
}

// recommendAction picks the single best next step for an unusable session.
// High completion always wins; partial sessions are only worth resuming when
// the expiry is recent.
func recommendAction(completion float64, responsesCount int, expiredFor time.Duration) string {
	switch {
	case completion > 75:
		return "recover_and_continue"
	case completion > 25 && expiredFor < time.Hour:
		return "recover_responses"
	case responsesCount > 5:
		return "recover_responses"
	default:
		return "create_new"
	}
}

// recoveryOptions lists the choices to present, most attractive first and
// create_new always last.
func recoveryOptions(completion float64) []string {
	options := []string{"create_new"}
	if completion > 10 {
		options = append([]string{"recover_responses"}, options...)
	}
	if completion > 50 {
		options = append([]string{"recover_and_continue"}, options...)
	}
	return options
}

// RecoverSessionData copies the old session's responses into a brand new
// session with a short expiry. The new session belongs to the given user, or
// stays anonymous when userID is nil; ownership is never inherited from the
// expired session. The copy runs in one transaction; rows that collide on
// (session, question) are skipped rather than failing the whole recovery.
func (s *recoveryService) RecoverSessionData(ctx context.Context, categorySlug, oldSessionKey string, userID *uint) (*RecoverySummary, error) {
	category, err := s.categoryRepo.FindBySlug(categorySlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewSessionError("Session not found", oldSessionKey)
		}
		return nil, fmt.Errorf("policy category %q not found: %w", categorySlug, err)
	}

	oldSession, err := s.sessionRepo.FindByKeyAndCategory(oldSessionKey, category.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewSessionError("Session not found", oldSessionKey)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", oldSessionKey, err)
	}

	responses, err := s.responseRepo.FindBySession(oldSession.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses for %s: %w", oldSessionKey, err)
	}
	if len(responses) == 0 {
		return nil, apperror.NewSessionError("Session has no responses to recover", oldSessionKey)
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	newSession := &model.Session{
		SessionKey: uuid.NewString(),
		UserID:     userID,
		CategoryID: oldSession.CategoryID,
		Status:     model.SessionStatusActive,
		ExpiresAt:  &expiresAt,
	}

	copies := make([]model.SurveyResponse, 0, len(responses))
	for _, resp := range responses {
		copies = append(copies, model.SurveyResponse{
			QuestionID:      resp.QuestionID,
			ResponseValue:   resp.ResponseValue,
			ConfidenceLevel: resp.ConfidenceLevel,
		})
	}

	recovered, skipped, err := s.sessionRepo.CreateWithResponses(newSession, copies)
	if err != nil {
		return nil, fmt.Errorf("failed to recover session %s: %w", oldSessionKey, err)
	}

	newSession.Category = oldSession.Category
	progress, err := s.progress.Sync(newSession)
	if err != nil {
		return nil, fmt.Errorf("failed to sync progress for recovered session: %w", err)
	}

	summary := &RecoverySummary{
		Success:              true,
		OldSessionKey:        oldSessionKey,
		NewSessionKey:        newSession.SessionKey,
		ResponsesRecovered:   recovered,
		ResponsesSkipped:     skipped,
		CompletionPercentage: progress.CompletionPercentage,
		RecoveredAt:          time.Now(),
	}

	if err := s.cache.Set(ctx, recoveryCachePrefix+newSession.SessionKey, summary, s.recoveryTTL); err != nil {
		// The recovery itself succeeded; a cache write failure only loses the
		// banner shown on the next page load.
		log.Warn().Err(err).Str("sessionKey", newSession.SessionKey).Msg("Failed to cache recovery summary")
	}

	log.Info().
		Str("oldSessionKey", oldSessionKey).
		Str("newSessionKey", newSession.SessionKey).
		Int("responsesRecovered", recovered).
		Int("responsesSkipped", skipped).
		Msg("Session data recovered")
	return summary, nil
}

// GetRecoveryInfo returns the cached recovery summary for a session, or nil
// when none exists.
func (s *recoveryService) GetRecoveryInfo(ctx context.Context, sessionKey string) (*RecoverySummary, error) {
	var summary RecoverySummary
	err := s.cache.Get(ctx, recoveryCachePrefix+sessionKey, &summary)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recovery info: %w", err)
	}
	return &summary, nil
}

func (s *recoveryService) ClearRecoveryInfo(ctx context.Context, sessionKey string) error {
	return s.cache.Delete(ctx, recoveryCachePrefix+sessionKey)
}

// CreateSessionBackup snapshots the session and its responses into the cache.
// Backups are a safety net for risky client flows, not durable storage.
func (s *recoveryService) CreateSessionBackup(ctx context.Context, sessionKey string) (*SessionBackup, error) {
	session, err := s.sessionRepo.FindByKey(sessionKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewSessionError("Session not found", sessionKey)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionKey, err)
	}

	responses, err := s.responseRepo.FindBySession(session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses for backup: %w", err)
	}

	now := time.Now()
	backup := &SessionBackup{
		BackupKey:    fmt.Sprintf("%s%s:%s", backupCachePrefix, sessionKey, now.Format("20060102_150405")),
		SessionKey:   sessionKey,
		CategoryID:   session.CategoryID,
		UserID:       session.UserID,
		CreatedAt:    now,
		Responses:    make([]backupResponse, 0, len(responses)),
		ResponsesLen: len(responses),
	}
	for _, resp := range responses {
		backup.Responses = append(backup.Responses, backupResponse{
			QuestionID:      resp.QuestionID,
			ResponseValue:   resp.ResponseValue,
			ConfidenceLevel: resp.ConfidenceLevel,
		})
	}

	if err := s.cache.Set(ctx, backup.BackupKey, backup, backupTTL); err != nil {
		return nil, fmt.Errorf("failed to store session backup: %w", err)
	}

	log.Info().Str("sessionKey", sessionKey).Str("backupKey", backup.BackupKey).Int("responses", len(responses)).Msg("Session backup created")
	return backup, nil
}

// RestoreFromBackup materializes a cached backup as a new session with a
// short expiry.
func (s *recoveryService) RestoreFromBackup(ctx context.Context, backupKey string) (*RestoreResult, error) {
	var backup SessionBackup
	err := s.cache.Get(ctx, backupKey, &backup)
	if errors.Is(err, cache.ErrMiss) {
		return nil, apperror.NewSessionError("Backup not found or expired", backupKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", backupKey, err)
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	newSession := &model.Session{
		SessionKey: uuid.NewString(),
		UserID:     backup.UserID,
		CategoryID: backup.CategoryID,
		Status:     model.SessionStatusActive,
		ExpiresAt:  &expiresAt,
	}

	rows := make([]model.SurveyResponse, 0, len(backup.Responses))
	for _, resp := range backup.Responses {
		rows = append(rows, model.SurveyResponse{
			QuestionID:      resp.QuestionID,
			ResponseValue:   resp.ResponseValue,
			ConfidenceLevel: resp.ConfidenceLevel,
		})
	}

	restored, _, err := s.sessionRepo.CreateWithResponses(newSession, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to restore backup %s: %w", backupKey, err)
	}

	if _, err := s.progress.Sync(newSession); err != nil {
		return nil, fmt.Errorf("failed to sync progress for restored session: %w", err)
	}

	log.Info().Str("backupKey", backupKey).Str("newSessionKey", newSession.SessionKey).Int("responsesRestored", restored).Msg("Session restored from backup")
	return &RestoreResult{
		Success:           true,
		NewSessionKey:     newSession.SessionKey,
		ResponsesRestored: restored,
	}, nil
}
