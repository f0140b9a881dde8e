package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/insurelane/surveyd/config"
	"github.com/insurelane/surveyd/internal/apperror"
	"github.com/insurelane/surveyd/internal/cache"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newRecoveryService(sessionRepo *fakeSessionRepo, responseRepo *fakeResponseRepo, progress *fakeProgress, c cache.Cache) RecoveryService {
	return NewRecoveryService(healthCategoryRepo(), sessionRepo, responseRepo, progress, c, testConfig())
}

// expiredSession carries deliberately inflated stored aggregates so tests can
// tell a fresh recount apart from a stale read.
func expiredSession(expiredFor time.Duration) *model.Session {
	expiry := time.Now().Add(-expiredFor)
	return &model.Session{
		ID:                         3,
		SessionKey:                 "old-key",
		CategoryID:                 1,
		Status:                     model.SessionStatusExpired,
		ExpiresAt:                  &expiry,
		SurveyResponsesCount:       9,
		SurveyCompletionPercentage: 90,
	}
}

func sessionProgress(completion float64, answered int) *fakeProgress {
	return &fakeProgress{progress: &SessionProgress{
		CompletionPercentage: completion,
		AnsweredQuestions:    answered,
		TotalQuestions:       10,
	}}
}

func TestCheckSessionValidityNotFound(t *testing.T) {
	svc := newRecoveryService(&fakeSessionRepo{}, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache())

	validity, err := svc.CheckSessionValidity("health", "missing")
	require.NoError(t, err)

	assert.False(t, validity.Valid)
	assert.Equal(t, "session_not_found", validity.Reason)
	assert.False(t, validity.CanRecover)
	assert.Equal(t, []string{"create_new"}, validity.RecoveryOptions)
}

func TestCheckSessionValidityUnknownCategory(t *testing.T) {
	categoryRepo := &fakeCategoryRepo{}
	svc := NewRecoveryService(categoryRepo, &fakeSessionRepo{}, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache(), testConfig())

	validity, err := svc.CheckSessionValidity("no-such-line", "old-key")
	require.NoError(t, err)
	assert.False(t, validity.Valid)
	assert.Equal(t, "session_not_found", validity.Reason)
}

// The lookup must be scoped to the category from the URL; the same key under
// another insurance line is someone else's session.
func TestCheckSessionValidityScopedToCategory(t *testing.T) {
	var gotKey string
	var gotCategory uint
	sessionRepo := &fakeSessionRepo{
		findByKeyAndCategory: func(sessionKey string, categoryID uint) (*model.Session, error) {
			gotKey, gotCategory = sessionKey, categoryID
			return nil, gorm.ErrRecordNotFound
		},
	}
	svc := newRecoveryService(sessionRepo, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache())

	validity, err := svc.CheckSessionValidity("health", "old-key")
	require.NoError(t, err)

	assert.Equal(t, "old-key", gotKey)
	assert.Equal(t, uint(1), gotCategory)
	assert.Equal(t, "session_not_found", validity.Reason)
}

func TestCheckSessionValidityActive(t *testing.T) {
	future := time.Now().Add(time.Hour)
	sessionRepo := &fakeSessionRepo{
		findByKeyAndCategory: func(string, uint) (*model.Session, error) {
			return &model.Session{
				Status:                     model.SessionStatusActive,
				ExpiresAt:                  &future,
				SurveyResponsesCount:       4,
				SurveyCompletionPercentage: 40,
			}, nil
		},
	}
	svc := newRecoveryService(sessionRepo, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache())

	validity, err := svc.CheckSessionValidity("health", "live")
	require.NoError(t, err)
	assert.True(t, validity.Valid)
	assert.Equal(t, 40.0, validity.CompletionPercentage)
}

func TestCheckSessionValidityRecommendations(t *testing.T) {
	cases := []struct {
		name         string
		progress     *fakeProgress
		expiredFor   time.Duration
		action       string
		firstOption  string
		canRecover   bool
		optionsCount int
	}{
		{
			name:         "high completion recommends full recovery",
			progress:     sessionProgress(80, 8),
			expiredFor:   2 * time.Hour,
			action:       "recover_and_continue",
			firstOption:  "recover_and_continue",
			canRecover:   true,
			optionsCount: 3,
		},
		{
			name:         "mid completion recently expired recommends response recovery",
			progress:     sessionProgress(60, 6),
			expiredFor:   10 * time.Minute,
			action:       "recover_responses",
			firstOption:  "recover_and_continue",
			canRecover:   true,
			optionsCount: 3,
		},
		{
			name:         "many responses despite old expiry",
			progress:     sessionProgress(30, 6),
			expiredFor:   3 * time.Hour,
			action:       "recover_responses",
			firstOption:  "recover_responses",
			canRecover:   true,
			optionsCount: 2,
		},
		{
			name:         "exactly a quarter complete is not enough to resume",
			progress:     sessionProgress(25, 3),
			expiredFor:   10 * time.Minute,
			action:       "create_new",
			firstOption:  "recover_responses",
			canRecover:   true,
			optionsCount: 2,
		},
		{
			name:         "little data recommends starting over",
			progress:     sessionProgress(5, 1),
			expiredFor:   2 * time.Hour,
			action:       "create_new",
			firstOption:  "create_new",
			canRecover:   true,
			optionsCount: 1,
		},
		{
			name:         "no responses cannot recover",
			progress:     sessionProgress(0, 0),
			expiredFor:   time.Hour,
			action:       "create_new",
			firstOption:  "create_new",
			canRecover:   false,
			optionsCount: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := expiredSession(tc.expiredFor)
			sessionRepo := &fakeSessionRepo{
				findByKeyAndCategory: func(string, uint) (*model.Session, error) { return session, nil },
			}
			svc := newRecoveryService(sessionRepo, &fakeResponseRepo{}, tc.progress, cache.NewMemoryCache())

			validity, err := svc.CheckSessionValidity("health", "old-key")
			require.NoError(t, err)

			assert.False(t, validity.Valid)
			assert.Equal(t, "session_expired", validity.Reason)
			assert.Equal(t, tc.canRecover, validity.CanRecover)
			assert.Equal(t, tc.action, validity.RecommendedAction)
			require.Len(t, validity.RecoveryOptions, tc.optionsCount)
			assert.Equal(t, tc.firstOption, validity.RecoveryOptions[0])
			// create_new is always offered last.
			assert.Equal(t, "create_new", validity.RecoveryOptions[len(validity.RecoveryOptions)-1])
			// The recount wins over whatever aggregates the expired row carries.
			assert.Equal(t, tc.progress.progress.CompletionPercentage, validity.CompletionPercentage)
			assert.Equal(t, tc.progress.progress.AnsweredQuestions, validity.ResponsesCount)
		})
	}
}

func TestCheckSessionValidityAssessmentFailure(t *testing.T) {
	sessionRepo := &fakeSessionRepo{
		findByKeyAndCategory: func(string, uint) (*model.Session, error) { return expiredSession(time.Hour), nil },
	}
	progress := &fakeProgress{err: errors.New("questions unavailable")}
	svc := newRecoveryService(sessionRepo, &fakeResponseRepo{}, progress, cache.NewMemoryCache())

	validity, err := svc.CheckSessionValidity("health", "old-key")
	require.NoError(t, err)

	assert.False(t, validity.Valid)
	assert.False(t, validity.CanRecover)
	assert.Equal(t, "create_new", validity.RecommendedAction)
	assert.Equal(t, []string{"create_new"}, validity.RecoveryOptions)
}

func recoveredResponses(questionIDs ...uint) []model.SurveyResponse {
	value := datatypes.JSON([]byte(`"monthly"`))
	rows := make([]model.SurveyResponse, 0, len(questionIDs))
	for _, id := range questionIDs {
		rows = append(rows, model.SurveyResponse{SessionID: 3, QuestionID: id, ResponseValue: value, ConfidenceLevel: 4})
	}
	return rows
}

func TestRecoverSessionData(t *testing.T) {
	userID := uint(7)
	owner := &userID
	old := expiredSession(time.Hour)
	old.UserID = owner
	sessionRepo := &fakeSessionRepo{
		findByKeyAndCategory: func(string, uint) (*model.Session, error) { return old, nil },
	}
	responseRepo := &fakeResponseRepo{
		findBySession: func(uint) ([]model.SurveyResponse, error) {
			return recoveredResponses(1, 2, 3, 4, 5, 6), nil
		},
	}
	mem := cache.NewMemoryCache()
	svc := newRecoveryService(sessionRepo, responseRepo, sessionProgress(60, 6), mem)

	summary, err := svc.RecoverSessionData(context.Background(), "health", "old-key", nil)
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, "old-key", summary.OldSessionKey)
	assert.NotEmpty(t, summary.NewSessionKey)
	assert.NotEqual(t, "old-key", summary.NewSessionKey)
	assert.Equal(t, 6, summary.ResponsesRecovered)
	assert.Equal(t, 0, summary.ResponsesSkipped)
	assert.Equal(t, 60.0, summary.CompletionPercentage)

	require.Len(t, sessionRepo.created, 1)
	created := sessionRepo.created[0]
	assert.Equal(t, model.SessionStatusActive, created.Status)
	assert.Equal(t, uint(1), created.CategoryID)
	// Ownership is not inherited from the expired session.
	assert.Nil(t, created.UserID)
	require.NotNil(t, created.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *created.ExpiresAt, time.Minute)

	require.Len(t, sessionRepo.copiedResponses, 6)
	for _, row := range sessionRepo.copiedResponses {
		assert.Equal(t, created.ID, row.SessionID)
	}

	var cached RecoverySummary
	require.NoError(t, mem.Get(context.Background(), "survey_recovery:"+summary.NewSessionKey, &cached))
	assert.Equal(t, 6, cached.ResponsesRecovered)
}

func TestRecoverSessionDataAttachesUser(t *testing.T) {
	sessionRepo := &fakeSessionRepo{
		findByKeyAndCategory: func(string, uint) (*model.Session, error) { return expiredSession(time.Hour), nil },
	}
	responseRepo := &fakeResponseRepo{
		findBySession: func(uint) ([]model.SurveyResponse, error) { return recoveredResponses(1, 2), nil },
	}
	svc := newRecoveryService(sessionRepo, responseRepo, sessionProgress(20, 2), cache.NewMemoryCache())

	userID := uint(42)
	_, err := svc.RecoverSessionData(context.Background(), "health", "old-key", &userID)
	require.NoError(t, err)

	require.Len(t, sessionRepo.created, 1)
	require.NotNil(t, sessionRepo.created[0].UserID)
	assert.Equal(t, uint(42), *sessionRepo.created[0].UserID)
}

func TestRecoverSessionDataSkipsDuplicates(t *testing.T) {
	sessionRepo := &fakeSessionRepo{
		findByKeyAndCategory: func(string, uint) (*model.Session, error) { return expiredSession(time.Hour), nil },
	}
	responseRepo := &fakeResponseRepo{
		findBySession: func(uint) ([]model.SurveyResponse, error) { return recoveredResponses(1, 2, 2), nil },
	}
	svc := newRecoveryService(sessionRepo, responseRepo, sessionProgress(20, 2), cache.NewMemoryCache())

	summary, err := svc.RecoverSessionData(context.Background(), "health", "old-key", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ResponsesRecovered)
	assert.Equal(t, 1, summary.ResponsesSkipped)
}

func TestRecoverSessionDataNothingToRecover(t *testing.T) {
	sessionRepo := &fakeSessionRepo{
		findByKeyAndCategory: func(string, uint) (*model.Session, error) { return expiredSession(time.Hour), nil },
	}
	svc := newRecoveryService(sessionRepo, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache())

	_, err := svc.RecoverSessionData(context.Background(), "health", "old-key", nil)
	var serr *apperror.SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "old-key", serr.SessionKey)
}

func TestRecoverSessionDataUnknownCategory(t *testing.T) {
	svc := NewRecoveryService(&fakeCategoryRepo{}, &fakeSessionRepo{}, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache(), testConfig())

	_, err := svc.RecoverSessionData(context.Background(), "no-such-line", "old-key", nil)
	var serr *apperror.SessionError
	require.ErrorAs(t, err, &serr)
}

func TestRecoveryInfoRoundTrip(t *testing.T) {
	mem := cache.NewMemoryCache()
	svc := newRecoveryService(&fakeSessionRepo{}, &fakeResponseRepo{}, &fakeProgress{}, mem)
	ctx := context.Background()

	info, err := svc.GetRecoveryInfo(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, info)

	summary := &RecoverySummary{Success: true, NewSessionKey: "new-key", ResponsesRecovered: 6}
	require.NoError(t, mem.Set(ctx, "survey_recovery:new-key", summary, time.Hour))

	info, err = svc.GetRecoveryInfo(ctx, "new-key")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 6, info.ResponsesRecovered)

	require.NoError(t, svc.ClearRecoveryInfo(ctx, "new-key"))
	info, err = svc.GetRecoveryInfo(ctx, "new-key")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestCreateSessionBackup(t *testing.T) {
	session := expiredSession(time.Minute)
	value := datatypes.JSON([]byte(`"monthly"`))
	sessionRepo := &fakeSessionRepo{
		findByKey: func(string) (*model.Session, error) { return session, nil },
	}
	responseRepo := &fakeResponseRepo{
		findBySession: func(uint) ([]model.SurveyResponse, error) {
			return []model.SurveyResponse{
				{QuestionID: 1, ResponseValue: value, ConfidenceLevel: 4},
				{QuestionID: 2, ResponseValue: value, ConfidenceLevel: 3},
			}, nil
		},
	}
	mem := cache.NewMemoryCache()
	svc := newRecoveryService(sessionRepo, responseRepo, &fakeProgress{}, mem)

	backup, err := svc.CreateSessionBackup(context.Background(), "old-key")
	require.NoError(t, err)

	assert.Contains(t, backup.BackupKey, "session_backup:old-key:")
	assert.Equal(t, 2, backup.ResponsesLen)

	var stored SessionBackup
	require.NoError(t, mem.Get(context.Background(), backup.BackupKey, &stored))
	assert.Equal(t, "old-key", stored.SessionKey)
	assert.Len(t, stored.Responses, 2)
}

func TestRestoreFromBackup(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	userID := uint(7)
	value := datatypes.JSON([]byte(`42`))
	backup := &SessionBackup{
		BackupKey:  "session_backup:old-key:20260101_120000",
		SessionKey: "old-key",
		CategoryID: 1,
		UserID:     &userID,
		Responses: []backupResponse{
			{QuestionID: 1, ResponseValue: value, ConfidenceLevel: 4},
			{QuestionID: 2, ResponseValue: value, ConfidenceLevel: 3},
			{QuestionID: 3, ResponseValue: value, ConfidenceLevel: 5},
		},
		ResponsesLen: 3,
	}
	require.NoError(t, mem.Set(ctx, backup.BackupKey, backup, time.Hour))

	sessionRepo := &fakeSessionRepo{}
	svc := newRecoveryService(sessionRepo, &fakeResponseRepo{}, sessionProgress(30, 3), mem)

	result, err := svc.RestoreFromBackup(ctx, backup.BackupKey)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ResponsesRestored)
	assert.NotEmpty(t, result.NewSessionKey)
	assert.NotEqual(t, "old-key", result.NewSessionKey)

	require.Len(t, sessionRepo.created, 1)
	created := sessionRepo.created[0]
	assert.Equal(t, model.SessionStatusActive, created.Status)
	assert.Equal(t, uint(1), created.CategoryID)
	require.NotNil(t, created.UserID)
	assert.Equal(t, uint(7), *created.UserID)
	require.Len(t, sessionRepo.copiedResponses, 3)
	for _, row := range sessionRepo.copiedResponses {
		assert.Equal(t, created.ID, row.SessionID)
	}
}

func TestRestoreFromBackupMissing(t *testing.T) {
	svc := newRecoveryService(&fakeSessionRepo{}, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache())

	_, err := svc.RestoreFromBackup(context.Background(), "session_backup:gone:20240101_000000")
	var serr *apperror.SessionError
	require.ErrorAs(t, err, &serr)
}

// NewRecoveryService applies the configured recovery cache TTL; zero falls
// back to a day.
func TestRecoveryServiceConfigDefaults(t *testing.T) {
	cfg := &config.Config{}
	svc := NewRecoveryService(&fakeCategoryRepo{}, &fakeSessionRepo{}, &fakeResponseRepo{}, &fakeProgress{}, cache.NewMemoryCache(), cfg)
	assert.NotNil(t, svc)
}
