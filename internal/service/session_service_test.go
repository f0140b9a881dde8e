package service

import (
	"testing"
	"time"

	"github.com/insurelane/surveyd/config"
	"github.com/insurelane/surveyd/internal/apperror"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{Session: config.Session{DefaultExpiryDays: 7, RecoveryCacheHours: 24}}
}

func healthCategoryRepo() *fakeCategoryRepo {
	return &fakeCategoryRepo{
		findBySlug: func(slug string) (*model.Category, error) {
			return &model.Category{ID: 1, Name: "Health Insurance", Slug: slug}, nil
		},
	}
}

func TestCreateSession(t *testing.T) {
	sessionRepo := &fakeSessionRepo{}
	svc := NewSessionService(healthCategoryRepo(), sessionRepo, testConfig())

	session, err := svc.Create("health", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, session.SessionKey)
	assert.Equal(t, model.SessionStatusActive, session.Status)
	require.NotNil(t, session.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *session.ExpiresAt, time.Minute)
	assert.Len(t, sessionRepo.created, 1)
}

func TestGetOrCreateReplacesExpiredSession(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	stale := &model.Session{
		ID:         4,
		SessionKey: "stale-key",
		CategoryID: 1,
		Status:     model.SessionStatusActive,
		ExpiresAt:  &expired,
	}
	sessionRepo := &fakeSessionRepo{
		findActiveForKey: func(sessionKey string, categoryID uint) (*model.Session, error) {
			return stale, nil
		},
	}
	svc := NewSessionService(healthCategoryRepo(), sessionRepo, testConfig())

	session, err := svc.GetOrCreate("health", nil, "stale-key")
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusExpired, stale.Status)
	require.Len(t, sessionRepo.updated, 1)
	assert.NotEqual(t, "stale-key", session.SessionKey)
	assert.Equal(t, model.SessionStatusActive, session.Status)
}

func TestGetOrCreateReturnsLiveSession(t *testing.T) {
	future := time.Now().Add(time.Hour)
	live := &model.Session{
		ID:         4,
		SessionKey: "live-key",
		CategoryID: 1,
		Status:     model.SessionStatusActive,
		ExpiresAt:  &future,
	}
	userID := uint(9)
	sessionRepo := &fakeSessionRepo{
		findActiveForUser: func(uid, categoryID uint) (*model.Session, error) {
			assert.Equal(t, userID, uid)
			return live, nil
		},
	}
	svc := NewSessionService(healthCategoryRepo(), sessionRepo, testConfig())

	session, err := svc.GetOrCreate("health", &userID, "")
	require.NoError(t, err)
	assert.Equal(t, "live-key", session.SessionKey)
	assert.Empty(t, sessionRepo.created)
}

func TestExtendAlwaysCountsFromNow(t *testing.T) {
	// Even a session with plenty of time left jumps to now plus the requested
	// duration. A short extension can therefore shorten the session.
	farOut := time.Now().Add(72 * time.Hour)
	session := &model.Session{ID: 4, SessionKey: "k", ExpiresAt: &farOut}
	sessionRepo := &fakeSessionRepo{
		findByKey: func(string) (*model.Session, error) { return session, nil },
	}
	svc := NewSessionService(healthCategoryRepo(), sessionRepo, testConfig())

	result, err := svc.Extend("k", 24, "user_request")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 24, result.ExtendedHours)
	assert.Equal(t, "user_request", result.Reason)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.NewExpiry, time.Minute)
	require.NotNil(t, result.OldExpiry)
	assert.True(t, result.NewExpiry.Before(*result.OldExpiry))
}

func TestExtendUnknownSession(t *testing.T) {
	svc := NewSessionService(healthCategoryRepo(), &fakeSessionRepo{}, testConfig())

	_, err := svc.Extend("missing", 24, "")
	require.Error(t, err)
	var serr *apperror.SessionError
	assert.ErrorAs(t, err, &serr)
}

func TestCheckExpiryWarningTiers(t *testing.T) {
	svc := NewSessionService(healthCategoryRepo(), &fakeSessionRepo{}, testConfig())

	at := func(d time.Duration) *model.Session {
		expiry := time.Now().Add(d)
		return &model.Session{ExpiresAt: &expiry}
	}

	warning := svc.CheckExpiryWarning(at(3 * time.Minute))
	assert.True(t, warning.NeedsWarning)
	assert.Equal(t, "critical", warning.Urgency)
	assert.Equal(t, "extend_session", warning.SuggestedAction)

	warning = svc.CheckExpiryWarning(at(10 * time.Minute))
	assert.Equal(t, "high", warning.Urgency)
	assert.Equal(t, "save_progress", warning.SuggestedAction)

	warning = svc.CheckExpiryWarning(at(25 * time.Minute))
	assert.Equal(t, "medium", warning.Urgency)
	assert.Equal(t, "continue_survey", warning.SuggestedAction)

	warning = svc.CheckExpiryWarning(at(2 * time.Hour))
	assert.False(t, warning.NeedsWarning)

	warning = svc.CheckExpiryWarning(&model.Session{})
	assert.False(t, warning.NeedsWarning)
}

func TestCleanupExpired(t *testing.T) {
	var gotCutoff time.Time
	sessionRepo := &fakeSessionRepo{
		expireAnonymousBefore: func(cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 12, nil
		},
	}
	svc := NewSessionService(healthCategoryRepo(), sessionRepo, testConfig())

	result, err := svc.CleanupExpired(7)
	require.NoError(t, err)
	assert.Equal(t, int64(12), result.SessionsCleaned)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), gotCutoff, time.Minute)
}
