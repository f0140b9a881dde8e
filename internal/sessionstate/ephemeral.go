package sessionstate

import (
	"context"
	"errors"
	"time"

	"github.com/insurelane/surveyd/internal/cache"
)

const (
	stateKeyPrefix = "survey_state:"
	stateTTL       = 24 * time.Hour
)

// ephemeralStore mirrors session state into the cache. Mirrors expire on
// their own; Clear only accelerates that.
type ephemeralStore struct {
	cache cache.Cache
}

func NewEphemeralStore(c cache.Cache) StateStore {
	return &ephemeralStore{cache: c}
}

func (s *ephemeralStore) MirrorResponse(ctx context.Context, sessionKey string, response MirroredResponse) error {
	snapshot, err := s.load(ctx, sessionKey)
	if err != nil {
		return err
	}
	response.SavedAt = time.Now()
	snapshot.Responses[response.QuestionID] = response
	snapshot.ResponsesCount = len(snapshot.Responses)
	snapshot.UpdatedAt = response.SavedAt
	return s.cache.Set(ctx, stateKeyPrefix+sessionKey, snapshot, stateTTL)
}

func (s *ephemeralStore) MirrorProgress(ctx context.Context, sessionKey string, completionPercentage float64, responsesCount int) error {
	snapshot, err := s.load(ctx, sessionKey)
	if err != nil {
		return err
	}
	snapshot.CompletionPercentage = completionPercentage
	snapshot.ResponsesCount = responsesCount
	snapshot.UpdatedAt = time.Now()
	return s.cache.Set(ctx, stateKeyPrefix+sessionKey, snapshot, stateTTL)
}

func (s *ephemeralStore) Snapshot(ctx context.Context, sessionKey string) (*Snapshot, error) {
	var snapshot Snapshot
	err := s.cache.Get(ctx, stateKeyPrefix+sessionKey, &snapshot)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *ephemeralStore) Clear(ctx context.Context, sessionKey string) error {
	return s.cache.Delete(ctx, stateKeyPrefix+sessionKey)
}

func (s *ephemeralStore) load(ctx context.Context, sessionKey string) (*Snapshot, error) {
	snapshot, err := s.Snapshot(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = &Snapshot{
			SessionKey: sessionKey,
			Responses:  map[uint]MirroredResponse{},
		}
	}
	return snapshot, nil
}
