// Package sessionstate mirrors in-flight survey state into a side store so
// clients can render without a database round trip. The database rows stay
// authoritative; a mirror that is stale or missing is never an error.
package sessionstate

import (
	"context"
	"time"

	"github.com/insurelane/surveyd/internal/cache"
)

type MirroredResponse struct {
	QuestionID      uint      `json:"question_id"`
	FieldName       string    `json:"field_name"`
	Value           any       `json:"value"`
	ConfidenceLevel int       `json:"confidence_level"`
	SavedAt         time.Time `json:"saved_at"`
}

type Snapshot struct {
	SessionKey           string                    `json:"session_key"`
	Responses            map[uint]MirroredResponse `json:"responses"`
	CompletionPercentage float64                   `json:"completion_percentage"`
	ResponsesCount       int                       `json:"responses_count"`
	UpdatedAt            time.Time                 `json:"updated_at"`
}

// StateStore is the write-through mirror of a session's survey state.
// Implementations must tolerate concurrent mirrors for distinct sessions.
type StateStore interface {
	MirrorResponse(ctx context.Context, sessionKey string, response MirroredResponse) error
	MirrorProgress(ctx context.Context, sessionKey string, completionPercentage float64, responsesCount int) error
	// Snapshot returns the mirrored state, or nil when nothing is mirrored.
	Snapshot(ctx context.Context, sessionKey string) (*Snapshot, error)
	Clear(ctx context.Context, sessionKey string) error
}

// Selector picks the mirror backend per session. Anonymous sessions get the
// cache-backed ephemeral mirror; authenticated sessions already survive on
// their database rows, so they get the inert persistent backend.
type Selector struct {
	ephemeral  StateStore
	persistent StateStore
}

func NewSelector(c cache.Cache) *Selector {
	return &Selector{
		ephemeral:  NewEphemeralStore(c),
		persistent: NewPersistentStore(),
	}
}

// For returns the backend for a session owned by userID; nil means anonymous.
func (s *Selector) For(userID *uint) StateStore {
	if userID == nil {
		return s.ephemeral
	}
	return s.persistent
}

// persistentStore is the backend for flows where the database alone carries
// the state. Every operation is a no-op; Snapshot always misses, which sends
// readers to the authoritative rows.
type persistentStore struct{}

func NewPersistentStore() StateStore {
	return persistentStore{}
}

func (persistentStore) MirrorResponse(context.Context, string, MirroredResponse) error {
	return nil
}

func (persistentStore) MirrorProgress(context.Context, string, float64, int) error {
	return nil
}

func (persistentStore) Snapshot(context.Context, string) (*Snapshot, error) {
	return nil, nil
}

func (persistentStore) Clear(context.Context, string) error {
	return nil
}
