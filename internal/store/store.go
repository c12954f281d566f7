package store

import (
	"context"

	"github.com/sphere-social/sphere-matching/internal/model"
)

// Store exposes persistence operations required by the matching engine.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Profiles() Profiles
	Matches() Matches
}

// Profiles reads and writes user profile snapshots. The snapshots are
// produced by the onboarding collaborator; the engine writes only vectors
// (embedding backfill) and test fixtures.
type Profiles interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Upsert(ctx context.Context, p *model.Profile) (*model.Profile, error)
	// ListByScope enumerates the candidate population for a scope,
	// excluding excludeUserID (the querying user).
	ListByScope(ctx context.Context, scope model.Scope, excludeUserID string) ([]*model.Profile, error)
	SetVectors(ctx context.Context, userID string, profile, interests, expertise []float32) error
}

// Matches persists deduplicated match records. Upsert canonicalizes the pair
// and relies on the (user_low, user_high, scope_kind, scope_key) uniqueness
// constraint; a second write for the same pair/scope refreshes score fields
// and reports created=false.
type Matches interface {
	Upsert(ctx context.Context, m *model.Match) (*model.Match, bool, error)
	Get(ctx context.Context, matchID string) (*model.Match, error)
	// TopN returns the user's matches in scope ordered by compatibility
	// descending, ties by creation time ascending.
	TopN(ctx context.Context, userID string, scope model.Scope, n int) ([]*model.Match, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Match, error)
	ListUnnotified(ctx context.Context, userID string) ([]*model.Match, error)
	// PairedUserIDs returns counterpart ids of the user's existing matches in
	// scope; retrieval uses it to pre-filter already-matched candidates.
	PairedUserIDs(ctx context.Context, userID string, scope model.Scope) ([]string, error)
	// UpdateStatus performs pending->accepted or pending->declined.
	// Any other transition returns model.ErrStaleTransition unchanged.
	UpdateStatus(ctx context.Context, matchID string, status model.MatchStatus) (*model.Match, error)
	SetNotified(ctx context.Context, matchID string, side model.Side) error
	SetFeedback(ctx context.Context, matchID string, side model.Side, fb model.Feedback) error
}
