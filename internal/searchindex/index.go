package searchindex

import (
	"context"

	"github.com/sphere-social/sphere-matching/internal/model"
)

// Channel identifies one embedding channel of a profile.
type Channel string

const (
	ChannelProfile   Channel = "profile"
	ChannelInterests Channel = "interests"
	ChannelExpertise Channel = "expertise"
)

// VectorHit is a single nearest-neighbor result. Certainty is normalized
// cosine similarity in [0,1].
type VectorHit struct {
	UserID    string
	Certainty float64
}

// Index provides per-channel vector search over profile embeddings and
// keeps the index in step with the profile store.
type Index interface {
	// SimilarProfiles returns up to limit neighbors for vec on channel,
	// restricted to the scope's population where the index can express the
	// restriction (event, community, city). Cross-community and global
	// scopes return unrestricted results; callers filter against the
	// loaded population.
	SimilarProfiles(ctx context.Context, channel Channel, vec []float32, scope model.Scope, limit int) ([]VectorHit, error)

	// UpsertProfile mirrors the profile's populated vector channels into the
	// index and removes channels whose vectors are absent.
	UpsertProfile(ctx context.Context, p *model.Profile) error

	// DeleteProfile removes all channels for a user.
	DeleteProfile(ctx context.Context, userID string) error
}

// HealthPinger is optionally implemented by an Index to expose specialized
// health check logic. Returns nil when healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
