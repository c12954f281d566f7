package tiergate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/store"
)

type fakeStore struct {
	matches []*model.Match
	err     error
}

func (f *fakeStore) Profiles() store.Profiles { return nil }
func (f *fakeStore) Matches() store.Matches   { return (*fakeMatches)(f) }

type fakeMatches fakeStore

func (f *fakeMatches) Upsert(context.Context, *model.Match) (*model.Match, bool, error) {
	return nil, false, nil
}
func (f *fakeMatches) Get(context.Context, string) (*model.Match, error) {
	return nil, model.ErrNotFound
}
func (f *fakeMatches) TopN(context.Context, string, model.Scope, int) ([]*model.Match, error) {
	return nil, nil
}
func (f *fakeMatches) ListForUser(context.Context, string) ([]*model.Match, error) {
	return f.matches, f.err
}
func (f *fakeMatches) ListUnnotified(context.Context, string) ([]*model.Match, error) {
	return nil, nil
}
func (f *fakeMatches) PairedUserIDs(context.Context, string, model.Scope) ([]string, error) {
	return nil, nil
}
func (f *fakeMatches) UpdateStatus(context.Context, string, model.MatchStatus) (*model.Match, error) {
	return nil, model.ErrNotFound
}
func (f *fakeMatches) SetNotified(context.Context, string, model.Side) error { return nil }
func (f *fakeMatches) SetFeedback(context.Context, string, model.Side, model.Feedback) error {
	return nil
}

func freeUser() *model.Profile {
	return &model.Profile{UserID: "u1", Tier: model.TierFree, Communities: []string{"builders"}}
}

func TestIsCrossScope(t *testing.T) {
	u := freeUser()
	assert.False(t, IsCrossScope(u, model.EventScope("ev")))
	assert.False(t, IsCrossScope(u, model.CityScope("Lisbon")))
	assert.False(t, IsCrossScope(u, model.GlobalScope()))
	assert.False(t, IsCrossScope(u, model.CommunityScope("builders")))
	assert.True(t, IsCrossScope(u, model.CommunityScope("artists")))
	assert.True(t, IsCrossScope(u, model.CrossCommunityScope("builders")))
}

func TestEvaluateHomeScopeNeverCounts(t *testing.T) {
	g := New(&fakeStore{}, 1)
	d, err := g.Evaluate(context.Background(), freeUser(), model.CommunityScope("builders"))
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.False(t, d.RequiresUpgrade)
	assert.Equal(t, -1, d.RemainingFree)
}

func TestEvaluatePaidBypassesAllowance(t *testing.T) {
	u := freeUser()
	u.Tier = model.TierPaid
	g := New(&fakeStore{}, 1)
	d, err := g.Evaluate(context.Background(), u, model.CrossCommunityScope("builders"))
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.False(t, d.RequiresUpgrade)
}

func TestEvaluateAllowanceCountsOnlyCrossScope(t *testing.T) {
	// two home-community matches and one cross-community match: only the
	// cross one consumes the single free slot
	st := &fakeStore{matches: []*model.Match{
		{Scope: model.CommunityScope("builders")},
		{Scope: model.CommunityScope("builders")},
		{Scope: model.CrossCommunityScope("builders")},
	}}
	g := New(st, 1)
	d, err := g.Evaluate(context.Background(), freeUser(), model.CrossCommunityScope("builders"))
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.Equal(t, 0, d.RemainingFree)
	assert.True(t, d.RequiresUpgrade)
}

func TestEvaluateFreshAllowance(t *testing.T) {
	st := &fakeStore{matches: []*model.Match{
		{Scope: model.EventScope("ev")},
		{Scope: model.CityScope("Lisbon")},
	}}
	g := New(st, 1)
	d, err := g.Evaluate(context.Background(), freeUser(), model.CommunityScope("artists"))
	require.NoError(t, err)
	assert.Equal(t, 1, d.RemainingFree)
	assert.False(t, d.RequiresUpgrade)
}

func TestEvaluatePropagatesStoreError(t *testing.T) {
	g := New(&fakeStore{err: errors.New("db down")}, 1)
	_, err := g.Evaluate(context.Background(), freeUser(), model.CrossCommunityScope("builders"))
	assert.Error(t, err)
}
