package notify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/store"
	"github.com/sphere-social/sphere-matching/internal/store/sqlite"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewWithDB(db)
}

func seedMatch(t *testing.T, st store.Store) *model.Match {
	t.Helper()
	m, created, err := st.Matches().Upsert(context.Background(), &model.Match{
		UserLow: "alice", UserHigh: "bob", Scope: model.EventScope("ev"),
		CompatibilityScore: 0.8, MatchType: model.MatchTypeFriendship, Source: model.SourceLLM,
	})
	require.NoError(t, err)
	require.True(t, created)
	return m
}

func TestTrackerMarkAndShouldNotify(t *testing.T) {
	st := newStore(t)
	m := seedMatch(t, st)
	tr := NewTracker(st, zerolog.Nop())
	ctx := context.Background()

	should, err := tr.ShouldNotify(ctx, m.MatchID, "alice")
	require.NoError(t, err)
	assert.True(t, should)

	require.NoError(t, tr.MarkNotified(ctx, m.MatchID, "alice"))

	should, err = tr.ShouldNotify(ctx, m.MatchID, "alice")
	require.NoError(t, err)
	assert.False(t, should)

	// the other side is untouched
	should, err = tr.ShouldNotify(ctx, m.MatchID, "bob")
	require.NoError(t, err)
	assert.True(t, should)
}

func TestTrackerMarkNotifiedIdempotent(t *testing.T) {
	st := newStore(t)
	m := seedMatch(t, st)
	tr := NewTracker(st, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, tr.MarkNotified(ctx, m.MatchID, "bob"))
	require.NoError(t, tr.MarkNotified(ctx, m.MatchID, "bob"))

	got, err := st.Matches().Get(ctx, m.MatchID)
	require.NoError(t, err)
	side, _ := got.SideOf("bob")
	assert.True(t, got.Notified(side))
}

func TestTrackerRejectsStranger(t *testing.T) {
	st := newStore(t)
	m := seedMatch(t, st)
	tr := NewTracker(st, zerolog.Nop())

	err := tr.MarkNotified(context.Background(), m.MatchID, "mallory")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestTrackerPending(t *testing.T) {
	st := newStore(t)
	m := seedMatch(t, st)
	tr := NewTracker(st, zerolog.Nop())
	ctx := context.Background()

	pending, err := tr.Pending(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m.MatchID, pending[0].MatchID)

	require.NoError(t, tr.MarkNotified(ctx, m.MatchID, "alice"))
	pending, err = tr.Pending(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
