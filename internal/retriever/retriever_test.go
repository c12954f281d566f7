package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/searchindex"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// fakeStore implements store.Store over in-memory fixtures.
type fakeStore struct {
	population []*model.Profile
	listErr    error
	paired     []string
	pairedErr  error
}

func (f *fakeStore) Profiles() store.Profiles { return (*fakeProfiles)(f) }
func (f *fakeStore) Matches() store.Matches   { return (*fakeMatches)(f) }

type fakeProfiles fakeStore

func (f *fakeProfiles) Get(context.Context, string) (*model.Profile, error) {
	return nil, model.ErrNotFound
}
func (f *fakeProfiles) Upsert(_ context.Context, p *model.Profile) (*model.Profile, error) {
	return p, nil
}
func (f *fakeProfiles) ListByScope(context.Context, model.Scope, string) ([]*model.Profile, error) {
	return f.population, f.listErr
}
func (f *fakeProfiles) SetVectors(context.Context, string, []float32, []float32, []float32) error {
	return nil
}

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
func (f *fakeMatches) ListForUser(context.Context, string) ([]*model.Match, error) { return nil, nil }
func (f *fakeMatches) ListUnnotified(context.Context, string) ([]*model.Match, error) {
	return nil, nil
}
func (f *fakeMatches) PairedUserIDs(context.Context, string, model.Scope) ([]string, error) {
	return f.paired, f.pairedErr
}
func (f *fakeMatches) UpdateStatus(context.Context, string, model.MatchStatus) (*model.Match, error) {
	return nil, model.ErrNotFound
}
func (f *fakeMatches) SetNotified(context.Context, string, model.Side) error { return nil }
func (f *fakeMatches) SetFeedback(context.Context, string, model.Side, model.Feedback) error {
	return nil
}

// fakeIndex returns canned hits per channel.
type fakeIndex struct {
	hits map[searchindex.Channel][]searchindex.VectorHit
	err  error
}

func (f *fakeIndex) SimilarProfiles(_ context.Context, ch searchindex.Channel, _ []float32, _ model.Scope, _ int) ([]searchindex.VectorHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[ch], nil
}
func (f *fakeIndex) UpsertProfile(context.Context, *model.Profile) error { return nil }
func (f *fakeIndex) DeleteProfile(context.Context, string) error         { return nil }

func vecUser() *model.Profile {
	return &model.Profile{
		UserID:          "seeker",
		ProfileVector:   []float32{0.1},
		InterestsVector: []float32{0.2},
		ExpertiseVector: []float32{0.3},
	}
}

func profiles(ids ...string) []*model.Profile {
	out := make([]*model.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Profile{UserID: id})
	}
	return out
}

func newRetriever(st store.Store, idx searchindex.Index) *Retriever {
	return New(st, idx, 0.45, DefaultWeights(), time.Second, zerolog.Nop())
}

func TestRetrieveBlendsChannels(t *testing.T) {
	st := &fakeStore{population: profiles("cand")}
	idx := &fakeIndex{hits: map[searchindex.Channel][]searchindex.VectorHit{
		searchindex.ChannelProfile:   {{UserID: "cand", Certainty: 0.8}},
		searchindex.ChannelInterests: {{UserID: "cand", Certainty: 0.6}},
		searchindex.ChannelExpertise: {{UserID: "cand", Certainty: 0.4}},
	}}

	out, err := newRetriever(st, idx).Retrieve(context.Background(), vecUser(), model.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.40*0.8+0.35*0.6+0.25*0.4, out[0].Similarity, 1e-9)
	assert.Equal(t, 0.8, out[0].Channels.Profile)
}

// Configured weights must actually drive the blend, not just the defaults.
func TestRetrieveUsesConfiguredWeights(t *testing.T) {
	st := &fakeStore{population: profiles("cand")}
	idx := &fakeIndex{hits: map[searchindex.Channel][]searchindex.VectorHit{
		searchindex.ChannelProfile:   {{UserID: "cand", Certainty: 0.8}},
		searchindex.ChannelInterests: {{UserID: "cand", Certainty: 0.6}},
		searchindex.ChannelExpertise: {{UserID: "cand", Certainty: 0.4}},
	}}

	weights := Weights{Profile: 0.10, Interests: 0.10, Expertise: 0.80}
	r := New(st, idx, 0.45, weights, time.Second, zerolog.Nop())

	out, err := r.Retrieve(context.Background(), vecUser(), model.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.10*0.8+0.10*0.6+0.80*0.4, out[0].Similarity, 1e-9)
}

func TestRetrieveNeutralForMissingChannel(t *testing.T) {
	user := vecUser()
	user.ExpertiseVector = nil
	st := &fakeStore{population: profiles("cand")}
	idx := &fakeIndex{hits: map[searchindex.Channel][]searchindex.VectorHit{
		searchindex.ChannelProfile:   {{UserID: "cand", Certainty: 0.7}},
		searchindex.ChannelInterests: {{UserID: "cand", Certainty: 0.7}},
	}}

	out, err := newRetriever(st, idx).Retrieve(context.Background(), user, model.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.40*0.7+0.35*0.7+0.25*0.5, out[0].Similarity, 1e-9)
	assert.Equal(t, 0.5, out[0].Channels.Expertise)
}

func TestRetrieveInterestsAloneQualifies(t *testing.T) {
	st := &fakeStore{population: profiles("strongInterests", "weak")}
	idx := &fakeIndex{hits: map[searchindex.Channel][]searchindex.VectorHit{
		searchindex.ChannelProfile:   {{UserID: "strongInterests", Certainty: 0.1}, {UserID: "weak", Certainty: 0.1}},
		searchindex.ChannelInterests: {{UserID: "strongInterests", Certainty: 0.9}, {UserID: "weak", Certainty: 0.1}},
		searchindex.ChannelExpertise: {{UserID: "strongInterests", Certainty: 0.1}, {UserID: "weak", Certainty: 0.1}},
	}}

	out, err := newRetriever(st, idx).Retrieve(context.Background(), vecUser(), model.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "strongInterests", out[0].CandidateID)
}

func TestRetrieveExcludesSelfAndPaired(t *testing.T) {
	st := &fakeStore{
		population: profiles("cand", "alreadyMatched"),
		paired:     []string{"alreadyMatched"},
	}
	idx := &fakeIndex{hits: map[searchindex.Channel][]searchindex.VectorHit{
		searchindex.ChannelProfile:   {{UserID: "cand", Certainty: 0.9}, {UserID: "alreadyMatched", Certainty: 0.9}, {UserID: "seeker", Certainty: 1.0}},
		searchindex.ChannelInterests: {{UserID: "cand", Certainty: 0.9}, {UserID: "alreadyMatched", Certainty: 0.9}},
		searchindex.ChannelExpertise: {{UserID: "cand", Certainty: 0.9}},
	}}

	out, err := newRetriever(st, idx).Retrieve(context.Background(), vecUser(), model.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cand", out[0].CandidateID)
}

func TestRetrieveDeterministicOrderAndLimit(t *testing.T) {
	st := &fakeStore{population: profiles("a", "b", "c")}
	idx := &fakeIndex{hits: map[searchindex.Channel][]searchindex.VectorHit{
		searchindex.ChannelProfile:   {{UserID: "a", Certainty: 0.9}, {UserID: "b", Certainty: 0.9}, {UserID: "c", Certainty: 0.95}},
		searchindex.ChannelInterests: {{UserID: "a", Certainty: 0.9}, {UserID: "b", Certainty: 0.9}, {UserID: "c", Certainty: 0.95}},
		searchindex.ChannelExpertise: {{UserID: "a", Certainty: 0.9}, {UserID: "b", Certainty: 0.9}, {UserID: "c", Certainty: 0.95}},
	}}

	out, err := newRetriever(st, idx).Retrieve(context.Background(), vecUser(), model.GlobalScope(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].CandidateID)
	// a and b tie; lower id wins
	assert.Equal(t, "a", out[1].CandidateID)
}

func TestRetrieveHeuristicWhenNoVectors(t *testing.T) {
	seeker := &model.Profile{
		UserID:     "seeker",
		Interests:  []string{"chess"},
		LookingFor: "someone who knows distributed systems",
	}
	cand := &model.Profile{
		UserID:      "cand",
		Interests:   []string{"chess"},
		CanHelpWith: "distributed systems consulting",
	}
	st := &fakeStore{population: []*model.Profile{cand, {UserID: "stranger"}}}

	out, err := newRetriever(st, &fakeIndex{}).Retrieve(context.Background(), seeker, model.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cand", out[0].CandidateID)
	assert.Greater(t, out[0].Similarity, 0.0)
}

func TestRetrieveHeuristicWhenIndexFails(t *testing.T) {
	seeker := vecUser()
	seeker.Interests = []string{"chess"}
	st := &fakeStore{population: []*model.Profile{{UserID: "cand", Interests: []string{"chess"}}}}
	idx := &fakeIndex{err: errors.New("index down")}

	out, err := newRetriever(st, idx).Retrieve(context.Background(), seeker, model.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cand", out[0].CandidateID)
}

func TestRetrievePopulationFailureIsFatal(t *testing.T) {
	st := &fakeStore{listErr: errors.New("db down")}

	_, err := newRetriever(st, &fakeIndex{}).Retrieve(context.Background(), vecUser(), model.GlobalScope(), 10)
	assert.ErrorIs(t, err, model.ErrScopePopulation)
}

func TestRetrieveCrossCommunityDropsSharedMembers(t *testing.T) {
	seeker := &model.Profile{
		UserID:      "seeker",
		Interests:   []string{"chess"},
		Communities: []string{"builders"},
	}
	st := &fakeStore{population: []*model.Profile{
		{UserID: "insider", Interests: []string{"chess"}, Communities: []string{"builders", "artists"}},
		{UserID: "outsider", Interests: []string{"chess"}, Communities: []string{"artists"}},
	}}

	out, err := newRetriever(st, &fakeIndex{}).Retrieve(context.Background(), seeker, model.CrossCommunityScope("builders"), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "outsider", out[0].CandidateID)
}
