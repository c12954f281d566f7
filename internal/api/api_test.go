package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sphere-social/sphere-matching/internal/matching"
	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/notify"
	"github.com/sphere-social/sphere-matching/internal/searchindex"
	"github.com/sphere-social/sphere-matching/internal/store"
	"github.com/sphere-social/sphere-matching/internal/store/sqlite"
	"github.com/sphere-social/sphere-matching/internal/workqueue"
)

type fakeEmbedder struct{ fail bool }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedder down")
	}
	return []float32{float32(len(text)), 0.5, 0.25}, nil
}

type fakeIndex struct{ upserts int }

func (f *fakeIndex) SimilarProfiles(context.Context, searchindex.Channel, []float32, model.Scope, int) ([]searchindex.VectorHit, error) {
	return nil, nil
}
func (f *fakeIndex) UpsertProfile(context.Context, *model.Profile) error {
	f.upserts++
	return nil
}
func (f *fakeIndex) DeleteProfile(context.Context, string) error { return nil }

type fakeRunner struct {
	result *matching.RunResult
	err    error
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, userID string, scope model.Scope) (*matching.RunResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &matching.RunResult{UserID: userID, Scope: scope}, nil
}

type testEnv struct {
	store  store.Store
	index  *fakeIndex
	runner *fakeRunner
	exec   *workqueue.ShardExecutor
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := sqlite.NewWithDB(db)
	idx := &fakeIndex{}
	runner := &fakeRunner{}
	log := zerolog.Nop()
	exec := workqueue.NewShardExecutor(workqueue.Config{Shards: 1, QueueSize: 8, Logger: log})
	t.Cleanup(exec.Stop)

	tracker := notify.NewTracker(st, log)
	profiles := NewProfileHandler(st, &fakeEmbedder{}, idx, log)
	matches := NewMatchHandler(st, tracker)
	runs := NewRunHandler(runner, exec, log)

	root := mux.NewRouter()
	root.HandleFunc("/v0/profiles/{userId}", profiles.PutProfile).Methods("PUT")
	root.HandleFunc("/v0/profiles/{userId}", profiles.GetProfile).Methods("GET")
	root.HandleFunc("/v0/profiles/{userId}/embeddings", profiles.GenerateEmbeddings).Methods("POST")
	root.HandleFunc("/v0/users/{userId}/matches", matches.ListMatches).Methods("GET")
	root.HandleFunc("/v0/users/{userId}/matches/unnotified", matches.ListUnnotified).Methods("GET")
	root.HandleFunc("/v0/matches/{matchId}/status", matches.UpdateStatus).Methods("POST")
	root.HandleFunc("/v0/matches/{matchId}/notified", matches.MarkNotified).Methods("POST")
	root.HandleFunc("/v0/matches/{matchId}/feedback", matches.SetFeedback).Methods("POST")
	root.HandleFunc("/v0/matching/runs", runs.TriggerRun).Methods("POST")

	server := httptest.NewServer(root)
	t.Cleanup(server.Close)

	return &testEnv{store: st, index: idx, runner: runner, exec: exec, server: server}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func (e *testEnv) seedMatch(t *testing.T, userA, userB string, scope model.Scope, score float64) *model.Match {
	t.Helper()
	low, high := model.CanonicalPair(userA, userB)
	m, _, err := e.store.Matches().Upsert(context.Background(), &model.Match{
		UserLow:            low,
		UserHigh:           high,
		Scope:              scope,
		CompatibilityScore: score,
		MatchType:          model.MatchTypeProfessional,
		Explanation:        "shared focus on infrastructure",
		Icebreaker:         "ask about their latest project",
		Source:             model.SourceLLM,
		Status:             model.MatchStatusPending,
	})
	require.NoError(t, err)
	return m
}

func TestProfilePutAndGet(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, "PUT", "/v0/profiles/user-1", map[string]interface{}{
		"displayName": "Dana",
		"city":        "Lisbon",
		"interests":   []string{"ai", "surfing"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, "GET", "/v0/profiles/user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p model.Profile
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "Dana", p.DisplayName)
	assert.Equal(t, model.TierFree, p.Tier)
}

func TestGetProfileNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, "GET", "/v0/profiles/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerateEmbeddings(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, "PUT", "/v0/profiles/user-1", map[string]interface{}{"bio": "platform engineer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, "POST", "/v0/profiles/user-1/embeddings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.EqualValues(t, 3, out["profileDim"])
	assert.Equal(t, 1, env.index.upserts)

	p, err := env.store.Profiles().Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, p.HasVectors())
}

func TestListMatchesWithCounterpart(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"user-1", "user-2"} {
		resp, _ := env.do(t, "PUT", "/v0/profiles/"+id, map[string]interface{}{"displayName": "name-" + id})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	scope := model.EventScope("ev-1")
	env.seedMatch(t, "user-1", "user-2", scope, 0.8)

	resp, body := env.do(t, "GET", "/v0/users/user-1/matches?kind=event&key=ev-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Matches []MatchView `json:"matches"`
		Count   int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 1, out.Count)
	require.NotNil(t, out.Matches[0].Counterpart)
	assert.Equal(t, "user-2", out.Matches[0].Counterpart.UserID)
	assert.Empty(t, out.Matches[0].Counterpart.ProfileVector)
}

func TestListMatchesRejectsBadScope(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, "GET", "/v0/users/user-1/matches?kind=galaxy", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMatch(t, "user-1", "user-2", model.EventScope("ev-1"), 0.8)

	resp, body := env.do(t, "POST", "/v0/matches/"+m.MatchID+"/status", map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated model.Match
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, model.MatchStatusAccepted, updated.Status)

	// Second transition is stale and leaves the row untouched.
	resp, _ = env.do(t, "POST", "/v0/matches/"+m.MatchID+"/status", map[string]string{"status": "declined"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	got, err := env.store.Matches().Get(context.Background(), m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusAccepted, got.Status)
}

func TestUpdateStatusUnknownMatch(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, "POST", "/v0/matches/nope/status", map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotifiedAndUnnotifiedFlow(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMatch(t, "user-1", "user-2", model.EventScope("ev-1"), 0.8)

	resp, body := env.do(t, "GET", "/v0/users/user-1/matches/unnotified", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Count)

	resp, _ = env.do(t, "POST", "/v0/matches/"+m.MatchID+"/notified", map[string]string{"userId": "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// Repeat mark is a no-op.
	resp, _ = env.do(t, "POST", "/v0/matches/"+m.MatchID+"/notified", map[string]string{"userId": "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, "GET", "/v0/users/user-1/matches/unnotified", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 0, out.Count)

	// The other side still has a pending notification.
	resp, body = env.do(t, "GET", "/v0/users/user-2/matches/unnotified", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Count)
}

func TestMarkNotifiedStranger(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMatch(t, "user-1", "user-2", model.EventScope("ev-1"), 0.8)
	resp, _ := env.do(t, "POST", "/v0/matches/"+m.MatchID+"/notified", map[string]string{"userId": "user-9"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetFeedback(t *testing.T) {
	env := newTestEnv(t)
	m := env.seedMatch(t, "user-1", "user-2", model.EventScope("ev-1"), 0.8)

	resp, _ := env.do(t, "POST", "/v0/matches/"+m.MatchID+"/feedback", map[string]string{"userId": "user-2", "feedback": "good"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := env.store.Matches().Get(context.Background(), m.MatchID)
	require.NoError(t, err)
	side, ok := got.SideOf("user-2")
	require.True(t, ok)
	if side == model.SideLow {
		assert.Equal(t, model.FeedbackGood, got.FeedbackLow)
	} else {
		assert.Equal(t, model.FeedbackGood, got.FeedbackHigh)
	}

	resp, _ = env.do(t, "POST", "/v0/matches/"+m.MatchID+"/feedback", map[string]string{"userId": "user-2", "feedback": "meh"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerRunSync(t *testing.T) {
	env := newTestEnv(t)
	env.runner.result = &matching.RunResult{UserID: "user-1", Scope: model.EventScope("ev-1"), Created: 2}

	resp, body := env.do(t, "POST", "/v0/matching/runs", map[string]interface{}{
		"userId": "user-1",
		"scope":  map[string]string{"kind": "event", "key": "ev-1"},
		"wait":   true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out matching.RunResult
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 1, env.runner.calls)
}

func TestTriggerRunAsync(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, "POST", "/v0/matching/runs", map[string]interface{}{
		"userId": "user-1",
		"scope":  map[string]string{"kind": "global"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Barrier flushes the user's shard so the queued run has executed.
	require.NoError(t, env.exec.Barrier(context.Background(), "user-1"))
	assert.Equal(t, 1, env.runner.calls)
}

func TestTriggerRunAsyncSurvivesRequestCompletion(t *testing.T) {
	env := newTestEnv(t)

	// Hold the single shard so the queued run is dequeued only after the
	// handler has responded and net/http has cancelled the request context.
	gate := make(chan struct{})
	require.NoError(t, env.exec.Submit(context.Background(), "user-1", workqueue.JobFunc(func(context.Context) error {
		<-gate
		return nil
	})))

	resp, _ := env.do(t, "POST", "/v0/matching/runs", map[string]interface{}{
		"userId": "user-1",
		"scope":  map[string]string{"kind": "global"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	close(gate)
	require.NoError(t, env.exec.Barrier(context.Background(), "user-1"))
	assert.Equal(t, 1, env.runner.calls)
}

func TestTriggerRunRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, "POST", "/v0/matching/runs", map[string]interface{}{
		"scope": map[string]string{"kind": "event", "key": "ev-1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, "POST", "/v0/matching/runs", map[string]interface{}{
		"userId": "user-1",
		"scope":  map[string]string{"kind": "event"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
