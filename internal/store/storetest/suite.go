package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	suffix := uuid.New().String()[:8]
	alice := "alice-" + suffix
	bob := "bob-" + suffix
	carol := "carol-" + suffix
	event := model.EventScope("ev-" + suffix)

	// Profiles
	p := &model.Profile{
		UserID:         alice,
		DisplayName:    "Alice",
		City:           "Lisbon",
		Interests:      []string{"climbing", "jazz"},
		Goals:          []string{"find a cofounder"},
		Communities:    []string{"builders"},
		CurrentEventID: event.Key,
	}
	if _, err := s.Profiles().Upsert(ctx, p); err != nil {
		t.Fatalf("UpsertProfile alice: %v", err)
	}
	got, err := s.Profiles().Get(ctx, alice)
	if err != nil || got.City != "Lisbon" || len(got.Interests) != 2 {
		t.Fatalf("GetProfile: got=%+v err=%v", got, err)
	}
	if got.Tier != model.TierFree {
		t.Fatalf("GetProfile: tier defaulted to %q, want free", got.Tier)
	}
	if _, err := s.Profiles().Get(ctx, "missing-"+suffix); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetProfile missing: err=%v, want ErrNotFound", err)
	}

	for _, u := range []struct {
		id, city  string
		comms     []string
		eventID   string
	}{
		{bob, "Lisbon", []string{"builders"}, event.Key},
		{carol, "Berlin", []string{"artists"}, ""},
	} {
		if _, err := s.Profiles().Upsert(ctx, &model.Profile{UserID: u.id, City: u.city, Communities: u.comms, CurrentEventID: u.eventID}); err != nil {
			t.Fatalf("UpsertProfile %s: %v", u.id, err)
		}
	}

	// SetVectors then re-read
	if err := s.Profiles().SetVectors(ctx, alice, []float32{0.1, 0.2}, []float32{0.3}, nil); err != nil {
		t.Fatalf("SetVectors: %v", err)
	}
	got, err = s.Profiles().Get(ctx, alice)
	if err != nil || len(got.ProfileVector) != 2 || len(got.InterestsVector) != 1 || got.ExpertiseVector != nil {
		t.Fatalf("GetProfile after SetVectors: got=%+v err=%v", got, err)
	}
	if err := s.Profiles().SetVectors(ctx, "missing-"+suffix, nil, nil, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("SetVectors missing: err=%v, want ErrNotFound", err)
	}

	// ListByScope variants
	if lst, err := s.Profiles().ListByScope(ctx, event, alice); err != nil || len(lst) != 1 || lst[0].UserID != bob {
		t.Fatalf("ListByScope event: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Profiles().ListByScope(ctx, model.CommunityScope("builders"), alice); err != nil || len(lst) != 1 || lst[0].UserID != bob {
		t.Fatalf("ListByScope community: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Profiles().ListByScope(ctx, model.CrossCommunityScope("builders"), alice); err != nil || len(lst) != 1 || lst[0].UserID != carol {
		t.Fatalf("ListByScope cross community: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Profiles().ListByScope(ctx, model.CityScope("Lisbon"), alice); err != nil || len(lst) != 1 || lst[0].UserID != bob {
		t.Fatalf("ListByScope city: n=%d err=%v", len(lst), err)
	}

	// Match upsert: created then refreshed, both argument orders
	m1, created, err := s.Matches().Upsert(ctx, &model.Match{
		UserLow: bob, UserHigh: alice, Scope: event,
		CompatibilityScore: 0.82, MatchType: model.MatchTypeProfessional,
		Explanation: "shared goals", Icebreaker: "ask about climbing",
		Source: model.SourceLLM,
	})
	if err != nil || !created {
		t.Fatalf("Upsert first: created=%v err=%v", created, err)
	}
	low, _ := model.CanonicalPair(alice, bob)
	if m1.UserLow != low || m1.Status != model.MatchStatusPending {
		t.Fatalf("Upsert first: pair not canonical or status wrong: %+v", m1)
	}
	m2, created, err := s.Matches().Upsert(ctx, &model.Match{
		UserLow: alice, UserHigh: bob, Scope: event,
		CompatibilityScore: 0.91, MatchType: model.MatchTypeCreative,
		Source: model.SourceLLM,
	})
	if err != nil || created {
		t.Fatalf("Upsert second: created=%v err=%v", created, err)
	}
	if m2.MatchID != m1.MatchID || m2.CompatibilityScore != 0.91 || m2.MatchType != model.MatchTypeCreative {
		t.Fatalf("Upsert second: wanted refreshed record with same id: %+v", m2)
	}

	// Same pair in a different scope is a distinct match
	mCity, created, err := s.Matches().Upsert(ctx, &model.Match{
		UserLow: alice, UserHigh: bob, Scope: model.CityScope("Lisbon"),
		CompatibilityScore: 0.55, MatchType: model.MatchTypeFriendship,
		Source: model.SourceHeuristic,
	})
	if err != nil || !created || mCity.MatchID == m1.MatchID {
		t.Fatalf("Upsert different scope: created=%v err=%v", created, err)
	}

	_, created, err = s.Matches().Upsert(ctx, &model.Match{
		UserLow: alice, UserHigh: carol, Scope: event,
		CompatibilityScore: 0.70, MatchType: model.MatchTypeProfessional,
		Source: model.SourceLLM,
	})
	if err != nil || !created {
		t.Fatalf("Upsert alice-carol: created=%v err=%v", created, err)
	}

	// TopN ordering: compatibility descending within scope
	top, err := s.Matches().TopN(ctx, alice, event, 10)
	if err != nil || len(top) != 2 {
		t.Fatalf("TopN: n=%d err=%v", len(top), err)
	}
	if top[0].CompatibilityScore < top[1].CompatibilityScore {
		t.Fatalf("TopN: not ordered by score desc: %v then %v", top[0].CompatibilityScore, top[1].CompatibilityScore)
	}
	if top, err := s.Matches().TopN(ctx, alice, event, 1); err != nil || len(top) != 1 {
		t.Fatalf("TopN limit: n=%d err=%v", len(top), err)
	}

	// ListForUser spans scopes
	if all, err := s.Matches().ListForUser(ctx, alice); err != nil || len(all) != 3 {
		t.Fatalf("ListForUser: n=%d err=%v", len(all), err)
	}

	// PairedUserIDs feeds retrieval pre-filtering
	paired, err := s.Matches().PairedUserIDs(ctx, alice, event)
	if err != nil || len(paired) != 2 {
		t.Fatalf("PairedUserIDs: n=%d err=%v", len(paired), err)
	}

	// Status transitions: pending -> accepted once, stale afterwards
	acc, err := s.Matches().UpdateStatus(ctx, m1.MatchID, model.MatchStatusAccepted)
	if err != nil || acc.Status != model.MatchStatusAccepted {
		t.Fatalf("UpdateStatus accept: got=%+v err=%v", acc, err)
	}
	cur, err := s.Matches().UpdateStatus(ctx, m1.MatchID, model.MatchStatusDeclined)
	if !errors.Is(err, model.ErrStaleTransition) {
		t.Fatalf("UpdateStatus stale: err=%v, want ErrStaleTransition", err)
	}
	if cur == nil || cur.Status != model.MatchStatusAccepted {
		t.Fatalf("UpdateStatus stale: record changed: %+v", cur)
	}
	if _, err := s.Matches().UpdateStatus(ctx, "missing-"+suffix, model.MatchStatusAccepted); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdateStatus missing: err=%v, want ErrNotFound", err)
	}
	if _, err := s.Matches().UpdateStatus(ctx, m1.MatchID, model.MatchStatusPending); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("UpdateStatus to pending: err=%v, want ErrValidation", err)
	}

	// Notification flags are per side and idempotent
	side, ok := m1.SideOf(alice)
	if !ok {
		t.Fatalf("SideOf: alice not on match %+v", m1)
	}
	if err := s.Matches().SetNotified(ctx, m1.MatchID, side); err != nil {
		t.Fatalf("SetNotified: %v", err)
	}
	if err := s.Matches().SetNotified(ctx, m1.MatchID, side); err != nil {
		t.Fatalf("SetNotified repeat: %v", err)
	}
	again, err := s.Matches().Get(ctx, m1.MatchID)
	if err != nil || !again.Notified(side) {
		t.Fatalf("Get after SetNotified: got=%+v err=%v", again, err)
	}
	other := model.SideHigh
	if side == model.SideHigh {
		other = model.SideLow
	}
	if again.Notified(other) {
		t.Fatalf("SetNotified leaked to other side: %+v", again)
	}

	// ListUnnotified drops the notified match for alice only
	un, err := s.Matches().ListUnnotified(ctx, alice)
	if err != nil || len(un) != 2 {
		t.Fatalf("ListUnnotified alice: n=%d err=%v", len(un), err)
	}
	unBob, err := s.Matches().ListUnnotified(ctx, bob)
	if err != nil || len(unBob) != 2 {
		t.Fatalf("ListUnnotified bob: n=%d err=%v", len(unBob), err)
	}

	// Feedback is per side
	if err := s.Matches().SetFeedback(ctx, m1.MatchID, side, model.FeedbackGood); err != nil {
		t.Fatalf("SetFeedback: %v", err)
	}
	again, err = s.Matches().Get(ctx, m1.MatchID)
	if err != nil {
		t.Fatalf("Get after SetFeedback: %v", err)
	}
	fb := again.FeedbackLow
	otherFb := again.FeedbackHigh
	if side == model.SideHigh {
		fb, otherFb = again.FeedbackHigh, again.FeedbackLow
	}
	if fb != model.FeedbackGood || otherFb != model.FeedbackNone {
		t.Fatalf("SetFeedback: got %q/%q", fb, otherFb)
	}
	if err := s.Matches().SetFeedback(ctx, m1.MatchID, side, "meh"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("SetFeedback invalid: err=%v, want ErrValidation", err)
	}
}
