package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sphere-social/sphere-matching/internal/api/respond"
	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/notify"
	"github.com/sphere-social/sphere-matching/internal/store"
)

const defaultTopN = 10

// MatchHandler exposes the per-user match list and the match lifecycle
// (status transitions, notification marks, feedback).
type MatchHandler struct {
	store   store.Store
	tracker *notify.Tracker
}

func NewMatchHandler(st store.Store, tracker *notify.Tracker) *MatchHandler {
	return &MatchHandler{store: st, tracker: tracker}
}

// MatchView is a match row paired with the counterpart's profile snapshot.
type MatchView struct {
	*model.Match
	Counterpart *model.Profile `json:"counterpart,omitempty"`
}

// ListMatches GET /v0/users/{userId}/matches?kind=event&key=ev-1&limit=10
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	scope, err := scopeFromQuery(r)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	limit := defaultTopN
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respond.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	matches, err := h.store.Matches().TopN(r.Context(), userID, scope, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"matches": h.withCounterparts(r, userID, matches),
		"count":   len(matches),
	})
}

// ListUnnotified GET /v0/users/{userId}/matches/unnotified
func (h *MatchHandler) ListUnnotified(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	matches, err := h.tracker.Pending(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"matches": h.withCounterparts(r, userID, matches),
		"count":   len(matches),
	})
}

// UpdateStatus POST /v0/matches/{matchId}/status
// Accepts {"status": "accepted"|"declined"}. A match whose status already
// moved returns 409 with the current row.
func (h *MatchHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchId"]
	var req struct {
		Status model.MatchStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}

	m, err := h.store.Matches().UpdateStatus(r.Context(), matchID, req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// MarkNotified POST /v0/matches/{matchId}/notified
// Body: {"userId": "..."}. Idempotent per side.
func (h *MatchHandler) MarkNotified(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchId"]
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respond.WriteBadRequest(w, "userId required")
		return
	}
	if err := h.tracker.MarkNotified(r.Context(), matchID, req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"matchId": matchID, "userId": req.UserID})
}

// SetFeedback POST /v0/matches/{matchId}/feedback
// Body: {"userId": "...", "feedback": "good"|"bad"}.
func (h *MatchHandler) SetFeedback(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchId"]
	var req struct {
		UserID   string         `json:"userId"`
		Feedback model.Feedback `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respond.WriteBadRequest(w, "userId and feedback required")
		return
	}

	m, err := h.store.Matches().Get(r.Context(), matchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	side, ok := m.SideOf(req.UserID)
	if !ok {
		respond.WriteBadRequest(w, "user is not part of this match")
		return
	}
	if err := h.store.Matches().SetFeedback(r.Context(), matchID, side, req.Feedback); err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"matchId": matchID, "feedback": string(req.Feedback)})
}

// withCounterparts attaches each counterpart's profile; a missing profile
// leaves the match row intact with a nil counterpart.
func (h *MatchHandler) withCounterparts(r *http.Request, userID string, matches []*model.Match) []MatchView {
	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		view := MatchView{Match: m}
		if other := m.Counterpart(userID); other != "" {
			if p, err := h.store.Profiles().Get(r.Context(), other); err == nil {
				p.ProfileVector, p.InterestsVector, p.ExpertiseVector = nil, nil, nil
				view.Counterpart = p
			}
		}
		views = append(views, view)
	}
	return views
}

// scopeFromQuery builds a scope from kind/key query parameters.
func scopeFromQuery(r *http.Request) (model.Scope, error) {
	scope := model.Scope{
		Kind: model.ScopeKind(r.URL.Query().Get("kind")),
		Key:  r.URL.Query().Get("key"),
	}
	if scope.Kind == "" {
		scope.Kind = model.ScopeGlobal
	}
	if err := scope.Validate(); err != nil {
		return model.Scope{}, err
	}
	return scope, nil
}
