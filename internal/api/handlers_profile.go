package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/api/respond"
	emb "github.com/sphere-social/sphere-matching/internal/embeddings"
	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/searchindex"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// ProfileHandler exposes profile upsert, lookup and embedding backfill.
type ProfileHandler struct {
	store    store.Store
	embedder emb.EmbeddingProvider
	index    searchindex.Index
	log      zerolog.Logger
}

func NewProfileHandler(st store.Store, embedder emb.EmbeddingProvider, index searchindex.Index, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{store: st, embedder: embedder, index: index, log: log}
}

// PutProfile PUT /v0/profiles/{userId}
func (h *ProfileHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if userID == "" {
		respond.WriteBadRequest(w, "userId required")
		return
	}
	var in model.Profile
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	in.UserID = userID
	out, err := h.store.Profiles().Upsert(r.Context(), &in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// GetProfile GET /v0/profiles/{userId}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	p, err := h.store.Profiles().Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, p)
}

// GenerateEmbeddings POST /v0/profiles/{userId}/embeddings
// Builds the three channel texts, embeds them, persists the vectors and
// refreshes the search index objects.
func (h *ProfileHandler) GenerateEmbeddings(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	p, err := h.store.Profiles().Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	profileVec, interestsVec, expertiseVec, err := emb.GenerateAll(r.Context(), h.embedder, p)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("embedding generation failed")
		respond.WriteInternalError(w, "embedding generation failed")
		return
	}
	if err := h.store.Profiles().SetVectors(r.Context(), userID, profileVec, interestsVec, expertiseVec); err != nil {
		writeDomainError(w, err)
		return
	}

	p.ProfileVector = profileVec
	p.InterestsVector = interestsVec
	p.ExpertiseVector = expertiseVec
	if err := h.index.UpsertProfile(r.Context(), p); err != nil {
		// Vectors are persisted; the index catches up on the next backfill.
		h.log.Warn().Err(err).Str("user_id", userID).Msg("search index refresh failed")
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"userId":       userID,
		"profileDim":   len(profileVec),
		"interestsDim": len(interestsVec),
		"expertiseDim": len(expertiseVec),
	})
}
