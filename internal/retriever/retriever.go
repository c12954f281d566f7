package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/scorer"
	"github.com/sphere-social/sphere-matching/internal/searchindex"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// neutralSimilarity stands in for channels that cannot be measured so
// partial profiles are not penalized to zero.
const neutralSimilarity = 0.5

// Weights blends the per-channel similarities into one number. They should
// sum to 1; config validation enforces this at load.
type Weights struct {
	Profile   float64
	Interests float64
	Expertise float64
}

// DefaultWeights matches the production configuration defaults.
func DefaultWeights() Weights {
	return Weights{Profile: 0.40, Interests: 0.35, Expertise: 0.25}
}

// Retriever produces scored candidates for a user within a scope. It degrades
// rather than fails: vector search problems fall back to heuristic ranking,
// and only an unloadable scope population aborts.
type Retriever struct {
	store     store.Store
	index     searchindex.Index
	threshold float64
	weights   Weights
	timeout   time.Duration
	logger    zerolog.Logger
}

func New(st store.Store, index searchindex.Index, threshold float64, weights Weights, timeout time.Duration, logger zerolog.Logger) *Retriever {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Retriever{store: st, index: index, threshold: threshold, weights: weights, timeout: timeout, logger: logger}
}

// Retrieve returns up to limit candidates for user in scope, ordered by
// similarity descending with candidate id as tie-breaker.
func (r *Retriever) Retrieve(ctx context.Context, user *model.Profile, scope model.Scope, limit int) ([]model.CandidateScore, error) {
	if limit <= 0 {
		return nil, nil
	}

	population, err := r.store.Profiles().ListByScope(ctx, scope, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrScopePopulation, err)
	}
	if scope.Kind == model.ScopeCrossCommunity {
		population = dropSharedCommunities(population, user)
	}
	if len(population) == 0 {
		return nil, nil
	}

	// already-matched candidates are skipped up front; persistence still
	// enforces uniqueness if this filter misses
	excluded := map[string]struct{}{user.UserID: {}}
	if paired, err := r.store.Matches().PairedUserIDs(ctx, user.UserID, scope); err != nil {
		r.logger.Warn().Err(err).Str("userId", user.UserID).Str("scope", scope.String()).Msg("paired-id prefilter unavailable, continuing without it")
	} else {
		for _, id := range paired {
			excluded[id] = struct{}{}
		}
	}

	eligible := make(map[string]*model.Profile, len(population))
	for _, p := range population {
		if _, skip := excluded[p.UserID]; skip {
			continue
		}
		eligible[p.UserID] = p
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	if !user.HasVectors() {
		r.logger.Info().Str("userId", user.UserID).Str("scope", scope.String()).Msg("user has no embeddings, ranking heuristically")
		return r.heuristicRank(user, eligible, limit), nil
	}

	candidates, err := r.vectorRank(ctx, user, scope, eligible, limit)
	if err != nil {
		r.logger.Warn().Err(err).Str("userId", user.UserID).Str("scope", scope.String()).Msg("vector lookup degraded, ranking heuristically")
		return r.heuristicRank(user, eligible, limit), nil
	}
	return candidates, nil
}

func (r *Retriever) vectorRank(ctx context.Context, user *model.Profile, scope model.Scope, eligible map[string]*model.Profile, limit int) ([]model.CandidateScore, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// over-fetch so population filtering still leaves enough candidates
	fetch := limit * 5
	if fetch < 20 {
		fetch = 20
	}

	channels := []struct {
		name searchindex.Channel
		vec  []float32
	}{
		{searchindex.ChannelProfile, user.ProfileVector},
		{searchindex.ChannelInterests, user.InterestsVector},
		{searchindex.ChannelExpertise, user.ExpertiseVector},
	}

	hits := make(map[searchindex.Channel]map[string]float64, len(channels))
	for _, ch := range channels {
		if len(ch.vec) == 0 {
			continue
		}
		found, err := r.index.SimilarProfiles(ctx, ch.name, ch.vec, scope, fetch)
		if err != nil {
			return nil, err
		}
		byUser := make(map[string]float64, len(found))
		for _, h := range found {
			byUser[h.UserID] = h.Certainty
		}
		hits[ch.name] = byUser
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("no embedding channel produced results")
	}

	var out []model.CandidateScore
	for id := range eligible {
		cs := model.ChannelScores{
			Profile:   channelSimilarity(hits, searchindex.ChannelProfile, id),
			Interests: channelSimilarity(hits, searchindex.ChannelInterests, id),
			Expertise: channelSimilarity(hits, searchindex.ChannelExpertise, id),
		}
		blended := r.weights.Profile*cs.Profile + r.weights.Interests*cs.Interests + r.weights.Expertise*cs.Expertise
		// a strong interests-only match qualifies even when the blend
		// falls short of the threshold
		if blended < r.threshold && cs.Interests < r.threshold {
			continue
		}
		out = append(out, model.CandidateScore{CandidateID: id, Similarity: blended, Channels: cs})
	}

	model.SortCandidates(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// channelSimilarity reads one channel's similarity for a candidate. Channels
// the user could not search, and candidates the index did not surface on a
// searched channel, both read as neutral.
func channelSimilarity(hits map[searchindex.Channel]map[string]float64, ch searchindex.Channel, userID string) float64 {
	byUser, ok := hits[ch]
	if !ok {
		return neutralSimilarity
	}
	sim, ok := byUser[userID]
	if !ok {
		return neutralSimilarity
	}
	return sim
}

func (r *Retriever) heuristicRank(user *model.Profile, eligible map[string]*model.Profile, limit int) []model.CandidateScore {
	var out []model.CandidateScore
	for id, p := range eligible {
		sim := HeuristicSimilarity(user, p)
		if sim <= 0 {
			continue
		}
		out = append(out, model.CandidateScore{CandidateID: id, Similarity: sim})
	}
	model.SortCandidates(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HeuristicSimilarity estimates similarity without vectors: attribute overlap
// plus how well each side's looking-for text is answered by the other's
// can-help-with text.
func HeuristicSimilarity(a, b *model.Profile) float64 {
	sim := 0.6*scorer.BaseScore(a, b) + 0.2*needOverlap(a.LookingFor, b.CanHelpWith) + 0.2*needOverlap(b.LookingFor, a.CanHelpWith)
	if sim > 1 {
		sim = 1
	}
	return sim
}

// needOverlap is the fraction of meaningful words in need that also appear in
// offer.
func needOverlap(need, offer string) float64 {
	needWords := meaningfulWords(need)
	if len(needWords) == 0 {
		return 0
	}
	offerWords := meaningfulWords(offer)
	set := make(map[string]struct{}, len(offerWords))
	for _, w := range offerWords {
		set[w] = struct{}{}
	}
	shared := 0
	for _, w := range needWords {
		if _, ok := set[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(needWords))
}

func meaningfulWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func dropSharedCommunities(population []*model.Profile, user *model.Profile) []*model.Profile {
	var out []*model.Profile
	for _, p := range population {
		shared := false
		for _, c := range user.Communities {
			if p.InCommunity(c) {
				shared = true
				break
			}
		}
		if !shared {
			out = append(out, p)
		}
	}
	return out
}
