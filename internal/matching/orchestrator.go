package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/scorer"
	"github.com/sphere-social/sphere-matching/internal/store"
	"github.com/sphere-social/sphere-matching/internal/tiergate"
)

// CandidateRetriever is the slice of retrieval behavior the orchestrator
// needs.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, user *model.Profile, scope model.Scope, limit int) ([]model.CandidateScore, error)
}

// RunResult summarizes one matching run.
type RunResult struct {
	UserID    string          `json:"userId"`
	Scope     model.Scope     `json:"scope"`
	Retrieved int             `json:"retrieved"`
	Scored    int             `json:"scored"`
	Degraded  int             `json:"degraded"`
	Qualified int             `json:"qualified"`
	Created   int             `json:"created"`
	Refreshed int             `json:"refreshed"`
	Matches   []*model.Match  `json:"matches,omitempty"`
	Elapsed   time.Duration   `json:"elapsedNs"`
}

// Orchestrator runs the full pipeline for one (user, scope) request:
// retrieval, bounded concurrent scoring, fusion, tier gating and idempotent
// persistence. Per-candidate failures degrade; only an unloadable scope
// population fails the run.
type Orchestrator struct {
	store          store.Store
	retriever      CandidateRetriever
	scorer         scorer.PairScorer
	gate           *tiergate.Gate
	candidateLimit int
	scoreWorkers   int
	thresholdFor   func(model.Scope) float64
	logger         zerolog.Logger
}

func NewOrchestrator(
	st store.Store,
	retr CandidateRetriever,
	sc scorer.PairScorer,
	gate *tiergate.Gate,
	candidateLimit int,
	scoreWorkers int,
	thresholdFor func(model.Scope) float64,
	logger zerolog.Logger,
) *Orchestrator {
	if scoreWorkers < 1 {
		scoreWorkers = 1
	}
	return &Orchestrator{
		store:          st,
		retriever:      retr,
		scorer:         sc,
		gate:           gate,
		candidateLimit: candidateLimit,
		scoreWorkers:   scoreWorkers,
		thresholdFor:   thresholdFor,
		logger:         logger,
	}
}

// Run finds and persists matches for userID in scope.
func (o *Orchestrator) Run(ctx context.Context, userID string, scope model.Scope) (*RunResult, error) {
	start := time.Now()
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	user, err := o.store.Profiles().Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile for %s: %w", userID, err)
	}

	res := &RunResult{UserID: userID, Scope: scope}

	candidates, err := o.retriever.Retrieve(ctx, user, scope, o.candidateLimit)
	if err != nil {
		return nil, err
	}
	res.Retrieved = len(candidates)
	if len(candidates) == 0 {
		res.Elapsed = time.Since(start)
		o.logger.Info().Str("userId", userID).Str("scope", scope.String()).Msg("no candidates retrieved")
		return res, nil
	}

	scored := o.scoreAll(ctx, user, scope, candidates)

	decision, gateErr := o.gate.Evaluate(ctx, user, scope)
	if gateErr != nil {
		// gating is advisory; a broken count must not abort the run
		o.logger.Warn().Err(gateErr).Str("userId", userID).Msg("tier gate unavailable, matches will not be flagged")
		decision = tiergate.Decision{Allow: true, RemainingFree: -1}
	}
	remaining := decision.RemainingFree

	threshold := o.thresholdFor(scope)
	for i, cand := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		sr := scored[i]
		if sr == nil {
			continue
		}
		if sr.result.Source == model.SourceHeuristic {
			res.Degraded++
		} else {
			res.Scored++
		}

		final, matchType := Fuse(cand, sr.result)
		if final < threshold {
			continue
		}
		res.Qualified++

		requiresUpgrade := false
		if tiergate.IsCrossScope(user, scope) && user.Tier != model.TierPaid {
			requiresUpgrade = remaining <= 0 && remaining != -1
		}

		m, created, err := o.store.Matches().Upsert(ctx, &model.Match{
			UserLow:            user.UserID,
			UserHigh:           cand.CandidateID,
			Scope:              scope,
			CompatibilityScore: final,
			MatchType:          matchType,
			Explanation:        sr.result.Explanation,
			Icebreaker:         sr.result.Icebreaker,
			Source:             sr.result.Source,
			RequiresUpgrade:    requiresUpgrade,
		})
		if err != nil {
			o.logger.Error().Err(err).Str("userId", userID).Str("candidateId", cand.CandidateID).Msg("match upsert failed")
			continue
		}
		if created {
			res.Created++
			if remaining > 0 && tiergate.IsCrossScope(user, scope) {
				remaining--
			}
		} else {
			res.Refreshed++
		}
		res.Matches = append(res.Matches, m)
	}

	res.Elapsed = time.Since(start)
	o.logger.Info().
		Str("userId", userID).
		Str("scope", scope.String()).
		Int("retrieved", res.Retrieved).
		Int("scored", res.Scored).
		Int("degraded", res.Degraded).
		Int("created", res.Created).
		Int("refreshed", res.Refreshed).
		Dur("elapsed", res.Elapsed).
		Msg("matching run complete")
	return res, nil
}

type scoredCandidate struct {
	result *model.PairScoreResult
}

// scoreAll fans out pair scoring over a bounded worker pool. Results are
// positionally aligned with candidates; a nil slot means the candidate's
// profile could not be loaded.
func (o *Orchestrator) scoreAll(ctx context.Context, user *model.Profile, scope model.Scope, candidates []model.CandidateScore) []*scoredCandidate {
	out := make([]*scoredCandidate, len(candidates))
	sem := make(chan struct{}, o.scoreWorkers)
	var wg sync.WaitGroup

	for i, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cand model.CandidateScore) {
			defer wg.Done()
			defer func() { <-sem }()

			candProfile, err := o.store.Profiles().Get(ctx, cand.CandidateID)
			if err != nil {
				o.logger.Warn().Err(err).Str("candidateId", cand.CandidateID).Msg("candidate profile unavailable, skipping")
				return
			}

			result, err := o.scorer.ScorePair(ctx, user, candProfile, scope)
			if err != nil {
				o.logger.Warn().Err(err).Str("userId", user.UserID).Str("candidateId", cand.CandidateID).Msg("pair scoring degraded to heuristic")
				result = Fallback(cand, user, candProfile)
			}
			out[i] = &scoredCandidate{result: result}
		}(i, cand)
	}
	wg.Wait()
	return out
}
