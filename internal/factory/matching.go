package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/config"
	"github.com/sphere-social/sphere-matching/internal/matching"
	"github.com/sphere-social/sphere-matching/internal/retriever"
	"github.com/sphere-social/sphere-matching/internal/scorer"
	"github.com/sphere-social/sphere-matching/internal/searchindex"
	storepkg "github.com/sphere-social/sphere-matching/internal/store"
	"github.com/sphere-social/sphere-matching/internal/tiergate"
)

// NewPairScorer builds the Gemini-backed pair scorer.
// Requires MATCHING_GEMINI_API_KEY; there is no offline stand-in because the
// orchestrator already degrades to heuristic scoring when calls fail.
func NewPairScorer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (scorer.PairScorer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("MATCHING_GEMINI_API_KEY is required for pair scoring")
	}
	gen, err := scorer.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("model", gen.Model()).Msg("pair scorer ready")
	return scorer.NewLLMScorer(gen, cfg.ScoreTimeout(), log), nil
}

// NewOrchestrator wires the retriever, scorer and tier gate into a matching
// orchestrator backed by the given store and search index.
func NewOrchestrator(cfg *config.Config, st storepkg.Store, idx searchindex.Index, sc scorer.PairScorer, log zerolog.Logger) *matching.Orchestrator {
	weights := retriever.Weights{
		Profile:   cfg.ProfileWeight,
		Interests: cfg.InterestsWeight,
		Expertise: cfg.ExpertiseWeight,
	}
	retr := retriever.New(st, idx, cfg.VectorSimilarityThreshold, weights, cfg.RetrieveTimeout(), log)
	gate := tiergate.New(st, cfg.FreeCrossScopeAllowance)
	return matching.NewOrchestrator(st, retr, sc, gate, cfg.CandidateLimit, cfg.ScoreWorkers, cfg.MatchThresholdFor, log)
}
