package scorer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/model"
)

// PairScorer judges the compatibility of a candidate pair.
type PairScorer interface {
	ScorePair(ctx context.Context, a, b *model.Profile, scope model.Scope) (*model.PairScoreResult, error)
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

// LLMScorer scores pairs with a single JSON-prompt round trip per pair. Any
// transport or parse failure surfaces as an error; callers decide whether to
// fall back to a heuristic score.
type LLMScorer struct {
	generator contentGenerator
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewLLMScorer(generator contentGenerator, timeout time.Duration, logger zerolog.Logger) *LLMScorer {
	return &LLMScorer{generator: generator, timeout: timeout, logger: logger}
}

func (s *LLMScorer) ScorePair(ctx context.Context, a, b *model.Profile, scope model.Scope) (*model.PairScoreResult, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: both profiles are required", model.ErrValidation)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := buildPrompt(a, b, scope)
	s.logger.Debug().Str("userA", a.UserID).Str("userB", b.UserID).Int("promptLength", len(prompt)).Msg("pair scoring request")

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	res, err := parseResponse(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("userA", a.UserID).Str("userB", b.UserID).Msg("unparseable pair scoring response")
		return nil, err
	}
	s.logger.Debug().Str("userA", a.UserID).Str("userB", b.UserID).Float64("score", res.Compatibility).Str("matchType", string(res.MatchType)).Msg("pair scored")
	return res, nil
}

func buildPrompt(a, b *model.Profile, scope model.Scope) string {
	prompt := strings.ReplaceAll(promptTemplate, "{{PERSON_A}}", personBlock(a))
	prompt = strings.ReplaceAll(prompt, "{{PERSON_B}}", personBlock(b))
	ctxLine := ""
	if t := scope.ContextText(); t != "" {
		ctxLine = "Context: " + t
	}
	return strings.ReplaceAll(prompt, "{{CONTEXT}}", ctxLine)
}

func personBlock(p *model.Profile) string {
	name := p.DisplayName
	if name == "" {
		name = "Anonymous"
	}
	bio := p.Bio
	if bio == "" {
		bio = "Not specified"
	}
	return strings.Join([]string{
		"Name: " + name,
		"Interests: " + strings.Join(p.Interests, ", "),
		"Goals: " + strings.Join(p.Goals, ", "),
		"Bio: " + bio,
		"Looking for: " + p.LookingFor,
		"Can help with: " + p.CanHelpWith,
	}, "\n")
}

func parseResponse(raw string) (*model.PairScoreResult, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse scoring response: %w", err)
	}

	score := coerceFloat(data["compatibility_score"])
	if math.IsNaN(score) {
		return nil, fmt.Errorf("scoring response missing compatibility_score")
	}
	score = clamp01(score)

	mt := model.MatchType(strings.ToLower(coerceString(data["match_type"])))
	if !model.ValidMatchType(mt) {
		return nil, fmt.Errorf("scoring response has unknown match_type %q", mt)
	}

	return &model.PairScoreResult{
		Compatibility: score,
		MatchType:     mt,
		Explanation:   coerceString(data["explanation"]),
		Icebreaker:    coerceString(data["icebreaker"]),
		Source:        model.SourceLLM,
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
