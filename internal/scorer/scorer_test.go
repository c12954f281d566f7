package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sphere-social/sphere-matching/internal/model"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func twoProfiles() (*model.Profile, *model.Profile) {
	a := &model.Profile{
		UserID:      "u-a",
		DisplayName: "Ana",
		Interests:   []string{"surfing", "startups"},
		Goals:       []string{"find a cofounder"},
		Bio:         "Product designer gone founder",
		LookingFor:  "a technical partner",
	}
	b := &model.Profile{
		UserID:      "u-b",
		DisplayName: "Ben",
		Interests:   []string{"startups", "chess"},
		Goals:       []string{"find a cofounder"},
		CanHelpWith: "backend architecture",
	}
	return a, b
}

func TestLLMScorerScorePair(t *testing.T) {
	stub := &stubGenerator{response: `{"compatibility_score": 0.82, "match_type": "professional", "explanation": "Complementary skills.", "icebreaker": "What are you building?"}`}
	s := NewLLMScorer(stub, 0, zerolog.Nop())

	a, b := twoProfiles()
	res, err := s.ScorePair(context.Background(), a, b, model.EventScope("ev-1"))
	require.NoError(t, err)
	assert.Equal(t, 0.82, res.Compatibility)
	assert.Equal(t, model.MatchTypeProfessional, res.MatchType)
	assert.Equal(t, "Complementary skills.", res.Explanation)
	assert.Equal(t, model.SourceLLM, res.Source)

	assert.Contains(t, stub.lastPrompt, "Name: Ana")
	assert.Contains(t, stub.lastPrompt, "Name: Ben")
	assert.Contains(t, stub.lastPrompt, "both are attending event ev-1")
}

func TestLLMScorerStripsMarkdownFences(t *testing.T) {
	stub := &stubGenerator{response: "```json\n{\"compatibility_score\": 0.5, \"match_type\": \"friendship\", \"explanation\": \"x\", \"icebreaker\": \"y\"}\n```"}
	s := NewLLMScorer(stub, 0, zerolog.Nop())

	a, b := twoProfiles()
	res, err := s.ScorePair(context.Background(), a, b, model.GlobalScope())
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Compatibility)
	assert.NotContains(t, stub.lastPrompt, "Context:")
}

func TestLLMScorerClampsScore(t *testing.T) {
	stub := &stubGenerator{response: `{"compatibility_score": 1.7, "match_type": "creative", "explanation": "", "icebreaker": ""}`}
	s := NewLLMScorer(stub, 0, zerolog.Nop())

	a, b := twoProfiles()
	res, err := s.ScorePair(context.Background(), a, b, model.GlobalScope())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Compatibility)
}

func TestLLMScorerRejectsBadResponses(t *testing.T) {
	a, b := twoProfiles()
	for name, response := range map[string]string{
		"not json":           "sorry, I cannot help with that",
		"missing score":      `{"match_type": "friendship"}`,
		"unknown match type": `{"compatibility_score": 0.9, "match_type": "nemesis"}`,
	} {
		t.Run(name, func(t *testing.T) {
			s := NewLLMScorer(&stubGenerator{response: response}, 0, zerolog.Nop())
			_, err := s.ScorePair(context.Background(), a, b, model.GlobalScope())
			assert.Error(t, err)
		})
	}
}

func TestLLMScorerPropagatesGeneratorError(t *testing.T) {
	boom := errors.New("quota exceeded")
	s := NewLLMScorer(&stubGenerator{err: boom}, 0, zerolog.Nop())

	a, b := twoProfiles()
	_, err := s.ScorePair(context.Background(), a, b, model.GlobalScope())
	assert.ErrorIs(t, err, boom)
}

func TestBaseScore(t *testing.T) {
	a := &model.Profile{Interests: []string{"x", "y", "z"}, Goals: []string{"g1"}, City: "Lisbon"}
	b := &model.Profile{Interests: []string{"x", "y"}, Goals: []string{"g1"}, City: "Lisbon"}

	// 2 shared interests (0.30) + 1 shared goal (0.20) + city bonus (0.10)
	assert.InDelta(t, 0.60, BaseScore(a, b), 1e-9)

	// caps: many shared interests and goals saturate at 0.5 each
	many := []string{"a", "b", "c", "d", "e", "f"}
	c := &model.Profile{Interests: many, Goals: many, City: "Berlin"}
	d := &model.Profile{Interests: many, Goals: many, City: "Berlin"}
	assert.InDelta(t, 1.0, BaseScore(c, d), 1e-9)

	// no overlap, no city
	assert.Zero(t, BaseScore(&model.Profile{}, &model.Profile{}))
}
