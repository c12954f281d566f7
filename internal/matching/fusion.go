package matching

import (
	"fmt"
	"strings"

	"github.com/sphere-social/sphere-matching/internal/model"
)

// Fuse combines retrieval similarity and a pair score into the final
// compatibility number. LLM scores stand on their own; the heuristic fallback
// already folds the retrieval signal in, so its candidates use similarity
// directly instead of double-weighting.
func Fuse(c model.CandidateScore, p *model.PairScoreResult) (float64, model.MatchType) {
	if p.Source == model.SourceLLM {
		return p.Compatibility, p.MatchType
	}
	return c.Similarity, p.MatchType
}

// Fallback builds a heuristic pair score when the external scorer is
// unavailable for a candidate. The candidate is kept, not dropped.
func Fallback(c model.CandidateScore, a, b *model.Profile) *model.PairScoreResult {
	mt := model.MatchTypeFriendship
	if c.Channels.Expertise > c.Channels.Interests {
		mt = model.MatchTypeProfessional
	}

	shared := sharedInterests(a, b)
	explanation := "Your profiles point in a similar direction, which is often a good start for a conversation."
	icebreaker := "What brought you here, and what are you hoping to find?"
	if len(shared) > 0 {
		explanation = fmt.Sprintf("You both care about %s, so there should be plenty of common ground.", strings.Join(shared, " and "))
		icebreaker = fmt.Sprintf("You are both into %s. What got you started?", shared[0])
	}

	return &model.PairScoreResult{
		Compatibility: c.Similarity,
		MatchType:     mt,
		Explanation:   explanation,
		Icebreaker:    icebreaker,
		Source:        model.SourceHeuristic,
	}
}

func sharedInterests(a, b *model.Profile) []string {
	set := make(map[string]struct{}, len(a.Interests))
	for _, i := range a.Interests {
		set[i] = struct{}{}
	}
	var out []string
	for _, i := range b.Interests {
		if _, ok := set[i]; ok {
			out = append(out, i)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}
