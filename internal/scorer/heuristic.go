package scorer

import "github.com/sphere-social/sphere-matching/internal/model"

// BaseScore is a cheap compatibility estimate from attribute overlap.
// Shared interests count 0.15 each capped at 0.5, shared goals 0.2 each
// capped at 0.5, plus 0.1 for the same city, all capped at 1.0.
func BaseScore(a, b *model.Profile) float64 {
	common := func(xs, ys []string) int {
		set := make(map[string]struct{}, len(xs))
		for _, x := range xs {
			set[x] = struct{}{}
		}
		n := 0
		for _, y := range ys {
			if _, ok := set[y]; ok {
				n++
			}
		}
		return n
	}

	interestScore := float64(common(a.Interests, b.Interests)) * 0.15
	if interestScore > 0.5 {
		interestScore = 0.5
	}
	goalScore := float64(common(a.Goals, b.Goals)) * 0.2
	if goalScore > 0.5 {
		goalScore = 0.5
	}
	score := interestScore + goalScore
	if a.City != "" && a.City == b.City {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
