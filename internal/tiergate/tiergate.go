package tiergate

import (
	"context"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// Decision is the gate's verdict for one (user, scope) pair. Matches are
// never blocked outright; RequiresUpgrade marks matches whose presentation is
// locked behind a paid tier. RemainingFree is -1 when the allowance does not
// apply (paid tier or a non-cross-scope match).
type Decision struct {
	Allow           bool
	RemainingFree   int
	RequiresUpgrade bool
}

// Gate applies the free-tier allowance for cross-scope matches. The allowance
// is one pool per user across all scopes, not per scope instance.
type Gate struct {
	store     store.Store
	allowance int
}

func New(st store.Store, allowance int) *Gate {
	return &Gate{store: st, allowance: allowance}
}

// IsCrossScope reports whether scope falls outside the user's home community
// set. Event, city and global matching never count against the allowance.
func IsCrossScope(user *model.Profile, scope model.Scope) bool {
	switch scope.Kind {
	case model.ScopeCrossCommunity:
		return true
	case model.ScopeCommunity:
		return !user.InCommunity(scope.Key)
	}
	return false
}

// Evaluate computes the decision for matching user in scope. The used count
// comes from persisted matches, so re-evaluating after each new cross-scope
// match naturally decrements the remaining allowance.
func (g *Gate) Evaluate(ctx context.Context, user *model.Profile, scope model.Scope) (Decision, error) {
	if !IsCrossScope(user, scope) {
		return Decision{Allow: true, RemainingFree: -1}, nil
	}
	if user.Tier == model.TierPaid {
		return Decision{Allow: true, RemainingFree: -1}, nil
	}

	all, err := g.store.Matches().ListForUser(ctx, user.UserID)
	if err != nil {
		return Decision{}, err
	}
	used := 0
	for _, m := range all {
		if IsCrossScope(user, m.Scope) {
			used++
		}
	}
	remaining := g.allowance - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allow: true, RemainingFree: remaining, RequiresUpgrade: remaining == 0}, nil
}
