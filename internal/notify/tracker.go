package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/model"
	"github.com/sphere-social/sphere-matching/internal/store"
)

// Tracker records which side of a match has been informed. Sides are tracked
// independently so a failed send to one user never blocks retrying the other.
type Tracker struct {
	store  store.Store
	logger zerolog.Logger
}

func NewTracker(st store.Store, logger zerolog.Logger) *Tracker {
	return &Tracker{store: st, logger: logger}
}

// ShouldNotify reports whether userID still awaits notification for matchID.
func (t *Tracker) ShouldNotify(ctx context.Context, matchID, userID string) (bool, error) {
	m, err := t.store.Matches().Get(ctx, matchID)
	if err != nil {
		return false, err
	}
	side, ok := m.SideOf(userID)
	if !ok {
		return false, fmt.Errorf("%w: user %s is not part of match %s", model.ErrValidation, userID, matchID)
	}
	return !m.Notified(side), nil
}

// MarkNotified flags userID's side of matchID as informed. Repeated calls are
// harmless.
func (t *Tracker) MarkNotified(ctx context.Context, matchID, userID string) error {
	m, err := t.store.Matches().Get(ctx, matchID)
	if err != nil {
		return err
	}
	side, ok := m.SideOf(userID)
	if !ok {
		return fmt.Errorf("%w: user %s is not part of match %s", model.ErrValidation, userID, matchID)
	}
	if m.Notified(side) {
		return nil
	}
	if err := t.store.Matches().SetNotified(ctx, matchID, side); err != nil {
		return err
	}
	t.logger.Debug().Str("matchId", matchID).Str("userId", userID).Str("side", string(side)).Msg("marked notified")
	return nil
}

// Pending lists matches where userID's side has not been notified yet.
func (t *Tracker) Pending(ctx context.Context, userID string) ([]*model.Match, error) {
	return t.store.Matches().ListUnnotified(ctx, userID)
}
