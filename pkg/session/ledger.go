package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/cbodonnell/trustecho/pkg/store"
)

// ChoiceLedger enforces at-most-one recorded choice per (round, player)
// pair. The uniqueness constraint in the store is the system's only
// concurrency-control primitive: a resubmission or a stale auto-submit
// is absorbed here instead of needing a lock anywhere else.
type ChoiceLedger struct {
	store store.Store
}

func NewChoiceLedger(s store.Store) *ChoiceLedger {
	return &ChoiceLedger{store: s}
}

// Record stores a player's decision for a round. If a choice already
// exists for the pair, the existing choice is returned unchanged and
// no counter moves. On the first insertion exactly one of the player's
// trust/betray counters is incremented.
func (l *ChoiceLedger) Record(ctx context.Context, roundID, playerID string, decision types.Decision, decisionTime time.Duration) (*types.Choice, error) {
	if decisionTime < 0 {
		return nil, fmt.Errorf("decision time must not be negative")
	}

	choice, inserted, err := l.store.RecordChoice(ctx, roundID, playerID, decision, decisionTime.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("failed to record choice: %v", err)
	}
	if !inserted {
		return choice, nil
	}

	if err := l.store.IncrementDecisionCount(ctx, playerID, decision); err != nil {
		return nil, fmt.Errorf("failed to increment decision count: %v", err)
	}
	return choice, nil
}

// CountFor returns how many distinct players have submitted a choice
// for the round (0, 1, or 2).
func (l *ChoiceLedger) CountFor(ctx context.Context, roundID string) (int, error) {
	choices, err := l.store.ListChoices(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to list choices: %v", err)
	}
	players := make(map[string]bool, len(choices))
	for _, c := range choices {
		players[c.PlayerID] = true
	}
	return len(players), nil
}
