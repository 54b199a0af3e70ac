package session

import (
	"context"
	"fmt"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/store"
)

// RoundManager creates rounds and applies scoring. Round creation is a
// compare-and-create at the storage layer: when two clients race to
// create the same round number, exactly one insert wins and the loser
// adopts the winner's round.
type RoundManager struct {
	store store.Store
	pool  *game.SituationPool
}

func NewRoundManager(s store.Store, pool *game.SituationPool) *RoundManager {
	return &RoundManager{
		store: s,
		pool:  pool,
	}
}

// CreateRound creates the round with the given number, binding a
// situation that has not been used in this game yet. Losing the
// creation race is benign: the already-created round is returned.
func (m *RoundManager) CreateRound(ctx context.Context, gameID string, roundNumber int) (*types.Round, error) {
	rounds, err := m.store.ListRounds(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %v", err)
	}
	usedIDs := make([]string, 0, len(rounds))
	for _, r := range rounds {
		usedIDs = append(usedIDs, r.SituationID)
	}

	situation := m.pool.Pick(usedIDs)
	round, err := m.store.CreateRound(ctx, gameID, roundNumber, situation.ID)
	if err == nil {
		return round, nil
	}
	if !store.IsConstraintViolation(err) {
		return nil, fmt.Errorf("failed to create round: %v", err)
	}

	// Someone else created the round first. Re-read and adopt theirs.
	log.Debug("Lost round %d creation race for game %s", roundNumber, gameID)
	rounds, err = m.store.ListRounds(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds after lost race: %v", err)
	}
	for _, r := range rounds {
		if r.RoundNumber == roundNumber {
			return r, nil
		}
	}
	return nil, fmt.Errorf("round %d missing after lost creation race", roundNumber)
}

// Deltas computes both players' score deltas for a round's two
// recorded choices. Pure: the caller applies them atomically with the
// round-advance claim so scores land exactly once.
func (m *RoundManager) Deltas(round *types.Round, players []*types.Player, choices []*types.Choice) (map[string]int, error) {
	if len(players) != 2 {
		return nil, fmt.Errorf("expected 2 players, got %d", len(players))
	}
	if len(choices) != 2 {
		return nil, fmt.Errorf("expected 2 choices, got %d", len(choices))
	}

	situation, err := m.pool.ByID(round.SituationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up situation: %v", err)
	}

	byPlayer := make(map[string]types.Decision, len(choices))
	for _, c := range choices {
		byPlayer[c.PlayerID] = c.Choice
	}
	first, ok := byPlayer[players[0].ID]
	if !ok {
		return nil, fmt.Errorf("no choice recorded for player %s", players[0].ID)
	}
	second, ok := byPlayer[players[1].ID]
	if !ok {
		return nil, fmt.Errorf("no choice recorded for player %s", players[1].ID)
	}

	firstDelta, secondDelta, err := game.Outcome(situation, first, second)
	if err != nil {
		return nil, fmt.Errorf("failed to score round: %v", err)
	}

	return map[string]int{
		players[0].ID: firstDelta,
		players[1].ID: secondDelta,
	}, nil
}
