package session

import (
	"context"
	"testing"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/cbodonnell/trustecho/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundManager_CreateRoundBindsUnusedSituations(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	pool := game.NewDefaultSituationPool()
	m := NewRoundManager(s, pool)

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for n := 1; n <= 5; n++ {
		r, err := m.CreateRound(ctx, g.ID, n)
		require.NoError(t, err)
		assert.Equal(t, n, r.RoundNumber)
		assert.False(t, seen[r.SituationID], "situation %s repeated", r.SituationID)
		seen[r.SituationID] = true
	}
}

func TestRoundManager_CreateRoundAdoptsRaceWinner(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	pool := game.NewDefaultSituationPool()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)

	winner, err := NewRoundManager(s, pool).CreateRound(ctx, g.ID, 1)
	require.NoError(t, err)

	// A second manager racing for the same round number loses the
	// insert and adopts the winner's round.
	adopted, err := NewRoundManager(s, pool).CreateRound(ctx, g.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, adopted.ID)
	assert.Equal(t, winner.SituationID, adopted.SituationID)

	rounds, err := s.ListRounds(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, rounds, 1)
}

func TestRoundManager_DeltasMatchMatrix(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	pool := game.NewDefaultSituationPool()
	m := NewRoundManager(s, pool)

	g, players, _ := newActiveGame(t, s)

	// Bind the Last Slice so the deltas are known: trust against betray
	// is (-1, 4).
	round, err := s.CreateRound(ctx, g.ID, 2, "S2")
	require.NoError(t, err)

	_, _, err = s.RecordChoice(ctx, round.ID, players[0].ID, types.DecisionTrust, 800)
	require.NoError(t, err)
	_, _, err = s.RecordChoice(ctx, round.ID, players[1].ID, types.DecisionBetray, 650)
	require.NoError(t, err)

	choices, err := s.ListChoices(ctx, round.ID)
	require.NoError(t, err)
	deltas, err := m.Deltas(round, players, choices)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		players[0].ID: -1,
		players[1].ID: 4,
	}, deltas)
}

func TestRoundManager_DeltasRequireBothChoices(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	pool := game.NewDefaultSituationPool()
	m := NewRoundManager(s, pool)

	_, players, round := newActiveGame(t, s)

	_, _, err := s.RecordChoice(ctx, round.ID, players[0].ID, types.DecisionTrust, 800)
	require.NoError(t, err)

	choices, err := s.ListChoices(ctx, round.ID)
	require.NoError(t, err)
	_, err = m.Deltas(round, players, choices)
	assert.Error(t, err)
}
