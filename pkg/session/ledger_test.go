package session

import (
	"context"
	"testing"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/cbodonnell/trustecho/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newActiveGame seeds a store with an active two-player game and its
// first round.
func newActiveGame(t *testing.T, s store.Store) (*types.Game, []*types.Player, *types.Round) {
	t.Helper()
	ctx := context.Background()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	p1, _, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	p2, activated, err := s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)
	require.True(t, activated)
	r, err := s.CreateRound(ctx, g.ID, 1, "S1")
	require.NoError(t, err)

	g, err = s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	return g, []*types.Player{p1, p2}, r
}

func TestChoiceLedger_RecordOncePerRoundAndPlayer(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	_, players, round := newActiveGame(t, s)
	ledger := NewChoiceLedger(s)

	first, err := ledger.Record(ctx, round.ID, players[0].ID, types.DecisionTrust, 1200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionTrust, first.Choice)
	assert.Equal(t, int64(1200), first.DecisionTimeMS)

	// Resubmitting, even with a different decision, changes nothing.
	again, err := ledger.Record(ctx, round.ID, players[0].ID, types.DecisionBetray, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, types.DecisionTrust, again.Choice)

	// The counter moved exactly once, on the first insertion.
	p, err := s.GetPlayer(ctx, players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TrustCount)
	assert.Equal(t, 0, p.BetrayCount)
}

func TestChoiceLedger_CountFor(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	_, players, round := newActiveGame(t, s)
	ledger := NewChoiceLedger(s)

	n, err := ledger.CountFor(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = ledger.Record(ctx, round.ID, players[0].ID, types.DecisionTrust, time.Second)
	require.NoError(t, err)
	_, err = ledger.Record(ctx, round.ID, players[0].ID, types.DecisionTrust, time.Second)
	require.NoError(t, err)

	n, err = ledger.CountFor(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ledger.Record(ctx, round.ID, players[1].ID, types.DecisionBetray, 2*time.Second)
	require.NoError(t, err)

	n, err = ledger.CountFor(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestChoiceLedger_RejectsNegativeDecisionTime(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	_, players, round := newActiveGame(t, s)
	ledger := NewChoiceLedger(s)

	_, err := ledger.Record(ctx, round.ID, players[0].ID, types.DecisionTrust, -time.Second)
	assert.Error(t, err)
}
