package store

import (
	"context"
	"testing"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_RoomCodeUniqueAmongWaiting(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusWaiting, g.Status)

	_, err = s.CreateGame(ctx, "ABCD")
	require.Error(t, err)
	assert.True(t, IsConstraintViolation(err))

	// Once the game is no longer waiting the code is free again.
	_, _, err = s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	_, activated, err := s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)
	require.True(t, activated)

	_, err = s.CreateGame(ctx, "ABCD")
	assert.NoError(t, err)
}

func TestInMemoryStore_AddPlayerActivatesOnSecond(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)

	p1, activated, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Equal(t, g.ID, p1.GameID)

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusWaiting, got.Status)

	p2, activated, err := s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.True(t, activated)
	assert.NotEqual(t, p1.ID, p2.ID)

	got, err = s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusActive, got.Status)
	assert.Equal(t, 1, got.CurrentRound)

	// The game stopped waiting, so a third join misses it.
	_, _, err = s.AddPlayer(ctx, g.ID, "carol")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	players, err := s.ListPlayers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Name)
	assert.Equal(t, "bob", players[1].Name)
}

func TestInMemoryStore_FindWaitingGame(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "WXYZ")
	require.NoError(t, err)

	found, err := s.FindWaitingGame(ctx, "WXYZ")
	require.NoError(t, err)
	assert.Equal(t, g.ID, found.ID)

	_, err = s.FindWaitingGame(ctx, "NOPE")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, _, err = s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	_, _, err = s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)

	_, err = s.FindWaitingGame(ctx, "WXYZ")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestInMemoryStore_CreateRoundCompareAndCreate(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)

	r1, err := s.CreateRound(ctx, g.ID, 1, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, r1.RoundNumber)

	_, err = s.CreateRound(ctx, g.ID, 1, "S2")
	require.Error(t, err)
	assert.True(t, IsConstraintViolation(err))

	r2, err := s.CreateRound(ctx, g.ID, 2, "S2")
	require.NoError(t, err)

	latest, err := s.LatestRound(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, latest.ID)

	rounds, err := s.ListRounds(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].RoundNumber)
	assert.Equal(t, 2, rounds[1].RoundNumber)
}

func TestInMemoryStore_RecordChoiceIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	p, _, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	r, err := s.CreateRound(ctx, g.ID, 1, "S1")
	require.NoError(t, err)

	first, inserted, err := s.RecordChoice(ctx, r.ID, p.ID, types.DecisionTrust, 1200)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, types.DecisionTrust, first.Choice)

	// A conflicting resubmission is absorbed; the first write stands.
	second, inserted, err := s.RecordChoice(ctx, r.ID, p.ID, types.DecisionBetray, 9999)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, types.DecisionTrust, second.Choice)
	assert.Equal(t, int64(1200), second.DecisionTimeMS)

	choices, err := s.ListChoices(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, choices, 1)
}

func TestInMemoryStore_AdvanceGameCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)

	// Waiting games cannot advance.
	won, err := s.AdvanceGame(ctx, g.ID, 0, false, nil)
	require.NoError(t, err)
	assert.False(t, won)

	_, _, err = s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	_, _, err = s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)

	won, err = s.AdvanceGame(ctx, g.ID, 1, false, nil)
	require.NoError(t, err)
	assert.True(t, won)

	// The same claim again loses: current round moved on.
	won, err = s.AdvanceGame(ctx, g.ID, 1, false, nil)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)

	won, err = s.AdvanceGame(ctx, g.ID, 2, true, nil)
	require.NoError(t, err)
	assert.True(t, won)

	got, err = s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusFinished, got.Status)

	// Finished games never advance again.
	won, err = s.AdvanceGame(ctx, g.ID, 2, false, nil)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestInMemoryStore_AdvanceGameAppliesScoresWithClaim(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	p1, _, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	p2, _, err := s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)

	won, err := s.AdvanceGame(ctx, g.ID, 1, false, map[string]int{p1.ID: -1, p2.ID: 4})
	require.NoError(t, err)
	require.True(t, won)

	got1, err := s.GetPlayer(ctx, p1.ID)
	require.NoError(t, err)
	got2, err := s.GetPlayer(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, got1.Score)
	assert.Equal(t, 4, got2.Score)

	// A losing claim applies nothing.
	won, err = s.AdvanceGame(ctx, g.ID, 1, false, map[string]int{p1.ID: 100, p2.ID: 100})
	require.NoError(t, err)
	require.False(t, won)

	got1, err = s.GetPlayer(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, got1.Score)
}

func TestInMemoryStore_IncrementDecisionCount(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	p, _, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, s.IncrementDecisionCount(ctx, p.ID, types.DecisionTrust))
	require.NoError(t, s.IncrementDecisionCount(ctx, p.ID, types.DecisionBetray))
	require.NoError(t, s.IncrementDecisionCount(ctx, p.ID, types.DecisionBetray))

	got, err := s.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TrustCount)
	assert.Equal(t, 2, got.BetrayCount)

	assert.Error(t, s.IncrementDecisionCount(ctx, "missing", types.DecisionTrust))
	assert.Error(t, s.IncrementDecisionCount(ctx, p.ID, "MAYBE"))
}

func TestInMemoryStore_FinishStaleWaitingGames(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	stale, err := s.CreateGame(ctx, "OLDG")
	require.NoError(t, err)
	fresh, err := s.CreateGame(ctx, "NEWG")
	require.NoError(t, err)

	s.lock.Lock()
	s.games[stale.ID].CreatedAt = time.Now().Add(-2 * time.Hour).UnixMilli()
	s.lock.Unlock()

	closed, err := s.FinishStaleWaitingGames(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := s.GetGame(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusFinished, got.Status)

	got, err = s.GetGame(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusWaiting, got.Status)
}

func TestInMemoryStore_CopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	g.Status = types.GameStatusFinished

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusWaiting, got.Status)
}
