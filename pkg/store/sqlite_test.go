package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"), "../../migrations/sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestSQLiteStore_RoomLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)

	_, err = s.CreateGame(ctx, "ABCD")
	require.Error(t, err)
	assert.True(t, IsConstraintViolation(err))

	_, activated, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.False(t, activated)
	_, activated, err = s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.True(t, activated)

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusActive, got.Status)
	assert.Equal(t, 1, got.CurrentRound)

	_, _, err = s.AddPlayer(ctx, g.ID, "carol")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// The active game no longer holds the code.
	_, err = s.CreateGame(ctx, "ABCD")
	assert.NoError(t, err)
}

func TestSQLiteStore_ConcurrentJoinsSerialize(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)

	names := []string{"alice", "bob", "carol"}
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, _, errs[i] = s.AddPlayer(ctx, g.ID, name)
		}(i, name)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures++
		// The loser must land in the benign taxonomy, not a raw
		// busy error.
		assert.True(t, IsNotFound(err) || IsConstraintViolation(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, failures)

	players, err := s.ListPlayers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, players, 2)

	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusActive, got.Status)
}

func TestSQLiteStore_RecordChoiceIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	p, _, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	r, err := s.CreateRound(ctx, g.ID, 1, "S1")
	require.NoError(t, err)

	first, inserted, err := s.RecordChoice(ctx, r.ID, p.ID, types.DecisionBetray, 640)
	require.NoError(t, err)
	assert.True(t, inserted)

	second, inserted, err := s.RecordChoice(ctx, r.ID, p.ID, types.DecisionTrust, 9000)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, types.DecisionBetray, second.Choice)
	assert.Equal(t, int64(640), second.DecisionTimeMS)

	_, err = s.CreateRound(ctx, g.ID, 1, "S2")
	require.Error(t, err)
	assert.True(t, IsConstraintViolation(err))
}

func TestSQLiteStore_AdvanceGameAppliesScoresWithClaim(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	g, err := s.CreateGame(ctx, "ABCD")
	require.NoError(t, err)
	p1, _, err := s.AddPlayer(ctx, g.ID, "alice")
	require.NoError(t, err)
	p2, _, err := s.AddPlayer(ctx, g.ID, "bob")
	require.NoError(t, err)

	won, err := s.AdvanceGame(ctx, g.ID, 1, false, map[string]int{p1.ID: 3, p2.ID: -2})
	require.NoError(t, err)
	require.True(t, won)

	got1, err := s.GetPlayer(ctx, p1.ID)
	require.NoError(t, err)
	got2, err := s.GetPlayer(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got1.Score)
	assert.Equal(t, -2, got2.Score)

	// A stale claim rolls back without touching scores.
	won, err = s.AdvanceGame(ctx, g.ID, 1, false, map[string]int{p1.ID: 100})
	require.NoError(t, err)
	require.False(t, won)
	got1, err = s.GetPlayer(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got1.Score)

	won, err = s.AdvanceGame(ctx, g.ID, 2, true, nil)
	require.NoError(t, err)
	require.True(t, won)
	got, err := s.GetGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GameStatusFinished, got.Status)
}
