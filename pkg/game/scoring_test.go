package game

import (
	"testing"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_MatchesMatrixCells(t *testing.T) {
	pool := NewDefaultSituationPool()

	for _, s := range pool.Situations() {
		for key, want := range s.Outcomes {
			mine := types.DecisionTrust
			if key[0] == 'B' {
				mine = types.DecisionBetray
			}
			theirs := types.DecisionTrust
			if key[1] == 'B' {
				theirs = types.DecisionBetray
			}

			mineDelta, theirsDelta, err := Outcome(&s, mine, theirs)
			require.NoError(t, err)
			assert.Equal(t, want[0], mineDelta, "situation %s cell %s", s.ID, key)
			assert.Equal(t, want[1], theirsDelta, "situation %s cell %s", s.ID, key)
		}
	}
}

func TestOutcome_Deterministic(t *testing.T) {
	pool := NewDefaultSituationPool()
	s, err := pool.ByID("S3")
	require.NoError(t, err)

	first, second, err := Outcome(s, types.DecisionTrust, types.DecisionBetray)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		a, b, err := Outcome(s, types.DecisionTrust, types.DecisionBetray)
		require.NoError(t, err)
		assert.Equal(t, first, a)
		assert.Equal(t, second, b)
	}
}

func TestOutcome_LastSlice(t *testing.T) {
	pool := NewDefaultSituationPool()
	lastSlice, err := pool.ByID("S2")
	require.NoError(t, err)
	require.Equal(t, "The Last Slice", lastSlice.Title)

	tests := []struct {
		name        string
		mine        types.Decision
		theirs      types.Decision
		wantMine    int
		wantTheirs  int
	}{
		{name: "both trust", mine: types.DecisionTrust, theirs: types.DecisionTrust, wantMine: 2, wantTheirs: 2},
		{name: "trust against betray", mine: types.DecisionTrust, theirs: types.DecisionBetray, wantMine: -1, wantTheirs: 4},
		{name: "betray against trust", mine: types.DecisionBetray, theirs: types.DecisionTrust, wantMine: 4, wantTheirs: -1},
		{name: "both betray", mine: types.DecisionBetray, theirs: types.DecisionBetray, wantMine: 0, wantTheirs: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mine, theirs, err := Outcome(lastSlice, tt.mine, tt.theirs)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMine, mine)
			assert.Equal(t, tt.wantTheirs, theirs)
		})
	}
}

func TestOutcome_InvalidDecision(t *testing.T) {
	pool := NewDefaultSituationPool()
	s, err := pool.ByID("S1")
	require.NoError(t, err)

	_, _, err = Outcome(s, "MAYBE", types.DecisionTrust)
	assert.Error(t, err)
	_, _, err = Outcome(s, types.DecisionTrust, "")
	assert.Error(t, err)
}
