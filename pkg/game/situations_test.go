package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSituationPool_RejectsUndersizedCatalog(t *testing.T) {
	_, err := NewSituationPool(DefaultSituations[:3])
	assert.Error(t, err)

	pool, err := NewSituationPool(DefaultSituations)
	require.NoError(t, err)
	assert.Len(t, pool.Situations(), 5)
}

func TestSituationPool_PickExcludes(t *testing.T) {
	pool := NewDefaultSituationPool()
	exclude := []string{"S1", "S2", "S3", "S4"}

	// With four of five excluded only S5 remains.
	for i := 0; i < 20; i++ {
		s := pool.Pick(exclude)
		assert.Equal(t, "S5", s.ID)
	}
}

func TestSituationPool_PickFallsBackWhenExhausted(t *testing.T) {
	pool := NewDefaultSituationPool()
	exclude := []string{"S1", "S2", "S3", "S4", "S5"}

	s := pool.Pick(exclude)
	assert.NotEmpty(t, s.ID)
	_, err := pool.ByID(s.ID)
	assert.NoError(t, err)
}

func TestSituationPool_ByID(t *testing.T) {
	pool := NewDefaultSituationPool()

	s, err := pool.ByID("S4")
	require.NoError(t, err)
	assert.Equal(t, "The Lifeboat", s.Title)

	_, err = pool.ByID("S99")
	assert.Error(t, err)
}
