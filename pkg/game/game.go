// Package game holds the pure domain rules for trust/betray sessions:
// the situation catalog, the payoff scoring engine, and the end-of-game
// archetype and forfeit rules. Nothing in this package performs I/O.
package game

import (
	"math/rand"

	"github.com/cbodonnell/trustecho/pkg/game/types"
)

// RandomDecision returns TRUST or BETRAY with equal probability.
// Used by clients when the decision timer expires.
func RandomDecision() types.Decision {
	if rand.Intn(2) == 0 {
		return types.DecisionTrust
	}
	return types.DecisionBetray
}

// outcomeKey maps an ordered pair of decisions to a payoff matrix key,
// first player's decision first.
func outcomeKey(first, second types.Decision) string {
	key := ""
	if first == types.DecisionTrust {
		key += "T"
	} else {
		key += "B"
	}
	if second == types.DecisionTrust {
		key += "T"
	} else {
		key += "B"
	}
	return key
}
