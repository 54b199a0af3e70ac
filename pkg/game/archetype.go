package game

import "github.com/cbodonnell/trustecho/pkg/game/types"

// Archetype is a player's end-of-session behavioral classification.
type Archetype string

const (
	ArchetypeBetrayBeast Archetype = "Betray Beast"
	ArchetypeTrustedFool Archetype = "Trusted Fool"
)

// ArchetypeOf classifies a player from their cumulative decision
// counters. A tie favors TrustedFool.
func ArchetypeOf(p *types.Player) Archetype {
	if p.BetrayCount > p.TrustCount {
		return ArchetypeBetrayBeast
	}
	return ArchetypeTrustedFool
}

// ForfeitOutcome names the player who owes the real-world forfeit and
// why.
type ForfeitOutcome struct {
	Payer  *types.Player
	Reason string
}

// DecideForfeit applies the forfeit rule to a decided game: a winning
// Betray Beast pays, otherwise the loser pays. Not applicable when the
// scores tie; callers must treat a tie as a split instead.
func DecideForfeit(winner, loser *types.Player) ForfeitOutcome {
	if ArchetypeOf(winner) == ArchetypeBetrayBeast {
		return ForfeitOutcome{
			Payer:  winner,
			Reason: "Winner is a Betray Beast. Karma demands the winner pays!",
		}
	}
	return ForfeitOutcome{
		Payer:  loser,
		Reason: "Winner is a Trusted Fool. Their trust is rewarded—loser pays!",
	}
}
