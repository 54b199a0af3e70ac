package session

import (
	"github.com/cbodonnell/trustecho/pkg/game/types"
)

// Phase is one client's derived view of the session. It is never
// stored: every notification triggers a full re-derivation from a
// fresh snapshot, so dropped or reordered notifications can never
// wedge a client in a stale phase.
type Phase string

const (
	PhaseHome               Phase = "home"
	PhaseWaitingForOpponent Phase = "waiting"
	PhaseSituationReveal    Phase = "situation"
	PhaseDecision           Phase = "decision"
	PhaseResult             Phase = "result"
	PhaseFinal              Phase = "final"
)

// Snapshot is the full durable state a phase derivation needs: the
// game row, both player rows, the latest round, and that round's
// choices. The system stays fully resumable from one of these; no
// event history is ever replayed.
type Snapshot struct {
	Game    *types.Game     `json:"game"`
	Players []*types.Player `json:"players"`
	Round   *types.Round    `json:"round,omitempty"`
	Choices []*types.Choice `json:"choices,omitempty"`
}

// PlayerByID returns the snapshot's player with the given ID, or nil.
func (s *Snapshot) PlayerByID(playerID string) *types.Player {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// Opponent returns the snapshot's player other than the given one, or
// nil if no opponent has joined yet.
func (s *Snapshot) Opponent(playerID string) *types.Player {
	for _, p := range s.Players {
		if p.ID != playerID {
			return p
		}
	}
	return nil
}

// ChoiceOf returns the recorded choice of the given player for the
// snapshot's round, or nil.
func (s *Snapshot) ChoiceOf(playerID string) *types.Choice {
	for _, c := range s.Choices {
		if c.PlayerID == playerID {
			return c
		}
	}
	return nil
}

// DerivePhase computes a player's phase from a snapshot. Pure: same
// snapshot, same phase. The reveal/decision boundary within an
// unresolved round is a local presentation timer; derivation returns
// PhaseSituationReveal until the player has submitted and clients
// promote it to PhaseDecision themselves.
func DerivePhase(snap *Snapshot, playerID string) Phase {
	if snap == nil || snap.Game == nil {
		return PhaseHome
	}

	switch snap.Game.Status {
	case types.GameStatusFinished:
		return PhaseFinal
	case types.GameStatusWaiting:
		return PhaseWaitingForOpponent
	case types.GameStatusActive:
		// Round 1 creation can lag the activation notification; until
		// the round row lands the opponent screen stays up.
		if snap.Round == nil {
			return PhaseWaitingForOpponent
		}
		if len(snap.Choices) >= 2 {
			return PhaseResult
		}
		if snap.ChoiceOf(playerID) != nil {
			return PhaseDecision
		}
		return PhaseSituationReveal
	default:
		return PhaseHome
	}
}
