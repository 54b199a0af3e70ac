package constants

import "time"

const (
	// TotalRounds is the fixed number of rounds per session.
	TotalRounds = 5

	// PlayersPerGame is the fixed number of participants in a session.
	PlayersPerGame = 2

	// RoomCodeLength is the length of generated room codes.
	RoomCodeLength = 4

	// DecisionTimeout is how long a client waits for a local decision
	// before auto-submitting a random one.
	DecisionTimeout = 15 * time.Second

	// SituationRevealDuration is a presentation hint for clients. The
	// reveal/decision boundary is a local timer, not durable state.
	SituationRevealDuration = 7 * time.Second

	// ResultDisplayDuration is a presentation hint for clients.
	ResultDisplayDuration = 4 * time.Second
)
