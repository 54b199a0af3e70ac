package types

// GameStatus represents the lifecycle status of a game.
// Transitions only move forward: waiting -> active -> finished.
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"
	GameStatusActive   GameStatus = "active"
	GameStatusFinished GameStatus = "finished"
)

// Decision is one player's move in a round.
type Decision string

const (
	DecisionTrust  Decision = "TRUST"
	DecisionBetray Decision = "BETRAY"
)

// Valid reports whether d is a known decision value.
func (d Decision) Valid() bool {
	return d == DecisionTrust || d == DecisionBetray
}

// Game is one session between two players, located by its room code
// while waiting.
type Game struct {
	ID           string     `json:"id"`
	RoomCode     string     `json:"room_code"`
	Status       GameStatus `json:"status"`
	CurrentRound int        `json:"current_round"`
	CreatedAt    int64      `json:"created_at"`
}

// Player is one participant in a game. Score and the decision counters
// are cumulative over the session and never recomputed retroactively.
type Player struct {
	ID          string `json:"id"`
	GameID      string `json:"game_id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	TrustCount  int    `json:"trust_count"`
	BetrayCount int    `json:"betray_count"`
}

// Round binds a round number to a situation. Immutable once created.
type Round struct {
	ID          string `json:"id"`
	GameID      string `json:"game_id"`
	RoundNumber int    `json:"round_number"`
	SituationID string `json:"situation_id"`
}

// Choice is one player's recorded decision for a round. At most one
// choice exists per (round, player) pair.
type Choice struct {
	ID             string   `json:"id"`
	RoundID        string   `json:"round_id"`
	PlayerID       string   `json:"player_id"`
	Choice         Decision `json:"choice"`
	DecisionTimeMS int64    `json:"decision_time_ms"`
}
