// Package store defines the durable table store behind game sessions.
// Correctness of the whole system rests on this layer's uniqueness
// constraints and conditional mutations: room codes are unique among
// waiting games, (game, round_number) and (round, player) pairs are
// unique, and round advancement is a compare-and-set on the game row.
// Every mutation is broadcast to subscribers as a change event.
package store

import (
	"context"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/types"
)

type Store interface {
	Close(ctx context.Context) error

	// CreateGame inserts a new waiting game. Returns
	// ErrConstraintViolation if the room code collides with another
	// waiting game.
	CreateGame(ctx context.Context, roomCode string) (*types.Game, error)
	// GetGame returns a game by ID, or ErrNotFound.
	GetGame(ctx context.Context, gameID string) (*types.Game, error)
	// FindWaitingGame returns the waiting game with the given room
	// code, or ErrNotFound if none exists or it is no longer waiting.
	FindWaitingGame(ctx context.Context, roomCode string) (*types.Game, error)
	// AdvanceGame is the round-claim compare-and-set: it succeeds only
	// if the game is active and its current round equals fromRound.
	// When final is false the current round is bumped by one; when
	// final is true the game is marked finished. The per-player score
	// deltas are applied atomically with a winning claim, so a caller
	// that dies right after claiming can never lose the round's scores.
	// Returns whether this caller won the claim. Losing is not an
	// error and applies no deltas.
	AdvanceGame(ctx context.Context, gameID string, fromRound int, final bool, scores map[string]int) (bool, error)
	// FinishStaleWaitingGames closes out waiting games older than the
	// given age and returns how many were closed.
	FinishStaleWaitingGames(ctx context.Context, olderThan time.Duration) (int, error)

	// AddPlayer inserts a player into a waiting game. Returns
	// ErrNotFound if the game does not exist or is no longer waiting,
	// and ErrConstraintViolation if the game already has two players.
	// When the insert brings the player count to exactly two, the game
	// atomically becomes active with current round 1 and the returned
	// bool is true.
	AddPlayer(ctx context.Context, gameID, name string) (*types.Player, bool, error)
	// GetPlayer returns a player by ID, or ErrNotFound.
	GetPlayer(ctx context.Context, playerID string) (*types.Player, error)
	// ListPlayers returns a game's players in join order.
	ListPlayers(ctx context.Context, gameID string) ([]*types.Player, error)
	// IncrementDecisionCount bumps a player's trust or betray counter.
	IncrementDecisionCount(ctx context.Context, playerID string, decision types.Decision) error

	// CreateRound is a compare-and-create: it inserts round
	// roundNumber for the game only if no round with that number
	// exists yet, otherwise ErrConstraintViolation.
	CreateRound(ctx context.Context, gameID string, roundNumber int, situationID string) (*types.Round, error)
	// LatestRound returns the round with the highest round number for
	// the game, or ErrNotFound if the game has no rounds.
	LatestRound(ctx context.Context, gameID string) (*types.Round, error)
	// ListRounds returns a game's rounds ordered by round number.
	ListRounds(ctx context.Context, gameID string) ([]*types.Round, error)

	// RecordChoice inserts a choice for (round, player) if absent. If
	// a choice already exists for the pair it is returned unchanged
	// and the bool is false. The bool is true only for the first
	// insertion.
	RecordChoice(ctx context.Context, roundID, playerID string, decision types.Decision, decisionTimeMS int64) (*types.Choice, bool, error)
	// ListChoices returns all choices recorded for a round.
	ListChoices(ctx context.Context, roundID string) ([]*types.Choice, error)

	// Subscribe opens a change feed for one game. Delivery is
	// at-least-once and unordered across tables; consumers must treat
	// each event as "something changed" and re-derive their state from
	// a fresh snapshot. Slow consumers may have events dropped and
	// recover via resync.
	Subscribe(gameID string, eventTypes ...EventType) *Subscription
}
