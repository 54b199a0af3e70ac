// Package session implements the per-game state machine: room
// lifecycle, round synchronization, deterministic scoring application,
// and phase derivation. Two remote actors mutate shared state with no
// central lock; correctness rests on the store's uniqueness
// constraints and on every operation here being idempotent or guarded
// by a compare-and-set.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/constants"
	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/store"

	gamepkg "github.com/cbodonnell/trustecho/pkg/game"
)

const (
	// roomCodeCharset omits easily-confused characters (I, O, 0, 1).
	roomCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// roomCodeMaxRetries bounds retries when a generated code collides
	// with another waiting room.
	roomCodeMaxRetries = 16
)

// Coordinator owns one client's bound session and exposes the
// create/join/submit/advance/resync operations against the shared
// store.
type Coordinator struct {
	store  store.Store
	pool   *gamepkg.SituationPool
	ledger *ChoiceLedger
	rounds *RoundManager

	// bindLock guards the binding fields: a reconnect can rebind while
	// the handle's reconcile goroutine is reading them.
	bindLock sync.RWMutex
	gameID   string
	playerID string
}

func NewCoordinator(s store.Store, pool *gamepkg.SituationPool) *Coordinator {
	return &Coordinator{
		store:  s,
		pool:   pool,
		ledger: NewChoiceLedger(s),
		rounds: NewRoundManager(s, pool),
	}
}

// GameID returns the bound game ID, or "" before binding.
func (c *Coordinator) GameID() string {
	c.bindLock.RLock()
	defer c.bindLock.RUnlock()
	return c.gameID
}

// PlayerID returns the bound player ID, or "" before binding.
func (c *Coordinator) PlayerID() string {
	c.bindLock.RLock()
	defer c.bindLock.RUnlock()
	return c.playerID
}

// binding returns both bound IDs consistently.
func (c *Coordinator) binding() (string, string) {
	c.bindLock.RLock()
	defer c.bindLock.RUnlock()
	return c.gameID, c.playerID
}

// Rebind points the coordinator at an existing game and player,
// typically on reconnect before a resync.
func (c *Coordinator) Rebind(gameID, playerID string) {
	c.bindLock.Lock()
	defer c.bindLock.Unlock()
	c.gameID = gameID
	c.playerID = playerID
}

// NewRoomCode returns a random room code. Uniqueness among waiting
// games is enforced by the store, not here.
func NewRoomCode() (string, error) {
	data := make([]byte, constants.RoomCodeLength)
	if _, err := rand.Read(data); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %v", err)
	}
	for i, b := range data {
		data[i] = roomCodeCharset[b%byte(len(roomCodeCharset))]
	}
	return string(data), nil
}

// CreateRoom creates a waiting game with a fresh room code, creates
// the first player, and binds this session to it.
func (c *Coordinator) CreateRoom(ctx context.Context, playerName string) (*Snapshot, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, &ErrNameInvalid{}
	}

	var g *types.Game
	for attempt := 0; attempt < roomCodeMaxRetries; attempt++ {
		code, err := NewRoomCode()
		if err != nil {
			return nil, err
		}
		g, err = c.store.CreateGame(ctx, code)
		if err == nil {
			break
		}
		if !store.IsConstraintViolation(err) {
			return nil, fmt.Errorf("failed to create game: %v", err)
		}
		g = nil
		log.Debug("Room code %s collided, retrying", code)
	}
	if g == nil {
		return nil, fmt.Errorf("failed to generate a unique room code after %d attempts", roomCodeMaxRetries)
	}

	player, _, err := c.store.AddPlayer(ctx, g.ID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %v", err)
	}

	c.Rebind(g.ID, player.ID)
	log.Info("Player %s created room %s (game %s)", player.ID, g.RoomCode, g.ID)
	return c.Snapshot(ctx)
}

// JoinRoom joins the waiting game with the given room code as the
// second player, activating the game and creating round 1. Losing the
// fill race to another joiner surfaces as ErrRoomFull; the room being
// gone or already active surfaces as ErrRoomNotFound.
func (c *Coordinator) JoinRoom(ctx context.Context, roomCode, playerName string) (*Snapshot, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, &ErrNameInvalid{}
	}
	code := strings.ToUpper(strings.TrimSpace(roomCode))

	g, err := c.store.FindWaitingGame(ctx, code)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &ErrRoomNotFound{Code: code}
		}
		return nil, fmt.Errorf("failed to look up room: %v", err)
	}

	player, activated, err := c.store.AddPlayer(ctx, g.ID, name)
	if err != nil {
		switch {
		case store.IsNotFound(err):
			return nil, &ErrRoomNotFound{Code: code}
		case store.IsConstraintViolation(err):
			return nil, &ErrRoomFull{Code: code}
		default:
			return nil, fmt.Errorf("failed to join room: %v", err)
		}
	}

	c.Rebind(g.ID, player.ID)
	log.Info("Player %s joined room %s (game %s)", player.ID, code, g.ID)

	if activated {
		if _, err := c.rounds.CreateRound(ctx, g.ID, 1); err != nil {
			return nil, fmt.Errorf("failed to create first round: %v", err)
		}
	}
	return c.Snapshot(ctx)
}

// SubmitChoice records the bound player's decision for the current
// round. Resubmission in the same round is a no-op, which also makes
// duplicate timer-forced submissions harmless.
func (c *Coordinator) SubmitChoice(ctx context.Context, decision types.Decision, decisionTime int64) error {
	gameID, playerID := c.binding()
	if gameID == "" || playerID == "" {
		return fmt.Errorf("no session bound")
	}
	if !decision.Valid() {
		return fmt.Errorf("invalid decision: %s", decision)
	}
	if decisionTime < 0 {
		return fmt.Errorf("decision time must not be negative")
	}

	round, err := c.store.LatestRound(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to load current round: %v", err)
	}

	if _, err := c.ledger.Record(ctx, round.ID, playerID, decision, time.Duration(decisionTime)*time.Millisecond); err != nil {
		return fmt.Errorf("failed to record choice: %v", err)
	}
	return nil
}

// AdvanceRound resolves the current round once both choices exist:
// both score deltas are applied atomically with a compare-and-set
// claim on the game row, then the next round is created (or the game
// finishes after round 5). Called before the round is resolved it is
// a no-op, and when two clients race to advance, exactly one claim
// wins. A winner that dies between claiming and creating the next
// round leaves the game row ahead of the round table; any later
// AdvanceRound call detects the gap and creates the missing round,
// so no failure mode needs more than a retry to recover.
func (c *Coordinator) AdvanceRound(ctx context.Context) error {
	gameID, _ := c.binding()
	if gameID == "" {
		return fmt.Errorf("no session bound")
	}

	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to load game: %v", err)
	}
	if g.Status != types.GameStatusActive {
		return nil
	}

	round, err := c.store.LatestRound(ctx, gameID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load current round: %v", err)
	}

	if g.CurrentRound > round.RoundNumber {
		// A previous advance won its claim but died before creating
		// the next round. Its scores landed with the claim; only the
		// round row is missing.
		log.Warn("Game %s is on round %d with no round row, repairing", gameID, g.CurrentRound)
		if _, err := c.rounds.CreateRound(ctx, gameID, g.CurrentRound); err != nil {
			return fmt.Errorf("failed to repair missing round %d: %v", g.CurrentRound, err)
		}
		return nil
	}

	choices, err := c.store.ListChoices(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("failed to list choices: %v", err)
	}
	if len(choices) < 2 {
		// Round not resolved yet; guarded by ledger state, not an error.
		return nil
	}

	players, err := c.store.ListPlayers(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to list players: %v", err)
	}
	deltas, err := c.rounds.Deltas(round, players, choices)
	if err != nil {
		return fmt.Errorf("failed to resolve round: %v", err)
	}

	final := round.RoundNumber >= constants.TotalRounds
	won, err := c.store.AdvanceGame(ctx, gameID, round.RoundNumber, final, deltas)
	if err != nil {
		return fmt.Errorf("failed to claim round advance: %v", err)
	}
	if !won {
		// The other client is advancing; its notifications carry us along.
		log.Debug("Lost advance claim for round %d of game %s", round.RoundNumber, gameID)
		return nil
	}

	if final {
		log.Info("Game %s finished after round %d", gameID, round.RoundNumber)
		return nil
	}

	if _, err := c.rounds.CreateRound(ctx, gameID, round.RoundNumber+1); err != nil {
		return fmt.Errorf("failed to create round %d: %v", round.RoundNumber+1, err)
	}
	return nil
}

// Snapshot fetches the full durable state of the bound session: the
// game, its players, the latest round, and that round's choices.
func (c *Coordinator) Snapshot(ctx context.Context) (*Snapshot, error) {
	gameID, _ := c.binding()
	if gameID == "" {
		return nil, fmt.Errorf("no session bound")
	}

	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %v", err)
	}
	players, err := c.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %v", err)
	}

	snap := &Snapshot{
		Game:    g,
		Players: players,
	}

	round, err := c.store.LatestRound(ctx, gameID)
	if err != nil {
		if store.IsNotFound(err) {
			return snap, nil
		}
		return nil, fmt.Errorf("failed to load latest round: %v", err)
	}
	snap.Round = round

	choices, err := c.store.ListChoices(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list choices: %v", err)
	}
	snap.Choices = choices
	return snap, nil
}

// Resync reconstructs the client's phase from the latest durable
// snapshot after a missed or out-of-order notification. No event
// history is replayed: the latest game, round, and choice rows are
// sufficient to land in the correct phase.
func (c *Coordinator) Resync(ctx context.Context) (*Snapshot, Phase, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, PhaseHome, err
	}
	return snap, DerivePhase(snap, c.PlayerID()), nil
}
