package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// InMemoryStore is the reference Store implementation. It is the
// substrate for tests and for single-process deployments; the SQL
// backends implement the same semantics with database constraints.
type InMemoryStore struct {
	lock sync.Mutex
	hub  *eventHub

	games   map[string]*types.Game
	players map[string]*types.Player
	rounds  map[string]*types.Round
	choices map[string]*types.Choice

	// playerOrder preserves join order per game.
	playerOrder map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		hub:         newEventHub(),
		games:       make(map[string]*types.Game),
		players:     make(map[string]*types.Player),
		rounds:      make(map[string]*types.Round),
		choices:     make(map[string]*types.Choice),
		playerOrder: make(map[string][]string),
	}
}

func (s *InMemoryStore) Close(ctx context.Context) error {
	return nil
}

func copyGame(g *types.Game) *types.Game {
	out := &types.Game{}
	_ = copier.Copy(out, g)
	return out
}

func copyPlayer(p *types.Player) *types.Player {
	out := &types.Player{}
	_ = copier.Copy(out, p)
	return out
}

func copyRound(r *types.Round) *types.Round {
	out := &types.Round{}
	_ = copier.Copy(out, r)
	return out
}

func copyChoice(c *types.Choice) *types.Choice {
	out := &types.Choice{}
	_ = copier.Copy(out, c)
	return out
}

func (s *InMemoryStore) CreateGame(ctx context.Context, roomCode string) (*types.Game, error) {
	s.lock.Lock()
	for _, g := range s.games {
		if g.RoomCode == roomCode && g.Status == types.GameStatusWaiting {
			s.lock.Unlock()
			return nil, &ErrConstraintViolation{Constraint: "games.room_code"}
		}
	}
	g := &types.Game{
		ID:           uuid.NewString(),
		RoomCode:     roomCode,
		Status:       types.GameStatusWaiting,
		CurrentRound: 0,
		CreatedAt:    time.Now().UnixMilli(),
	}
	s.games[g.ID] = g
	out := copyGame(g)
	s.lock.Unlock()

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableGames, GameID: g.ID, Row: copyGame(g)})
	return out, nil
}

func (s *InMemoryStore) GetGame(ctx context.Context, gameID string) (*types.Game, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return copyGame(g), nil
}

func (s *InMemoryStore) FindWaitingGame(ctx context.Context, roomCode string) (*types.Game, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, g := range s.games {
		if g.RoomCode == roomCode && g.Status == types.GameStatusWaiting {
			return copyGame(g), nil
		}
	}
	return nil, &ErrNotFound{}
}

func (s *InMemoryStore) AdvanceGame(ctx context.Context, gameID string, fromRound int, final bool, scores map[string]int) (bool, error) {
	s.lock.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.lock.Unlock()
		return false, &ErrNotFound{}
	}
	if g.Status != types.GameStatusActive || g.CurrentRound != fromRound {
		s.lock.Unlock()
		return false, nil
	}
	for playerID := range scores {
		if _, ok := s.players[playerID]; !ok {
			s.lock.Unlock()
			return false, &ErrNotFound{}
		}
	}

	if final {
		g.Status = types.GameStatusFinished
	} else {
		g.CurrentRound = fromRound + 1
	}
	var playerRows []*types.Player
	for playerID, delta := range scores {
		p := s.players[playerID]
		p.Score += delta
		playerRows = append(playerRows, copyPlayer(p))
	}
	row := copyGame(g)
	s.lock.Unlock()

	s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TableGames, GameID: gameID, Row: row})
	for _, p := range playerRows {
		s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TablePlayers, GameID: gameID, Row: p})
	}
	return true, nil
}

func (s *InMemoryStore) FinishStaleWaitingGames(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	s.lock.Lock()
	var closed []*types.Game
	for _, g := range s.games {
		if g.Status == types.GameStatusWaiting && g.CreatedAt < cutoff {
			g.Status = types.GameStatusFinished
			closed = append(closed, copyGame(g))
		}
	}
	s.lock.Unlock()

	for _, g := range closed {
		s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TableGames, GameID: g.ID, Row: g})
	}
	return len(closed), nil
}

func (s *InMemoryStore) AddPlayer(ctx context.Context, gameID, name string) (*types.Player, bool, error) {
	s.lock.Lock()
	g, ok := s.games[gameID]
	if !ok || g.Status != types.GameStatusWaiting {
		s.lock.Unlock()
		return nil, false, &ErrNotFound{}
	}
	if len(s.playerOrder[gameID]) >= 2 {
		s.lock.Unlock()
		return nil, false, &ErrConstraintViolation{Constraint: "players per game"}
	}
	p := &types.Player{
		ID:     uuid.NewString(),
		GameID: gameID,
		Name:   name,
	}
	s.players[p.ID] = p
	s.playerOrder[gameID] = append(s.playerOrder[gameID], p.ID)

	activated := len(s.playerOrder[gameID]) == 2
	var gameRow *types.Game
	if activated {
		g.Status = types.GameStatusActive
		g.CurrentRound = 1
		gameRow = copyGame(g)
	}
	out := copyPlayer(p)
	s.lock.Unlock()

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TablePlayers, GameID: gameID, Row: copyPlayer(p)})
	if activated {
		s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TableGames, GameID: gameID, Row: gameRow})
	}
	return out, activated, nil
}

func (s *InMemoryStore) GetPlayer(ctx context.Context, playerID string) (*types.Player, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return copyPlayer(p), nil
}

func (s *InMemoryStore) ListPlayers(ctx context.Context, gameID string) ([]*types.Player, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var players []*types.Player
	for _, id := range s.playerOrder[gameID] {
		players = append(players, copyPlayer(s.players[id]))
	}
	return players, nil
}

func (s *InMemoryStore) IncrementDecisionCount(ctx context.Context, playerID string, decision types.Decision) error {
	if !decision.Valid() {
		return fmt.Errorf("invalid decision: %s", decision)
	}

	s.lock.Lock()
	p, ok := s.players[playerID]
	if !ok {
		s.lock.Unlock()
		return &ErrNotFound{}
	}
	if decision == types.DecisionTrust {
		p.TrustCount++
	} else {
		p.BetrayCount++
	}
	row := copyPlayer(p)
	s.lock.Unlock()

	s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TablePlayers, GameID: row.GameID, Row: row})
	return nil
}

func (s *InMemoryStore) CreateRound(ctx context.Context, gameID string, roundNumber int, situationID string) (*types.Round, error) {
	s.lock.Lock()
	if _, ok := s.games[gameID]; !ok {
		s.lock.Unlock()
		return nil, &ErrNotFound{}
	}
	for _, r := range s.rounds {
		if r.GameID == gameID && r.RoundNumber == roundNumber {
			s.lock.Unlock()
			return nil, &ErrConstraintViolation{Constraint: "rounds.game_id,round_number"}
		}
	}
	r := &types.Round{
		ID:          uuid.NewString(),
		GameID:      gameID,
		RoundNumber: roundNumber,
		SituationID: situationID,
	}
	s.rounds[r.ID] = r
	out := copyRound(r)
	s.lock.Unlock()

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableRounds, GameID: gameID, Row: copyRound(r)})
	return out, nil
}

func (s *InMemoryStore) LatestRound(ctx context.Context, gameID string) (*types.Round, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var latest *types.Round
	for _, r := range s.rounds {
		if r.GameID != gameID {
			continue
		}
		if latest == nil || r.RoundNumber > latest.RoundNumber {
			latest = r
		}
	}
	if latest == nil {
		return nil, &ErrNotFound{}
	}
	return copyRound(latest), nil
}

func (s *InMemoryStore) ListRounds(ctx context.Context, gameID string) ([]*types.Round, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var rounds []*types.Round
	for _, r := range s.rounds {
		if r.GameID == gameID {
			rounds = append(rounds, copyRound(r))
		}
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].RoundNumber < rounds[j].RoundNumber
	})
	return rounds, nil
}

func (s *InMemoryStore) RecordChoice(ctx context.Context, roundID, playerID string, decision types.Decision, decisionTimeMS int64) (*types.Choice, bool, error) {
	if !decision.Valid() {
		return nil, false, fmt.Errorf("invalid decision: %s", decision)
	}

	s.lock.Lock()
	round, ok := s.rounds[roundID]
	if !ok {
		s.lock.Unlock()
		return nil, false, &ErrNotFound{}
	}
	for _, c := range s.choices {
		if c.RoundID == roundID && c.PlayerID == playerID {
			out := copyChoice(c)
			s.lock.Unlock()
			return out, false, nil
		}
	}
	c := &types.Choice{
		ID:             uuid.NewString(),
		RoundID:        roundID,
		PlayerID:       playerID,
		Choice:         decision,
		DecisionTimeMS: decisionTimeMS,
	}
	s.choices[c.ID] = c
	gameID := round.GameID
	out := copyChoice(c)
	s.lock.Unlock()

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableChoices, GameID: gameID, Row: copyChoice(c)})
	return out, true, nil
}

func (s *InMemoryStore) ListChoices(ctx context.Context, roundID string) ([]*types.Choice, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var choices []*types.Choice
	for _, c := range s.choices {
		if c.RoundID == roundID {
			choices = append(choices, copyChoice(c))
		}
	}
	sort.Slice(choices, func(i, j int) bool {
		return choices[i].ID < choices[j].ID
	})
	return choices, nil
}

func (s *InMemoryStore) Subscribe(gameID string, eventTypes ...EventType) *Subscription {
	return s.hub.subscribe(gameID, eventTypes...)
}
