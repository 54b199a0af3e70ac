package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolationCode = "23505"

// PostgresStore persists sessions in Postgres. Conditional inserts use
// ON CONFLICT DO NOTHING and the join path locks the game row, so two
// concurrent actors can never double-fill a room or double-create a
// round.
type PostgresStore struct {
	pool *pgxpool.Pool
	hub  *eventHub
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, &ErrUnavailable{Cause: err}
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, &ErrUnavailable{Cause: err}
	}
	return &PostgresStore{
		pool: pool,
		hub:  newEventHub(),
	}, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}

func (s *PostgresStore) CreateGame(ctx context.Context, roomCode string) (*types.Game, error) {
	g := &types.Game{
		ID:           uuid.NewString(),
		RoomCode:     roomCode,
		Status:       types.GameStatusWaiting,
		CurrentRound: 0,
		CreatedAt:    time.Now().UnixMilli(),
	}
	q := `
	INSERT INTO games (id, room_code, status, current_round, created_at)
	VALUES ($1, $2, $3, $4, $5);
	`
	if _, err := s.pool.Exec(ctx, q, g.ID, g.RoomCode, g.Status, g.CurrentRound, g.CreatedAt); err != nil {
		if isPGUniqueViolation(err) {
			return nil, &ErrConstraintViolation{Constraint: "games.room_code"}
		}
		return nil, fmt.Errorf("failed to insert game: %v", err)
	}

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableGames, GameID: g.ID, Row: g})
	return g, nil
}

func (s *PostgresStore) scanGame(row pgx.Row) (*types.Game, error) {
	g := &types.Game{}
	if err := row.Scan(&g.ID, &g.RoomCode, &g.Status, &g.CurrentRound, &g.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan game: %v", err)
	}
	return g, nil
}

func (s *PostgresStore) GetGame(ctx context.Context, gameID string) (*types.Game, error) {
	q := `
	SELECT id, room_code, status, current_round, created_at FROM games WHERE id = $1;
	`
	return s.scanGame(s.pool.QueryRow(ctx, q, gameID))
}

func (s *PostgresStore) FindWaitingGame(ctx context.Context, roomCode string) (*types.Game, error) {
	q := `
	SELECT id, room_code, status, current_round, created_at FROM games
	WHERE room_code = $1 AND status = 'waiting';
	`
	return s.scanGame(s.pool.QueryRow(ctx, q, roomCode))
}

func (s *PostgresStore) AdvanceGame(ctx context.Context, gameID string, fromRound int, final bool, scores map[string]int) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	var q string
	if final {
		q = `
		UPDATE games SET status = 'finished'
		WHERE id = $1 AND status = 'active' AND current_round = $2
		RETURNING id, room_code, status, current_round, created_at;
		`
	} else {
		q = `
		UPDATE games SET current_round = current_round + 1
		WHERE id = $1 AND status = 'active' AND current_round = $2
		RETURNING id, room_code, status, current_round, created_at;
		`
	}
	g, err := s.scanGame(tx.QueryRow(ctx, q, gameID, fromRound))
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to advance game: %v", err)
	}

	players := make([]*types.Player, 0, len(scores))
	for playerID, delta := range scores {
		update := `
		UPDATE players SET score = score + $1 WHERE id = $2
		RETURNING id, game_id, name, score, trust_count, betray_count;
		`
		p, err := s.scanPlayer(tx.QueryRow(ctx, update, delta, playerID))
		if err != nil {
			return false, fmt.Errorf("failed to apply score for player %s: %v", playerID, err)
		}
		players = append(players, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %v", err)
	}

	s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TableGames, GameID: gameID, Row: g})
	for _, p := range players {
		s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TablePlayers, GameID: gameID, Row: p})
	}
	return true, nil
}

func (s *PostgresStore) FinishStaleWaitingGames(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	q := `
	UPDATE games SET status = 'finished'
	WHERE status = 'waiting' AND created_at < $1
	RETURNING id, room_code, status, current_round, created_at;
	`
	rows, err := s.pool.Query(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to finish stale games: %v", err)
	}
	defer rows.Close()

	var closed []*types.Game
	for rows.Next() {
		g := &types.Game{}
		if err := rows.Scan(&g.ID, &g.RoomCode, &g.Status, &g.CurrentRound, &g.CreatedAt); err != nil {
			return 0, fmt.Errorf("failed to scan game: %v", err)
		}
		closed = append(closed, g)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate stale games: %v", err)
	}

	for _, g := range closed {
		s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TableGames, GameID: g.ID, Row: g})
	}
	return len(closed), nil
}

func (s *PostgresStore) AddPlayer(ctx context.Context, gameID, name string) (*types.Player, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	// Lock the game row so concurrent joins serialize on it.
	var status types.GameStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM games WHERE id = $1 FOR UPDATE;`, gameID).Scan(&status); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, &ErrNotFound{}
		}
		return nil, false, fmt.Errorf("failed to scan game status: %v", err)
	}
	if status != types.GameStatusWaiting {
		return nil, false, &ErrNotFound{}
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM players WHERE game_id = $1;`, gameID).Scan(&count); err != nil {
		return nil, false, fmt.Errorf("failed to count players: %v", err)
	}
	if count >= 2 {
		return nil, false, &ErrConstraintViolation{Constraint: "players per game"}
	}

	p := &types.Player{
		ID:     uuid.NewString(),
		GameID: gameID,
		Name:   name,
	}
	q := `
	INSERT INTO players (id, game_id, name, score, trust_count, betray_count)
	VALUES ($1, $2, $3, 0, 0, 0);
	`
	if _, err := tx.Exec(ctx, q, p.ID, p.GameID, p.Name); err != nil {
		return nil, false, fmt.Errorf("failed to insert player: %v", err)
	}

	activated := count+1 == 2
	if activated {
		activate := `
		UPDATE games SET status = 'active', current_round = 1
		WHERE id = $1 AND status = 'waiting';
		`
		if _, err := tx.Exec(ctx, activate, gameID); err != nil {
			return nil, false, fmt.Errorf("failed to activate game: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %v", err)
	}

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TablePlayers, GameID: gameID, Row: p})
	if activated {
		g, err := s.GetGame(ctx, gameID)
		if err == nil {
			s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TableGames, GameID: gameID, Row: g})
		}
	}
	return p, activated, nil
}

func (s *PostgresStore) scanPlayer(row pgx.Row) (*types.Player, error) {
	p := &types.Player{}
	if err := row.Scan(&p.ID, &p.GameID, &p.Name, &p.Score, &p.TrustCount, &p.BetrayCount); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan player: %v", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, playerID string) (*types.Player, error) {
	q := `
	SELECT id, game_id, name, score, trust_count, betray_count FROM players WHERE id = $1;
	`
	return s.scanPlayer(s.pool.QueryRow(ctx, q, playerID))
}

func (s *PostgresStore) ListPlayers(ctx context.Context, gameID string) ([]*types.Player, error) {
	q := `
	SELECT id, game_id, name, score, trust_count, betray_count FROM players
	WHERE game_id = $1 ORDER BY seq;
	`
	rows, err := s.pool.Query(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %v", err)
	}
	defer rows.Close()

	var players []*types.Player
	for rows.Next() {
		p := &types.Player{}
		if err := rows.Scan(&p.ID, &p.GameID, &p.Name, &p.Score, &p.TrustCount, &p.BetrayCount); err != nil {
			return nil, fmt.Errorf("failed to scan player: %v", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *PostgresStore) updatePlayer(ctx context.Context, playerID, setClause string, args ...interface{}) error {
	q := fmt.Sprintf(`
	UPDATE players SET %s WHERE id = $%d
	RETURNING id, game_id, name, score, trust_count, betray_count;
	`, setClause, len(args)+1)
	args = append(args, playerID)
	p, err := s.scanPlayer(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		return err
	}

	s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TablePlayers, GameID: p.GameID, Row: p})
	return nil
}

func (s *PostgresStore) IncrementDecisionCount(ctx context.Context, playerID string, decision types.Decision) error {
	switch decision {
	case types.DecisionTrust:
		return s.updatePlayer(ctx, playerID, "trust_count = trust_count + 1")
	case types.DecisionBetray:
		return s.updatePlayer(ctx, playerID, "betray_count = betray_count + 1")
	default:
		return fmt.Errorf("invalid decision: %s", decision)
	}
}

func (s *PostgresStore) CreateRound(ctx context.Context, gameID string, roundNumber int, situationID string) (*types.Round, error) {
	r := &types.Round{
		ID:          uuid.NewString(),
		GameID:      gameID,
		RoundNumber: roundNumber,
		SituationID: situationID,
	}
	q := `
	INSERT INTO rounds (id, game_id, round_number, situation_id)
	VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, q, r.ID, r.GameID, r.RoundNumber, r.SituationID); err != nil {
		if isPGUniqueViolation(err) {
			return nil, &ErrConstraintViolation{Constraint: "rounds.game_id,round_number"}
		}
		return nil, fmt.Errorf("failed to insert round: %v", err)
	}

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableRounds, GameID: gameID, Row: r})
	return r, nil
}

func (s *PostgresStore) scanRound(row pgx.Row) (*types.Round, error) {
	r := &types.Round{}
	if err := row.Scan(&r.ID, &r.GameID, &r.RoundNumber, &r.SituationID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan round: %v", err)
	}
	return r, nil
}

func (s *PostgresStore) LatestRound(ctx context.Context, gameID string) (*types.Round, error) {
	q := `
	SELECT id, game_id, round_number, situation_id FROM rounds
	WHERE game_id = $1 ORDER BY round_number DESC LIMIT 1;
	`
	return s.scanRound(s.pool.QueryRow(ctx, q, gameID))
}

func (s *PostgresStore) ListRounds(ctx context.Context, gameID string) ([]*types.Round, error) {
	q := `
	SELECT id, game_id, round_number, situation_id FROM rounds
	WHERE game_id = $1 ORDER BY round_number;
	`
	rows, err := s.pool.Query(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %v", err)
	}
	defer rows.Close()

	var rounds []*types.Round
	for rows.Next() {
		r := &types.Round{}
		if err := rows.Scan(&r.ID, &r.GameID, &r.RoundNumber, &r.SituationID); err != nil {
			return nil, fmt.Errorf("failed to scan round: %v", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

func (s *PostgresStore) RecordChoice(ctx context.Context, roundID, playerID string, decision types.Decision, decisionTimeMS int64) (*types.Choice, bool, error) {
	if !decision.Valid() {
		return nil, false, fmt.Errorf("invalid decision: %s", decision)
	}

	var gameID string
	if err := s.pool.QueryRow(ctx, `SELECT game_id FROM rounds WHERE id = $1;`, roundID).Scan(&gameID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, &ErrNotFound{}
		}
		return nil, false, fmt.Errorf("failed to scan round: %v", err)
	}

	c := &types.Choice{
		ID:             uuid.NewString(),
		RoundID:        roundID,
		PlayerID:       playerID,
		Choice:         decision,
		DecisionTimeMS: decisionTimeMS,
	}
	q := `
	INSERT INTO choices (id, round_id, player_id, choice, decision_time_ms)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (round_id, player_id) DO NOTHING;
	`
	result, err := s.pool.Exec(ctx, q, c.ID, c.RoundID, c.PlayerID, c.Choice, c.DecisionTimeMS)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert choice: %v", err)
	}

	if result.RowsAffected() == 0 {
		// Lost the race or replayed: return the existing choice.
		existing := &types.Choice{}
		sel := `
		SELECT id, round_id, player_id, choice, decision_time_ms FROM choices
		WHERE round_id = $1 AND player_id = $2;
		`
		if err := s.pool.QueryRow(ctx, sel, roundID, playerID).Scan(&existing.ID, &existing.RoundID, &existing.PlayerID, &existing.Choice, &existing.DecisionTimeMS); err != nil {
			return nil, false, fmt.Errorf("failed to scan existing choice: %v", err)
		}
		return existing, false, nil
	}

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableChoices, GameID: gameID, Row: c})
	return c, true, nil
}

func (s *PostgresStore) ListChoices(ctx context.Context, roundID string) ([]*types.Choice, error) {
	q := `
	SELECT id, round_id, player_id, choice, decision_time_ms FROM choices
	WHERE round_id = $1;
	`
	rows, err := s.pool.Query(ctx, q, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query choices: %v", err)
	}
	defer rows.Close()

	var choices []*types.Choice
	for rows.Next() {
		c := &types.Choice{}
		if err := rows.Scan(&c.ID, &c.RoundID, &c.PlayerID, &c.Choice, &c.DecisionTimeMS); err != nil {
			return nil, fmt.Errorf("failed to scan choice: %v", err)
		}
		choices = append(choices, c)
	}
	return choices, rows.Err()
}

func (s *PostgresStore) Subscribe(gameID string, eventTypes ...EventType) *Subscription {
	return s.hub.subscribe(gameID, eventTypes...)
}
