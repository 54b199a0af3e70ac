package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists sessions in a SQLite database. Uniqueness rules
// live in the schema; change events are fanned out in-process after
// each successful mutation.
type SQLiteStore struct {
	db  *sql.DB
	hub *eventHub
}

func NewSQLiteStore(ctx context.Context, path string, migrations string) (*SQLiteStore, error) {
	// Immediate transactions take the write lock up front, so two
	// joiners racing through AddPlayer serialize on it instead of one
	// failing with a busy error mid-transaction.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteStore{
		db:  db,
		hub: newEventHub(),
	}, nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func (s *SQLiteStore) CreateGame(ctx context.Context, roomCode string) (*types.Game, error) {
	g := &types.Game{
		ID:           uuid.NewString(),
		RoomCode:     roomCode,
		Status:       types.GameStatusWaiting,
		CurrentRound: 0,
		CreatedAt:    time.Now().UnixMilli(),
	}
	q := `
	INSERT INTO games (id, room_code, status, current_round, created_at)
	VALUES (?, ?, ?, ?, ?);
	`
	if _, err := s.db.ExecContext(ctx, q, g.ID, g.RoomCode, g.Status, g.CurrentRound, g.CreatedAt); err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, &ErrConstraintViolation{Constraint: "games.room_code"}
		}
		return nil, fmt.Errorf("failed to insert game: %v", err)
	}

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableGames, GameID: g.ID, Row: g})
	return g, nil
}

func (s *SQLiteStore) scanGame(row *sql.Row) (*types.Game, error) {
	g := &types.Game{}
	if err := row.Scan(&g.ID, &g.RoomCode, &g.Status, &g.CurrentRound, &g.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan game: %v", err)
	}
	return g, nil
}

func (s *SQLiteStore) GetGame(ctx context.Context, gameID string) (*types.Game, error) {
	q := `
	SELECT id, room_code, status, current_round, created_at FROM games WHERE id = ?;
	`
	return s.scanGame(s.db.QueryRowContext(ctx, q, gameID))
}

func (s *SQLiteStore) FindWaitingGame(ctx context.Context, roomCode string) (*types.Game, error) {
	q := `
	SELECT id, room_code, status, current_round, created_at FROM games
	WHERE room_code = ? AND status = ?;
	`
	return s.scanGame(s.db.QueryRowContext(ctx, q, roomCode, types.GameStatusWaiting))
}

func (s *SQLiteStore) AdvanceGame(ctx context.Context, gameID string, fromRound int, final bool, scores map[string]int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var q string
	if final {
		q = `
		UPDATE games SET status = 'finished'
		WHERE id = ? AND status = 'active' AND current_round = ?;
		`
	} else {
		q = `
		UPDATE games SET current_round = current_round + 1
		WHERE id = ? AND status = 'active' AND current_round = ?;
		`
	}
	result, err := tx.ExecContext(ctx, q, gameID, fromRound)
	if err != nil {
		return false, fmt.Errorf("failed to advance game: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		return false, nil
	}

	for playerID, delta := range scores {
		result, err := tx.ExecContext(ctx, `UPDATE players SET score = score + ? WHERE id = ?;`, delta, playerID)
		if err != nil {
			return false, fmt.Errorf("failed to apply score for player %s: %v", playerID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get rows affected: %v", err)
		}
		if affected == 0 {
			return false, &ErrNotFound{}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %v", err)
	}

	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return true, fmt.Errorf("failed to reload advanced game: %v", err)
	}
	s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TableGames, GameID: gameID, Row: g})
	for playerID := range scores {
		p, err := s.GetPlayer(ctx, playerID)
		if err == nil {
			s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TablePlayers, GameID: gameID, Row: p})
		}
	}
	return true, nil
}

func (s *SQLiteStore) FinishStaleWaitingGames(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	q := `
	UPDATE games SET status = 'finished'
	WHERE status = 'waiting' AND created_at < ?
	RETURNING id, room_code, status, current_round, created_at;
	`
	rows, err := s.db.QueryContext(ctx, q, cutoff)
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

func (s *SQLiteStore) AddPlayer(ctx context.Context, gameID, name string) (*types.Player, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	var status types.GameStatus
	if err := tx.QueryRowContext(ctx, `SELECT status FROM games WHERE id = ?;`, gameID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, &ErrNotFound{}
		}
		return nil, false, fmt.Errorf("failed to scan game status: %v", err)
	}
	if status != types.GameStatusWaiting {
		return nil, false, &ErrNotFound{}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE game_id = ?;`, gameID).Scan(&count); err != nil {
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
	VALUES (?, ?, ?, 0, 0, 0);
	`
	if _, err := tx.ExecContext(ctx, q, p.ID, p.GameID, p.Name); err != nil {
		return nil, false, fmt.Errorf("failed to insert player: %v", err)
	}

	activated := count+1 == 2
	if activated {
		activate := `
		UPDATE games SET status = 'active', current_round = 1
		WHERE id = ? AND status = 'waiting';
		`
		if _, err := tx.ExecContext(ctx, activate, gameID); err != nil {
			return nil, false, fmt.Errorf("failed to activate game: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
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

func (s *SQLiteStore) scanPlayer(row *sql.Row) (*types.Player, error) {
	p := &types.Player{}
	if err := row.Scan(&p.ID, &p.GameID, &p.Name, &p.Score, &p.TrustCount, &p.BetrayCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan player: %v", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetPlayer(ctx context.Context, playerID string) (*types.Player, error) {
	q := `
	SELECT id, game_id, name, score, trust_count, betray_count FROM players WHERE id = ?;
	`
	return s.scanPlayer(s.db.QueryRowContext(ctx, q, playerID))
}

func (s *SQLiteStore) ListPlayers(ctx context.Context, gameID string) ([]*types.Player, error) {
	q := `
	SELECT id, game_id, name, score, trust_count, betray_count FROM players
	WHERE game_id = ? ORDER BY rowid;
	`
	rows, err := s.db.QueryContext(ctx, q, gameID)
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

func (s *SQLiteStore) updatePlayer(ctx context.Context, playerID, setClause string, args ...interface{}) error {
	q := fmt.Sprintf(`UPDATE players SET %s WHERE id = ?;`, setClause)
	args = append(args, playerID)
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update player: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		return &ErrNotFound{}
	}

	p, err := s.GetPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to reload player: %v", err)
	}
	s.hub.publish(ChangeEvent{Type: EventTypeUpdate, Table: TablePlayers, GameID: p.GameID, Row: p})
	return nil
}

func (s *SQLiteStore) IncrementDecisionCount(ctx context.Context, playerID string, decision types.Decision) error {
	switch decision {
	case types.DecisionTrust:
		return s.updatePlayer(ctx, playerID, "trust_count = trust_count + 1")
	case types.DecisionBetray:
		return s.updatePlayer(ctx, playerID, "betray_count = betray_count + 1")
	default:
		return fmt.Errorf("invalid decision: %s", decision)
	}
}

func (s *SQLiteStore) CreateRound(ctx context.Context, gameID string, roundNumber int, situationID string) (*types.Round, error) {
	r := &types.Round{
		ID:          uuid.NewString(),
		GameID:      gameID,
		RoundNumber: roundNumber,
		SituationID: situationID,
	}
	q := `
	INSERT INTO rounds (id, game_id, round_number, situation_id)
	VALUES (?, ?, ?, ?);
	`
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.GameID, r.RoundNumber, r.SituationID); err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, &ErrConstraintViolation{Constraint: "rounds.game_id,round_number"}
		}
		return nil, fmt.Errorf("failed to insert round: %v", err)
	}

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableRounds, GameID: gameID, Row: r})
	return r, nil
}

func (s *SQLiteStore) LatestRound(ctx context.Context, gameID string) (*types.Round, error) {
	q := `
	SELECT id, game_id, round_number, situation_id FROM rounds
	WHERE game_id = ? ORDER BY round_number DESC LIMIT 1;
	`
	r := &types.Round{}
	if err := s.db.QueryRowContext(ctx, q, gameID).Scan(&r.ID, &r.GameID, &r.RoundNumber, &r.SituationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan round: %v", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRounds(ctx context.Context, gameID string) ([]*types.Round, error) {
	q := `
	SELECT id, game_id, round_number, situation_id FROM rounds
	WHERE game_id = ? ORDER BY round_number;
	`
	rows, err := s.db.QueryContext(ctx, q, gameID)
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

func (s *SQLiteStore) RecordChoice(ctx context.Context, roundID, playerID string, decision types.Decision, decisionTimeMS int64) (*types.Choice, bool, error) {
	if !decision.Valid() {
		return nil, false, fmt.Errorf("invalid decision: %s", decision)
	}

	var gameID string
	if err := s.db.QueryRowContext(ctx, `SELECT game_id FROM rounds WHERE id = ?;`, roundID).Scan(&gameID); err != nil {
		if err == sql.ErrNoRows {
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
	INSERT OR IGNORE INTO choices (id, round_id, player_id, choice, decision_time_ms)
	VALUES (?, ?, ?, ?, ?);
	`
	result, err := s.db.ExecContext(ctx, q, c.ID, c.RoundID, c.PlayerID, c.Choice, c.DecisionTimeMS)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert choice: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %v", err)
	}

	if affected == 0 {
		// Lost the race or replayed: return the existing choice.
		existing := &types.Choice{}
		sel := `
		SELECT id, round_id, player_id, choice, decision_time_ms FROM choices
		WHERE round_id = ? AND player_id = ?;
		`
		if err := s.db.QueryRowContext(ctx, sel, roundID, playerID).Scan(&existing.ID, &existing.RoundID, &existing.PlayerID, &existing.Choice, &existing.DecisionTimeMS); err != nil {
			return nil, false, fmt.Errorf("failed to scan existing choice: %v", err)
		}
		return existing, false, nil
	}

	s.hub.publish(ChangeEvent{Type: EventTypeInsert, Table: TableChoices, GameID: gameID, Row: c})
	return c, true, nil
}

func (s *SQLiteStore) ListChoices(ctx context.Context, roundID string) ([]*types.Choice, error) {
	q := `
	SELECT id, round_id, player_id, choice, decision_time_ms FROM choices
	WHERE round_id = ?;
	`
	rows, err := s.db.QueryContext(ctx, q, roundID)
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

func (s *SQLiteStore) Subscribe(gameID string, eventTypes ...EventType) *Subscription {
	return s.hub.subscribe(gameID, eventTypes...)
}
