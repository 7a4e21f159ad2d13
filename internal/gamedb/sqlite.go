package gamedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const (
	createSchemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	createGamesTable = `
		CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zone_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			created INTEGER NOT NULL,
			expires INTEGER NOT NULL,
			accessed INTEGER NOT NULL
		)`

	createGamesAccessedIndex = `CREATE INDEX IF NOT EXISTS idx_games_accessed ON games(accessed)`
)

// SQLiteStore keeps games in a local SQLite file. Times are stored as unix
// milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if path != ":memory:" && (strings.Contains(path, "?") || strings.Contains(path, "#")) {
		return nil, errors.New("sqlite: path cannot contain '?' or '#' characters")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = "file::memory:?mode=memory"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// A single connection serialises writers and keeps an in-memory
	// database alive.
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createSchemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{createGamesTable, createGamesAccessedIndex} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) InsertGame(ctx context.Context, zoneID string, created, expires time.Time, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO games (zone_id, name, created, expires, accessed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (zone_id) DO UPDATE SET name = excluded.name, accessed = excluded.accessed
		RETURNING id`,
		zoneID, name, created.UnixMilli(), expires.UnixMilli(), time.Now().UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert game %s: %w", zoneID, err)
	}
	return id, nil
}

// CheckAndUpdateGame renames the game for zoneID and marks it accessed. It
// reports false when the zone has no game.
func (s *SQLiteStore) CheckAndUpdateGame(ctx context.Context, zoneID, name string) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM games WHERE zone_id = ?", zoneID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: find game %s: %w", zoneID, err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE games SET name = ?, accessed = ? WHERE id = ?",
		name, time.Now().UnixMilli(), id); err != nil {
		return 0, false, fmt.Errorf("sqlite: update game %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("sqlite: commit: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteStore) UpdateGameName(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE games SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("sqlite: rename game %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (s *SQLiteStore) ListGames(ctx context.Context) ([]Game, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, zone_id, name, created, expires, accessed
		FROM games ORDER BY accessed DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list games: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var (
			g                          Game
			created, expires, accessed int64
		)
		if err := rows.Scan(&g.ID, &g.ZoneID, &g.Name, &created, &expires, &accessed); err != nil {
			return nil, fmt.Errorf("sqlite: scan game: %w", err)
		}
		g.Created = time.UnixMilli(created)
		g.Expires = time.UnixMilli(expires)
		g.Accessed = time.UnixMilli(accessed)
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *SQLiteStore) DeleteGame(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM games WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete game %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
