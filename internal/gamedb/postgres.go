package gamedb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id BIGSERIAL PRIMARY KEY,
		zone_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		created TIMESTAMPTZ NOT NULL,
		expires TIMESTAMPTZ NOT NULL,
		accessed TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_games_accessed ON games (accessed DESC)`,
}

// PostgresStore keeps games in PostgreSQL, for clients that share a
// database with other tooling.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, url string, maxConns int32) (*PostgresStore, error) {
	if url == "" {
		return nil, errors.New("postgres: url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	for _, stmt := range postgresMigrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) InsertGame(ctx context.Context, zoneID string, created, expires time.Time, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO games (zone_id, name, created, expires)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (zone_id) DO UPDATE SET name = EXCLUDED.name, accessed = now()
		RETURNING id`,
		zoneID, name, created, expires,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert game %s: %w", zoneID, err)
	}
	return id, nil
}

func (s *PostgresStore) CheckAndUpdateGame(ctx context.Context, zoneID, name string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		"UPDATE games SET name = $2, accessed = now() WHERE zone_id = $1 RETURNING id",
		zoneID, name,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: update game %s: %w", zoneID, err)
	}
	return id, true, nil
}

func (s *PostgresStore) UpdateGameName(ctx context.Context, id int64, name string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE games SET name = $2 WHERE id = $1", id, name)
	if err != nil {
		return fmt.Errorf("postgres: rename game %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]Game, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, zone_id, name, created, expires, accessed
		FROM games ORDER BY accessed DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list games: %w", err)
	}
	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Game, error) {
		var g Game
		err := row.Scan(&g.ID, &g.ZoneID, &g.Name, &g.Created, &g.Expires, &g.Accessed)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan games: %w", err)
	}
	return games, nil
}

func (s *PostgresStore) DeleteGame(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM games WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete game %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
