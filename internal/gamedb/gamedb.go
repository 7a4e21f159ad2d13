// Package gamedb persists the list of games this client has joined, so a
// client can rejoin them by zone id after a restart.
package gamedb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boardledger/boardgame-go/internal/boardgame"
	"go.uber.org/zap"
)

var (
	ErrUnknownDriver = errors.New("unknown game database driver")
	ErrNotFound      = errors.New("game not found")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Game is one persisted game.
type Game struct {
	ID       int64
	ZoneID   string
	Name     string
	Created  time.Time
	Expires  time.Time
	Accessed time.Time
}

// Store is a game database backend.
type Store interface {
	boardgame.GameDatabase

	// ListGames returns every game, most recently accessed first.
	ListGames(ctx context.Context) ([]Game, error)
	DeleteGame(ctx context.Context, id int64) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string
	// Path is the SQLite database file.
	Path string
	// URL is the PostgreSQL connection string.
	URL      string
	MaxConns int32
}

// Open connects to the configured backend and migrates its schema.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	logger = logger.Named("gamedb")

	switch cfg.Driver {
	case DriverSQLite, "":
		store, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("game database opened",
			zap.String("driver", DriverSQLite),
			zap.String("path", cfg.Path),
		)
		return store, nil
	case DriverPostgres:
		store, err := NewPostgresStore(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		stats := store.pool.Stat()
		logger.Info("game database opened",
			zap.String("driver", DriverPostgres),
			zap.Int32("max_conns", stats.MaxConns()),
		)
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
