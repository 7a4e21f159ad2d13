package boardgame

import (
	"runtime"
	"time"
	"weak"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const (
	defaultWorkers        = 8
	defaultQueueSize      = 256
	defaultCommandTimeout = 30 * time.Second
	defaultBankerName     = "Banker"
)

// Registry owns the BoardGame instances of one connection. It deduplicates
// instances per zone id and provides the event loop and worker pool they
// share. Close the registry when the connection goes away.
type Registry struct {
	conn   Connection
	db     GameDatabase
	logger *zap.Logger

	loop           *loop
	workers        pond.Pool
	ownsWorkers    bool
	commandTimeout time.Duration
	bankerName     string

	// games holds subscribed instances. unwatched holds instances handed out
	// by Game that nothing listens to, weakly so an abandoned one is
	// collected. Both are only modified inside games.Compute for the zone id.
	games *xsync.Map[string, *BoardGame]
	unwatched *xsync.Map[string, weak.Pointer[BoardGame]]
}

// Option configures a Registry.
type Option func(*Registry)

// WithWorkerPool runs command and persistence I/O on pool instead of a pool
// owned by the registry. The caller stops it.
func WithWorkerPool(pool pond.Pool) Option {
	return func(r *Registry) {
		r.workers = pool
		r.ownsWorkers = false
	}
}

// WithCommandTimeout bounds every remote command and database call.
func WithCommandTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.commandTimeout = d
		}
	}
}

// WithBankerName sets the name of the equity member of newly created zones.
func WithBankerName(name string) Option {
	return func(r *Registry) {
		r.bankerName = name
	}
}

// NewRegistry creates a registry for games reached through conn. db may be
// nil, in which case games are not persisted.
func NewRegistry(conn Connection, db GameDatabase, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		conn:           conn,
		db:             db,
		logger:         logger,
		commandTimeout: defaultCommandTimeout,
		bankerName:     defaultBankerName,
		games:          xsync.NewMap[string, *BoardGame](),
		unwatched:      xsync.NewMap[string, weak.Pointer[BoardGame]](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers == nil {
		r.workers = pond.NewPool(defaultWorkers, pond.WithQueueSize(defaultQueueSize))
		r.ownsWorkers = true
	}
	r.loop = newLoop(logger)
	return r
}

// Game returns the instance for zoneID, creating it if needed. gameID is the
// persisted id if known, 0 otherwise. The instance is registered once a
// listener or join token is added; until then it is only kept alive by the
// caller.
func (r *Registry) Game(zoneID string, gameID int64) *BoardGame {
	var game *BoardGame
	r.games.Compute(zoneID, func(existing *BoardGame, loaded bool) (*BoardGame, xsync.ComputeOp) {
		if loaded {
			game = existing
			return existing, xsync.CancelOp
		}
		if p, ok := r.unwatched.Load(zoneID); ok {
			game = p.Value()
		}
		if game == nil {
			game = newBoardGame(r, zoneID, gameID, "", "")
			r.trackUnwatched(zoneID, game)
		}
		return nil, xsync.CancelOp
	})
	if gameID != 0 {
		game.adoptGameID(gameID)
	}
	return game
}

func (r *Registry) trackUnwatched(zoneID string, b *BoardGame) {
	r.unwatched.Store(zoneID, weak.Make(b))
	if !b.collectable {
		b.collectable = true
		runtime.AddCleanup(b, r.forgetUnwatched, zoneID)
	}
}

// forgetUnwatched drops the unwatched entry for zoneID once its instance is collected.
func (r *Registry) forgetUnwatched(zoneID string) {
	r.games.Compute(zoneID, func(existing *BoardGame, loaded bool) (*BoardGame, xsync.ComputeOp) {
		if p, ok := r.unwatched.Load(zoneID); ok && p.Value() == nil {
			r.unwatched.Delete(zoneID)
		}
		return existing, xsync.CancelOp
	})
}

// NewGame returns an instance that creates a new zone on its first join
// request. It is registered under its zone id once the zone exists.
func (r *Registry) NewGame(name, currency string) *BoardGame {
	return newBoardGame(r, "", 0, name, currency)
}

// Len returns the number of registered instances, those with at least one
// listener or join token.
func (r *Registry) Len() int {
	return r.games.Size()
}

// Close stops the event loop and, unless supplied by the caller, the worker
// pool. Pending listener callbacks run before Close returns.
func (r *Registry) Close() {
	r.loop.stop()
	if r.ownsWorkers {
		r.workers.StopAndWait()
	}
}

// register maps zoneID to b unless another instance already owns it.
func (r *Registry) register(zoneID string, b *BoardGame) {
	r.games.Compute(zoneID, func(existing *BoardGame, loaded bool) (*BoardGame, xsync.ComputeOp) {
		if loaded && existing != b {
			r.logger.Warn("zone already has a game instance", zap.String("zone_id", zoneID))
			return existing, xsync.CancelOp
		}
		if p, ok := r.unwatched.Load(zoneID); ok && p.Value() == b {
			r.unwatched.Delete(zoneID)
		}
		return b, xsync.UpdateOp
	})
}

// release unregisters b once nothing is interested in it any more. b stays
// reachable through Game for as long as the caller holds it.
func (r *Registry) release(b *BoardGame) {
	if b.zoneID == "" {
		return
	}
	r.games.Compute(b.zoneID, func(existing *BoardGame, loaded bool) (*BoardGame, xsync.ComputeOp) {
		if loaded && existing == b {
			r.trackUnwatched(b.zoneID, b)
			return nil, xsync.DeleteOp
		}
		return existing, xsync.CancelOp
	})
}

func (b *BoardGame) adoptGameID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gameID == 0 {
		b.gameID = id
	}
}
