package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/boardledger/boardgame-go/internal/boardgame"
	"github.com/boardledger/boardgame-go/internal/config"
	"github.com/boardledger/boardgame-go/internal/connection"
	"github.com/boardledger/boardgame-go/internal/gamedb"
	"github.com/boardledger/boardgame-go/internal/keystore"
	"github.com/boardledger/boardgame-go/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/boardgame.yaml", "path to configuration file")
	zoneID     = flag.String("zone", "", "join the game in this zone")
	gameID     = flag.Int64("game", 0, "join a previously joined game by id")
	createName = flag.String("create", "", "create a new game with this name")
	rename     = flag.String("rename", "", "rename the game once joined")
	list       = flag.Bool("list", false, "list joined games and exit")
	forget     = flag.Int64("forget", 0, "remove a game from the local list and exit")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("boardgame client failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting boardgame client",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	store, err := gamedb.Open(ctx, gamedb.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("open game database: %w", err)
	}
	defer store.Close()

	if *list {
		return listGames(ctx, store)
	}
	if *forget != 0 {
		if err := store.DeleteGame(ctx, *forget); err != nil {
			return err
		}
		logger.Info("game forgotten", zap.Int64("game_id", *forget))
		return nil
	}

	keys, err := keystore.Open(cfg.Client.KeyPath)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	logger.Info("client key loaded", zap.String("fingerprint", keys.Fingerprint()))

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("boardgame")
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           metricsMux(collector),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics server listening", zap.String("address", cfg.Metrics.Address))
	}

	conn := connection.New(newTransport(cfg, keys, logger), keys.PublicKey(), logger,
		connection.WithMetrics(collector),
		connection.WithDialTimeout(cfg.Server.DialTimeout),
		connection.WithRetryDelay(cfg.Server.RetryDelay),
	)
	defer conn.Close()

	workers := pond.NewPool(cfg.Workers.Size, pond.WithQueueSize(cfg.Workers.QueueSize))
	defer workers.StopAndWait()

	registry := boardgame.NewRegistry(conn, store, logger,
		boardgame.WithWorkerPool(workers),
		boardgame.WithCommandTimeout(cfg.Server.CommandTimeout),
		boardgame.WithBankerName(cfg.Client.BankerName),
	)
	defer registry.Close()

	game, err := selectGame(ctx, registry, store, cfg)
	if err != nil {
		return err
	}

	listener := newLoggingListener(game, logger)
	game.RegisterJoinStateListener(listener)
	game.RegisterGameActionListener(listener)
	defer game.UnregisterGameActionListener(listener)
	defer game.UnregisterJoinStateListener(listener)

	token := uuid.NewString()
	game.RequestJoin(token, true)

	<-ctx.Done()
	logger.Info("shutting down")
	game.UnrequestJoin(token)
	listener.waitForQuit(5 * time.Second)
	return nil
}

func selectGame(ctx context.Context, registry *boardgame.Registry, store gamedb.Store, cfg *config.Config) (*boardgame.BoardGame, error) {
	switch {
	case *createName != "":
		if !boardgame.IsTagValid(*createName) {
			return nil, fmt.Errorf("invalid game name %q", *createName)
		}
		return registry.NewGame(*createName, cfg.Client.Currency), nil
	case *zoneID != "":
		return registry.Game(*zoneID, 0), nil
	case *gameID != 0:
		games, err := store.ListGames(ctx)
		if err != nil {
			return nil, err
		}
		for _, g := range games {
			if g.ID == *gameID {
				return registry.Game(g.ZoneID, g.ID), nil
			}
		}
		return nil, fmt.Errorf("%w: %d", gamedb.ErrNotFound, *gameID)
	default:
		return nil, errors.New("one of -create, -zone or -game is required")
	}
}

func listGames(ctx context.Context, store gamedb.Store) error {
	games, err := store.ListGames(ctx)
	if err != nil {
		return err
	}
	for _, g := range games {
		fmt.Printf("%d\t%s\t%s\texpires %s\n", g.ID, g.ZoneID, g.Name, g.Expires.Format(time.DateOnly))
	}
	return nil
}

func newTransport(cfg *config.Config, keys *keystore.Keystore, logger *zap.Logger) connection.Transport {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.Server.Transport == "websocket" {
		scheme := "wss"
		if cfg.Server.Insecure {
			scheme = "ws"
		}
		return connection.NewWebSocketTransport(connection.WebSocketConfig{
			URL:              scheme + "://" + cfg.Server.Address + "/zone",
			TLS:              tlsConfig,
			HandshakeTimeout: cfg.Server.DialTimeout,
			TokenTTL:         cfg.Client.TokenTTL,
		}, keys, logger)
	}
	return connection.NewGRPCTransport(connection.GRPCConfig{
		Target:        cfg.Server.Address,
		Insecure:      cfg.Server.Insecure,
		TLS:           tlsConfig,
		KeepaliveTime: cfg.Server.KeepaliveTime,
		TokenTTL:      cfg.Client.TokenTTL,
	}, keys, logger)
}

func metricsMux(collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	return loggerConfig(cfg).Build()
}

// loggerConfig picks the production encoder for "json" and a colored console
// otherwise. Unknown levels fall back to info.
func loggerConfig(cfg config.LoggingConfig) zap.Config {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg
}
