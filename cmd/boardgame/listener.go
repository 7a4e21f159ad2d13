package main

import (
	"sync/atomic"
	"time"

	"github.com/boardledger/boardgame-go/internal/boardgame"
	"go.uber.org/zap"
)

// loggingListener logs every callback of one game.
type loggingListener struct {
	boardgame.UnimplementedGameActionListener

	game   *boardgame.BoardGame
	logger *zap.Logger
	quit   chan struct{}
	joined atomic.Bool
}

func newLoggingListener(game *boardgame.BoardGame, logger *zap.Logger) *loggingListener {
	return &loggingListener{game: game, logger: logger, quit: make(chan struct{})}
}

func (l *loggingListener) OnJoinStateChanged(state boardgame.JoinState) {
	l.logger.Info("join state", zap.Stringer("state", state), zap.String("zone_id", l.game.ZoneID()))
	switch state {
	case boardgame.JoinStateJoined:
		l.joined.Store(true)
		l.logger.Info("joined game",
			zap.String("zone_id", l.game.ZoneID()),
			zap.Int64("game_id", l.game.GameID()),
			zap.String("name", l.game.Name()),
			zap.String("currency", l.game.Currency()),
			zap.Time("expires", l.game.Expires()),
		)
		if *rename != "" {
			if err := l.game.ChangeGameName(*rename); err != nil {
				l.logger.Warn("rename rejected", zap.Error(err))
			}
		}
	case boardgame.JoinStateAvailable, boardgame.JoinStateGeneralFailure, boardgame.JoinStateTLSError:
		if l.joined.Load() {
			select {
			case <-l.quit:
			default:
				close(l.quit)
			}
		}
	}
}

// waitForQuit blocks until a joined game has quit or d elapses.
func (l *loggingListener) waitForQuit(d time.Duration) {
	if !l.joined.Load() {
		return
	}
	select {
	case <-l.quit:
	case <-time.After(d):
	}
}

func (l *loggingListener) OnGameNameChanged(name string) {
	l.logger.Info("game renamed", zap.String("name", name))
}

func (l *loggingListener) OnChangeGameNameError(name string) {
	l.logger.Warn("could not rename game", zap.String("name", name))
}

func (l *loggingListener) OnCreateGameError(name string) {
	l.logger.Warn("could not create game", zap.String("name", name))
}

func (l *loggingListener) OnJoinGameError() {
	l.logger.Warn("could not join game", zap.String("zone_id", l.game.ZoneID()))
}

func (l *loggingListener) OnQuitGameError() {
	l.logger.Warn("could not quit game", zap.String("zone_id", l.game.ZoneID()))
}

func (l *loggingListener) OnPlayersInitialized(players []boardgame.Player) {
	for _, p := range players {
		l.logger.Info("player",
			zap.String("member_id", p.Member.ID),
			zap.String("name", p.Member.Name),
			zap.Stringer("balance", p.Balance),
			zap.Bool("connected", p.IsConnected),
			zap.Bool("banker", p.IsBanker),
		)
	}
}

func (l *loggingListener) OnPlayerAdded(p boardgame.Player) {
	l.logger.Info("player added", zap.String("member_id", p.Member.ID), zap.String("name", p.Member.Name))
}

func (l *loggingListener) OnPlayerChanged(p boardgame.Player) {
	l.logger.Info("player changed",
		zap.String("member_id", p.Member.ID),
		zap.Stringer("balance", p.Balance),
		zap.Bool("connected", p.IsConnected),
	)
}

func (l *loggingListener) OnPlayerRemoved(p boardgame.Player) {
	l.logger.Info("player removed", zap.String("member_id", p.Member.ID))
}

func (l *loggingListener) OnIdentitiesUpdated(identities map[string]boardgame.Identity) {
	l.logger.Debug("identities updated", zap.Int("count", len(identities)))
}

func (l *loggingListener) OnTransfersInitialized(transfers []boardgame.Transfer) {
	l.logger.Info("transfers loaded", zap.Int("count", len(transfers)))
}

func (l *loggingListener) OnTransferAdded(t boardgame.Transfer) {
	l.logger.Info("transfer",
		zap.String("from", t.FromName()),
		zap.String("to", t.ToName()),
		zap.Stringer("value", t.Transaction.Value),
		zap.String("currency", t.Currency),
	)
}
