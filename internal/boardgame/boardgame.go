package boardgame

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BoardGame keeps a client-side projection of one zone in sync with the
// server. Instances come from a Registry and share its event loop; every
// exported mutator only enqueues work, and listener callbacks run on the loop.
type BoardGame struct {
	registry        *Registry
	conn            Connection
	db              GameDatabase
	logger          *zap.Logger
	connectionToken string
	adapter         *connectionAdapter

	// collectable is set once the registry watches for the instance being
	// collected. Guarded by the registry's per-zone Compute.
	collectable bool

	// mu guards the fields read by accessors. Only the loop writes them.
	mu        sync.RWMutex
	zoneID    string
	gameID    int64
	name      string
	currency  string
	joinState JoinState
	state     *State

	// Loop-confined.
	joinStateListeners  listenerSet[JoinStateListener]
	gameActionListeners listenerSet[GameActionListener]
	joinRequestTokens   map[string]struct{}
	subscribed          bool
	pending             bool
	attempt             uint64
}

func newBoardGame(r *Registry, zoneID string, gameID int64, name, currency string) *BoardGame {
	b := &BoardGame{
		registry:          r,
		conn:              r.conn,
		db:                r.db,
		logger:            r.logger,
		connectionToken:   uuid.NewString(),
		zoneID:            zoneID,
		gameID:            gameID,
		name:              name,
		currency:          currency,
		joinState:         JoinStateUnavailable,
		joinRequestTokens: make(map[string]struct{}),
	}
	b.adapter = &connectionAdapter{game: b}
	return b
}

// ZoneID returns the zone id, or "" while the zone has not been created yet.
func (b *BoardGame) ZoneID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.zoneID
}

// GameID returns the persisted game id, or 0 when not persisted yet.
func (b *BoardGame) GameID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gameID
}

// Name returns the zone name, or the requested name for a game being created.
func (b *BoardGame) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != nil {
		return b.state.zone.Name
	}
	return b.name
}

// Currency returns the zone currency, or the requested currency for a game
// being created.
func (b *BoardGame) Currency() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != nil {
		return b.state.zone.Currency()
	}
	return b.currency
}

// Created returns the zone creation time. It is zero unless joined.
func (b *BoardGame) Created() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state == nil {
		return time.Time{}
	}
	return b.state.zone.Created
}

// Expires returns the zone expiry time. It is zero unless joined.
func (b *BoardGame) Expires() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state == nil {
		return time.Time{}
	}
	return b.state.zone.Expires
}

func (b *BoardGame) JoinState() JoinState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.joinState
}

// Identities returns the visible identities keyed by member id, or nil unless
// joined.
func (b *BoardGame) Identities() map[string]Identity {
	return readState(b, func(st *State) map[string]Identity { return st.identities })
}

func (b *BoardGame) HiddenIdentities() map[string]Identity {
	return readState(b, func(st *State) map[string]Identity { return st.hiddenIdentities })
}

// Players returns the visible players keyed by member id, or nil unless joined.
func (b *BoardGame) Players() map[string]Player {
	return readState(b, func(st *State) map[string]Player { return st.players })
}

func (b *BoardGame) HiddenPlayers() map[string]Player {
	return readState(b, func(st *State) map[string]Player { return st.hiddenPlayers })
}

// Transfers returns the transfers keyed by transaction id, or nil unless joined.
func (b *BoardGame) Transfers() map[string]Transfer {
	return readState(b, func(st *State) map[string]Transfer { return st.transfers })
}

func readState[V any](b *BoardGame, field func(*State) map[string]V) map[string]V {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state == nil {
		return nil
	}
	return maps.Clone(field(b.state))
}

// acceptListener logs and rejects listeners that cannot be compared with ==.
func (b *BoardGame) acceptListener(l any) bool {
	if comparableListener(l) {
		return true
	}
	b.logger.Error("listener ignored, its type is not comparable; register a pointer",
		zap.String("zone_id", b.ZoneID()),
		zap.String("type", fmt.Sprintf("%T", l)))
	return false
}

// RegisterJoinStateListener adds l and delivers the current join state to it.
func (b *BoardGame) RegisterJoinStateListener(l JoinStateListener) {
	if !b.acceptListener(l) {
		return
	}
	b.registry.loop.post(func() {
		wasIdle := b.idle()
		if !b.joinStateListeners.add(l) {
			return
		}
		if wasIdle {
			b.subscribe()
		}
		l.OnJoinStateChanged(b.joinState)
	})
}

func (b *BoardGame) UnregisterJoinStateListener(l JoinStateListener) {
	if !b.acceptListener(l) {
		return
	}
	b.registry.loop.post(func() {
		if b.joinStateListeners.remove(l) && b.idle() {
			b.unsubscribe()
		}
	})
}

// RegisterGameActionListener adds l. When the game is already joined l
// receives the initial bulk callbacks straight away.
func (b *BoardGame) RegisterGameActionListener(l GameActionListener) {
	if !b.acceptListener(l) {
		return
	}
	b.registry.loop.post(func() {
		wasIdle := b.idle()
		if !b.gameActionListeners.add(l) {
			return
		}
		if wasIdle {
			b.subscribe()
		}
		if b.state != nil {
			b.emitInitial(l, b.state)
		}
	})
}

func (b *BoardGame) UnregisterGameActionListener(l GameActionListener) {
	if !b.acceptListener(l) {
		return
	}
	b.registry.loop.post(func() {
		if b.gameActionListeners.remove(l) && b.idle() {
			b.unsubscribe()
		}
	})
}

// RequestJoin registers interest in being joined to the zone under token and
// requests the underlying connection. Requesting the same token twice has no
// further effect on the game.
func (b *BoardGame) RequestJoin(token string, retry bool) {
	b.registry.loop.post(func() {
		wasIdle := b.idle()
		b.joinRequestTokens[token] = struct{}{}
		if wasIdle {
			b.subscribe()
		}
		b.conn.RequestConnection(b.connectionToken, retry)
		if b.canStart() && b.conn.ConnectionState() == zone.ConnectionStateOnline {
			b.createOrJoin()
		}
	})
}

// UnrequestJoin withdraws token. When the last token goes the game quits the
// zone if joined, and otherwise releases its connection request.
func (b *BoardGame) UnrequestJoin(token string) {
	b.registry.loop.post(func() {
		if _, ok := b.joinRequestTokens[token]; !ok {
			return
		}
		delete(b.joinRequestTokens, token)
		if len(b.joinRequestTokens) == 0 {
			switch b.joinState {
			case JoinStateJoined:
				b.quit()
			case JoinStateQuitting:
			default:
				b.conn.UnrequestConnection(b.connectionToken)
			}
		}
		if b.idle() {
			b.unsubscribe()
		}
	})
}

// idle reports whether nothing is interested in this game.
func (b *BoardGame) idle() bool {
	return b.joinStateListeners.len() == 0 &&
		b.gameActionListeners.len() == 0 &&
		len(b.joinRequestTokens) == 0
}

func (b *BoardGame) subscribe() {
	if b.subscribed {
		return
	}
	b.subscribed = true
	b.logger.Debug("subscribing to connection", zap.String("zone_id", b.zoneID))
	if b.zoneID != "" {
		b.registry.register(b.zoneID, b)
	}
	b.conn.AddConnectionStateListener(b.adapter)
	b.conn.AddNotificationListener(b.adapter)
}

func (b *BoardGame) unsubscribe() {
	if !b.subscribed {
		return
	}
	b.subscribed = false
	b.logger.Debug("unsubscribing from connection", zap.String("zone_id", b.zoneID))
	b.conn.RemoveNotificationListener(b.adapter)
	b.conn.RemoveConnectionStateListener(b.adapter)
	b.registry.release(b)
}

// canStart reports whether a create or join may be started now.
func (b *BoardGame) canStart() bool {
	return len(b.joinRequestTokens) > 0 && !b.pending && b.joinState != JoinStateJoined
}

func (b *BoardGame) onConnectionStateChanged(s zone.ConnectionState) {
	if !b.subscribed {
		return
	}
	if s == zone.ConnectionStateOnline {
		if b.canStart() {
			b.createOrJoin()
		}
		return
	}
	joinState, ok := joinStateFor(s)
	if !ok || joinState == b.joinState {
		return
	}
	// Anything still in flight belongs to the previous connection.
	b.attempt++
	b.pending = false
	b.setJoinState(joinState)
}

func (b *BoardGame) createOrJoin() {
	if b.zoneID == "" {
		b.createAndThenJoin()
	} else {
		b.join()
	}
}

func (b *BoardGame) createAndThenJoin() {
	b.setJoinState(JoinStateCreating)
	metadata, err := zone.NewMetadata(map[string]any{"currency": b.currency})
	if err != nil {
		b.logger.Warn("invalid zone metadata", zap.Error(err))
	}
	name := b.name
	cmd := zone.CreateZone{
		EquityOwnerPublicKey: b.conn.ClientKey(),
		EquityOwnerName:      b.registry.bankerName,
		Name:                 name,
		Metadata:             metadata,
	}
	b.dispatchLifecycle("", cmd, func(resp zone.Response, err error, current bool) {
		if err != nil {
			b.logger.Warn("create zone failed", zap.String("name", name), zap.Error(err))
			b.gameActionListeners.each(func(l GameActionListener) { l.OnCreateGameError(name) })
			return
		}
		switch r := resp.(type) {
		case zone.Errors:
			b.logger.Warn("create zone rejected", zap.String("name", name), zap.Error(r))
			b.gameActionListeners.each(func(l GameActionListener) { l.OnCreateGameError(name) })
		case zone.CreateZoneSuccess:
			if b.zoneID == "" {
				b.mu.Lock()
				b.zoneID = r.Zone.ID
				b.mu.Unlock()
				b.logger.Info("zone created", zap.String("zone_id", r.Zone.ID), zap.String("name", name))
				b.registry.register(r.Zone.ID, b)
			}
			if current && len(b.joinRequestTokens) > 0 {
				b.join()
			}
		}
	})
}

func (b *BoardGame) join() {
	b.setJoinState(JoinStateJoining)
	b.dispatchLifecycle(b.zoneID, zone.JoinZone{}, func(resp zone.Response, err error, current bool) {
		if !current {
			return
		}
		if err != nil {
			b.logger.Warn("join zone failed", zap.String("zone_id", b.zoneID), zap.Error(err))
			b.gameActionListeners.each(func(l GameActionListener) { l.OnJoinGameError() })
			return
		}
		switch r := resp.(type) {
		case zone.Errors:
			b.logger.Warn("join zone rejected", zap.String("zone_id", b.zoneID), zap.Error(r))
			b.gameActionListeners.each(func(l GameActionListener) { l.OnJoinGameError() })
		case zone.JoinZoneSuccess:
			b.joined(r)
			if len(b.joinRequestTokens) == 0 {
				// Every requester went away while the join was in flight.
				b.quit()
			}
		}
	})
}

func (b *BoardGame) joined(r zone.JoinZoneSuccess) {
	st := newState(r.Zone, r.ConnectedClients, b.conn.ClientKey())
	b.mu.Lock()
	b.state = st
	b.name = st.zone.Name
	b.mu.Unlock()
	b.setJoinState(JoinStateJoined)
	b.gameActionListeners.each(func(l GameActionListener) { b.emitInitial(l, st) })
	b.persistGame(st.zone)
}

func (b *BoardGame) emitInitial(l GameActionListener, st *State) {
	l.OnGameNameChanged(st.zone.Name)
	l.OnIdentitiesUpdated(st.identities)
	l.OnHiddenIdentitiesUpdated(st.hiddenIdentities)
	l.OnPlayersInitialized(sortedValues(st.players))
	l.OnPlayersUpdated(st.players)
	l.OnHiddenPlayersUpdated(st.hiddenPlayers)
	l.OnTransfersInitialized(sortedValues(st.transfers))
	l.OnTransfersUpdated(st.transfers)
}

func (b *BoardGame) quit() {
	b.setJoinState(JoinStateQuitting)
	b.dispatchLifecycle(b.zoneID, zone.QuitZone{}, func(resp zone.Response, err error, current bool) {
		if err != nil {
			b.logger.Warn("quit zone failed", zap.String("zone_id", b.zoneID), zap.Error(err))
			b.gameActionListeners.each(func(l GameActionListener) { l.OnQuitGameError() })
		} else if r, ok := resp.(zone.Errors); ok {
			b.logger.Warn("quit zone rejected", zap.String("zone_id", b.zoneID), zap.Error(r))
			b.gameActionListeners.each(func(l GameActionListener) { l.OnQuitGameError() })
		}
		switch {
		case len(b.joinRequestTokens) == 0:
			b.conn.UnrequestConnection(b.connectionToken)
		case current && b.conn.ConnectionState() == zone.ConnectionStateOnline:
			b.join()
		}
	})
}

// dispatchLifecycle sends a create, join or quit command. handle runs on the
// loop; current is false when the connection changed state in the meantime.
func (b *BoardGame) dispatchLifecycle(zoneID string, cmd zone.Command, handle func(resp zone.Response, err error, current bool)) {
	b.attempt++
	attempt := b.attempt
	b.pending = true
	b.send(zoneID, cmd, func(resp zone.Response, err error) {
		current := attempt == b.attempt
		if current {
			b.pending = false
		}
		handle(resp, err, current)
	})
}

// send runs cmd on the worker pool and hands the outcome to handle on the loop.
func (b *BoardGame) send(zoneID string, cmd zone.Command, handle func(zone.Response, error)) {
	loop, timeout := b.registry.loop, b.registry.commandTimeout
	b.registry.workers.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var (
			resp zone.Response
			err  error
		)
		if create, ok := cmd.(zone.CreateZone); ok {
			resp, err = b.conn.SendCreateZoneCommand(ctx, create)
		} else {
			resp, err = b.conn.SendZoneCommand(ctx, zoneID, cmd)
		}
		if resp == nil && err == nil {
			resp = zone.NotSet{}
		}
		loop.post(func() { handle(resp, err) })
	})
}

// setJoinState records s, discards the projection when s is not JOINED, and
// notifies join state listeners of a change.
func (b *BoardGame) setJoinState(s JoinState) {
	b.mu.Lock()
	if s != JoinStateJoined {
		b.state = nil
	}
	changed := b.joinState != s
	b.joinState = s
	b.mu.Unlock()
	if !changed {
		return
	}
	b.logger.Debug("join state changed",
		zap.String("zone_id", b.zoneID),
		zap.Stringer("join_state", s))
	b.joinStateListeners.each(func(l JoinStateListener) { l.OnJoinStateChanged(s) })
}

// persistGame records the joined zone in the game database.
func (b *BoardGame) persistGame(z zone.Zone) {
	if b.db == nil {
		return
	}
	if b.GameID() != 0 {
		b.persistName(z.Name)
		return
	}
	timeout := b.registry.commandTimeout
	b.registry.workers.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		id, found, err := b.db.CheckAndUpdateGame(ctx, z.ID, z.Name)
		if err == nil && !found {
			id, err = b.db.InsertGame(ctx, z.ID, z.Created, z.Expires, z.Name)
		}
		if err != nil {
			b.logger.Error("failed to persist game", zap.String("zone_id", z.ID), zap.Error(err))
			return
		}
		b.adoptGameID(id)
		// A rename that arrived during the insert was skipped for lack of an id.
		b.registry.loop.post(func() {
			if name := b.Name(); name != z.Name {
				b.persistName(name)
			}
		})
	})
}

func (b *BoardGame) persistName(name string) {
	id := b.GameID()
	if b.db == nil || id == 0 {
		return
	}
	timeout := b.registry.commandTimeout
	b.registry.workers.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := b.db.UpdateGameName(ctx, id, name); err != nil {
			b.logger.Error("failed to update game name",
				zap.Int64("game_id", id),
				zap.String("name", name),
				zap.Error(err))
		}
	})
}

// connectionAdapter moves connection callbacks onto the event loop.
type connectionAdapter struct {
	game *BoardGame
}

func (a *connectionAdapter) OnConnectionStateChanged(s zone.ConnectionState) {
	a.game.registry.loop.post(func() { a.game.onConnectionStateChanged(s) })
}

func (a *connectionAdapter) OnZoneNotification(n zone.ZoneNotification) {
	a.game.registry.loop.post(func() { a.game.onZoneNotification(n) })
}
