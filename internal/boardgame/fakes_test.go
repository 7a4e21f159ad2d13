package boardgame

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	localKey  zone.PublicKey = "local-key"
	remoteKey zone.PublicKey = "remote-key"
)

type responder func(zoneID string, cmd zone.Command) (zone.Response, error)

// fakeConnection is a scripted Connection. Tests drive its state with
// setState and push notifications with notify.
type fakeConnection struct {
	mu                    sync.Mutex
	state                 zone.ConnectionState
	stateListeners        []ConnectionStateListener
	notificationListeners []NotificationListener
	requests              map[string]bool
	unrequests            int
	stateSubscribes       int
	stateUnsubscribes     int
	commands              []zone.Command
	respond               responder
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		state:    zone.ConnectionStateAvailable,
		requests: make(map[string]bool),
		respond: func(string, zone.Command) (zone.Response, error) {
			return zone.Success{}, nil
		},
	}
}

func (c *fakeConnection) ClientKey() zone.PublicKey { return localKey }

func (c *fakeConnection) ConnectionState() zone.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConnection) RequestConnection(token string, retry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[token] = retry
}

func (c *fakeConnection) UnrequestConnection(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.requests, token)
	c.unrequests++
}

func (c *fakeConnection) AddConnectionStateListener(l ConnectionStateListener) {
	c.mu.Lock()
	c.stateListeners = append(c.stateListeners, l)
	c.stateSubscribes++
	state := c.state
	c.mu.Unlock()
	l.OnConnectionStateChanged(state)
}

func (c *fakeConnection) RemoveConnectionStateListener(l ConnectionStateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = slices.DeleteFunc(c.stateListeners, func(e ConnectionStateListener) bool { return e == l })
	c.stateUnsubscribes++
}

func (c *fakeConnection) AddNotificationListener(l NotificationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationListeners = append(c.notificationListeners, l)
}

func (c *fakeConnection) RemoveNotificationListener(l NotificationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationListeners = slices.DeleteFunc(c.notificationListeners, func(e NotificationListener) bool { return e == l })
}

func (c *fakeConnection) SendCreateZoneCommand(ctx context.Context, cmd zone.CreateZone) (zone.Response, error) {
	return c.SendZoneCommand(ctx, "", cmd)
}

func (c *fakeConnection) SendZoneCommand(_ context.Context, zoneID string, cmd zone.Command) (zone.Response, error) {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	respond := c.respond
	c.mu.Unlock()
	return respond(zoneID, cmd)
}

func (c *fakeConnection) setResponder(r responder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.respond = r
}

func (c *fakeConnection) setState(s zone.ConnectionState) {
	c.mu.Lock()
	c.state = s
	listeners := slices.Clone(c.stateListeners)
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnConnectionStateChanged(s)
	}
}

func (c *fakeConnection) notify(n zone.Notification) {
	c.notifyZone("zone-1", n)
}

func (c *fakeConnection) notifyZone(zoneID string, n zone.Notification) {
	c.mu.Lock()
	listeners := slices.Clone(c.notificationListeners)
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnZoneNotification(zone.ZoneNotification{ZoneID: zoneID, Notification: n})
	}
}

func (c *fakeConnection) sent() []zone.CommandType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]zone.CommandType, 0, len(c.commands))
	for _, cmd := range c.commands {
		types = append(types, cmd.CommandType())
	}
	return types
}

func (c *fakeConnection) lastCommand() zone.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.commands) == 0 {
		return nil
	}
	return c.commands[len(c.commands)-1]
}

func (c *fakeConnection) subscriptions() (subscribes, unsubscribes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateSubscribes, c.stateUnsubscribes
}

type storedGame struct {
	id   int64
	name string
}

type fakeDatabase struct {
	mu      sync.Mutex
	nextID  int64
	games   map[string]storedGame
	renames int
	// inserts waits on insertGate, when set, before storing.
	insertGate chan struct{}
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{games: make(map[string]storedGame)}
}

func (d *fakeDatabase) InsertGame(_ context.Context, zoneID string, _, _ time.Time, name string) (int64, error) {
	d.mu.Lock()
	gate := d.insertGate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.games[zoneID] = storedGame{id: d.nextID, name: name}
	return d.nextID, nil
}

func (d *fakeDatabase) CheckAndUpdateGame(_ context.Context, zoneID, name string) (int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.games[zoneID]
	if !ok {
		return 0, false, nil
	}
	g.name = name
	d.games[zoneID] = g
	return g.id, true, nil
}

func (d *fakeDatabase) UpdateGameName(_ context.Context, id int64, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renames++
	for zoneID, g := range d.games {
		if g.id == id {
			g.name = name
			d.games[zoneID] = g
		}
	}
	return nil
}

func (d *fakeDatabase) holdInserts() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.insertGate = gate
	d.mu.Unlock()
	return sync.OnceFunc(func() { close(gate) })
}

func (d *fakeDatabase) renameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renames
}

func (d *fakeDatabase) game(zoneID string) (storedGame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.games[zoneID]
	return g, ok
}

// recorder captures every callback it cares about, by name.
type recorder struct {
	UnimplementedGameActionListener

	mu         sync.Mutex
	calls      []string
	joinStates []JoinState
	identities map[string]Identity
	players    map[string]Player
	transfers  map[string]Transfer
	restored   []Identity
	received   []Identity
	created    []Identity
	changed    []Player
	added      []Transfer
	errors     []string
}

func (r *recorder) record(call string) {
	r.calls = append(r.calls, call)
}

func (r *recorder) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.restored, r.received, r.created, r.changed, r.added, r.errors = nil, nil, nil, nil, nil, nil
}

func (r *recorder) states() []JoinState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.joinStates)
}

func (r *recorder) errorNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errors)
}

func (r *recorder) OnJoinStateChanged(s JoinState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinStates = append(r.joinStates, s)
}

func (r *recorder) OnGameNameChanged(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnGameNameChanged")
}

func (r *recorder) OnIdentitiesUpdated(identities map[string]Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnIdentitiesUpdated")
	r.identities = identities
}

func (r *recorder) OnHiddenIdentitiesUpdated(map[string]Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnHiddenIdentitiesUpdated")
}

func (r *recorder) OnIdentityCreated(identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnIdentityCreated")
	r.created = append(r.created, identity)
}

func (r *recorder) OnIdentityReceived(identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnIdentityReceived")
	r.received = append(r.received, identity)
}

func (r *recorder) OnIdentityRestored(identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnIdentityRestored")
	r.restored = append(r.restored, identity)
}

func (r *recorder) OnPlayerAdded(Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnPlayerAdded")
}

func (r *recorder) OnPlayerChanged(p Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnPlayerChanged")
	r.changed = append(r.changed, p)
}

func (r *recorder) OnPlayerRemoved(Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnPlayerRemoved")
}

func (r *recorder) OnPlayersInitialized([]Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnPlayersInitialized")
}

func (r *recorder) OnPlayersUpdated(players map[string]Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnPlayersUpdated")
	r.players = players
}

func (r *recorder) OnHiddenPlayersUpdated(map[string]Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnHiddenPlayersUpdated")
}

func (r *recorder) OnTransferAdded(t Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnTransferAdded")
	r.added = append(r.added, t)
}

func (r *recorder) OnTransfersChanged([]Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnTransfersChanged")
}

func (r *recorder) OnTransfersInitialized([]Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnTransfersInitialized")
}

func (r *recorder) OnTransfersUpdated(transfers map[string]Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("OnTransfersUpdated")
	r.transfers = transfers
}

func (r *recorder) onError(call, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(call)
	r.errors = append(r.errors, name)
}

func (r *recorder) OnCreateGameError(name string)     { r.onError("OnCreateGameError", name) }
func (r *recorder) OnJoinGameError()                  { r.onError("OnJoinGameError", "") }
func (r *recorder) OnQuitGameError()                  { r.onError("OnQuitGameError", "") }
func (r *recorder) OnChangeGameNameError(name string) { r.onError("OnChangeGameNameError", name) }
func (r *recorder) OnChangeIdentityNameError(name string) {
	r.onError("OnChangeIdentityNameError", name)
}
func (r *recorder) OnCreateIdentityMemberError(name string) {
	r.onError("OnCreateIdentityMemberError", name)
}
func (r *recorder) OnCreateIdentityAccountError(name string) {
	r.onError("OnCreateIdentityAccountError", name)
}
func (r *recorder) OnTransferToPlayerError(name string) { r.onError("OnTransferToPlayerError", name) }
func (r *recorder) OnDeleteIdentityError(name string)   { r.onError("OnDeleteIdentityError", name) }

// testZone has a banker M0 and an identity M1 owned by the local key, and a
// player M2 owned by a remote key.
func testZone() zone.Zone {
	return zone.Zone{
		ID:              "zone-1",
		EquityAccountID: "A0",
		Name:            "Friday game",
		Created:         time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
		Expires:         time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC),
		Metadata:        zone.MustMetadata(map[string]any{"currency": "GBP"}),
		Members: map[string]zone.Member{
			"M0": {ID: "M0", OwnerPublicKeys: []zone.PublicKey{localKey}, Name: "Banker"},
			"M1": {ID: "M1", OwnerPublicKeys: []zone.PublicKey{localKey}, Name: "Alice"},
			"M2": {ID: "M2", OwnerPublicKeys: []zone.PublicKey{remoteKey}, Name: "Bob"},
		},
		Accounts: map[string]zone.Account{
			"A0": {ID: "A0", OwnerMemberIDs: []string{"M0"}},
			"A1": {ID: "A1", OwnerMemberIDs: []string{"M1"}},
			"A2": {ID: "A2", OwnerMemberIDs: []string{"M2"}},
		},
		Transactions: map[string]zone.Transaction{},
	}
}

// zoneResponder answers create and join with z and everything else with
// success.
func zoneResponder(z zone.Zone) responder {
	return func(_ string, cmd zone.Command) (zone.Response, error) {
		switch cmd.(type) {
		case zone.CreateZone:
			return zone.CreateZoneSuccess{Zone: z}, nil
		case zone.JoinZone:
			return zone.JoinZoneSuccess{
				Zone:             z,
				ConnectedClients: map[string]zone.PublicKey{"conn-local": localKey},
			}, nil
		default:
			return zone.Success{}, nil
		}
	}
}

type harness struct {
	t        *testing.T
	conn     *fakeConnection
	db       *fakeDatabase
	registry *Registry
}

// newHarness uses a single worker so command completions reach the loop in
// the order the commands were issued.
func newHarness(t *testing.T) *harness {
	t.Helper()
	pool := pond.NewPool(1)
	conn := newFakeConnection()
	conn.setResponder(zoneResponder(testZone()))
	db := newFakeDatabase()
	registry := NewRegistry(conn, db, zaptest.NewLogger(t), WithWorkerPool(pool), WithCommandTimeout(time.Second))
	t.Cleanup(func() {
		registry.Close()
		pool.StopAndWait()
	})
	return &harness{t: t, conn: conn, db: db, registry: registry}
}

// drain waits until the event loop has run everything posted so far.
func (h *harness) drain() {
	h.registry.loop.sync()
}

func (h *harness) waitForState(game *BoardGame, want JoinState) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return game.JoinState() == want },
		2*time.Second, 5*time.Millisecond, "join state never became %s", want)
}

// joinedGame returns zone-1 joined, with l registered for both listener kinds.
func (h *harness) joinedGame(l *recorder) *BoardGame {
	h.t.Helper()
	game := h.registry.Game("zone-1", 0)
	game.RegisterJoinStateListener(l)
	game.RegisterGameActionListener(l)
	game.RequestJoin("token-1", false)
	h.drain()
	h.conn.setState(zone.ConnectionStateOnline)
	h.waitForState(game, JoinStateJoined)
	h.drain()
	return game
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
