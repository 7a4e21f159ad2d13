package boardgame

import (
	"context"
	"time"

	"github.com/boardledger/boardgame-go/internal/zone"
)

// ConnectionStateListener observes the connection state. Listeners are
// compared with ==.
type ConnectionStateListener interface {
	OnConnectionStateChanged(state zone.ConnectionState)
}

// NotificationListener receives every zone notification, in the order the
// server emitted them.
type NotificationListener interface {
	OnZoneNotification(n zone.ZoneNotification)
}

// Connection is the link to the zone service that a BoardGame drives.
//
// AddConnectionStateListener must deliver the current state to the new
// listener. Listener callbacks may arrive on any goroutine.
type Connection interface {
	ClientKey() zone.PublicKey
	ConnectionState() zone.ConnectionState
	RequestConnection(token string, retry bool)
	UnrequestConnection(token string)
	AddConnectionStateListener(l ConnectionStateListener)
	RemoveConnectionStateListener(l ConnectionStateListener)
	AddNotificationListener(l NotificationListener)
	RemoveNotificationListener(l NotificationListener)
	SendCreateZoneCommand(ctx context.Context, cmd zone.CreateZone) (zone.Response, error)
	SendZoneCommand(ctx context.Context, zoneID string, cmd zone.Command) (zone.Response, error)
}

// GameDatabase persists the list of games this client has joined.
type GameDatabase interface {
	InsertGame(ctx context.Context, zoneID string, created, expires time.Time, name string) (int64, error)
	CheckAndUpdateGame(ctx context.Context, zoneID, name string) (int64, bool, error)
	UpdateGameName(ctx context.Context, id int64, name string) error
}
