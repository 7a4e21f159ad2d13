package connection

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame kinds exchanged over the WebSocket transport.
const (
	KindAuthenticate  = "authenticate"
	KindAuthenticated = "authenticated"
	KindCreateZone    = "create_zone"
	KindZoneCommand   = "zone_command"
	KindResponse      = "response"
	KindNotification  = "notification"
	KindError         = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

var errLinkClosed = errors.New("websocket link closed")

// Frame is one JSON message on the WebSocket transport. Requests carry an
// ID that the matching response echoes.
type Frame struct {
	ID           string                     `json:"id,omitempty"`
	Kind         string                     `json:"kind"`
	Token        string                     `json:"token,omitempty"`
	ZoneID       string                     `json:"zone_id,omitempty"`
	Command      *zone.CommandEnvelope      `json:"command,omitempty"`
	Response     *zone.ResponseEnvelope     `json:"response,omitempty"`
	Notification *zone.NotificationEnvelope `json:"notification,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	URL              string
	TLS              *tls.Config
	HandshakeTimeout time.Duration
	TokenTTL         time.Duration
}

// WebSocketTransport talks to the zone service over a single WebSocket.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	creds  Credentials
	logger *zap.Logger
}

func NewWebSocketTransport(cfg WebSocketConfig, creds Credentials, logger *zap.Logger) *WebSocketTransport {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &WebSocketTransport{cfg: cfg, creds: creds, logger: logger.Named("websocket")}
}

func (t *WebSocketTransport) Dial(ctx context.Context) (Link, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
		TLSClientConfig:  t.cfg.TLS,
	}
	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	return &wsLink{
		conn:          conn,
		creds:         t.creds,
		ttl:           t.cfg.TokenTTL,
		logger:        t.logger,
		send:          make(chan []byte, sendBuffer),
		pending:       make(map[string]chan Frame),
		notifications: make(chan zone.ZoneNotification, sendBuffer),
		done:          make(chan struct{}),
	}, nil
}

type wsLink struct {
	conn   *websocket.Conn
	creds  Credentials
	ttl    time.Duration
	logger *zap.Logger

	send          chan []byte
	notifications chan zone.ZoneNotification
	done          chan struct{}

	mu      sync.Mutex
	pending map[string]chan Frame
	err     error

	closeOnce sync.Once
}

// Authenticate sends the authenticate frame and waits for the reply before
// the pumps start, so no notification can precede it.
func (l *wsLink) Authenticate(ctx context.Context) error {
	token, err := l.creds.AuthToken(l.ttl)
	if err != nil {
		return err
	}
	id := uuid.NewString()

	if deadline, ok := ctx.Deadline(); ok {
		_ = l.conn.SetWriteDeadline(deadline)
		_ = l.conn.SetReadDeadline(deadline)
	}
	if err := l.conn.WriteJSON(Frame{ID: id, Kind: KindAuthenticate, Token: token}); err != nil {
		return fmt.Errorf("send authenticate: %w", err)
	}
	for {
		var reply Frame
		if err := l.conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("read authenticate reply: %w", err)
		}
		if reply.ID != id {
			continue
		}
		if reply.Kind != KindAuthenticated {
			return fmt.Errorf("authentication rejected: %s", reply.Error)
		}
		break
	}

	_ = l.conn.SetWriteDeadline(time.Time{})
	_ = l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go l.writePump()
	go l.readPump()
	return nil
}

func (l *wsLink) ExecCreateZoneCommand(ctx context.Context, cmd zone.CreateZone) (zone.Response, error) {
	return l.exec(ctx, KindCreateZone, "", cmd)
}

func (l *wsLink) ExecZoneCommand(ctx context.Context, zoneID string, cmd zone.Command) (zone.Response, error) {
	return l.exec(ctx, KindZoneCommand, zoneID, cmd)
}

func (l *wsLink) exec(ctx context.Context, kind, zoneID string, cmd zone.Command) (zone.Response, error) {
	env, err := zone.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	data, err := json.Marshal(Frame{ID: id, Kind: kind, ZoneID: zoneID, Command: &env})
	if err != nil {
		return nil, err
	}

	reply := make(chan Frame, 1)
	l.mu.Lock()
	if l.err != nil {
		err := l.err
		l.mu.Unlock()
		return nil, err
	}
	l.pending[id] = reply
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
	}()

	select {
	case l.send <- data:
	case <-l.done:
		return nil, l.failure()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case f := <-reply:
		if f.Kind == KindError {
			return nil, fmt.Errorf("zone service error: %s", f.Error)
		}
		if f.Response == nil {
			return zone.NotSet{}, nil
		}
		return zone.DecodeResponse(cmd.CommandType(), *f.Response)
	case <-l.done:
		return nil, l.failure()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsLink) NextNotification(ctx context.Context) (zone.ZoneNotification, error) {
	select {
	case n := <-l.notifications:
		return n, nil
	case <-l.done:
		return zone.ZoneNotification{}, l.failure()
	case <-ctx.Done():
		return zone.ZoneNotification{}, ctx.Err()
	}
}

func (l *wsLink) Close() error {
	l.shutdown(errLinkClosed)
	return nil
}

func (l *wsLink) shutdown(err error) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.done)
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = l.conn.Close()
	})
}

func (l *wsLink) failure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *wsLink) readPump() {
	for {
		var f Frame
		if err := l.conn.ReadJSON(&f); err != nil {
			l.shutdown(fmt.Errorf("read: %w", err))
			return
		}

		switch f.Kind {
		case KindResponse, KindError:
			l.mu.Lock()
			reply, ok := l.pending[f.ID]
			l.mu.Unlock()
			if ok {
				select {
				case reply <- f:
				default:
				}
			}
		case KindNotification:
			if f.Notification == nil {
				continue
			}
			n, err := zone.DecodeNotification(*f.Notification)
			if err != nil {
				l.logger.Warn("dropping undecodable notification", zap.Error(err))
				continue
			}
			select {
			case l.notifications <- n:
			case <-l.done:
				return
			}
		default:
			l.logger.Debug("ignoring frame", zap.String("kind", f.Kind))
		}
	}
}

func (l *wsLink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				l.shutdown(fmt.Errorf("write: %w", err))
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.shutdown(fmt.Errorf("ping: %w", err))
				return
			}
		case <-l.done:
			return
		}
	}
}
