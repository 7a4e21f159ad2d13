// Package connection keeps the client's link to the zone service. A
// ServerConnection is opened while at least one caller has requested it
// and closed when the last request is withdrawn; the wire protocol is
// supplied by a Transport.
package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/boardledger/boardgame-go/internal/boardgame"
	"github.com/boardledger/boardgame-go/internal/metrics"
	"github.com/boardledger/boardgame-go/internal/zone"
	"go.uber.org/zap"
)

var (
	// ErrNotOnline is returned by commands sent while the connection is not
	// ONLINE.
	ErrNotOnline = errors.New("connection is not online")
	// ErrUnavailable is returned by a Transport when the service answers
	// but is not serving.
	ErrUnavailable = errors.New("zone service unavailable")
	ErrClosed      = errors.New("connection closed")
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultRetryDelay  = 5 * time.Second
	defaultTokenTTL    = 5 * time.Minute
)

// Credentials identify the client to the zone service.
type Credentials interface {
	PublicKey() zone.PublicKey
	AuthToken(ttl time.Duration) (string, error)
}

// Transport opens links to the zone service.
type Transport interface {
	Dial(ctx context.Context) (Link, error)
}

// Link is one open session with the zone service. NextNotification is only
// called from a single goroutine.
type Link interface {
	Authenticate(ctx context.Context) error
	ExecCreateZoneCommand(ctx context.Context, cmd zone.CreateZone) (zone.Response, error)
	ExecZoneCommand(ctx context.Context, zoneID string, cmd zone.Command) (zone.Response, error)
	NextNotification(ctx context.Context) (zone.ZoneNotification, error)
	Close() error
}

// Option configures a ServerConnection.
type Option func(*ServerConnection)

// WithMetrics records commands, notifications and state changes.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *ServerConnection) { c.metrics = m }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *ServerConnection) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithRetryDelay sets the pause between failed attempts for requests made
// with retry set.
func WithRetryDelay(d time.Duration) Option {
	return func(c *ServerConnection) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// ServerConnection implements boardgame.Connection over a Transport.
type ServerConnection struct {
	transport   Transport
	key         zone.PublicKey
	logger      *zap.Logger
	metrics     *metrics.Collector
	dialTimeout time.Duration
	retryDelay  time.Duration

	// emitter delivers listener callbacks one at a time, in order.
	emitter pond.Pool

	mu                    sync.Mutex
	state                 zone.ConnectionState
	requests              map[string]bool
	link                  Link
	cancel                context.CancelFunc
	generation            uint64
	closed                bool
	stateListeners        []boardgame.ConnectionStateListener
	notificationListeners []boardgame.NotificationListener
}

var _ boardgame.Connection = (*ServerConnection)(nil)

// New creates a connection in the AVAILABLE state. Nothing is dialled until
// the first RequestConnection.
func New(transport Transport, key zone.PublicKey, logger *zap.Logger, opts ...Option) *ServerConnection {
	c := &ServerConnection{
		transport:   transport,
		key:         key,
		logger:      logger.Named("connection"),
		dialTimeout: defaultDialTimeout,
		retryDelay:  defaultRetryDelay,
		emitter:     pond.NewPool(1),
		state:       zone.ConnectionStateAvailable,
		requests:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.RecordConnectionState(c.state)
	return c
}

func (c *ServerConnection) ClientKey() zone.PublicKey {
	return c.key
}

func (c *ServerConnection) ConnectionState() zone.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestConnection registers interest under token. The first request
// starts a session; a request made while a previous attempt has failed
// starts a new one.
func (c *ServerConnection) RequestConnection(token string, retry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.requests[token] = retry
	if c.cancel != nil {
		return
	}
	c.startLocked()
}

// UnrequestConnection withdraws token. When no requests remain the session
// is torn down.
func (c *ServerConnection) UnrequestConnection(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.requests[token]; !ok {
		return
	}
	delete(c.requests, token)
	if len(c.requests) > 0 || c.closed {
		return
	}

	c.generation++
	gen := c.generation
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	link := c.link
	c.link = nil

	if link == nil {
		c.setStateLocked(zone.ConnectionStateAvailable)
		return
	}
	c.setStateLocked(zone.ConnectionStateDisconnecting)
	go func() {
		if err := link.Close(); err != nil {
			c.logger.Debug("closing link", zap.Error(err))
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == gen && !c.closed {
			c.setStateLocked(zone.ConnectionStateAvailable)
		}
	}()
}

func (c *ServerConnection) AddConnectionStateListener(l boardgame.ConnectionStateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = append(c.stateListeners, l)
	if c.closed {
		return
	}
	state := c.state
	c.emitter.Submit(func() { l.OnConnectionStateChanged(state) })
}

func (c *ServerConnection) RemoveConnectionStateListener(l boardgame.ConnectionStateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = without(c.stateListeners, l)
}

func (c *ServerConnection) AddNotificationListener(l boardgame.NotificationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationListeners = append(c.notificationListeners, l)
}

func (c *ServerConnection) RemoveNotificationListener(l boardgame.NotificationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationListeners = without(c.notificationListeners, l)
}

func (c *ServerConnection) SendCreateZoneCommand(ctx context.Context, cmd zone.CreateZone) (zone.Response, error) {
	link, err := c.onlineLink()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := link.ExecCreateZoneCommand(ctx, cmd)
	c.metrics.RecordCommand(cmd.CommandType(), metrics.ResultOf(resp, err), time.Since(start))
	return resp, err
}

func (c *ServerConnection) SendZoneCommand(ctx context.Context, zoneID string, cmd zone.Command) (zone.Response, error) {
	link, err := c.onlineLink()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := link.ExecZoneCommand(ctx, zoneID, cmd)
	c.metrics.RecordCommand(cmd.CommandType(), metrics.ResultOf(resp, err), time.Since(start))
	return resp, err
}

// Close ends any session and waits for pending listener callbacks.
func (c *ServerConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	link := c.link
	c.link = nil
	clear(c.requests)
	c.mu.Unlock()

	var err error
	if link != nil {
		err = link.Close()
	}
	c.emitter.StopAndWait()
	return err
}

func (c *ServerConnection) onlineLink() (Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != zone.ConnectionStateOnline || c.link == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotOnline, c.state)
	}
	return c.link, nil
}

func (c *ServerConnection) startLocked() {
	c.generation++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx, c.generation)
}

// run drives one generation: it keeps connecting while the session fails
// and some request asked for retries.
func (c *ServerConnection) run(ctx context.Context, gen uint64) {
	for {
		err := c.session(ctx, gen)
		if ctx.Err() != nil {
			return
		}

		state := failureState(err)
		c.logger.Warn("zone connection failed",
			zap.Stringer("state", state),
			zap.Error(err),
		)

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(state)
		retry := c.wantsRetryLocked()
		if !retry {
			c.cancel = nil
		}
		c.mu.Unlock()
		if !retry {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *ServerConnection) session(ctx context.Context, gen uint64) error {
	if !c.transition(gen, zone.ConnectionStateConnecting) {
		return ctx.Err()
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	link, err := c.transport.Dial(dialCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	if !c.transition(gen, zone.ConnectionStateAuthenticating) {
		_ = link.Close()
		return ctx.Err()
	}

	authCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	err = link.Authenticate(authCtx)
	cancel()
	if err != nil {
		_ = link.Close()
		return fmt.Errorf("authenticate: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		_ = link.Close()
		return ctx.Err()
	}
	c.link = link
	c.setStateLocked(zone.ConnectionStateOnline)
	c.mu.Unlock()
	c.logger.Info("zone connection online")

	defer func() {
		c.mu.Lock()
		if c.link == link {
			c.link = nil
		}
		c.mu.Unlock()
		_ = link.Close()
	}()

	for {
		n, err := link.NextNotification(ctx)
		if err != nil {
			return err
		}
		c.dispatch(gen, n)
	}
}

func (c *ServerConnection) dispatch(gen uint64, n zone.ZoneNotification) {
	if n.Notification == nil {
		return
	}
	c.metrics.RecordNotification(n.Notification.NotificationType())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	listeners := c.notificationListeners
	c.emitter.Submit(func() {
		for _, l := range listeners {
			l.OnZoneNotification(n)
		}
	})
}

func (c *ServerConnection) transition(gen uint64, state zone.ConnectionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.setStateLocked(state)
	return true
}

// setStateLocked must be called with mu held so emitted states keep the
// order in which they were set.
func (c *ServerConnection) setStateLocked(state zone.ConnectionState) {
	if c.state == state {
		return
	}
	c.logger.Debug("connection state changed",
		zap.Stringer("from", c.state),
		zap.Stringer("to", state),
	)
	c.state = state
	c.metrics.RecordConnectionState(state)

	listeners := c.stateListeners
	c.emitter.Submit(func() {
		for _, l := range listeners {
			l.OnConnectionStateChanged(state)
		}
	})
}

func (c *ServerConnection) wantsRetryLocked() bool {
	for _, retry := range c.requests {
		if retry {
			return true
		}
	}
	return false
}

func failureState(err error) zone.ConnectionState {
	if errors.Is(err, ErrUnavailable) {
		return zone.ConnectionStateUnavailable
	}
	if isTLSError(err) {
		return zone.ConnectionStateTLSError
	}
	return zone.ConnectionStateGeneralFailure
}

func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		authorityEr x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	if errors.As(err, &verifyErr) || errors.As(err, &recordErr) || errors.As(err, &authorityEr) ||
		errors.As(err, &hostnameErr) || errors.As(err, &invalidErr) {
		return true
	}
	// gRPC flattens handshake failures into status messages.
	msg := err.Error()
	return strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:")
}

// without returns a copy of ls minus v, so slices captured by pending
// callbacks are never modified.
func without[T comparable](ls []T, v T) []T {
	out := make([]T, 0, len(ls))
	for _, l := range ls {
		if l != v {
			out = append(out, l)
		}
	}
	return out
}
