package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boardledger/boardgame-go/internal/zone"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const (
	zoneServiceName = "boardgame.zone.v1.ZoneService"

	methodPing              = "/" + zoneServiceName + "/Ping"
	methodExecCreateZone    = "/" + zoneServiceName + "/ExecCreateZoneCommand"
	methodExecZoneCommand   = "/" + zoneServiceName + "/ExecZoneCommand"
	methodZoneNotifications = "/" + zoneServiceName + "/ZoneNotifications"
)

var zoneNotificationsStream = &grpc.StreamDesc{
	StreamName:    "ZoneNotifications",
	ServerStreams: true,
}

// GRPCConfig configures a GRPCTransport.
type GRPCConfig struct {
	Target string
	// Insecure disables TLS. Auth tokens are then sent in the clear.
	Insecure      bool
	TLS           *tls.Config
	KeepaliveTime time.Duration
	TokenTTL      time.Duration
	// DialOptions are appended after the transport's own options.
	DialOptions []grpc.DialOption
}

// GRPCTransport talks to the zone service over gRPC with JSON payloads.
type GRPCTransport struct {
	cfg    GRPCConfig
	creds  Credentials
	logger *zap.Logger
}

func NewGRPCTransport(cfg GRPCConfig, creds Credentials, logger *zap.Logger) *GRPCTransport {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &GRPCTransport{cfg: cfg, creds: creds, logger: logger.Named("grpc")}
}

// Dial creates the client connection and pings the service. The ping is
// not authenticated so that a bad key surfaces as an authentication
// failure rather than a connection failure.
func (t *GRPCTransport) Dial(ctx context.Context) (Link, error) {
	transportCreds := insecure.NewCredentials()
	if !t.cfg.Insecure {
		transportCreds = credentials.NewTLS(t.cfg.TLS)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(transportCreds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	}
	if t.cfg.KeepaliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                t.cfg.KeepaliveTime,
			Timeout:             t.cfg.KeepaliveTime / 3,
			PermitWithoutStream: true,
		}))
	}
	opts = append(opts, t.cfg.DialOptions...)

	conn, err := grpc.NewClient(t.cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", t.cfg.Target, err)
	}

	var pong pingResponse
	if err := conn.Invoke(ctx, methodPing, &pingRequest{}, &pong, grpc.WaitForReady(false)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", t.cfg.Target, err)
	}
	if !pong.Serving {
		_ = conn.Close()
		return nil, ErrUnavailable
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	return &grpcLink{
		conn:   conn,
		ctx:    linkCtx,
		cancel: cancel,
		auth: bearerCredentials{
			creds:  t.creds,
			ttl:    t.cfg.TokenTTL,
			secure: !t.cfg.Insecure,
		},
		logger: t.logger,
	}, nil
}

type grpcLink struct {
	conn   *grpc.ClientConn
	ctx    context.Context
	cancel context.CancelFunc
	auth   bearerCredentials
	logger *zap.Logger

	stream grpc.ClientStream

	closeOnce sync.Once
	closeErr  error
}

// Authenticate opens the notification stream. The service answers with
// headers once the bearer token is accepted.
func (l *grpcLink) Authenticate(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.cancel)
	defer stop()

	stream, err := l.conn.NewStream(l.ctx, zoneNotificationsStream, methodZoneNotifications,
		grpc.PerRPCCredentials(l.auth))
	if err != nil {
		return fmt.Errorf("open notification stream: %w", err)
	}
	if err := stream.SendMsg(&notificationsRequest{}); err != nil {
		return fmt.Errorf("open notification stream: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("open notification stream: %w", err)
	}
	md, err := stream.Header()
	if err != nil {
		return err
	}
	if md == nil {
		// The stream ended without headers; RecvMsg carries the status.
		var env zone.NotificationEnvelope
		if err := stream.RecvMsg(&env); err != nil {
			return err
		}
		return errors.New("notification stream closed during authentication")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	l.stream = stream
	return nil
}

func (l *grpcLink) ExecCreateZoneCommand(ctx context.Context, cmd zone.CreateZone) (zone.Response, error) {
	env, err := zone.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	var out commandResponse
	if err := l.conn.Invoke(ctx, methodExecCreateZone, &createZoneRequest{Command: env}, &out,
		grpc.PerRPCCredentials(l.auth)); err != nil {
		return nil, err
	}
	return zone.DecodeResponse(cmd.CommandType(), out.Response)
}

func (l *grpcLink) ExecZoneCommand(ctx context.Context, zoneID string, cmd zone.Command) (zone.Response, error) {
	env, err := zone.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	var out commandResponse
	if err := l.conn.Invoke(ctx, methodExecZoneCommand, &zoneCommandRequest{ZoneID: zoneID, Command: env}, &out,
		grpc.PerRPCCredentials(l.auth)); err != nil {
		return nil, err
	}
	return zone.DecodeResponse(cmd.CommandType(), out.Response)
}

func (l *grpcLink) NextNotification(ctx context.Context) (zone.ZoneNotification, error) {
	if l.stream == nil {
		return zone.ZoneNotification{}, errors.New("notification stream not open")
	}
	stop := context.AfterFunc(ctx, l.cancel)
	defer stop()

	var env zone.NotificationEnvelope
	if err := l.stream.RecvMsg(&env); err != nil {
		return zone.ZoneNotification{}, err
	}
	return zone.DecodeNotification(env)
}

func (l *grpcLink) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

// bearerCredentials attaches a fresh auth token to every call.
type bearerCredentials struct {
	creds  Credentials
	ttl    time.Duration
	secure bool
}

func (b bearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	token, err := b.creds.AuthToken(b.ttl)
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

func (b bearerCredentials) RequireTransportSecurity() bool {
	return b.secure
}
