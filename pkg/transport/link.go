package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/errors"
)

const (
	defaultInboxSize = 64
	// gracefulStopTimeout bounds how long open streams, such as health
	// watches, may hold up Deregister.
	gracefulStopTimeout = 5 * time.Second
)

// LinkConfig configures a Link.
type LinkConfig struct {
	ListenAddr string
	RouterAddr string
	InboxSize  int
}

// Link is the controller's connection to the message router: a gRPC
// server receiving deliveries and a client sending to the router. It
// implements core.Transport. The server also answers the standard gRPC
// health service.
type Link struct {
	server *grpc.Server
	health *health.Server
	inbox  *Inbox
	client *Client
	conn   *grpc.ClientConn
	logger *slog.Logger

	once sync.Once
	done chan struct{}
}

// Dial listens on cfg.ListenAddr and connects to cfg.RouterAddr.
func Dial(cfg LinkConfig, logger *slog.Logger, opts ...ClientOption) (*Link, error) {
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, errors.New(errors.CodeTransport, "listen", err).WithContext("addr", cfg.ListenAddr)
	}
	conn, err := grpc.NewClient(cfg.RouterAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		_ = lis.Close()
		return nil, errors.New(errors.CodeTransport, "connect router", err).WithContext("addr", cfg.RouterAddr)
	}
	return NewLink(lis, conn, cfg.InboxSize, logger, opts...), nil
}

// NewLink serves deliveries on lis and sends through conn.
func NewLink(lis net.Listener, conn *grpc.ClientConn, inboxSize int, logger *slog.Logger, opts ...ClientOption) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	l := &Link{
		server: grpc.NewServer(),
		health: health.NewServer(),
		inbox:  NewInbox(inboxSize, logger),
		client: NewClient(conn, opts...),
		conn:   conn,
		logger: logger,
		done:   make(chan struct{}),
	}
	RegisterRouterServer(l.server, l.inbox)
	healthpb.RegisterHealthServer(l.server, l.health)
	go func() {
		defer close(l.done)
		if err := l.server.Serve(lis); err != nil {
			l.logger.Error("transport.serve.error", slog.String("error", err.Error()))
		}
	}()
	l.logger.Info("transport.link.start", slog.String("listen", lis.Addr().String()), slog.String("router", conn.Target()))
	return l
}

// Send implements core.Transport.
func (l *Link) Send(ctx context.Context, msg core.Message) error {
	return l.client.Send(ctx, msg)
}

// Inbound implements core.Transport.
func (l *Link) Inbound() <-chan core.Message {
	return l.inbox.Messages()
}

// Deregister stops receiving deliveries. Sends remain possible until Close.
func (l *Link) Deregister(_ context.Context) error {
	l.once.Do(func() {
		// Blocked deliveries must return before GracefulStop can finish.
		l.inbox.Stop()
		l.health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			l.server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(gracefulStopTimeout):
			l.logger.Warn("transport.link.force_stop")
			l.server.Stop()
			<-stopped
		}
		<-l.done
		l.inbox.Close()
		l.logger.Info("transport.link.deregister")
	})
	return nil
}

// Close deregisters and closes the router connection.
func (l *Link) Close() error {
	_ = l.Deregister(context.Background())
	return l.conn.Close()
}

// ReportHealth publishes status on the gRPC health service, both for the
// server as a whole and for the router service. Degraded still serves.
func (l *Link) ReportHealth(status core.HealthStatus) {
	serving := healthpb.HealthCheckResponse_SERVING
	if status == core.HealthUnhealthy {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	l.health.SetServingStatus("", serving)
	l.health.SetServingStatus(serviceName, serving)
}

// Check reports the router connection state.
func (l *Link) Check(_ context.Context) core.HealthResult {
	state := l.conn.GetState()
	result := core.HealthResult{Message: state.String()}
	switch state {
	case connectivity.Ready, connectivity.Idle:
		result.Status = core.HealthHealthy
	case connectivity.Connecting, connectivity.TransientFailure:
		result.Status = core.HealthDegraded
	default:
		result.Status = core.HealthUnhealthy
	}
	return result
}
