package transport

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/resilience"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// Client sends messages to a router.
type Client struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a client over an existing connection.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{
		conn:    conn,
		timeout: 5 * time.Second,
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithTimeout sets a per-send timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry sets the retry policy for an unavailable router.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = rc
	}
}

// WithBreaker guards sends with cb. Once open, sends fail fast until the
// router had time to recover.
func WithBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) {
		c.breaker = cb
	}
}

// Send delivers msg to the router.
func (c *Client) Send(ctx context.Context, msg core.Message) error {
	in, err := encode(msg)
	if err != nil {
		return errors.New(errors.CodeTransport, "encode message", err)
	}
	attempt := func() error {
		err := c.invoke(ctx, in)
		if status.Code(err) == codes.Unavailable {
			return errors.New(errors.CodeTransport, "router unavailable", err).WithRecoverable(true)
		}
		return err
	}
	err = c.retry.Do(ctx, func() error {
		if c.breaker == nil {
			return attempt()
		}
		return c.breaker.Call(ctx, attempt)
	})
	if err != nil {
		return errors.New(errors.CodeTransport, "deliver message", err).
			WithContext("to", msg.To).
			WithContext("message_id", msg.ID)
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, in any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.conn.Invoke(injectTraceContext(ctx), deliverMethod, in, new(emptypb.Empty))
}

func injectTraceContext(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.MD{}
	} else {
		md = md.Copy()
	}
	otel.GetTextMapPropagator().Inject(ctx, metadataCarrier{md: md})
	return metadata.NewOutgoingContext(ctx, md)
}

type metadataCarrier struct {
	md metadata.MD
}

func (c metadataCarrier) Get(key string) string {
	values := c.md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c metadataCarrier) Set(key, value string) {
	c.md.Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c.md))
	for key := range c.md {
		keys = append(keys, key)
	}
	return keys
}

var _ propagation.TextMapCarrier = metadataCarrier{}
