package transport

import (
	"context"
	"log/slog"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jllopis/avatar/pkg/core"
)

// Inbox is the RouterServer that queues delivered messages.
type Inbox struct {
	mu       sync.RWMutex
	ch       chan core.Message
	stop     chan struct{}
	stopOnce sync.Once
	closed   bool
	logger   *slog.Logger
}

// NewInbox creates an inbox buffering up to size messages.
func NewInbox(size int, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{
		ch:     make(chan core.Message, size),
		stop:   make(chan struct{}),
		logger: logger,
	}
}

// Deliver implements RouterServer. It blocks while the inbox is full,
// until the caller gives up or the inbox is stopped.
func (i *Inbox) Deliver(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	msg, err := decode(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, status.Error(codes.Unavailable, "inbox closed")
	}
	select {
	case i.ch <- msg:
		i.logger.DebugContext(ctx, "transport.deliver",
			slog.String("message_id", msg.ID),
			slog.String("from", msg.From),
		)
		return &emptypb.Empty{}, nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	case <-i.stop:
		return nil, status.Error(codes.Unavailable, "inbox closed")
	}
}

// Messages returns the inbound channel. It is closed by Close.
func (i *Inbox) Messages() <-chan core.Message {
	return i.ch
}

// Stop rejects new deliveries and releases the ones waiting for room.
// Messages already queued stay readable.
func (i *Inbox) Stop() {
	i.stopOnce.Do(func() { close(i.stop) })
}

// Close stops the inbox and closes the channel.
func (i *Inbox) Close() {
	i.Stop()
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	close(i.ch)
}
