package transport

import (
	"context"
	"sync"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/errors"
)

// Loopback is an in-memory core.Transport. Sent messages are recorded and
// Deliver injects inbound ones.
type Loopback struct {
	mu       sync.Mutex
	sent     []core.Message
	failures map[string]error

	inMu         sync.RWMutex
	in           chan core.Message
	stop         chan struct{}
	stopOnce     sync.Once
	deregistered bool
}

// NewLoopback creates a loopback buffering up to size inbound messages.
func NewLoopback(size int) *Loopback {
	return &Loopback{
		in:       make(chan core.Message, size),
		stop:     make(chan struct{}),
		failures: make(map[string]error),
	}
}

// Send records msg, or fails when a failure is set for its recipient.
func (l *Loopback) Send(_ context.Context, msg core.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures[msg.To]; err != nil {
		return errors.New(errors.CodeTransport, "deliver message", err).WithContext("to", msg.To)
	}
	l.sent = append(l.sent, msg)
	return nil
}

// FailSendsTo makes every send to recipient fail with err. A nil err
// clears the failure.
func (l *Loopback) FailSendsTo(recipient string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, recipient)
		return
	}
	l.failures[recipient] = err
}

// Sent returns the recorded outbound messages.
func (l *Loopback) Sent() []core.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Message(nil), l.sent...)
}

// Deliver queues an inbound message, blocking while the buffer is full.
// It reports false once deregistered.
func (l *Loopback) Deliver(msg core.Message) bool {
	l.inMu.RLock()
	defer l.inMu.RUnlock()
	if l.deregistered {
		return false
	}
	select {
	case l.in <- msg:
		return true
	case <-l.stop:
		return false
	}
}

// Inbound implements core.Transport.
func (l *Loopback) Inbound() <-chan core.Message {
	return l.in
}

// Deregister closes the inbound channel.
func (l *Loopback) Deregister(context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	l.inMu.Lock()
	defer l.inMu.Unlock()
	if !l.deregistered {
		l.deregistered = true
		close(l.in)
	}
	return nil
}

// Deregistered reports whether Deregister was called.
func (l *Loopback) Deregistered() bool {
	l.inMu.RLock()
	defer l.inMu.RUnlock()
	return l.deregistered
}
