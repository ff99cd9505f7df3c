// Package runtime drives a controller: it owns the cycle ticker that runs
// scheduled tasks and dispatches inbound messages between cycles.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/scheduler"
	"github.com/jllopis/avatar/pkg/telemetry"
)

// DefaultCyclePeriod is used when no period is configured.
const DefaultCyclePeriod = 100 * time.Millisecond

// Agent is the part of the controller the loop drives.
type Agent interface {
	Dispatch(ctx context.Context, msg core.Message) core.Outcome
	Scheduler() *scheduler.Scheduler
}

// Loop runs scheduled tasks once per cycle and dispatches inbound messages
// between cycles. A message or a task is fully processed before the next
// one starts.
type Loop struct {
	agent   Agent
	inbound <-chan core.Message
	period  time.Duration
	health  *core.HealthRegistry
	report  func(core.HealthStatus)
	every   uint64

	mu      sync.Mutex
	cycle   uint64
	running bool
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Loop.
type Option func(*Loop)

// WithCyclePeriod sets the duration of one cycle.
func WithCyclePeriod(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.period = d
		}
	}
}

// WithHealth sets the registry reported by Health.
func WithHealth(reg *core.HealthRegistry) Option {
	return func(l *Loop) {
		if reg != nil {
			l.health = reg
		}
	}
}

// WithHealthReport calls report with the overall health every n cycles.
func WithHealthReport(n uint64, report func(core.HealthStatus)) Option {
	return func(l *Loop) {
		if n > 0 && report != nil {
			l.every = n
			l.report = report
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loop for agent reading messages from inbound.
func New(agent Agent, inbound <-chan core.Message, opts ...Option) *Loop {
	l := &Loop{
		agent:   agent,
		inbound: inbound,
		period:  DefaultCyclePeriod,
		health:  core.NewHealthRegistry(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("avatar/runtime"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run blocks until the agent asks to terminate, the inbound channel is
// closed or ctx is done. Only the last case returns an error.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("runtime: loop already running")
	}
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	l.logger.Info("runtime.loop.start", slog.Duration("cycle_period", l.period))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("runtime.loop.stop", slog.String("reason", "context"))
			return ctx.Err()
		case <-ticker.C:
			l.runCycle(ctx)
		case msg, ok := <-l.inbound:
			if !ok {
				l.logger.Info("runtime.loop.stop", slog.String("reason", "inbound closed"))
				return nil
			}
			if l.dispatch(ctx, msg) == core.Terminate {
				l.logger.Info("runtime.loop.stop", slog.String("reason", "terminate"))
				return nil
			}
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, msg core.Message) core.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.agent.Dispatch(ctx, msg)
}

func (l *Loop) runCycle(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycle++
	for _, h := range l.agent.Scheduler().Due(l.cycle) {
		l.runTask(ctx, h)
	}
	if l.report != nil && l.cycle%l.every == 0 {
		_, status := l.health.CheckAll(ctx)
		l.report(status)
	}
}

func (l *Loop) runTask(ctx context.Context, h *scheduler.Handle) {
	ctx, span := l.tracer.Start(ctx, "Scheduler.Task", trace.WithAttributes(
		telemetry.TaskAttributes(h.Name(), l.cycle)...,
	))
	defer span.End()

	start := time.Now()
	err := h.Task().Run(ctx, l.cycle)
	elapsed := time.Since(start)
	telemetry.Metrics().RecordTaskRun(ctx, h.Name(), elapsed)
	span.SetAttributes(attribute.Float64("duration_ms", float64(elapsed.Microseconds())/1000))
	if err != nil {
		span.RecordError(err)
		telemetry.Metrics().RecordError(ctx, err, "task")
		l.logger.WarnContext(ctx, "runtime.task.error",
			slog.String("task", h.Name()),
			slog.Uint64("cycle", l.cycle),
			slog.String("error", err.Error()),
		)
	}
}

// Cycle returns the number of completed cycles.
func (l *Loop) Cycle() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycle
}

// Health runs the registered checkers between cycles.
func (l *Loop) Health(ctx context.Context) ([]core.HealthResult, core.HealthStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health.CheckAll(ctx)
}
