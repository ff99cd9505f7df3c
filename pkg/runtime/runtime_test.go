package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAgent struct {
	sched *scheduler.Scheduler

	mu       sync.Mutex
	received []string
	runs     []string
	ticks    chan string
}

func newFakeAgent(t *testing.T, freqs map[string]int, order ...string) *fakeAgent {
	t.Helper()
	a := &fakeAgent{sched: scheduler.New(), ticks: make(chan string, 64)}
	for _, name := range order {
		if err := a.sched.Register(name, func() scheduler.Task {
			return scheduler.TaskFunc(func(context.Context, uint64) error {
				a.mu.Lock()
				a.runs = append(a.runs, name)
				a.mu.Unlock()
				select {
				case a.ticks <- name:
				default:
				}
				if name == "failing" {
					return errors.New("boom")
				}
				return nil
			})
		}); err != nil {
			t.Fatalf("register: %v", err)
		}
		h, err := a.sched.Create(name)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := a.sched.SetFrequency(h, freqs[name]); err != nil {
			t.Fatalf("frequency: %v", err)
		}
		if err := a.sched.Start(h); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	return a
}

func (a *fakeAgent) Dispatch(_ context.Context, msg core.Message) core.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.received = append(a.received, msg.Payload)
	if msg.Payload == "bye" {
		return core.Terminate
	}
	return core.Continue
}

func (a *fakeAgent) Scheduler() *scheduler.Scheduler { return a.sched }

func runAsync(ctx context.Context, l *Loop) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestLoopRunsTasksByFrequency(t *testing.T) {
	a := newFakeAgent(t, map[string]int{"fast": 1, "slow": 2, "failing": 3}, "fast", "slow", "failing")
	in := make(chan core.Message)
	l := New(a, in, WithCyclePeriod(time.Millisecond))
	done := runAsync(context.Background(), l)

	slow := 0
	for slow < 3 {
		select {
		case name := <-a.ticks:
			if name == "slow" {
				slow++
			}
		case <-time.After(2 * time.Second):
			t.Fatal("tasks did not run")
		}
	}
	close(in)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// Cycle 1 runs only fast, cycle 2 runs fast then slow, cycle 3 runs
	// fast then failing.
	want := []string{"fast", "fast", "slow", "fast", "failing"}
	for i, name := range want {
		if a.runs[i] != name {
			t.Fatalf("run %d: expected %s, got %v", i, name, a.runs)
		}
	}
	if l.Cycle() < 6 {
		t.Fatalf("expected at least 6 cycles, got %d", l.Cycle())
	}
}

func TestLoopStopsOnTerminate(t *testing.T) {
	a := newFakeAgent(t, nil)
	in := make(chan core.Message, 3)
	in <- core.NewMessage("SPAWNER", "OAC_1", "hello")
	in <- core.NewMessage("SPAWNER", "OAC_1", "bye")
	in <- core.NewMessage("SPAWNER", "OAC_1", "never")

	l := New(a, in, WithCyclePeriod(time.Hour))
	if err := waitDone(t, runAsync(context.Background(), l)); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.received) != 2 || a.received[1] != "bye" {
		t.Fatalf("expected dispatch to stop after terminate, got %v", a.received)
	}
}

func TestLoopContextCancel(t *testing.T) {
	a := newFakeAgent(t, nil)
	l := New(a, make(chan core.Message), WithCyclePeriod(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, l)
	cancel()
	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLoopRejectsSecondRun(t *testing.T) {
	a := newFakeAgent(t, nil)
	in := make(chan core.Message)
	l := New(a, in, WithCyclePeriod(time.Hour))
	done := runAsync(context.Background(), l)

	deadline := time.Now().Add(2 * time.Second)
	for {
		l.mu.Lock()
		running := l.running
		l.mu.Unlock()
		if running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop did not start")
		}
		time.Sleep(time.Millisecond)
	}
	if err := l.Run(context.Background()); err == nil {
		t.Fatal("expected second run to fail")
	}
	close(in)
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestLoopHealth(t *testing.T) {
	reg := core.NewHealthRegistry()
	reg.Register("controller", core.HealthCheckerFunc(func(context.Context) core.HealthResult {
		return core.HealthResult{Status: core.HealthHealthy}
	}))
	reg.Register("link", core.HealthCheckerFunc(func(context.Context) core.HealthResult {
		return core.HealthResult{Status: core.HealthDegraded}
	}))
	l := New(newFakeAgent(t, nil), nil, WithHealth(reg))
	results, overall := l.Health(context.Background())
	if len(results) != 2 || overall != core.HealthDegraded {
		t.Fatalf("unexpected health %v %s", results, overall)
	}
}

func TestLoopReportsHealth(t *testing.T) {
	reg := core.NewHealthRegistry()
	reg.Register("link", core.HealthCheckerFunc(func(context.Context) core.HealthResult {
		return core.HealthResult{Status: core.HealthDegraded}
	}))
	reports := make(chan core.HealthStatus, 16)
	l := New(newFakeAgent(t, nil), make(chan core.Message),
		WithHealth(reg),
		WithHealthReport(2, func(s core.HealthStatus) {
			select {
			case reports <- s:
			default:
			}
		}),
	)
	l.runCycle(context.Background())
	select {
	case s := <-reports:
		t.Fatalf("expected no report after one cycle, got %s", s)
	default:
	}
	l.runCycle(context.Background())
	select {
	case s := <-reports:
		if s != core.HealthDegraded {
			t.Fatalf("expected degraded, got %s", s)
		}
	default:
		t.Fatal("expected a report on the second cycle")
	}
}
