// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jllopis/avatar/pkg/errors"
)

func transient() error {
	return errors.New(errors.CodeTransport, "router unavailable", nil).WithRecoverable(true)
}

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return transient()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		return transient()
	})
	if !errors.HasCode(err, errors.CodeTransport) {
		t.Fatalf("expected last transport error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnUnrecoverable(t *testing.T) {
	attempts := 0
	err := DefaultRetryConfig().Do(context.Background(), func() error {
		attempts++
		return stderrors.New("bad payload")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("expected single failed attempt, got %d (%v)", attempts, err)
	}

	attempts = 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond).
		WithIsRecoverable(func(error) bool { return true })
	_ = config.Do(context.Background(), func() error {
		attempts++
		return stderrors.New("flaky")
	})
	if attempts != 3 {
		t.Fatalf("expected custom classifier to retry, got %d attempts", attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := DefaultRetryConfig().WithInitialDelay(time.Hour).Do(ctx, func() error {
		attempts++
		return transient()
	})
	if attempts != 1 {
		t.Fatalf("expected no retry after cancel, got %d attempts", attempts)
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled cause, got %v", err)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Second, Name: "router"})
	cb.now = func() time.Time { return now }
	ctx := context.Background()
	fail := func() error { return stderrors.New("down") }
	calls := 0
	ok := func() error { calls++; return nil }

	_ = cb.Call(ctx, fail)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}
	_ = cb.Call(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	err := cb.Call(ctx, ok)
	if calls != 0 || !errors.HasCode(err, errors.CodeTransport) {
		t.Fatalf("expected fast failure while open, got calls=%d err=%v", calls, err)
	}
	if e := errors.As(err); !e.Recoverable {
		t.Fatal("expected open-circuit error to be recoverable")
	}

	now = now.Add(2 * time.Second)
	if err := cb.Call(ctx, ok); err != nil {
		t.Fatalf("expected trial call to pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after trial success, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }
	ctx := context.Background()
	_ = cb.Call(ctx, func() error { return stderrors.New("down") })
	now = now.Add(2 * time.Second)
	_ = cb.Call(ctx, func() error { return stderrors.New("still down") })
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened circuit, got %s", cb.State())
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("expected reset to close, got %s", cb.State())
	}
}
