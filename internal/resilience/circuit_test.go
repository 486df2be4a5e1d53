package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/caselink/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	cb.now = clock.now
	return cb, clock
}

func fail(context.Context) error    { return errors.New("fail") }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Error("should not be called while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	clock.t = clock.t.Add(time.Minute)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %s", cb.State())
	}
	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)

	clock.t = clock.t.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != CircuitOpen {
		t.Errorf("expected reopen after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var changes []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		OnStateChange: func(from, to CircuitState) {
			changes = append(changes, from.String()+"->"+to.String())
		},
	})
	_ = cb.Execute(context.Background(), fail)
	if len(changes) != 1 || changes[0] != "closed->open" {
		t.Errorf("unexpected transitions: %v", changes)
	}
}

func TestPolicy_RetriesThenTrips(t *testing.T) {
	p := NewPolicy("graph", config.SinksConfig{
		MaxAttempts:      2,
		InitialBackoffMs: 1,
		MaxBackoffMs:     2,
		FailureThreshold: 1,
		ResetTimeoutSecs: 60,
	})

	var calls int
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("connection refused"), "graph")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if p.Breaker.State() != CircuitOpen {
		t.Errorf("expected open breaker, got %s", p.Breaker.State())
	}

	err = p.Run(context.Background(), succeed)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := NewPolicy("notify", config.SinksConfig{})
	if p.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", p.Retry.MaxAttempts)
	}
	if p.Sink != "notify" {
		t.Errorf("expected sink notify, got %q", p.Sink)
	}
	if err := p.Run(context.Background(), succeed); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
