package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

func failing() (interface{}, error) { return nil, errUpstream }

// TestCircuitBreakerClosed verifies that requests pass through in the closed state.
func TestCircuitBreakerClosed(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Expected success in closed state, got: %v", err)
	}
	if result != "ok" {
		t.Fatalf("Expected result 'ok', got: %v", result)
	}
	if state := cb.State(); state != "closed" {
		t.Fatalf("Expected circuit to be closed, got: %s", state)
	}
}

// TestCircuitBreakerOpen verifies that three consecutive failures trip the
// circuit and further calls fail fast with ErrCircuitOpen.
func TestCircuitBreakerOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(ctx, failing); !errors.Is(err, errUpstream) {
			t.Fatalf("attempt %d: expected upstream error, got: %v", i+1, err)
		}
	}
	if state := cb.State(); state != "open" {
		t.Fatalf("Expected circuit to be open, got: %s", state)
	}

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got: %v", err)
	}
	if called {
		t.Error("function must not run while the circuit is open")
	}
}

// TestCircuitBreakerHalfOpenRecovery verifies the open -> half-open -> closed path.
func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{
		MaxFailures:          1,
		Timeout:              20 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, failing)
	if state := cb.State(); state != "open" {
		t.Fatalf("Expected open, got: %s", state)
	}

	time.Sleep(40 * time.Millisecond)
	if state := cb.State(); state != "half-open" {
		t.Fatalf("Expected half-open after timeout, got: %s", state)
	}

	if _, err := cb.Execute(ctx, func() (interface{}, error) { return nil, nil }); err != nil {
		t.Fatalf("Expected success in half-open state, got: %v", err)
	}
	if state := cb.State(); state != "closed" {
		t.Fatalf("Expected closed after recovery, got: %s", state)
	}
}

func TestCircuitBreakerCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cb.Execute(ctx, func() (interface{}, error) { return nil, nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	_, _ = cb.Execute(ctx, func() (interface{}, error) { return nil, nil })
	_, _ = cb.Execute(ctx, failing)

	m := cb.Metrics()
	if m.TotalRequests != 2 || m.TotalSuccesses != 1 || m.TotalFailures != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if m.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures: got %d, want 1", m.ConsecutiveFailures)
	}
}
