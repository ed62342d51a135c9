package llm

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while a provider's breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig tunes when a provider is cut off and when it is tried again.
type CircuitBreakerConfig struct {
	// MaxFailures consecutive failures open the circuit (default: 3).
	MaxFailures uint32

	// Timeout is how long an open circuit waits before a trial call (default: 30s).
	Timeout time.Duration

	// HalfOpenMaxSuccesses trial calls must succeed to close it again (default: 2).
	HalfOpenMaxSuccesses uint32
}

// CircuitBreakerMetrics counts calls made through one breaker since startup.
type CircuitBreakerMetrics struct {
	TotalRequests        uint64 `json:"total_requests"`
	TotalSuccesses       uint64 `json:"total_successes"`
	TotalFailures        uint64 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

// BreakerStatus is a point-in-time view of one provider's breaker.
type BreakerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	CircuitBreakerMetrics
}

// BreakerReporter is implemented by clients whose calls go through a
// CircuitBreaker. Wrappers report the breakers of the client they wrap.
type BreakerReporter interface {
	CircuitBreakers() []BreakerStatus
}

// BreakerStatuses collects the breaker status of every client that has one.
// Clients without a breaker, and nil clients, are skipped.
func BreakerStatuses(clients ...any) []BreakerStatus {
	statuses := []BreakerStatus{}
	for _, c := range clients {
		if r, ok := c.(BreakerReporter); ok {
			statuses = append(statuses, r.CircuitBreakers()...)
		}
	}
	return statuses
}

// CircuitBreaker guards the calls to one completion, embedding or rerank
// provider. After MaxFailures consecutive failures it fails fast with
// ErrCircuitOpen for Timeout, then lets trial calls through until
// HalfOpenMaxSuccesses of them succeed.
type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	metrics CircuitBreakerMetrics
}

// NewCircuitBreaker creates a breaker with 3 failures, a 30s open period and 2 trial successes.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(name, CircuitBreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})
}

// NewCircuitBreakerWithConfig creates a breaker named after the provider it guards.
func NewCircuitBreakerWithConfig(name string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name: name,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: config.HalfOpenMaxSuccesses,
			Timeout:     config.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("circuit breaker %s: %s -> %s", name, from, to)
			},
		}),
	}
}

// Name returns the provider name the breaker was created with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the circuit is open or ctx is already done.
// A cancelled context counts as a failed call.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		cb.record(false)
		return nil, err
	}

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	cb.record(err == nil)

	if errors.Is(err, gobreaker.ErrOpenState) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.metrics.TotalRequests++
	if ok {
		cb.metrics.TotalSuccesses++
	} else {
		cb.metrics.TotalFailures++
	}
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	switch cb.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Metrics returns the call totals together with the current streaks.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	counts := cb.breaker.Counts()

	cb.mu.Lock()
	m := cb.metrics
	cb.mu.Unlock()

	m.ConsecutiveSuccesses = counts.ConsecutiveSuccesses
	m.ConsecutiveFailures = counts.ConsecutiveFailures
	return m
}

// Status returns the breaker's name, state and metrics.
func (cb *CircuitBreaker) Status() BreakerStatus {
	return BreakerStatus{Name: cb.name, State: cb.State(), CircuitBreakerMetrics: cb.Metrics()}
}
