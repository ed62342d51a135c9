package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// RetryPolicy describes bounded exponential backoff for external calls.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts including the first (default: 3)
	InitialBackoff time.Duration // wait after the first failure (default: 4s)
	MaxBackoff     time.Duration // upper bound for any single wait (default: 60s)
	Multiplier     float64       // growth factor between waits (default: 2)
}

// DefaultRetryPolicy returns three attempts backing off from 4s up to 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 4 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2,
	}
}

// Backoff returns the wait before attempt n+1, given that attempt n (1-based) failed.
func (p RetryPolicy) Backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && time.Duration(d) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, the attempts are exhausted or ctx is done.
// Context errors are never retried. The last error is returned wrapped with
// the attempt count.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 1; n <= attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) {
			return err
		}
		if n == attempts {
			break
		}

		wait := p.Backoff(n)
		log.Printf("%s: attempt %d/%d failed: %v (retrying in %v)", op, n, attempts, err, wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
}
