// Package resilience provides the primitives that shield external calls:
// bounded retry with backoff, sliding-window rate limiting and a circuit
// breaker. Each instance owns private state; create one per guarded
// resource.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const jitterFraction = 0.1

// RetryConfig controls Retrier behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// RetryIf, when set, short-circuits retrying: a false return re-raises
	// the error immediately without further attempts.
	RetryIf func(error) bool
}

// Retrier calls an operation up to MaxAttempts times with exponential
// backoff and ±10% jitter between attempts.
type Retrier struct {
	cfg RetryConfig
}

func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Retrier{cfg: cfg}
}

// Do runs fn until it succeeds, the attempt budget is spent, or the error is
// ruled non-retryable. The last error is returned on exhaustion. Context
// cancellation aborts the backoff sleep.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if r.cfg.RetryIf != nil && !r.cfg.RetryIf(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// delay computes min(base * multiplier^(attempt-1), max) with ±10% jitter.
func (r *Retrier) delay(attempt int) time.Duration {
	backoff := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	capped := math.Min(backoff, float64(r.cfg.MaxDelay))
	jitter := 1 + jitterFraction*(2*rand.Float64()-1)
	return time.Duration(capped * jitter)
}
