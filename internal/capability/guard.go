package capability

import (
	"context"
	"errors"
	"time"

	"github.com/sentinelhq/sentinel/internal/resilience"
)

// Guard bundles the resilience primitives shielding one external resource:
// calls acquire the rate limit, run under the circuit breaker and retry on
// transient failure. Create one Guard per guarded resource.
type Guard struct {
	retrier *resilience.Retrier
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
}

// GuardConfig configures a Guard. Zero-value Retry and Breaker fields fall
// back to the primitives' defaults; a zero MaxRequests disables rate
// limiting.
type GuardConfig struct {
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig

	MaxRequests int
	Window      time.Duration
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Retry.RetryIf == nil {
		// retrying against an open circuit only burns the attempt budget
		cfg.Retry.RetryIf = func(err error) bool {
			return !errors.Is(err, resilience.ErrCircuitOpen)
		}
	}
	g := &Guard{
		retrier: resilience.NewRetrier(cfg.Retry),
		breaker: resilience.NewCircuitBreaker(cfg.Breaker),
	}
	if cfg.MaxRequests > 0 {
		g.limiter = resilience.NewRateLimiter(cfg.MaxRequests, cfg.Window)
	}
	return g
}

// Do runs fn behind the guard. Each attempt re-acquires the rate limit and
// passes through the breaker, so an opened circuit fails fast instead of
// hammering the downstream.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	return g.retrier.Do(ctx, func(ctx context.Context) error {
		if g.limiter != nil {
			if err := g.limiter.Acquire(ctx); err != nil {
				return err
			}
		}
		return g.breaker.Execute(ctx, fn)
	})
}

// GuardedCompleter shields a Completer behind a Guard.
type GuardedCompleter struct {
	inner Completer
	guard *Guard
}

func NewGuardedCompleter(inner Completer, guard *Guard) *GuardedCompleter {
	return &GuardedCompleter{inner: inner, guard: guard}
}

var _ Completer = (*GuardedCompleter)(nil)

func (c *GuardedCompleter) Complete(ctx context.Context, messages []Message, tools ...Tool) (Completion, error) {
	var out Completion
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		res, err := c.inner.Complete(ctx, messages, tools...)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	return out, nil
}

// GuardedWatcher shields a ChainWatcher behind a Guard.
type GuardedWatcher struct {
	inner ChainWatcher
	guard *Guard
}

func NewGuardedWatcher(inner ChainWatcher, guard *Guard) *GuardedWatcher {
	return &GuardedWatcher{inner: inner, guard: guard}
}

var _ ChainWatcher = (*GuardedWatcher)(nil)

func (w *GuardedWatcher) Poll(ctx context.Context, config map[string]any) ([]WatchEvent, error) {
	var out []WatchEvent
	err := w.guard.Do(ctx, func(ctx context.Context) error {
		events, err := w.inner.Poll(ctx, config)
		if err != nil {
			return err
		}
		out = events
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
