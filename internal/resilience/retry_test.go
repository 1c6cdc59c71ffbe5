package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierExhaustsAttempts(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})

	boom := errors.New("boom")
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom, "last error is re-raised")
	assert.Equal(t, 4, calls)
}

func TestRetrierNonRetryableShortCircuits(t *testing.T) {
	fatal := errors.New("fatal")
	r := NewRetrier(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		RetryIf:     func(err error) bool { return !errors.Is(err, fatal) },
	})

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls, "non-retryable error must not be retried")
}

func TestRetrierContextCancellation(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 10, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(context.Context) error { return errors.New("always") })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not abort the backoff sleep on cancellation")
	}
}

// For base=1s, multiplier=2, max=30s the pre-jitter delay at attempt 5 is
// min(16s, 30s) = 16s; the realized delay must stay within ±10%.
func TestRetrierBackoffBound(t *testing.T) {
	r := NewRetrier(RetryConfig{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second})

	for i := 0; i < 100; i++ {
		d := r.delay(5)
		assert.GreaterOrEqual(t, d, time.Duration(float64(16*time.Second)*0.9))
		assert.LessOrEqual(t, d, time.Duration(float64(16*time.Second)*1.1))
	}
}

func TestRetrierBackoffCappedAtMaxDelay(t *testing.T) {
	r := NewRetrier(RetryConfig{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second})

	maxDelay := 30 * time.Second
	for i := 0; i < 100; i++ {
		d := r.delay(10) // uncapped would be 512s
		assert.LessOrEqual(t, d, time.Duration(float64(maxDelay)*1.1))
	}
}
