package capability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/capability"
	"github.com/sentinelhq/sentinel/internal/capability/capabilitytest"
	"github.com/sentinelhq/sentinel/internal/resilience"
)

func TestGuardedCompleterRetriesTransientFailure(t *testing.T) {
	completer := capabilitytest.NewScriptedCompleter(
		capabilitytest.CompleterResponse{Err: errors.New("model overloaded")},
		capabilitytest.CompleterResponse{Completion: capability.Completion{Text: "ok"}},
	)
	guarded := capability.NewGuardedCompleter(completer, capability.NewGuard(capability.GuardConfig{
		Retry: resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}))

	res, err := guarded.Complete(context.Background(), []capability.Message{{Role: capability.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 2, completer.Calls(), "first attempt fails, second succeeds")
}

func TestGuardedCompleterStopsRetryingWhenCircuitOpens(t *testing.T) {
	completer := capabilitytest.NewScriptedCompleter(
		capabilitytest.CompleterResponse{Err: errors.New("model overloaded")},
	)
	guarded := capability.NewGuardedCompleter(completer, capability.NewGuard(capability.GuardConfig{
		Retry:   resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Breaker: resilience.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute},
	}))

	_, err := guarded.Complete(context.Background(), []capability.Message{{Role: capability.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, 1, completer.Calls(), "an opened circuit must not be retried against")
}

func TestGuardedWatcherRefusesWhileCircuitOpen(t *testing.T) {
	watcher := capabilitytest.NewScriptedWatcher(
		capabilitytest.WatcherResponse{Err: errors.New("rpc timeout")},
		capabilitytest.WatcherResponse{Err: errors.New("rpc timeout")},
	)
	guarded := capability.NewGuardedWatcher(watcher, capability.NewGuard(capability.GuardConfig{
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
		Breaker: resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute},
	}))

	for i := 0; i < 2; i++ {
		_, err := guarded.Poll(context.Background(), nil)
		require.Error(t, err)
	}

	// the script is exhausted: any further inner poll would fail differently
	_, err := guarded.Poll(context.Background(), nil)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestGuardedWatcherPassesEventsThrough(t *testing.T) {
	watcher := capabilitytest.NewScriptedWatcher(capabilitytest.WatcherResponse{
		Events: []capability.WatchEvent{{Source: "mempool", Kind: "transfer"}},
	})
	guarded := capability.NewGuardedWatcher(watcher, capability.NewGuard(capability.GuardConfig{
		MaxRequests: 5,
		Window:      time.Second,
	}))

	events, err := guarded.Poll(context.Background(), map[string]any{"source": "mempool"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "transfer", events[0].Kind)
}
