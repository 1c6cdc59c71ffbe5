package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/model"
)

func newTask(status model.TaskStatus) *Task {
	return &Task{Task: model.Task{
		ID:         "task_0000000001_deadbeef",
		RunID:      "run_0000000001_deadbeef",
		Type:       "observe:watch",
		Priority:   model.PriorityNormal,
		Status:     status,
		MaxRetries: 2,
		CreatedAt:  time.Now().UTC(),
	}}
}

func TestTaskHappyPath(t *testing.T) {
	tk := newTask(model.TaskStatusPending)

	require.NoError(t, tk.Queue())
	assert.Equal(t, model.TaskStatusQueued, tk.Status)

	require.NoError(t, tk.Start("agent-1"))
	assert.Equal(t, model.TaskStatusRunning, tk.Status)
	assert.Equal(t, "agent-1", tk.AgentID)
	require.NotNil(t, tk.StartedAt)

	require.NoError(t, tk.Complete(map[string]any{"blocks": 3}))
	assert.Equal(t, model.TaskStatusCompleted, tk.Status)
	require.NotNil(t, tk.CompletedAt)
	assert.Nil(t, tk.Error)
	assert.True(t, tk.IsTerminal())
}

func TestTaskStartFromPendingSkipsQueue(t *testing.T) {
	tk := newTask(model.TaskStatusPending)
	require.NoError(t, tk.Start(""))
	assert.Equal(t, model.TaskStatusRunning, tk.Status)
	assert.Empty(t, tk.AgentID)
}

// Illegal transitions must fail with ErrInvalidTransition and leave every
// field untouched.
func TestTaskTransitionTotality(t *testing.T) {
	tests := []struct {
		name string
		from model.TaskStatus
		call func(*Task) error
	}{
		{"queue from queued", model.TaskStatusQueued, func(tk *Task) error { return tk.Queue() }},
		{"queue from running", model.TaskStatusRunning, func(tk *Task) error { return tk.Queue() }},
		{"queue from completed", model.TaskStatusCompleted, func(tk *Task) error { return tk.Queue() }},
		{"start from running", model.TaskStatusRunning, func(tk *Task) error { return tk.Start("") }},
		{"start from failed", model.TaskStatusFailed, func(tk *Task) error { return tk.Start("") }},
		{"complete from pending", model.TaskStatusPending, func(tk *Task) error { return tk.Complete(nil) }},
		{"complete from queued", model.TaskStatusQueued, func(tk *Task) error { return tk.Complete(nil) }},
		{"complete from cancelled", model.TaskStatusCancelled, func(tk *Task) error { return tk.Complete(nil) }},
		{"fail from pending", model.TaskStatusPending, func(tk *Task) error { return tk.Fail("boom") }},
		{"fail from completed", model.TaskStatusCompleted, func(tk *Task) error { return tk.Fail("boom") }},
		{"cancel from completed", model.TaskStatusCompleted, func(tk *Task) error { return tk.Cancel() }},
		{"cancel from failed", model.TaskStatusFailed, func(tk *Task) error { return tk.Cancel() }},
		{"cancel from cancelled", model.TaskStatusCancelled, func(tk *Task) error { return tk.Cancel() }},
		{"retry from running", model.TaskStatusRunning, func(tk *Task) error { return tk.Retry() }},
		{"retry from completed", model.TaskStatusCompleted, func(tk *Task) error { return tk.Retry() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := newTask(tt.from)
			before := tk.Task

			err := tt.call(tk)
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before, tk.Task, "failed transition must not mutate state")
		})
	}
}

func TestTaskCancelFromAnyNonTerminal(t *testing.T) {
	for _, status := range []model.TaskStatus{model.TaskStatusPending, model.TaskStatusQueued, model.TaskStatusRunning} {
		t.Run(string(status), func(t *testing.T) {
			tk := newTask(status)
			require.NoError(t, tk.Cancel())
			assert.Equal(t, model.TaskStatusCancelled, tk.Status)
			assert.NotNil(t, tk.CompletedAt)
		})
	}
}

func TestTaskRetryBound(t *testing.T) {
	tk := newTask(model.TaskStatusPending)
	require.Equal(t, 2, tk.MaxRetries)

	for i := 0; i < tk.MaxRetries; i++ {
		require.NoError(t, tk.Start(""))
		require.NoError(t, tk.Fail("boom"))
		require.True(t, tk.CanRetry())
		require.NoError(t, tk.Retry())
		assert.Equal(t, model.TaskStatusPending, tk.Status)
		assert.Nil(t, tk.Error)
		assert.Nil(t, tk.StartedAt)
		assert.Nil(t, tk.CompletedAt)
		assert.Equal(t, i+1, tk.Retries)
	}

	require.NoError(t, tk.Start(""))
	require.NoError(t, tk.Fail("boom"))
	assert.False(t, tk.CanRetry())
	assert.ErrorIs(t, tk.Retry(), ErrInvalidTransition)
	assert.Equal(t, tk.MaxRetries, tk.Retries, "retry count never exceeds the limit")
}

func TestTaskFailDoesNotConsumeRetry(t *testing.T) {
	tk := newTask(model.TaskStatusPending)
	require.NoError(t, tk.Start(""))
	require.NoError(t, tk.Fail("boom"))
	assert.Zero(t, tk.Retries)
	require.NotNil(t, tk.Error)
	assert.Equal(t, "boom", *tk.Error)
	assert.Nil(t, tk.Output)
}

func TestTaskDuration(t *testing.T) {
	tk := newTask(model.TaskStatusPending)
	assert.Zero(t, tk.Duration(), "duration is zero until started")

	require.NoError(t, tk.Start(""))
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, tk.Duration(), time.Duration(0))

	require.NoError(t, tk.Complete(nil))
	frozen := tk.Duration()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, frozen, tk.Duration(), "duration is fixed after completion")
}
