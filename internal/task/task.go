// Package task implements the task lifecycle state machine and the Manager
// that owns the authoritative in-memory task index.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/sentinelhq/sentinel/internal/model"
)

// ErrInvalidTransition is returned when a lifecycle method is called from a
// state that does not permit it. The task is left untouched.
var ErrInvalidTransition = errors.New("invalid state transition")

// DefaultMaxRetries bounds the fail→retry cycle when the creator does not
// set an explicit limit.
const DefaultMaxRetries = 3

// Task couples the persisted record with its state machine. All status
// mutation goes through these methods; direct field writes bypass the
// transition rules and are not supported.
type Task struct {
	model.Task
}

func (t *Task) transition(to model.TaskStatus) error {
	if err := model.ValidateTaskTransition(t.Status, to); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	t.Status = to
	return nil
}

// Queue moves a pending task into the queued state.
func (t *Task) Queue() error {
	if t.Status != model.TaskStatusPending {
		return fmt.Errorf("%w: queue from %q", ErrInvalidTransition, t.Status)
	}
	return t.transition(model.TaskStatusQueued)
}

// Start begins execution, optionally binding the executing agent.
func (t *Task) Start(agentID string) error {
	if t.Status != model.TaskStatusPending && t.Status != model.TaskStatusQueued {
		return fmt.Errorf("%w: start from %q", ErrInvalidTransition, t.Status)
	}
	if err := t.transition(model.TaskStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.StartedAt = &now
	if agentID != "" {
		t.AgentID = agentID
	}
	return nil
}

// Complete records the output and finishes the task.
func (t *Task) Complete(output map[string]any) error {
	if err := t.transition(model.TaskStatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.Output = output
	t.Error = nil
	return nil
}

// Fail records the error text and finishes the task. The retry count is not
// touched here; it only moves on an explicit Retry.
func (t *Task) Fail(message string) error {
	if err := t.transition(model.TaskStatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.Error = &message
	t.Output = nil
	return nil
}

// Cancel finishes the task from any non-terminal state.
func (t *Task) Cancel() error {
	if t.IsTerminal() {
		return fmt.Errorf("%w: cancel from terminal %q", ErrInvalidTransition, t.Status)
	}
	if err := t.transition(model.TaskStatusCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	return nil
}

// CanRetry reports whether a failed task has retry budget left.
func (t *Task) CanRetry() bool {
	return t.Status == model.TaskStatusFailed && t.Retries < t.MaxRetries
}

// Retry returns a failed task to pending, consuming one retry.
func (t *Task) Retry() error {
	if !t.CanRetry() {
		return fmt.Errorf("%w: retry from %q (%d/%d used)", ErrInvalidTransition, t.Status, t.Retries, t.MaxRetries)
	}
	if err := t.transition(model.TaskStatusPending); err != nil {
		return err
	}
	t.Retries++
	t.Error = nil
	t.StartedAt = nil
	t.CompletedAt = nil
	return nil
}

func (t *Task) IsTerminal() bool {
	return model.IsTaskTerminal(t.Status)
}

// Duration is zero until the task has started; for a finished task it is the
// time between start and completion, for a running one the time since start.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}
