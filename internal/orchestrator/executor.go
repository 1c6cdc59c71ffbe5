package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelhq/sentinel/internal/events"
	"github.com/sentinelhq/sentinel/internal/model"
	"github.com/sentinelhq/sentinel/internal/store"
)

const (
	skipReasonRequiresApproval = "Requires approval"
	skipReasonRejected         = "Rejected by user"
)

// Approver decides one proposed action. Implementations may prompt a user.
type Approver interface {
	Approve(ctx context.Context, action *model.Action) (bool, error)
}

// ActionHandler performs one action type for real.
type ActionHandler func(ctx context.Context, action *model.Action) (map[string]any, error)

// Executor promotes dry actions through the approval gate. An action runs
// only when the run is not dry and it was auto-approved or granted; anything
// else is recorded skipped with the reason. One action failing never stops
// its siblings.
type Executor struct {
	store       store.Store
	bus         *events.Bus
	logger      *slog.Logger
	approver    Approver
	autoApprove bool
	handlers    map[string]ActionHandler
}

// ExecutorParams configures an Executor.
type ExecutorParams struct {
	Store       store.Store
	Bus         *events.Bus
	Logger      *slog.Logger
	Approver    Approver
	AutoApprove bool
	Handlers    map[string]ActionHandler
}

func NewExecutor(p ExecutorParams) *Executor {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	handlers := make(map[string]ActionHandler, len(p.Handlers))
	for name, h := range p.Handlers {
		handlers[name] = h
	}
	return &Executor{
		store:       p.Store,
		bus:         p.Bus,
		logger:      p.Logger,
		approver:    p.Approver,
		autoApprove: p.AutoApprove,
		handlers:    handlers,
	}
}

// ExecutionSummary tallies what ExecuteActions did.
type ExecutionSummary struct {
	Executed int
	Skipped  int
	Failed   int
}

// ExecuteActions decides every dry action of the run. With dryRun set the
// proposals are left untouched.
func (e *Executor) ExecuteActions(ctx context.Context, runID string, dryRun bool) (ExecutionSummary, error) {
	var summary ExecutionSummary

	actions, err := e.store.FindActionsByRun(runID)
	if err != nil {
		return summary, fmt.Errorf("load actions: %w", err)
	}

	for _, action := range actions {
		if action.Status != model.ActionStatusDry {
			continue
		}
		if dryRun {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		granted, reason := e.decide(ctx, action)
		if !granted {
			e.settle(action, model.ActionStatusSkipped, reason, nil, nil)
			summary.Skipped++
			continue
		}

		handler, ok := e.handlers[action.Type]
		if !ok {
			message := fmt.Sprintf("no handler for action type %q", action.Type)
			e.settle(action, model.ActionStatusFailed, "", nil, &message)
			summary.Failed++
			continue
		}

		result, err := handler(ctx, action)
		if err != nil {
			message := err.Error()
			e.settle(action, model.ActionStatusFailed, "", nil, &message)
			summary.Failed++
			continue
		}
		e.settle(action, model.ActionStatusExecuted, "", result, nil)
		summary.Executed++
	}

	e.logger.Info("actions decided", "run", runID,
		"executed", summary.Executed, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (e *Executor) decide(ctx context.Context, action *model.Action) (bool, string) {
	if e.autoApprove {
		return true, ""
	}
	if e.approver == nil {
		return false, skipReasonRequiresApproval
	}
	granted, err := e.approver.Approve(ctx, action)
	if err != nil {
		e.logger.Warn("approval failed", "action", action.ID, "error", err)
		return false, skipReasonRequiresApproval
	}
	if !granted {
		return false, skipReasonRejected
	}
	return true, ""
}

func (e *Executor) settle(action *model.Action, status model.ActionStatus, reason string, result map[string]any, errMessage *string) {
	action.Status = status
	if reason != "" {
		action.Reason = reason
	}
	action.Result = result
	action.Error = errMessage
	now := time.Now().UTC()
	action.DecidedAt = &now

	if err := e.store.UpdateAction(action); err != nil {
		e.logger.Warn("persist action decision", "action", action.ID, "error", err)
	}
	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type:   events.EventActionDecided,
			RunID:  action.RunID,
			TaskID: action.TaskID,
			Data:   map[string]any{"action": action.ID, "status": string(status)},
		})
	}
}
