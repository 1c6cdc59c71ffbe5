// Package orchestrator sequences workflow steps into tasks and capability
// calls, one run at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/capability"
	"github.com/sentinelhq/sentinel/internal/events"
	"github.com/sentinelhq/sentinel/internal/model"
	"github.com/sentinelhq/sentinel/internal/policy"
	"github.com/sentinelhq/sentinel/internal/store"
	"github.com/sentinelhq/sentinel/internal/task"
	"github.com/sentinelhq/sentinel/internal/workflow"
)

// ErrAlreadyRunning is returned when Run is called while another run is
// active. Calls do not queue.
var ErrAlreadyRunning = errors.New("a run is already active")

// Deps is the runner's composition surface. Everything is injected; the
// runner owns no global state.
type Deps struct {
	Workflows    *workflow.Registry
	Capabilities *capability.Registry
	Tasks        *task.Manager
	Store        store.Store
	Policies     *policy.Engine
	Bus          *events.Bus
	Logger       *slog.Logger

	Completer capability.Completer
	Watcher   capability.ChainWatcher

	// Agent is the identity policy decisions are made for.
	Agent policy.Agent
}

// Runner executes one workflow at a time. Steps run strictly sequentially;
// a second Run while one is active fails with ErrAlreadyRunning.
type Runner struct {
	deps Deps

	mu        sync.Mutex
	activeRun string
	cancelled bool
}

func New(deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{deps: deps}
}

// RunParams describes one run request.
type RunParams struct {
	WorkflowID string
	Input      map[string]any
	DryRun     bool
}

// RunResult is always returned when a run was started, whatever the final
// status.
type RunResult struct {
	Run   *model.Run
	Steps []model.StepResult
}

func (r *Runner) Run(ctx context.Context, p RunParams) (*RunResult, error) {
	def, run, err := r.begin(p)
	if err != nil {
		return nil, err
	}
	defer r.release()

	r.deps.Logger.Info("run started",
		"run", run.ID, "workflow", def.ID, "dry_run", p.DryRun, "steps", len(def.Steps))
	r.publish(events.EventRunStarted, run.ID, "", map[string]any{"workflow": def.ID})

	result := &RunResult{Run: run}
	aborted := false

	for _, step := range def.Steps {
		if r.isCancelled() || ctx.Err() != nil {
			break
		}
		stepResult := r.executeStep(ctx, run, step, p)
		result.Steps = append(result.Steps, stepResult)

		r.publish(events.EventStepFinished, run.ID, stepResult.TaskID, map[string]any{
			"capability": step.Capability,
			"action":     step.Action,
			"status":     string(stepResult.Status),
		})

		if stepResult.Status == model.TaskStatusFailed {
			run.Errors = append(run.Errors,
				fmt.Sprintf("%s - %s", step.TaskType(), stepResult.Error))
			// the observe capability is load-bearing for every later step
			if step.Capability == capability.NameObserve {
				aborted = true
				break
			}
		}
	}

	r.finish(run, result, aborted)
	return result, nil
}

// begin claims the single-flight slot and creates the run record. The slot
// is released again when the workflow id is unknown or the record cannot be
// written.
func (r *Runner) begin(p RunParams) (workflow.Definition, *model.Run, error) {
	r.mu.Lock()
	if r.activeRun != "" {
		r.mu.Unlock()
		return workflow.Definition{}, nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, r.activeRun)
	}
	r.activeRun = "pending"
	r.cancelled = false
	r.mu.Unlock()

	def, err := r.deps.Workflows.Get(p.WorkflowID)
	if err != nil {
		r.release()
		return workflow.Definition{}, nil, err
	}

	runID, err := model.GenerateID(model.IDTypeRun)
	if err != nil {
		r.release()
		return workflow.Definition{}, nil, fmt.Errorf("generate run id: %w", err)
	}

	run := &model.Run{
		ID:         runID,
		WorkflowID: def.ID,
		Status:     model.RunStatusRunning,
		DryRun:     p.DryRun,
		Input:      p.Input,
		StartedAt:  time.Now().UTC(),
	}
	if err := r.deps.Store.CreateRun(run); err != nil {
		r.release()
		return workflow.Definition{}, nil, fmt.Errorf("create run record: %w", err)
	}

	r.mu.Lock()
	r.activeRun = runID
	r.mu.Unlock()
	return def, run, nil
}

func (r *Runner) executeStep(ctx context.Context, run *model.Run, step workflow.Step, p RunParams) model.StepResult {
	input := mergeInput(p.Input, step.Config)
	result := model.StepResult{Capability: step.Capability, Action: step.Action}

	t, err := r.deps.Tasks.Create(task.CreateParams{
		RunID: run.ID,
		Type:  step.TaskType(),
		Input: input,
	})
	if err != nil {
		result.Status = model.TaskStatusFailed
		result.Error = err.Error()
		return result
	}
	result.TaskID = t.ID

	fail := func(message string) model.StepResult {
		if err := r.deps.Tasks.FailTask(t.ID, message); err != nil {
			r.deps.Logger.Warn("mark task failed", "task", t.ID, "error", err)
		}
		result.Status = model.TaskStatusFailed
		result.Error = message
		return result
	}

	if err := r.deps.Tasks.StartTask(t.ID, r.deps.Agent.ID); err != nil {
		return fail(fmt.Sprintf("start task: %v", err))
	}

	// policy decides before the capability runs: deny refuses the step,
	// require-approval forces the effective dry-run flag on
	effectiveDryRun := p.DryRun && !step.Approve
	decision := r.deps.Policies.Evaluate(r.deps.Agent, step.TaskType(), input)
	switch decision.Action {
	case policy.ActionDeny:
		return fail(fmt.Sprintf("%v: %s", policy.ErrPolicyDenied, decision.Reason))
	case policy.ActionRequireApproval:
		effectiveDryRun = true
	}

	impl, err := r.deps.Capabilities.Resolve(step.Capability)
	if err != nil {
		return fail(err.Error())
	}

	res, err := impl.Execute(ctx, step.Action, capability.Context{
		RunID:     run.ID,
		TaskID:    t.ID,
		DryRun:    effectiveDryRun,
		Store:     r.deps.Store,
		Completer: r.deps.Completer,
		Watcher:   r.deps.Watcher,
	}, input)
	if err != nil {
		return fail(err.Error())
	}
	if !res.Success {
		message := res.Error
		if message == "" {
			message = "capability reported failure"
		}
		return fail(message)
	}

	if err := r.deps.Tasks.CompleteTask(t.ID, res.Data); err != nil {
		return fail(fmt.Sprintf("complete task: %v", err))
	}
	result.Status = model.TaskStatusCompleted
	result.Output = res.Data
	return result
}

// finish computes the summary and persists the terminal run record. A run
// with failed steps still completes unless the critical step aborted it.
func (r *Runner) finish(run *model.Run, result *RunResult, aborted bool) {
	summary := &model.RunSummary{TaskCounts: r.deps.Tasks.StatusCounts(run.ID)}
	for _, s := range result.Steps {
		if s.Status == model.TaskStatusCompleted {
			summary.StepsCompleted++
		} else {
			summary.StepsFailed++
		}
	}
	if counts, err := r.deps.Store.CountByRun(run.ID); err == nil {
		summary.Observations = counts.Observations
		summary.Analyses = counts.Analyses
		summary.Actions = counts.Actions
		summary.HighScoreFindings = counts.HighScoreFindings
	} else {
		r.deps.Logger.Warn("run summary counts", "run", run.ID, "error", err)
	}
	run.Summary = summary

	switch {
	case r.isCancelled():
		run.Status = model.RunStatusCancelled
	case aborted:
		run.Status = model.RunStatusFailed
	default:
		run.Status = model.RunStatusCompleted
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Duration = now.Sub(run.StartedAt)

	if err := r.deps.Store.UpdateRun(run); err != nil {
		r.deps.Logger.Error("persist run record", "run", run.ID, "error", err)
	}
	r.deps.Logger.Info("run finished",
		"run", run.ID, "status", run.Status,
		"steps_completed", summary.StepsCompleted, "steps_failed", summary.StepsFailed)
	r.publish(events.EventRunFinished, run.ID, "", map[string]any{"status": string(run.Status)})
}

// Cancel cancels the active run's tasks and marks the run cancelled. It
// reports whether a run was active; cancelling an idle runner is a no-op.
// During the startup window, before the run record exists, the request is
// recorded and honored before the first step.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	runID := r.activeRun
	if runID == "" {
		r.mu.Unlock()
		return false
	}
	r.cancelled = true
	r.mu.Unlock()

	if runID == "pending" {
		r.deps.Logger.Info("run cancel requested during startup")
		return true
	}

	cancelled := r.deps.Tasks.CancelRunTasks(runID)
	r.deps.Logger.Info("run cancel requested", "run", runID, "tasks_cancelled", cancelled)

	if run, err := r.deps.Store.GetRun(runID); err == nil && !model.IsRunTerminal(run.Status) {
		run.Status = model.RunStatusCancelled
		now := time.Now().UTC()
		run.CompletedAt = &now
		run.Duration = now.Sub(run.StartedAt)
		if err := r.deps.Store.UpdateRun(run); err != nil {
			r.deps.Logger.Warn("persist cancelled run", "run", runID, "error", err)
		}
	}
	return true
}

// RetryFailed retries the run's failed tasks with remaining budget. Retried
// tasks go back to pending; they do not re-enter a step sequence.
func (r *Runner) RetryFailed(runID string) int {
	return r.deps.Tasks.RetryFailedTasks(runID)
}

// Active reports the id of the run in flight, or empty when idle.
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeRun == "pending" {
		return ""
	}
	return r.activeRun
}

func (r *Runner) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Runner) release() {
	r.mu.Lock()
	r.activeRun = ""
	r.mu.Unlock()
}

func (r *Runner) publish(eventType events.EventType, runID, taskID string, data map[string]any) {
	if r.deps.Bus == nil {
		return
	}
	r.deps.Bus.Publish(events.Event{Type: eventType, RunID: runID, TaskID: taskID, Data: data})
}

// mergeInput overlays step config on the run input. Step config wins.
func mergeInput(runInput, stepConfig map[string]any) map[string]any {
	merged := make(map[string]any, len(runInput)+len(stepConfig))
	for k, v := range runInput {
		merged[k] = v
	}
	for k, v := range stepConfig {
		merged[k] = v
	}
	return merged
}
