package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sentinelhq/sentinel/internal/capability"
	"github.com/sentinelhq/sentinel/internal/events"
	"github.com/sentinelhq/sentinel/internal/model"
	"github.com/sentinelhq/sentinel/internal/orchestrator"
	"github.com/sentinelhq/sentinel/internal/policy"
	"github.com/sentinelhq/sentinel/internal/resilience"
	"github.com/sentinelhq/sentinel/internal/store"
	"github.com/sentinelhq/sentinel/internal/task"
	"github.com/sentinelhq/sentinel/internal/workflow"
)

// kvFlag collects repeated -input k=v entries.
type kvFlag map[string]string

func (f kvFlag) String() string { return "" }

func (f kvFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("expected k=v, got %q", value)
	}
	f[key] = val
	return nil
}

func runRun(args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "usage: sentinel run <workflow-id> [options]")
		os.Exit(1)
	}
	workflowID := args[0]

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	workflowsDir := fs.String("workflows", "workflows", "workflow definition directory")
	dataDir := fs.String("data", ".sentinel", "run snapshot directory")
	eventsFile := fs.String("events", "", "YAML events file for the observe capability")
	policyID := fs.String("policy", "", "preset policy id (read-only, approval-required, executor)")
	dryRun := fs.Bool("dry-run", false, "propose side effects without executing them")
	autoApprove := fs.Bool("auto-approve", false, "execute proposed actions without prompting")
	verbose := fs.Bool("verbose", false, "debug logging")
	input := kvFlag{}
	fs.Var(input, "input", "run input entry k=v (repeatable)")
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(1)
	}

	logger := newLogger(os.Stderr, *verbose)

	st, err := store.OpenYAML(*dataDir)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	bus := events.NewBus(64)
	defer bus.Close()

	auditPath := filepath.Join(*dataDir, "audit.log")
	auditFile, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Error("open audit log", "error", err)
		os.Exit(1)
	}
	defer auditFile.Close()
	bus.SubscribeAll(events.NewAuditLogger(auditFile).Subscriber())

	defs, err := workflow.LoadDir(*workflowsDir)
	if err != nil {
		logger.Error("load workflows", "error", err)
		os.Exit(1)
	}

	engine := policy.NewEngine(policy.WithLogger(logger))
	engine.RegisterPolicy(policy.ReadOnly())
	engine.RegisterPolicy(policy.ApprovalRequired())
	engine.RegisterPolicy(policy.Executor())
	if *policyID != "" {
		if err := engine.SetDefaultPolicy(*policyID); err != nil {
			logger.Error("set policy", "policy", *policyID, "error", err)
			os.Exit(1)
		}
	}

	runInput := make(map[string]any, len(input))
	for k, v := range input {
		runInput[k] = v
	}

	// one guard per external resource: the model endpoint and the chain
	// watcher fail independently and must trip independently
	completer := capability.NewGuardedCompleter(localCompleter{}, capability.NewGuard(capability.GuardConfig{
		Retry:       resilience.RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		Breaker:     resilience.BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		MaxRequests: 30,
		Window:      time.Minute,
	}))
	watcher := capability.NewGuardedWatcher(newFileWatcher(*eventsFile), capability.NewGuard(capability.GuardConfig{
		Retry:       resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
		Breaker:     resilience.BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute},
		MaxRequests: 60,
		Window:      time.Minute,
	}))

	runner := orchestrator.New(orchestrator.Deps{
		Workflows:    workflow.NewRegistry(defs...),
		Capabilities: builtinCapabilities(),
		Tasks:        task.NewManager(st, bus, logger),
		Store:        st,
		Policies:     engine,
		Bus:          bus,
		Logger:       logger,
		Completer:    completer,
		Watcher:      watcher,
		Agent:        policy.Agent{ID: "sentinel-cli", Role: "operator"},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		runner.Cancel()
	}()

	res, err := runner.Run(ctx, orchestrator.RunParams{
		WorkflowID: workflowID,
		Input:      runInput,
		DryRun:     *dryRun,
	})
	if err != nil {
		logger.Error("run", "workflow", workflowID, "error", err)
		os.Exit(1)
	}

	executor := orchestrator.NewExecutor(orchestrator.ExecutorParams{
		Store:       st,
		Bus:         bus,
		Logger:      logger,
		Approver:    newTerminalApprover(),
		AutoApprove: *autoApprove,
		Handlers: map[string]orchestrator.ActionHandler{
			"notify": func(_ context.Context, a *model.Action) (map[string]any, error) {
				fmt.Printf("NOTIFY %s: %s\n", a.ID, a.Reason)
				return map[string]any{"notified": true}, nil
			},
		},
	})
	decided, err := executor.ExecuteActions(ctx, res.Run.ID, *dryRun)
	if err != nil {
		logger.Error("execute actions", "run", res.Run.ID, "error", err)
	}

	printRunResult(res, decided)
	if res.Run.Status == model.RunStatusFailed {
		os.Exit(1)
	}
}

func builtinCapabilities() *capability.Registry {
	return capability.NewRegistry(map[string]capability.Capability{
		capability.NameObserve: capability.NewObserve(),
		capability.NameAnalyze: capability.NewAnalyze(),
		capability.NameAct:     capability.NewAct(),
	})
}

func printRunResult(res *orchestrator.RunResult, decided orchestrator.ExecutionSummary) {
	run := res.Run
	fmt.Printf("run %s (%s): %s in %s\n", run.ID, run.WorkflowID, run.Status, run.Duration.Round(time.Millisecond))
	for _, step := range res.Steps {
		line := fmt.Sprintf("  %s:%s  %s", step.Capability, step.Action, step.Status)
		if step.Error != "" {
			line += "  " + step.Error
		}
		fmt.Println(line)
	}
	if s := run.Summary; s != nil {
		fmt.Printf("steps: %d completed, %d failed\n", s.StepsCompleted, s.StepsFailed)
		fmt.Printf("records: %d observations, %d analyses (%d high-score), %d actions\n",
			s.Observations, s.Analyses, s.HighScoreFindings, s.Actions)
	}
	fmt.Printf("actions: %d executed, %d skipped, %d failed\n",
		decided.Executed, decided.Skipped, decided.Failed)
	for _, e := range run.Errors {
		fmt.Printf("error: %s\n", e)
	}
}
