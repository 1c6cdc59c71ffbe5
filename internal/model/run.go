package model

import "time"

// Run is one execution of a named workflow.
type Run struct {
	ID         string         `yaml:"id"`
	WorkflowID string         `yaml:"workflow_id"`
	Status     RunStatus      `yaml:"status"`
	DryRun     bool           `yaml:"dry_run"`
	Input      map[string]any `yaml:"input,omitempty"`
	Errors     []string       `yaml:"errors,omitempty"`
	Summary    *RunSummary    `yaml:"summary,omitempty"`

	StartedAt   time.Time     `yaml:"started_at"`
	CompletedAt *time.Time    `yaml:"completed_at,omitempty"`
	Duration    time.Duration `yaml:"duration,omitempty"`
}

// RunSummary aggregates what a run produced. Step counts come from the
// runner; observation/analysis/action counts come from storage.
type RunSummary struct {
	StepsCompleted    int                `yaml:"steps_completed"`
	StepsFailed       int                `yaml:"steps_failed"`
	Observations      int                `yaml:"observations"`
	Analyses          int                `yaml:"analyses"`
	Actions           int                `yaml:"actions"`
	HighScoreFindings int                `yaml:"high_score_findings"`
	TaskCounts        map[TaskStatus]int `yaml:"task_counts,omitempty"`
}

// StepResult records the outcome of one workflow step.
type StepResult struct {
	Capability string         `yaml:"capability"`
	Action     string         `yaml:"action"`
	TaskID     string         `yaml:"task_id"`
	Status     TaskStatus     `yaml:"status"`
	Output     map[string]any `yaml:"output,omitempty"`
	Error      string         `yaml:"error,omitempty"`
}
