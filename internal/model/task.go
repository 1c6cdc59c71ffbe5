// Package model defines the data records, identifiers and status machines
// shared by the orchestration core.
package model

import "time"

// Task is the atomic unit of work belonging to exactly one run. Fields are
// exported for persistence; all status mutation goes through the transition
// methods in the task package, never by direct field writes.
type Task struct {
	ID         string         `yaml:"id"`
	RunID      string         `yaml:"run_id"`
	ParentID   string         `yaml:"parent_id,omitempty"`
	AgentID    string         `yaml:"agent_id,omitempty"`
	Type       string         `yaml:"type"` // capability:action
	Priority   Priority       `yaml:"priority"`
	Status     TaskStatus     `yaml:"status"`
	Input      map[string]any `yaml:"input,omitempty"`
	Output     map[string]any `yaml:"output,omitempty"`
	Error      *string        `yaml:"error,omitempty"`
	Retries    int            `yaml:"retries"`
	MaxRetries int            `yaml:"max_retries"`
	Timeout    time.Duration  `yaml:"timeout,omitempty"`
	ChildIDs   []string       `yaml:"child_ids,omitempty"`

	CreatedAt   time.Time  `yaml:"created_at"`
	StartedAt   *time.Time `yaml:"started_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
}

// Clone returns a deep copy so store reads never alias live task state.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Input = cloneMap(t.Input)
	cp.Output = cloneMap(t.Output)
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	cp.ChildIDs = append([]string(nil), t.ChildIDs...)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
