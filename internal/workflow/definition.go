// Package workflow loads, validates and serves workflow definitions. The
// runner consumes definitions read-only.
package workflow

import "errors"

// ErrWorkflowNotFound is returned when a run references an unknown workflow.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Step is one entry in a workflow's ordered step list. Approve marks the
// step pre-approved to execute side effects; during a dry run every step
// without it runs with the effective dry-run flag set.
type Step struct {
	Capability string         `yaml:"capability"`
	Action     string         `yaml:"action"`
	Config     map[string]any `yaml:"config,omitempty"`
	Approve    bool           `yaml:"approve,omitempty"`
}

// TaskType is the capability:action identifier recorded on the step's task.
func (s Step) TaskType() string { return s.Capability + ":" + s.Action }

// Definition is one named workflow.
type Definition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

func (d Definition) clone() Definition {
	cp := d
	cp.Steps = make([]Step, len(d.Steps))
	for i, s := range d.Steps {
		sc := s
		if s.Config != nil {
			sc.Config = make(map[string]any, len(s.Config))
			for k, v := range s.Config {
				sc.Config[k] = v
			}
		}
		cp.Steps[i] = sc
	}
	return cp
}
