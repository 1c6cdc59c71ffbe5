package model

import "time"

// Observation is a raw fact captured by the observe capability.
type Observation struct {
	ID        string         `yaml:"id"`
	RunID     string         `yaml:"run_id"`
	Source    string         `yaml:"source"`
	Data      map[string]any `yaml:"data,omitempty"`
	CreatedAt time.Time      `yaml:"created_at"`
}

// Analysis is a scored finding derived from observations.
type Analysis struct {
	ID            string         `yaml:"id"`
	RunID         string         `yaml:"run_id"`
	ObservationID string         `yaml:"observation_id,omitempty"`
	Summary       string         `yaml:"summary"`
	Score         float64        `yaml:"score"`
	Data          map[string]any `yaml:"data,omitempty"`
	CreatedAt     time.Time      `yaml:"created_at"`
}

// Action is a proposed or executed side effect. Actions are created dry and
// only promoted to executed through the approval gate.
type Action struct {
	ID        string         `yaml:"id"`
	RunID     string         `yaml:"run_id"`
	TaskID    string         `yaml:"task_id,omitempty"`
	Type      string         `yaml:"type"`
	Params    map[string]any `yaml:"params,omitempty"`
	Status    ActionStatus   `yaml:"status"`
	Reason    string         `yaml:"reason,omitempty"`
	Result    map[string]any `yaml:"result,omitempty"`
	Error     *string        `yaml:"error,omitempty"`
	CreatedAt time.Time      `yaml:"created_at"`
	DecidedAt *time.Time     `yaml:"decided_at,omitempty"`
}
