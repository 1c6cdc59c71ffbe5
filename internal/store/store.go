// Package store persists runs, tasks and the records capabilities produce.
// The orchestration core only depends on the Store interface; Memory and
// YAMLStore are the two shipped implementations.
package store

import (
	"errors"

	"github.com/sentinelhq/sentinel/internal/model"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// RunCounts aggregates what storage holds for one run.
type RunCounts struct {
	Observations      int
	Analyses          int
	Actions           int
	HighScoreFindings int
}

// Store is the persistence contract consumed by the orchestration core.
// Implementations return deep copies: mutating a returned record never
// changes stored state until the corresponding Update call.
type Store interface {
	CreateRun(run *model.Run) error
	UpdateRun(run *model.Run) error
	GetRun(id string) (*model.Run, error)

	CreateTask(task *model.Task) error
	UpdateTask(task *model.Task) error
	FindTasksByRun(runID string) ([]*model.Task, error)

	CreateObservation(o *model.Observation) error
	FindObservationsByRun(runID string) ([]*model.Observation, error)
	CreateAnalysis(a *model.Analysis) error
	FindAnalysesAboveThreshold(runID string, threshold float64) ([]*model.Analysis, error)

	CreateAction(a *model.Action) error
	UpdateAction(a *model.Action) error
	FindActionsByRun(runID string) ([]*model.Action, error)

	// CountByRun reports per-run record counts for the run summary.
	CountByRun(runID string) (RunCounts, error)
}
