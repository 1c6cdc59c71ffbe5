package store

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sentinelhq/sentinel/internal/model"
)

// DefaultHighScoreThreshold is the analysis score at or above which a
// finding counts as high-score in run summaries.
const DefaultHighScoreThreshold = 0.7

// Memory is a mutex-guarded in-memory Store.
type Memory struct {
	mu           sync.RWMutex
	runs         map[string]*model.Run
	tasks        map[string]*model.Task
	taskOrder    map[string][]string // runID → task ids in creation order
	observations map[string][]*model.Observation
	analyses     map[string][]*model.Analysis
	actions      map[string][]*model.Action

	highScoreThreshold float64

	// counts for the same run requested concurrently collapse to one walk
	counts singleflight.Group
}

func NewMemory() *Memory {
	return &Memory{
		runs:               make(map[string]*model.Run),
		tasks:              make(map[string]*model.Task),
		taskOrder:          make(map[string][]string),
		observations:       make(map[string][]*model.Observation),
		analyses:           make(map[string][]*model.Analysis),
		actions:            make(map[string][]*model.Action),
		highScoreThreshold: DefaultHighScoreThreshold,
	}
}

// SetHighScoreThreshold overrides the high-score cutoff used by CountByRun.
func (m *Memory) SetHighScoreThreshold(threshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highScoreThreshold = threshold
}

func (m *Memory) CreateRun(run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *Memory) UpdateRun(run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; !exists {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *Memory) GetRun(id string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return cloneRun(run), nil
}

func (m *Memory) CreateTask(task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	m.tasks[task.ID] = task.Clone()
	m.taskOrder[task.RunID] = append(m.taskOrder[task.RunID], task.ID)
	return nil
}

func (m *Memory) UpdateTask(task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; !exists {
		return fmt.Errorf("task %s: %w", task.ID, ErrNotFound)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *Memory) FindTasksByRun(runID string) ([]*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.taskOrder[runID]
	tasks := make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := m.tasks[id]; ok {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks, nil
}

func (m *Memory) CreateObservation(o *model.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.observations[o.RunID] = append(m.observations[o.RunID], &cp)
	return nil
}

func (m *Memory) FindObservationsByRun(runID string) ([]*model.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Observation, 0, len(m.observations[runID]))
	for _, o := range m.observations[runID] {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) CreateAnalysis(a *model.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.analyses[a.RunID] = append(m.analyses[a.RunID], &cp)
	return nil
}

func (m *Memory) FindAnalysesAboveThreshold(runID string, threshold float64) ([]*model.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Analysis
	for _, a := range m.analyses[runID] {
		if a.Score >= threshold {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (m *Memory) CreateAction(a *model.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[a.RunID] = append(m.actions[a.RunID], cloneAction(a))
	return nil
}

func (m *Memory) UpdateAction(a *model.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.actions[a.RunID] {
		if existing.ID == a.ID {
			m.actions[a.RunID][i] = cloneAction(a)
			return nil
		}
	}
	return fmt.Errorf("action %s: %w", a.ID, ErrNotFound)
}

func (m *Memory) FindActionsByRun(runID string) ([]*model.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actions := make([]*model.Action, 0, len(m.actions[runID]))
	for _, a := range m.actions[runID] {
		actions = append(actions, cloneAction(a))
	}
	return actions, nil
}

func (m *Memory) CountByRun(runID string) (RunCounts, error) {
	v, err, _ := m.counts.Do(runID, func() (any, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		counts := RunCounts{
			Observations: len(m.observations[runID]),
			Analyses:     len(m.analyses[runID]),
			Actions:      len(m.actions[runID]),
		}
		for _, a := range m.analyses[runID] {
			if a.Score >= m.highScoreThreshold {
				counts.HighScoreFindings++
			}
		}
		return counts, nil
	})
	if err != nil {
		return RunCounts{}, err
	}
	return v.(RunCounts), nil
}

func cloneRun(run *model.Run) *model.Run {
	cp := *run
	if run.Input != nil {
		cp.Input = make(map[string]any, len(run.Input))
		for k, v := range run.Input {
			cp.Input[k] = v
		}
	}
	cp.Errors = append([]string(nil), run.Errors...)
	if run.Summary != nil {
		s := *run.Summary
		if run.Summary.TaskCounts != nil {
			s.TaskCounts = make(map[model.TaskStatus]int, len(run.Summary.TaskCounts))
			for k, v := range run.Summary.TaskCounts {
				s.TaskCounts[k] = v
			}
		}
		cp.Summary = &s
	}
	if run.CompletedAt != nil {
		ts := *run.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

func cloneAction(a *model.Action) *model.Action {
	cp := *a
	if a.Params != nil {
		cp.Params = make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			cp.Params[k] = v
		}
	}
	if a.Result != nil {
		cp.Result = make(map[string]any, len(a.Result))
		for k, v := range a.Result {
			cp.Result[k] = v
		}
	}
	if a.Error != nil {
		e := *a.Error
		cp.Error = &e
	}
	if a.DecidedAt != nil {
		ts := *a.DecidedAt
		cp.DecidedAt = &ts
	}
	return &cp
}
