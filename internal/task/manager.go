package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/events"
	"github.com/sentinelhq/sentinel/internal/model"
	"github.com/sentinelhq/sentinel/internal/store"
)

// ErrTaskNotFound is returned when a task id is not in the manager's index.
var ErrTaskNotFound = errors.New("task not found")

// Manager owns the authoritative in-memory task index, mirrors every state
// change to storage and publishes transition events on the bus.
type Manager struct {
	mu     sync.Mutex
	store  store.Store
	bus    *events.Bus
	logger *slog.Logger

	tasks map[string]*Task
	byRun map[string][]string // creation order per run
}

func NewManager(st store.Store, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  st,
		bus:    bus,
		logger: logger,
		tasks:  make(map[string]*Task),
		byRun:  make(map[string][]string),
	}
}

// CreateParams describes a task to create. ID is assigned when absent;
// Priority defaults to normal and MaxRetries to DefaultMaxRetries.
type CreateParams struct {
	ID         string
	RunID      string
	ParentID   string
	Type       string
	Priority   model.Priority
	Input      map[string]any
	MaxRetries int
	Timeout    time.Duration
}

func (m *Manager) Create(p CreateParams) (*Task, error) {
	if p.RunID == "" {
		return nil, fmt.Errorf("task requires a run id")
	}

	id := p.ID
	if id == "" {
		generated, err := model.GenerateID(model.IDTypeTask)
		if err != nil {
			return nil, fmt.Errorf("generate task id: %w", err)
		}
		id = generated
	}

	priority := p.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	t := &Task{Task: model.Task{
		ID:         id,
		RunID:      p.RunID,
		ParentID:   p.ParentID,
		Type:       p.Type,
		Priority:   priority,
		Status:     model.TaskStatusPending,
		Input:      p.Input,
		MaxRetries: maxRetries,
		Timeout:    p.Timeout,
		CreatedAt:  time.Now().UTC(),
	}}

	m.mu.Lock()
	if _, exists := m.tasks[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("task %s already exists", id)
	}
	m.tasks[id] = t
	m.byRun[p.RunID] = append(m.byRun[p.RunID], id)
	if p.ParentID != "" {
		if parent, ok := m.tasks[p.ParentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, id)
		}
	}
	snapshot := t.Task.Clone()
	m.mu.Unlock()

	if err := m.store.CreateTask(snapshot); err != nil {
		return nil, fmt.Errorf("mirror task create: %w", err)
	}
	m.publish(events.EventTaskCreated, snapshot)
	m.logger.Debug("task created", "task", id, "run", p.RunID, "type", p.Type)
	return t, nil
}

func (m *Manager) Get(id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Filter selects tasks; zero fields match everything. Filters combine with
// AND semantics.
type Filter struct {
	RunID    string
	Status   model.TaskStatus
	Type     string
	AgentID  string
	ParentID string
	Priority model.Priority
}

// Query returns matching tasks sorted by priority rank then creation time,
// FIFO within a priority tier.
func (m *Manager) Query(f Filter) []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	if f.RunID != "" {
		ids = m.byRun[f.RunID]
	} else {
		for runID := range m.byRun {
			ids = append(ids, m.byRun[runID]...)
		}
	}

	var out []*Task
	for _, id := range ids {
		t, ok := m.tasks[id]
		if !ok {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.AgentID != "" && t.AgentID != f.AgentID {
			continue
		}
		if f.ParentID != "" && t.ParentID != f.ParentID {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Transition wrappers. Each delegates to the task's own state machine, then
// mirrors the new state to storage and publishes the matching event.

func (m *Manager) QueueTask(id string) error {
	return m.apply(id, events.EventTaskQueued, func(t *Task) error { return t.Queue() })
}

func (m *Manager) StartTask(id, agentID string) error {
	return m.apply(id, events.EventTaskStarted, func(t *Task) error { return t.Start(agentID) })
}

func (m *Manager) CompleteTask(id string, output map[string]any) error {
	return m.apply(id, events.EventTaskCompleted, func(t *Task) error { return t.Complete(output) })
}

func (m *Manager) FailTask(id, message string) error {
	return m.apply(id, events.EventTaskFailed, func(t *Task) error { return t.Fail(message) })
}

func (m *Manager) CancelTask(id string) error {
	return m.apply(id, events.EventTaskCancelled, func(t *Task) error { return t.Cancel() })
}

func (m *Manager) RetryTask(id string) error {
	return m.apply(id, events.EventTaskRetried, func(t *Task) error { return t.Retry() })
}

func (m *Manager) apply(id string, event events.EventType, fn func(*Task) error) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := fn(t); err != nil {
		m.mu.Unlock()
		return err
	}
	// snapshot under the lock so a concurrent transition cannot race the
	// store mirror
	snapshot := t.Task.Clone()
	m.mu.Unlock()

	if err := m.store.UpdateTask(snapshot); err != nil {
		return fmt.Errorf("mirror task update: %w", err)
	}
	m.publish(event, snapshot)
	m.logger.Debug("task transition", "task", id, "status", snapshot.Status)
	return nil
}

// CancelRunTasks cancels every non-terminal task of the run plus all of
// their non-terminal descendants and returns the count cancelled. Terminal
// tasks are skipped, not errors.
func (m *Manager) CancelRunTasks(runID string) int {
	m.mu.Lock()
	seen := make(map[string]bool)
	var toCancel []*Task

	var walk func(id string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		t, ok := m.tasks[id]
		if !ok {
			return
		}
		if !t.IsTerminal() {
			toCancel = append(toCancel, t)
		}
		for _, child := range t.ChildIDs {
			walk(child)
		}
	}
	for _, id := range m.byRun[runID] {
		walk(id)
	}

	var snapshots []*model.Task
	for _, t := range toCancel {
		if err := t.Cancel(); err != nil {
			continue
		}
		snapshots = append(snapshots, t.Task.Clone())
	}
	m.mu.Unlock()

	for _, snapshot := range snapshots {
		if err := m.store.UpdateTask(snapshot); err != nil {
			m.logger.Warn("mirror cancel failed", "task", snapshot.ID, "error", err)
		}
		m.publish(events.EventTaskCancelled, snapshot)
	}
	if len(snapshots) > 0 {
		m.logger.Info("run tasks cancelled", "run", runID, "count", len(snapshots))
	}
	return len(snapshots)
}

// RetryFailedTasks retries every failed task of the run that still has
// retry budget, silently skipping the rest, and returns the count retried.
func (m *Manager) RetryFailedTasks(runID string) int {
	m.mu.Lock()
	var snapshots []*model.Task
	for _, id := range m.byRun[runID] {
		t, ok := m.tasks[id]
		if !ok || !t.CanRetry() {
			continue
		}
		if err := t.Retry(); err != nil {
			continue
		}
		snapshots = append(snapshots, t.Task.Clone())
	}
	m.mu.Unlock()

	for _, snapshot := range snapshots {
		if err := m.store.UpdateTask(snapshot); err != nil {
			m.logger.Warn("mirror retry failed", "task", snapshot.ID, "error", err)
		}
		m.publish(events.EventTaskRetried, snapshot)
	}
	if len(snapshots) > 0 {
		m.logger.Info("failed tasks retried", "run", runID, "count", len(snapshots))
	}
	return len(snapshots)
}

// StatusCounts tallies the run's tasks by status for the run summary.
func (m *Manager) StatusCounts(runID string) map[model.TaskStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[model.TaskStatus]int)
	for _, id := range m.byRun[runID] {
		if t, ok := m.tasks[id]; ok {
			counts[t.Status]++
		}
	}
	return counts
}

// CleanupRun drops a run's tasks from the index. Storage keeps its records;
// only the in-memory working set is released.
func (m *Manager) CleanupRun(runID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.byRun[runID]
	for _, id := range ids {
		delete(m.tasks, id)
	}
	delete(m.byRun, runID)
	return len(ids)
}

func (m *Manager) publish(eventType events.EventType, t *model.Task) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{
		Type:   eventType,
		RunID:  t.RunID,
		TaskID: t.ID,
		Data:   map[string]any{"status": string(t.Status), "type": t.Type},
	})
}
