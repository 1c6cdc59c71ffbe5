package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/sentinelhq/sentinel/internal/model"
)

const snapshotSchemaVersion = 1

// runSnapshot is the on-disk shape of one run and everything it produced.
type runSnapshot struct {
	SchemaVersion int                  `yaml:"schema_version"`
	FileType      string               `yaml:"file_type"`
	Run           *model.Run           `yaml:"run"`
	Tasks         []*model.Task        `yaml:"tasks,omitempty"`
	Observations  []*model.Observation `yaml:"observations,omitempty"`
	Analyses      []*model.Analysis    `yaml:"analyses,omitempty"`
	Actions       []*model.Action      `yaml:"actions,omitempty"`
}

// YAMLStore is a Memory store that mirrors every mutation to one YAML
// snapshot file per run under <dir>/runs. Snapshots are written atomically;
// existing snapshots are loaded on open.
type YAMLStore struct {
	*Memory
	dir  string
	lock *dirLock
}

// OpenYAML opens the store directory, takes its advisory lock and loads any
// existing run snapshots. Close releases the lock.
func OpenYAML(dir string) (*YAMLStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	lock := newDirLock(filepath.Join(dir, "sentinel.lock"))
	if err := lock.TryLock(); err != nil {
		return nil, err
	}

	s := &YAMLStore{Memory: NewMemory(), dir: dir, lock: lock}

	runsDir := filepath.Join(dir, "runs")
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		if err := s.loadSnapshot(filepath.Join(runsDir, entry.Name())); err != nil {
			lock.Unlock()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the store directory lock.
func (s *YAMLStore) Close() error {
	return s.lock.Unlock()
}

func (s *YAMLStore) loadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var snap runSnapshot
	if err := yamlv3.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if snap.Run == nil {
		return fmt.Errorf("snapshot %s has no run record", path)
	}

	if err := s.Memory.CreateRun(snap.Run); err != nil {
		return fmt.Errorf("load run from %s: %w", path, err)
	}
	for _, task := range snap.Tasks {
		if err := s.Memory.CreateTask(task); err != nil {
			return fmt.Errorf("load task from %s: %w", path, err)
		}
	}
	for _, o := range snap.Observations {
		if err := s.Memory.CreateObservation(o); err != nil {
			return err
		}
	}
	for _, a := range snap.Analyses {
		if err := s.Memory.CreateAnalysis(a); err != nil {
			return err
		}
	}
	for _, a := range snap.Actions {
		if err := s.Memory.CreateAction(a); err != nil {
			return err
		}
	}
	return nil
}

func (s *YAMLStore) snapshotPath(runID string) string {
	return filepath.Join(s.dir, "runs", runID+".yaml")
}

func (s *YAMLStore) persist(runID string) error {
	s.Memory.mu.RLock()
	run, ok := s.Memory.runs[runID]
	if !ok {
		s.Memory.mu.RUnlock()
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	snap := runSnapshot{
		SchemaVersion: snapshotSchemaVersion,
		FileType:      "run_snapshot",
		Run:           cloneRun(run),
	}
	for _, id := range s.Memory.taskOrder[runID] {
		if task, ok := s.Memory.tasks[id]; ok {
			snap.Tasks = append(snap.Tasks, task.Clone())
		}
	}
	snap.Observations = append(snap.Observations, s.Memory.observations[runID]...)
	snap.Analyses = append(snap.Analyses, s.Memory.analyses[runID]...)
	snap.Actions = append(snap.Actions, s.Memory.actions[runID]...)
	s.Memory.mu.RUnlock()

	return atomicWriteYAML(s.snapshotPath(runID), snap)
}

func (s *YAMLStore) CreateRun(run *model.Run) error {
	if err := s.Memory.CreateRun(run); err != nil {
		return err
	}
	return s.persist(run.ID)
}

func (s *YAMLStore) UpdateRun(run *model.Run) error {
	if err := s.Memory.UpdateRun(run); err != nil {
		return err
	}
	return s.persist(run.ID)
}

func (s *YAMLStore) CreateTask(task *model.Task) error {
	if err := s.Memory.CreateTask(task); err != nil {
		return err
	}
	return s.persist(task.RunID)
}

func (s *YAMLStore) UpdateTask(task *model.Task) error {
	if err := s.Memory.UpdateTask(task); err != nil {
		return err
	}
	return s.persist(task.RunID)
}

func (s *YAMLStore) CreateObservation(o *model.Observation) error {
	if err := s.Memory.CreateObservation(o); err != nil {
		return err
	}
	return s.persist(o.RunID)
}

func (s *YAMLStore) CreateAnalysis(a *model.Analysis) error {
	if err := s.Memory.CreateAnalysis(a); err != nil {
		return err
	}
	return s.persist(a.RunID)
}

func (s *YAMLStore) CreateAction(a *model.Action) error {
	if err := s.Memory.CreateAction(a); err != nil {
		return err
	}
	return s.persist(a.RunID)
}

func (s *YAMLStore) UpdateAction(a *model.Action) error {
	if err := s.Memory.UpdateAction(a); err != nil {
		return err
	}
	return s.persist(a.RunID)
}
