package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/model"
)

func newRun(id string) *model.Run {
	return &model.Run{
		ID:         id,
		WorkflowID: "watch-and-report",
		Status:     model.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
}

func TestMemoryRunLifecycle(t *testing.T) {
	s := NewMemory()
	run := newRun("run_0000000001_deadbeef")

	require.NoError(t, s.CreateRun(run))
	require.Error(t, s.CreateRun(run), "duplicate create must fail")

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)

	// mutating the returned copy must not leak into the store
	got.Status = model.RunStatusFailed
	again, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, again.Status)

	run.Status = model.RunStatusCompleted
	require.NoError(t, s.UpdateRun(run))
	updated, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, updated.Status)

	_, err = s.GetRun("run_0000000002_deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTasksKeepCreationOrder(t *testing.T) {
	s := NewMemory()
	runID := "run_0000000001_deadbeef"
	require.NoError(t, s.CreateRun(newRun(runID)))

	for _, id := range []string{"task_0000000001_00000001", "task_0000000001_00000002", "task_0000000001_00000003"} {
		require.NoError(t, s.CreateTask(&model.Task{ID: id, RunID: runID, Status: model.TaskStatusPending, CreatedAt: time.Now()}))
	}

	tasks, err := s.FindTasksByRun(runID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "task_0000000001_00000001", tasks[0].ID)
	assert.Equal(t, "task_0000000001_00000003", tasks[2].ID)
}

func TestMemoryAnalysesAboveThreshold(t *testing.T) {
	s := NewMemory()
	runID := "run_0000000001_deadbeef"

	scores := []float64{0.2, 0.7, 0.95, 0.5}
	for i, score := range scores {
		require.NoError(t, s.CreateAnalysis(&model.Analysis{
			ID:    fmt.Sprintf("ana_0000000001_0000000%d", i),
			RunID: runID,
			Score: score,
		}))
	}

	found, err := s.FindAnalysesAboveThreshold(runID, 0.7)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, 0.95, found[0].Score, "results sorted by score descending")

	counts, err := s.CountByRun(runID)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Analyses)
	assert.Equal(t, 2, counts.HighScoreFindings)
	assert.Zero(t, counts.Observations)
}

func TestMemoryActionUpdate(t *testing.T) {
	s := NewMemory()
	runID := "run_0000000001_deadbeef"
	action := &model.Action{ID: "act_0000000001_deadbeef", RunID: runID, Status: model.ActionStatusDry, CreatedAt: time.Now()}

	require.NoError(t, s.CreateAction(action))
	action.Status = model.ActionStatusExecuted
	require.NoError(t, s.UpdateAction(action))

	actions, err := s.FindActionsByRun(runID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionStatusExecuted, actions[0].Status)

	missing := &model.Action{ID: "act_0000000002_deadbeef", RunID: runID}
	assert.ErrorIs(t, s.UpdateAction(missing), ErrNotFound)
}

func TestYAMLStorePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenYAML(dir)
	require.NoError(t, err)

	runID := "run_0000000001_deadbeef"
	require.NoError(t, s.CreateRun(newRun(runID)))
	require.NoError(t, s.CreateTask(&model.Task{
		ID:       "task_0000000001_deadbeef",
		RunID:    runID,
		Type:     "observe:watch",
		Priority: model.PriorityNormal,
		Status:   model.TaskStatusPending,
	}))
	require.NoError(t, s.CreateObservation(&model.Observation{ID: "obs_0000000001_deadbeef", RunID: runID, Source: "chain"}))
	require.NoError(t, s.CreateAnalysis(&model.Analysis{ID: "ana_0000000001_deadbeef", RunID: runID, Score: 0.9}))

	assert.FileExists(t, filepath.Join(dir, "runs", runID+".yaml"))
	require.NoError(t, s.Close())

	reopened, err := OpenYAML(dir)
	require.NoError(t, err)
	defer reopened.Close()

	run, err := reopened.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "watch-and-report", run.WorkflowID)

	tasks, err := reopened.FindTasksByRun(runID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "observe:watch", tasks[0].Type)

	counts, err := reopened.CountByRun(runID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Observations)
	assert.Equal(t, 1, counts.HighScoreFindings)
}

func TestYAMLStoreDirLockIsExclusive(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenYAML(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = OpenYAML(dir)
	require.Error(t, err, "second handle on the same data dir must be refused")
	assert.Contains(t, err.Error(), "store lock")

	require.NoError(t, s.Close())
	again, err := OpenYAML(dir)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
