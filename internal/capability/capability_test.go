package capability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/capability"
	"github.com/sentinelhq/sentinel/internal/capability/capabilitytest"
	"github.com/sentinelhq/sentinel/internal/model"
	"github.com/sentinelhq/sentinel/internal/store"
)

const testRunID = "run_0000000001_deadbeef"

func execCtx(st store.Store) capability.Context {
	return capability.Context{
		RunID:  testRunID,
		TaskID: "task_0000000001_deadbeef",
		Store:  st,
	}
}

func TestRegistryResolvesRegisteredCapability(t *testing.T) {
	reg := capability.NewRegistry(map[string]capability.Capability{
		capability.NameObserve: capability.NewObserve(),
	})
	require.NoError(t, reg.Register(capability.NameAct, capability.NewAct()))

	c, err := reg.Resolve(capability.NameObserve)
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, []string{"act", "observe"}, reg.Names())
}

func TestRegistryRejectsUnknownAndInvalid(t *testing.T) {
	reg := capability.NewRegistry(nil)

	_, err := reg.Resolve("observe")
	assert.ErrorIs(t, err, capability.ErrCapabilityUnregistered)

	_, err = reg.Resolve("")
	assert.ErrorIs(t, err, capability.ErrCapabilityNameEmpty)

	assert.ErrorIs(t, reg.Register("", capability.NewAct()), capability.ErrCapabilityNameEmpty)
	assert.ErrorIs(t, reg.Register("act", nil), capability.ErrNilCapability)
}

func TestObserveRecordsWatcherEvents(t *testing.T) {
	st := store.NewMemory()
	watcher := capabilitytest.NewScriptedWatcher(capabilitytest.WatcherResponse{
		Events: []capability.WatchEvent{
			{Source: "mempool", Kind: "transfer", Data: map[string]any{"value": "12.5"}},
			{Source: "mempool", Kind: "approval"},
		},
	})

	ec := execCtx(st)
	ec.Watcher = watcher

	res, err := capability.NewObserve().Execute(context.Background(), "poll", ec, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Data["events"])

	stored, err := st.FindObservationsByRun(testRunID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "mempool", stored[0].Source)
	assert.Equal(t, "transfer", stored[0].Data["kind"])
}

func TestObserveDryRunStillRecords(t *testing.T) {
	st := store.NewMemory()
	watcher := capabilitytest.NewScriptedWatcher(capabilitytest.WatcherResponse{
		Events: []capability.WatchEvent{{Source: "mempool", Kind: "transfer"}},
	})

	ec := execCtx(st)
	ec.Watcher = watcher
	ec.DryRun = true

	res, err := capability.NewObserve().Execute(context.Background(), "poll", ec, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, true, res.Data["dry_run"])

	stored, err := st.FindObservationsByRun(testRunID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "dry runs still record what they observed")
}

func TestObserveWatcherErrorIsCapabilityFailure(t *testing.T) {
	ec := execCtx(store.NewMemory())
	ec.Watcher = capabilitytest.NewScriptedWatcher(capabilitytest.WatcherResponse{
		Err: errors.New("rpc timeout"),
	})

	res, err := capability.NewObserve().Execute(context.Background(), "poll", ec, nil)
	require.NoError(t, err, "collaborator failure is a soft failure, not an error")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rpc timeout")
}

func TestObserveUnknownAction(t *testing.T) {
	_, err := capability.NewObserve().Execute(context.Background(), "scan", execCtx(store.NewMemory()), nil)
	assert.Error(t, err)
}

func seedObservation(t *testing.T, st store.Store, id string) {
	t.Helper()
	require.NoError(t, st.CreateObservation(&model.Observation{
		ID:    id,
		RunID: testRunID,
		Data:  map[string]any{"kind": "transfer"},
	}))
}

func TestCompleterAcceptsToolDescriptors(t *testing.T) {
	completer := capabilitytest.NewScriptedCompleter(
		capabilitytest.CompleterResponse{Completion: capability.Completion{Text: "ok"}},
		capabilitytest.CompleterResponse{Completion: capability.Completion{Text: "ok"}},
	)

	lookup := capability.Tool{
		Name:        "lookup_address",
		Description: "Resolve an address to its known labels",
		Schema:      map[string]any{"type": "object"},
	}
	_, err := completer.Complete(context.Background(), []capability.Message{{Role: capability.RoleUser, Content: "hi"}}, lookup)
	require.NoError(t, err)
	_, err = completer.Complete(context.Background(), []capability.Message{{Role: capability.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	offered := completer.Tools()
	require.Len(t, offered, 2)
	require.Len(t, offered[0], 1)
	assert.Equal(t, "lookup_address", offered[0][0].Name)
	assert.Empty(t, offered[1], "tools are optional per turn")
}

func TestAnalyzeScoresEachObservation(t *testing.T) {
	st := store.NewMemory()
	seedObservation(t, st, "obs_0000000001_00000001")
	seedObservation(t, st, "obs_0000000001_00000002")

	completer := capabilitytest.NewScriptedCompleter(
		capabilitytest.CompleterResponse{Completion: capability.Completion{
			Text:  `{"summary": "large outbound transfer", "score": 0.9}`,
			Usage: capability.Usage{InputTokens: 40, OutputTokens: 12},
		}},
		capabilitytest.CompleterResponse{Completion: capability.Completion{
			Text: `{"summary": "routine approval", "score": 0.1}`,
		}},
	)

	ec := execCtx(st)
	ec.Completer = completer

	res, err := capability.NewAnalyze().Execute(context.Background(), "findings", ec, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Data["analyses"])
	assert.Equal(t, 40, res.Data["input_tokens"])

	high, err := st.FindAnalysesAboveThreshold(testRunID, 0.7)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "large outbound transfer", high[0].Summary)
	assert.Equal(t, "obs_0000000001_00000001", high[0].ObservationID)
}

func TestAnalyzeMalformedReplyDegradesToZeroScore(t *testing.T) {
	st := store.NewMemory()
	seedObservation(t, st, "obs_0000000001_00000001")

	ec := execCtx(st)
	ec.Completer = capabilitytest.NewScriptedCompleter(
		capabilitytest.CompleterResponse{Completion: capability.Completion{Text: "not json at all"}},
	)

	res, err := capability.NewAnalyze().Execute(context.Background(), "findings", ec, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	high, err := st.FindAnalysesAboveThreshold(testRunID, 0.0)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "not json at all", high[0].Summary)
	assert.Zero(t, high[0].Score)
}

func TestAnalyzeCompleterErrorIsCapabilityFailure(t *testing.T) {
	st := store.NewMemory()
	seedObservation(t, st, "obs_0000000001_00000001")

	ec := execCtx(st)
	ec.Completer = capabilitytest.NewScriptedCompleter(
		capabilitytest.CompleterResponse{Err: errors.New("model overloaded")},
	)

	res, err := capability.NewAnalyze().Execute(context.Background(), "findings", ec, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "model overloaded")
}

func TestAnalyzeNoObservationsIsSuccess(t *testing.T) {
	ec := execCtx(store.NewMemory())
	ec.Completer = capabilitytest.NewScriptedCompleter()

	res, err := capability.NewAnalyze().Execute(context.Background(), "findings", ec, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Data["analyses"])
}

func seedAnalysis(t *testing.T, st store.Store, id string, score float64) {
	t.Helper()
	require.NoError(t, st.CreateAnalysis(&model.Analysis{
		ID:      id,
		RunID:   testRunID,
		Summary: "finding " + id,
		Score:   score,
	}))
}

func TestActProposesDryActionsForHighScoreFindings(t *testing.T) {
	st := store.NewMemory()
	seedAnalysis(t, st, "ana_0000000001_00000001", 0.9)
	seedAnalysis(t, st, "ana_0000000001_00000002", 0.3)

	res, err := capability.NewAct().Execute(context.Background(), "propose", execCtx(st), map[string]any{
		"action_type": "alert_webhook",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Data["findings"])

	actions, err := st.FindActionsByRun(testRunID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionStatusDry, actions[0].Status)
	assert.Equal(t, "alert_webhook", actions[0].Type)
	assert.Equal(t, "ana_0000000001_00000001", actions[0].Params["analysis_id"])
}

func TestActHonorsThresholdOverride(t *testing.T) {
	st := store.NewMemory()
	seedAnalysis(t, st, "ana_0000000001_00000001", 0.5)

	res, err := capability.NewAct().Execute(context.Background(), "propose", execCtx(st), map[string]any{
		"threshold": 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Data["findings"])

	_, err = capability.NewAct().Execute(context.Background(), "propose", execCtx(st), map[string]any{
		"threshold": "high",
	})
	assert.Error(t, err, "non-numeric threshold is rejected")
}

func TestActDryRunStillProposesDryActions(t *testing.T) {
	st := store.NewMemory()
	seedAnalysis(t, st, "ana_0000000001_00000001", 0.9)

	ec := execCtx(st)
	ec.DryRun = true

	res, err := capability.NewAct().Execute(context.Background(), "propose", ec, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	actions, err := st.FindActionsByRun(testRunID)
	require.NoError(t, err)
	require.Len(t, actions, 1, "proposals are recorded even on dry runs")
	assert.Equal(t, model.ActionStatusDry, actions[0].Status)
}
