package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelhq/sentinel/internal/model"
)

// NameObserve is the critical capability: the runner aborts the remaining
// steps of a run when it fails.
const NameObserve = "observe"

// Observe polls the chain watcher and records each reported event as an
// observation.
type Observe struct{}

func NewObserve() *Observe { return &Observe{} }

func (o *Observe) Execute(ctx context.Context, action string, execCtx Context, input map[string]any) (Result, error) {
	if action != "poll" {
		return Result{}, fmt.Errorf("observe: unknown action %q", action)
	}
	if execCtx.Watcher == nil {
		return Result{}, fmt.Errorf("observe: no chain watcher configured")
	}

	events, err := execCtx.Watcher.Poll(ctx, input)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("watcher poll: %v", err)}, nil
	}

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		id, err := model.GenerateID(model.IDTypeObservation)
		if err != nil {
			return Result{}, fmt.Errorf("generate observation id: %w", err)
		}
		obs := &model.Observation{
			ID:        id,
			RunID:     execCtx.RunID,
			Source:    ev.Source,
			Data:      ev.Data,
			CreatedAt: time.Now(),
		}
		if obs.Data == nil {
			obs.Data = map[string]any{}
		}
		obs.Data["kind"] = ev.Kind
		if !ev.ObservedAt.IsZero() {
			obs.Data["observed_at"] = ev.ObservedAt.UTC().Format(time.RFC3339)
		}
		if err := execCtx.Store.CreateObservation(obs); err != nil {
			return Result{}, fmt.Errorf("record observation: %w", err)
		}
		ids = append(ids, obs.ID)
	}

	return Result{
		Success: true,
		Data: map[string]any{
			"events":       len(events),
			"observations": ids,
			"dry_run":      execCtx.DryRun,
		},
	}, nil
}
