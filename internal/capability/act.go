package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelhq/sentinel/internal/model"
	"github.com/sentinelhq/sentinel/internal/store"
)

const NameAct = "act"

// Act proposes actions from high-score analyses. Proposals are always created
// dry; the approval gate decides later whether they execute.
type Act struct{}

func NewAct() *Act { return &Act{} }

func (a *Act) Execute(ctx context.Context, action string, execCtx Context, input map[string]any) (Result, error) {
	if action != "propose" {
		return Result{}, fmt.Errorf("act: unknown action %q", action)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	threshold := store.DefaultHighScoreThreshold
	if v, ok := input["threshold"]; ok {
		f, ok := v.(float64)
		if !ok {
			return Result{}, fmt.Errorf("act: threshold must be a number, got %T", v)
		}
		threshold = f
	}
	actionType, _ := input["action_type"].(string)
	if actionType == "" {
		actionType = "notify"
	}

	findings, err := execCtx.Store.FindAnalysesAboveThreshold(execCtx.RunID, threshold)
	if err != nil {
		return Result{}, fmt.Errorf("load findings: %w", err)
	}

	ids := make([]string, 0, len(findings))
	for _, finding := range findings {
		id, err := model.GenerateID(model.IDTypeAction)
		if err != nil {
			return Result{}, fmt.Errorf("generate action id: %w", err)
		}
		proposal := &model.Action{
			ID:     id,
			RunID:  execCtx.RunID,
			TaskID: execCtx.TaskID,
			Type:   actionType,
			Params: map[string]any{
				"analysis_id": finding.ID,
				"summary":     finding.Summary,
				"score":       finding.Score,
			},
			Status:    model.ActionStatusDry,
			Reason:    finding.Summary,
			CreatedAt: time.Now(),
		}
		if err := execCtx.Store.CreateAction(proposal); err != nil {
			return Result{}, fmt.Errorf("record action: %w", err)
		}
		ids = append(ids, proposal.ID)
	}

	return Result{
		Success: true,
		Data: map[string]any{
			"findings": len(findings),
			"proposed": ids,
			"dry_run":  execCtx.DryRun,
		},
	}, nil
}
