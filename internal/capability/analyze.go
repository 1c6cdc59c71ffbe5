package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sentinelhq/sentinel/internal/model"
)

const NameAnalyze = "analyze"

const analyzeSystemPrompt = `You are an incident analyst. Given one observed event,
reply with a JSON object {"summary": string, "score": number between 0 and 1}
where score is the severity of the finding.`

// Analyze runs the completer over each stored observation and records a
// scored analysis per observation.
type Analyze struct{}

func NewAnalyze() *Analyze { return &Analyze{} }

func (a *Analyze) Execute(ctx context.Context, action string, execCtx Context, input map[string]any) (Result, error) {
	if action != "findings" {
		return Result{}, fmt.Errorf("analyze: unknown action %q", action)
	}
	if execCtx.Completer == nil {
		return Result{}, fmt.Errorf("analyze: no completer configured")
	}

	observations, err := execCtx.Store.FindObservationsByRun(execCtx.RunID)
	if err != nil {
		return Result{}, fmt.Errorf("load observations: %w", err)
	}
	if len(observations) == 0 {
		return Result{Success: true, Data: map[string]any{"analyses": 0}}, nil
	}

	var (
		created int
		tokens  Usage
	)
	for _, obs := range observations {
		payload, err := json.Marshal(obs.Data)
		if err != nil {
			return Result{}, fmt.Errorf("encode observation %s: %w", obs.ID, err)
		}
		completion, err := execCtx.Completer.Complete(ctx, []Message{
			{Role: RoleSystem, Content: analyzeSystemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf("source: %s\nevent: %s", obs.Source, payload)},
		})
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("completion for %s: %v", obs.ID, err)}, nil
		}
		tokens.InputTokens += completion.Usage.InputTokens
		tokens.OutputTokens += completion.Usage.OutputTokens

		summary, score := parseFinding(completion.Text)
		id, err := model.GenerateID(model.IDTypeAnalysis)
		if err != nil {
			return Result{}, fmt.Errorf("generate analysis id: %w", err)
		}
		analysis := &model.Analysis{
			ID:            id,
			RunID:         execCtx.RunID,
			ObservationID: obs.ID,
			Summary:       summary,
			Score:         score,
			CreatedAt:     time.Now(),
		}
		if err := execCtx.Store.CreateAnalysis(analysis); err != nil {
			return Result{}, fmt.Errorf("record analysis: %w", err)
		}
		created++
	}

	return Result{
		Success: true,
		Data: map[string]any{
			"analyses":      created,
			"input_tokens":  tokens.InputTokens,
			"output_tokens": tokens.OutputTokens,
			"dry_run":       execCtx.DryRun,
		},
	}, nil
}

// parseFinding decodes the model reply. Replies that are not the requested
// JSON shape degrade to a zero-score finding with the raw text as summary.
func parseFinding(text string) (summary string, score float64) {
	var finding struct {
		Summary string  `json:"summary"`
		Score   float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(text), &finding); err != nil {
		return strings.TrimSpace(text), 0
	}
	if finding.Score < 0 {
		finding.Score = 0
	}
	if finding.Score > 1 {
		finding.Score = 1
	}
	return finding.Summary, finding.Score
}
