package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

// Naive always compresses with a generic summarization prompt. It
// intentionally protects neither goals nor constraints, serving as the
// lower-bound baseline for goal drift.
type Naive struct {
	completer    ports.Completer
	logger       zerolog.Logger
	systemPrompt string
	model        string

	originalGoal string
	constraints  []string
}

func NewNaive(deps Deps) *Naive {
	return &Naive{
		completer:    deps.Completer,
		logger:       deps.Logger.With().Str("strategy", "naive").Logger(),
		systemPrompt: deps.SystemPrompt,
		model:        deps.SummaryModel,
	}
}

// Initialize stores the goal and constraints but never uses them in
// compression.
func (n *Naive) Initialize(originalGoal string, constraints []string) {
	if n.originalGoal != "" && n.originalGoal != originalGoal {
		n.logger.Warn().Str("previous_goal", n.originalGoal).Msg("re-initialized, overwriting goal")
	}
	n.originalGoal = originalGoal
	n.constraints = append([]string(nil), constraints...)
}

// UpdateGoal is a no-op: the naive strategy does not track goal evolution.
func (n *Naive) UpdateGoal(newGoal, rationale string) {
	n.logger.Debug().Str("new_goal", newGoal).Msg("goal update received (ignored)")
}

func (n *Naive) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)
	if len(window) == 0 {
		return n.emptyContext()
	}

	prompt := fmt.Sprintf("Summarize this conversation in 3-4 sentences:\n\n%s", template.FormatTurns(window))
	out, err := n.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          prompt,
		ModelID:         n.model,
		MaxOutputTokens: 500,
	})

	summary := strings.TrimSpace(out.Text)
	if err != nil || summary == "" {
		n.logger.Warn().Err(err).Msg("summarization failed, keeping recent turns verbatim")
		summary = template.FormatTurns(recent(turns, triggerPoint, RecentWindow))
	}

	var b strings.Builder
	if n.systemPrompt != "" {
		b.WriteString("System: " + n.systemPrompt + "\n\n")
	}
	b.WriteString("Previous conversation summary:\n" + summary)
	return b.String()
}

func (n *Naive) emptyContext() string {
	if n.systemPrompt != "" {
		return "System: " + n.systemPrompt + "\n\n(No previous conversation)"
	}
	return "(No previous conversation)"
}

func (n *Naive) Name() string { return "naive" }

var _ Strategy = (*Naive)(nil)
