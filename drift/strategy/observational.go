package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

const observationPrompt = `You are keeping an observation log for a long-running conversation. For the following new turns, write terse factual observations, one per line, each prefixed with "- ". Record what was said or decided; do not interpret, plan, or editorialize. Do not repeat earlier observations.

New turns:
%s

Observations:`

// Observational maintains an append-only observation log: each compression
// observes only the turns seen since the previous compression and appends to
// the log. Earlier observations are never rewritten, so the log is a stable
// (if verbose) record of the whole session.
type Observational struct {
	completer    ports.Completer
	logger       zerolog.Logger
	systemPrompt string
	model        string

	originalGoal string
	constraints  []string
	observations []string
	observed     int // turns already covered by the log
}

func NewObservational(deps Deps) *Observational {
	return &Observational{
		completer:    deps.Completer,
		logger:       deps.Logger.With().Str("strategy", "observational").Logger(),
		systemPrompt: deps.SystemPrompt,
		model:        deps.SummaryModel,
	}
}

func (o *Observational) Initialize(originalGoal string, constraints []string) {
	if o.originalGoal != "" && o.originalGoal != originalGoal {
		o.logger.Warn().Str("previous_goal", o.originalGoal).Msg("re-initialized, overwriting goal")
	}
	o.originalGoal = originalGoal
	o.constraints = append([]string(nil), constraints...)
	o.observations = nil
	o.observed = 0
}

// UpdateGoal records the change as an observation; the log is append-only.
func (o *Observational) UpdateGoal(newGoal, rationale string) {
	obs := "Goal updated to: " + newGoal
	if rationale != "" {
		obs += " (Rationale: " + rationale + ")"
	}
	o.observations = append(o.observations, obs)
}

func (o *Observational) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)
	if len(window) > o.observed {
		o.observations = append(o.observations, o.observe(ctx, window[o.observed:])...)
		o.observed = len(window)
	}
	return o.assemble(recent(turns, triggerPoint, RecentWindow))
}

func (o *Observational) Name() string { return "observational" }

func (o *Observational) observe(ctx context.Context, newTurns []template.Turn) []string {
	out, err := o.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          fmt.Sprintf(observationPrompt, template.FormatTurns(newTurns)),
		ModelID:         o.model,
		MaxOutputTokens: 800,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		o.logger.Warn().Err(err).Msg("observation pass failed, recording turns mechanically")
		var fallback []string
		for _, turn := range newTurns {
			fallback = append(fallback, fmt.Sprintf("Turn %d (%s): %s", turn.ID, turn.Role, truncateText(turn.Content, 100)))
		}
		return fallback
	}

	var observations []string
	for _, line := range strings.Split(out.Text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			observations = append(observations, line)
		}
	}
	return observations
}

func (o *Observational) assemble(recentTurns []template.Turn) string {
	var parts []string
	if o.systemPrompt != "" {
		parts = append(parts, "System: "+o.systemPrompt)
	}
	if len(o.observations) > 0 {
		var lines []string
		for _, obs := range o.observations {
			lines = append(lines, "- "+obs)
		}
		parts = append(parts, "=== OBSERVATION LOG ===\n"+strings.Join(lines, "\n"))
	}
	if len(recentTurns) > 0 {
		parts = append(parts, "=== RECENT TURNS ===\n"+template.FormatTurns(recentTurns))
	}
	if len(parts) == 0 {
		return "(No previous conversation)"
	}
	return strings.Join(parts, "\n\n")
}

var _ Strategy = (*Observational)(nil)
