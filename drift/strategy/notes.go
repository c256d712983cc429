package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

const notesPrompt = `You maintain a running memory-note file for an agent. Given the existing notes and a new span of conversation, return the consolidated notes.

Rules:
- Keep notes atomic: one fact, decision, or requirement per note
- Merge duplicates, keep the most specific wording
- Never drop a note that records a goal, constraint, or decision
- Notes about superseded decisions should say what replaced them

Existing notes:
%s

New conversation:
%s

Output format (JSON):
{
  "notes": [
    "note 1",
    "note 2"
  ]
}`

// Notes is a note-based memory strategy: across compressions it maintains a
// consolidated list of atomic memory notes and rebuilds context as
// notes + recent raw turns. Unlike the salience set there is no verbatim
// guarantee; the model is free to rephrase while consolidating.
type Notes struct {
	completer    ports.Completer
	logger       zerolog.Logger
	systemPrompt string
	model        string

	originalGoal string
	currentGoal  string
	constraints  []string
	notes        []string
	consolidated int // turns already folded into notes
}

func NewNotes(deps Deps) *Notes {
	return &Notes{
		completer:    deps.Completer,
		logger:       deps.Logger.With().Str("strategy", "notes").Logger(),
		systemPrompt: deps.SystemPrompt,
		model:        deps.ExtractionModel,
	}
}

func (n *Notes) Initialize(originalGoal string, constraints []string) {
	if n.originalGoal != "" && n.originalGoal != originalGoal {
		n.logger.Warn().Str("previous_goal", n.originalGoal).Msg("re-initialized, overwriting goal")
	}
	n.originalGoal = originalGoal
	n.currentGoal = originalGoal
	n.constraints = append([]string(nil), constraints...)
	// Seed notes so goal and constraints survive even if consolidation
	// misbehaves.
	n.notes = []string{"Goal: " + originalGoal}
	for _, c := range constraints {
		n.notes = append(n.notes, "Constraint: "+c)
	}
	n.consolidated = 0
}

// UpdateGoal appends a goal-change note and switches the current goal.
func (n *Notes) UpdateGoal(newGoal, rationale string) {
	n.currentGoal = newGoal
	note := "Goal updated to: " + newGoal
	if rationale != "" {
		note += " (Rationale: " + rationale + ")"
	}
	n.notes = append(n.notes, note)
}

func (n *Notes) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)
	if len(window) > n.consolidated {
		n.consolidate(ctx, window[n.consolidated:])
		n.consolidated = len(window)
	}
	return n.assemble(recent(turns, triggerPoint, RecentWindow))
}

func (n *Notes) Name() string { return "notes" }

func (n *Notes) consolidate(ctx context.Context, newTurns []template.Turn) {
	existing := "None"
	if len(n.notes) > 0 {
		var lines []string
		for _, note := range n.notes {
			lines = append(lines, "- "+note)
		}
		existing = strings.Join(lines, "\n")
	}

	out, err := n.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          fmt.Sprintf(notesPrompt, existing, template.FormatTurns(newTurns)),
		ModelID:         n.model,
		MaxOutputTokens: 1000,
		Structured:      true,
	})
	if err != nil {
		n.logger.Warn().Err(err).Msg("note consolidation failed, keeping existing notes")
		return
	}

	var payload struct {
		Notes []string `json:"notes"`
	}
	if jsonErr := json.Unmarshal(out.RawJSON, &payload); jsonErr != nil || len(payload.Notes) == 0 {
		n.logger.Warn().Msg("note consolidation returned no usable notes, keeping existing notes")
		return
	}

	var cleaned []string
	for _, note := range payload.Notes {
		if trimmed := strings.TrimSpace(note); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) > 0 {
		n.notes = cleaned
	}
}

func (n *Notes) assemble(recentTurns []template.Turn) string {
	var parts []string
	if n.systemPrompt != "" {
		parts = append(parts, "System: "+n.systemPrompt)
	}
	if len(n.notes) > 0 {
		var lines []string
		for i, note := range n.notes {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, note))
		}
		parts = append(parts, "=== MEMORY NOTES ===\n"+strings.Join(lines, "\n"))
	}
	if len(recentTurns) > 0 {
		parts = append(parts, "=== RECENT TURNS ===\n"+template.FormatTurns(recentTurns))
	}
	if len(parts) == 0 {
		return "(No previous conversation)"
	}
	return strings.Join(parts, "\n\n")
}

var _ Strategy = (*Notes)(nil)
