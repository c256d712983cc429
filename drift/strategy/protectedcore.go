package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

const haloSummarizationPrompt = `Summarize this conversation history, focusing on:
- What progress has been made
- Key decisions and their outcomes
- Important context and information discovered
- What remains to be done

Do NOT include the original goal or constraints in the summary - those are handled separately.
Be concise and structured.

Conversation history:
%s`

// Decision is one key decision recorded in the protected core.
type Decision struct {
	Decision  string    `json:"decision"`
	Rationale string    `json:"rationale"`
	Timestamp time.Time `json:"timestamp"`
}

// Core holds the goal and constraints that are never compressed, only
// re-asserted verbatim at the top of every reconstructed context.
type Core struct {
	OriginalGoal    string     `json:"original_goal"`
	CurrentGoal     string     `json:"current_goal"`
	HardConstraints []string   `json:"hard_constraints"`
	KeyDecisions    []Decision `json:"key_decisions"`
	UpdatedAt       time.Time  `json:"timestamp_updated"`
}

// UpdateGoal records the change as a key decision and moves the current goal.
// The original goal is never overwritten.
func (c *Core) UpdateGoal(newGoal, rationale string) {
	if rationale == "" {
		rationale = "Goal evolution during task execution"
	}
	c.KeyDecisions = append(c.KeyDecisions, Decision{
		Decision:  "Goal updated to: " + newGoal,
		Rationale: rationale,
		Timestamp: time.Now(),
	})
	c.CurrentGoal = newGoal
	c.UpdatedAt = time.Now()
}

// Render produces the authoritative text block placed at the top of every
// compressed context.
func (c *Core) Render() string {
	var b strings.Builder
	b.WriteString("PROTECTED CORE (AUTHORITATIVE - Never forget these):\n")
	b.WriteString("================================================\n")
	fmt.Fprintf(&b, "Original Goal: %s\n", c.OriginalGoal)
	fmt.Fprintf(&b, "Current Goal: %s\n", c.CurrentGoal)
	b.WriteString("\nHard Constraints (MUST FOLLOW):\n")
	for _, constraint := range c.HardConstraints {
		b.WriteString("  - " + constraint + "\n")
	}
	b.WriteString("\nKey Decisions Made:\n")
	if len(c.KeyDecisions) == 0 {
		b.WriteString("  (none yet)\n")
	} else {
		for _, d := range c.KeyDecisions {
			fmt.Fprintf(&b, "  - %s (Rationale: %s)\n", d.Decision, d.Rationale)
		}
	}
	fmt.Fprintf(&b, "\nLast Updated: %s\n", c.UpdatedAt.Format(time.RFC3339))
	b.WriteString("================================================\n")
	b.WriteString("\nINSTRUCTION: Always prioritize the CURRENT GOAL and HARD CONSTRAINTS above all else.\n")
	b.WriteString("If there's any ambiguity, refer back to this Protected Core as the source of truth.")
	return b.String()
}

// ProtectedCoreStrategy splits state into a protected core (goal, constraints,
// decisions) that is re-asserted verbatim on every compression, and a "halo"
// (everything else) that is summarized. Only the halo degrades.
type ProtectedCoreStrategy struct {
	completer    ports.Completer
	logger       zerolog.Logger
	systemPrompt string
	model        string

	core        *Core
	initialized bool
}

func NewProtectedCore(deps Deps) *ProtectedCoreStrategy {
	return &ProtectedCoreStrategy{
		completer:    deps.Completer,
		logger:       deps.Logger.With().Str("strategy", "protected-core").Logger(),
		systemPrompt: deps.SystemPrompt,
		model:        deps.SummaryModel,
	}
}

func (p *ProtectedCoreStrategy) Initialize(originalGoal string, constraints []string) {
	if p.initialized {
		p.logger.Warn().Str("previous_goal", p.core.OriginalGoal).Msg("re-initialized, replacing protected core")
	}
	p.core = &Core{
		OriginalGoal:    originalGoal,
		CurrentGoal:     originalGoal,
		HardConstraints: append([]string(nil), constraints...),
		UpdatedAt:       time.Now(),
	}
	p.initialized = true
}

func (p *ProtectedCoreStrategy) UpdateGoal(newGoal, rationale string) {
	if !p.initialized {
		p.logger.Warn().Msg("UpdateGoal before Initialize, ignoring")
		return
	}
	p.core.UpdateGoal(newGoal, rationale)
}

// AddDecision records a key decision without changing the goal.
func (p *ProtectedCoreStrategy) AddDecision(decision, rationale string) {
	if !p.initialized {
		return
	}
	p.core.KeyDecisions = append(p.core.KeyDecisions, Decision{
		Decision:  decision,
		Rationale: rationale,
		Timestamp: time.Now(),
	})
}

func (p *ProtectedCoreStrategy) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)

	var parts []string
	if p.systemPrompt != "" {
		parts = append(parts, "System: "+p.systemPrompt)
	}
	if p.initialized {
		parts = append(parts, p.core.Render())
	}
	// The halo is everything before the raw recent window; those trailing
	// turns are rendered verbatim below, never summarized.
	if halo := window[:max(0, len(window)-RecentWindow)]; len(halo) > 0 {
		parts = append(parts, "=== CONVERSATION SUMMARY ===\n"+p.summarizeHalo(ctx, halo))
	}
	if recentTurns := recent(turns, triggerPoint, RecentWindow); len(recentTurns) > 0 {
		parts = append(parts, "=== RECENT TURNS ===\n"+template.FormatTurns(recentTurns))
	}
	if len(parts) == 0 {
		return "(No previous conversation)"
	}
	return strings.Join(parts, "\n\n")
}

func (p *ProtectedCoreStrategy) Name() string { return "protected-core" }

func (p *ProtectedCoreStrategy) summarizeHalo(ctx context.Context, window []template.Turn) string {
	out, err := p.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          fmt.Sprintf(haloSummarizationPrompt, template.FormatTurns(window)),
		ModelID:         p.model,
		MaxOutputTokens: 500,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		p.logger.Warn().Err(err).Msg("halo summarization failed")
		return fmt.Sprintf("Previous conversation context (%d turns).", len(window))
	}
	return strings.TrimSpace(out.Text)
}

var _ Strategy = (*ProtectedCoreStrategy)(nil)
