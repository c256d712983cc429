package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

// Turns per leaf segment before a second summarization level kicks in.
const hierarchicalSegmentSize = 20

// Hierarchical summarizes the history in fixed-size segments and, once the
// segment summaries themselves grow long, rolls them up into a single
// top-level digest. Older detail degrades gracefully instead of being
// resummarized wholesale on every compression.
type Hierarchical struct {
	completer    ports.Completer
	logger       zerolog.Logger
	systemPrompt string
	model        string

	originalGoal string
	constraints  []string
	digest       string   // rolled-up summary of retired segments
	segments     []string // summaries of segments not yet rolled up
	summarized   int      // number of turns already covered by digest+segments
}

func NewHierarchical(deps Deps) *Hierarchical {
	return &Hierarchical{
		completer:    deps.Completer,
		logger:       deps.Logger.With().Str("strategy", "hierarchical").Logger(),
		systemPrompt: deps.SystemPrompt,
		model:        deps.SummaryModel,
	}
}

func (h *Hierarchical) Initialize(originalGoal string, constraints []string) {
	if h.originalGoal != "" && h.originalGoal != originalGoal {
		h.logger.Warn().Str("previous_goal", h.originalGoal).Msg("re-initialized, overwriting goal")
	}
	h.originalGoal = originalGoal
	h.constraints = append([]string(nil), constraints...)
	h.digest = ""
	h.segments = nil
	h.summarized = 0
}

// UpdateGoal is a no-op beyond logging; goal changes are carried by the
// segment summaries like any other conversation content.
func (h *Hierarchical) UpdateGoal(newGoal, rationale string) {
	h.logger.Debug().Str("new_goal", newGoal).Msg("goal update received (carried in summaries)")
}

func (h *Hierarchical) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)
	if len(window) == 0 {
		return h.assemble(nil)
	}

	// Summarize only turns not yet covered, one segment at a time.
	for start := h.summarized; start < len(window); start += hierarchicalSegmentSize {
		end := start + hierarchicalSegmentSize
		if end > len(window) {
			end = len(window)
		}
		h.segments = append(h.segments, h.summarizeSegment(ctx, window[start:end]))
		h.summarized = end
	}

	// Roll up when the per-segment layer grows past one "level" of segments.
	if len(h.segments) > 4 {
		h.digest = h.rollUp(ctx, h.digest, h.segments)
		h.segments = nil
	}

	return h.assemble(recent(turns, triggerPoint, RecentWindow))
}

func (h *Hierarchical) Name() string { return "hierarchical" }

func (h *Hierarchical) summarizeSegment(ctx context.Context, segment []template.Turn) string {
	prompt := fmt.Sprintf(
		"Summarize this conversation segment in 1-2 sentences, preserving any stated goals, constraints, or decisions:\n\n%s",
		template.FormatTurns(segment))
	out, err := h.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          prompt,
		ModelID:         h.model,
		MaxOutputTokens: 200,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		h.logger.Warn().Err(err).Int("segment_turns", len(segment)).Msg("segment summarization failed")
		first := segment[0]
		return fmt.Sprintf("Turns %d-%d: %s", first.ID, segment[len(segment)-1].ID, truncateText(first.Content, 120))
	}
	return strings.TrimSpace(out.Text)
}

func (h *Hierarchical) rollUp(ctx context.Context, digest string, segments []string) string {
	var b strings.Builder
	if digest != "" {
		b.WriteString("Existing digest:\n" + digest + "\n\n")
	}
	b.WriteString("Segment summaries:\n")
	for _, s := range segments {
		b.WriteString("- " + s + "\n")
	}
	prompt := fmt.Sprintf(
		"Combine the following into one 3-4 sentence digest of the conversation so far, preserving goals, constraints, and decisions:\n\n%s",
		b.String())

	out, err := h.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          prompt,
		ModelID:         h.model,
		MaxOutputTokens: 300,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		h.logger.Warn().Err(err).Msg("digest roll-up failed, concatenating summaries")
		if digest != "" {
			return digest + " " + strings.Join(segments, " ")
		}
		return strings.Join(segments, " ")
	}
	return strings.TrimSpace(out.Text)
}

func (h *Hierarchical) assemble(recentTurns []template.Turn) string {
	var parts []string
	if h.systemPrompt != "" {
		parts = append(parts, "System: "+h.systemPrompt)
	}
	if h.digest != "" {
		parts = append(parts, "=== CONVERSATION DIGEST ===\n"+h.digest)
	}
	if len(h.segments) > 0 {
		var lines []string
		for i, s := range h.segments {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, s))
		}
		parts = append(parts, "=== SEGMENT SUMMARIES ===\n"+strings.Join(lines, "\n"))
	}
	if len(recentTurns) > 0 {
		parts = append(parts, "=== RECENT TURNS ===\n"+template.FormatTurns(recentTurns))
	}
	if len(parts) == 0 {
		return "(No previous conversation)"
	}
	return strings.Join(parts, "\n\n")
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Strategy = (*Hierarchical)(nil)
