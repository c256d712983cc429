package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

const checkpointSummarizationPrompt = `You are performing a CONTEXT CHECKPOINT COMPACTION. Create a handoff summary for another LLM that will resume the task.

Include:
- Current progress and key decisions made
- Important context, constraints, or user preferences
- What remains to be done (clear next steps)
- Any critical data, examples, or references needed to continue

Be concise, structured, and focused on helping the next LLM seamlessly continue the work.`

const checkpointSummaryPrefix = `Another language model started to solve this problem and produced a summary of its thinking process. You also have access to the state of the tools that were used by that language model. Use this to build on the work that has already been done and avoid duplicating work. Here is the summary produced by the other language model, use the information in this summary to assist with your own analysis:`

// User messages kept raw in the compacted history are capped at this many
// tokens, most recent first.
const checkpointUserMessageMaxTokens = 20_000

// Checkpoint is a rolling-summarization strategy: the middle of the
// conversation is summarized into a handoff note while the system prompt and
// the most recent user messages survive raw. Goals are only preserved if the
// summarizer happens to include them.
type Checkpoint struct {
	completer    ports.Completer
	logger       zerolog.Logger
	systemPrompt string
	model        string

	originalGoal string
	constraints  []string
}

func NewCheckpoint(deps Deps) *Checkpoint {
	return &Checkpoint{
		completer:    deps.Completer,
		logger:       deps.Logger.With().Str("strategy", "checkpoint").Logger(),
		systemPrompt: deps.SystemPrompt,
		model:        deps.SummaryModel,
	}
}

func (c *Checkpoint) Initialize(originalGoal string, constraints []string) {
	if c.originalGoal != "" && c.originalGoal != originalGoal {
		c.logger.Warn().Str("previous_goal", c.originalGoal).Msg("re-initialized, overwriting goal")
	}
	c.originalGoal = originalGoal
	c.constraints = append([]string(nil), constraints...)
}

// UpdateGoal is accepted but not tracked: goal changes live only in the
// conversation history and may or may not survive summarization.
func (c *Checkpoint) UpdateGoal(newGoal, rationale string) {
	c.logger.Debug().Str("new_goal", newGoal).Msg("goal update received (not explicitly tracked)")
}

func (c *Checkpoint) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)
	if len(window) == 0 {
		return c.emptyContext()
	}

	summary := c.summarize(ctx, template.FormatTurns(window))
	userMessages := c.selectUserMessages(collectUserMessages(window))
	return c.buildCompactedContext(userMessages, summary)
}

func (c *Checkpoint) Name() string { return "checkpoint" }

func (c *Checkpoint) summarize(ctx context.Context, convText string) string {
	out, err := c.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          fmt.Sprintf("%s\n\nConversation to summarize:\n\n%s", checkpointSummarizationPrompt, convText),
		ModelID:         c.model,
		MaxOutputTokens: 500,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		c.logger.Warn().Err(err).Msg("checkpoint summarization failed")
		return "(summarization failed)"
	}
	return strings.TrimSpace(out.Text)
}

// collectUserMessages gathers user turn contents, skipping previous
// checkpoint summaries that were folded back into the history.
func collectUserMessages(turns []template.Turn) []string {
	var messages []string
	for _, turn := range turns {
		if turn.Role != "user" {
			continue
		}
		if strings.HasPrefix(turn.Content, checkpointSummaryPrefix) {
			continue
		}
		messages = append(messages, turn.Content)
	}
	return messages
}

// selectUserMessages keeps the most recent messages that fit the token cap,
// truncating the last one admitted, then restores chronological order.
func (c *Checkpoint) selectUserMessages(messages []string) []string {
	var selected []string
	remaining := checkpointUserMessageMaxTokens

	for i := len(messages) - 1; i >= 0 && remaining > 0; i-- {
		msg := messages[i]
		tokens := ApproxTokens(msg)
		if tokens <= remaining {
			selected = append(selected, msg)
			remaining -= tokens
			continue
		}
		maxBytes := remaining * 4
		if maxBytes > len(msg) {
			maxBytes = len(msg)
		}
		selected = append(selected, msg[:maxBytes/2]+"...[truncated]")
		break
	}

	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

func (c *Checkpoint) buildCompactedContext(userMessages []string, summary string) string {
	var parts []string
	if c.systemPrompt != "" {
		parts = append(parts, "System: "+c.systemPrompt)
	}
	if len(userMessages) > 0 {
		parts = append(parts, "\n--- Previous User Messages ---")
		for i, msg := range userMessages {
			parts = append(parts, fmt.Sprintf("User message %d: %s", i+1, msg))
		}
	}
	parts = append(parts, "\n--- Conversation Summary ---")
	parts = append(parts, checkpointSummaryPrefix+"\n\n"+summary)
	return strings.Join(parts, "\n\n")
}

func (c *Checkpoint) emptyContext() string {
	if c.systemPrompt != "" {
		return "System: " + c.systemPrompt + "\n\n(No previous conversation)"
	}
	return "(No previous conversation)"
}

var _ Strategy = (*Checkpoint)(nil)
