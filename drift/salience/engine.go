package salience

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

const extractionPrompt = `You are performing selective salience extraction for context compression.

From the following conversation, extract ONLY the information that will directly impact the agent's ability to achieve the user's goal.

Original Goal: %s
Constraints: %s

Include:
- Explicit goals and goal changes
- Hard constraints (must/must not)
- Key decisions with rationales
- Critical facts or requirements
- Important tool outputs that affect future actions

Do NOT include:
- Conversational scaffolding
- Redundant explanations
- Intermediate reasoning steps
- Off-topic tangents

CRITICAL: Quote exactly - do not summarize or paraphrase. Preserve the original wording.

Conversation to analyze:
%s

Output format (JSON):
{
  "salient_items": [
    "exact quote 1",
    "exact quote 2"
  ]
}`

const backgroundPrompt = `You are compressing conversation background for context compression.

The following salient information has already been extracted and will be preserved verbatim:
%s

Compress the rest of the conversation into a 2-3 sentence summary. Do NOT duplicate the salient items listed above.

Focus on:
- General context and flow
- Non-critical details
- Conversational scaffolding

Conversation to compress:
%s

Provide a concise 2-3 sentence summary:`

// Extraction caps: results beyond maxRawItems are ranked and cut to topItems
// (constraints > decisions > facts, shorter first within a class).
const (
	maxRawItems = 50
	topItems    = 20
)

// EngineConfig configures the extraction pipeline.
type EngineConfig struct {
	ExtractionModel  string
	CompressionModel string
	MaxOutputTokens  int
}

// Engine runs the three-stage salience pipeline: extraction, merge/dedupe
// into the owned Set, and background compression.
type Engine struct {
	completer ports.Completer
	set       *Set
	cfg       EngineConfig
	logger    zerolog.Logger
}

// NewEngine creates an engine owning the given set.
func NewEngine(completer ports.Completer, set *Set, cfg EngineConfig, logger zerolog.Logger) *Engine {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2000
	}
	return &Engine{completer: completer, set: set, cfg: cfg, logger: logger}
}

// Set exposes the engine's salience set.
func (e *Engine) Set() *Set { return e.set }

// Extraction is the result of one extraction pass. UsedFallback marks that
// the structured completion failed or came back empty and the fixed-schema
// lexical extraction supplied the items instead.
type Extraction struct {
	Items        []Item
	UsedFallback bool
}

// Extract pulls verbatim goal-critical quotes from the turn span. Service or
// parse failures never propagate; the lexical fallback covers them.
func (e *Engine) Extract(ctx context.Context, goal string, constraints []string, turns []template.Turn) Extraction {
	constraintsText := "None"
	if len(constraints) > 0 {
		constraintsText = strings.Join(constraints, ", ")
	}
	prompt := fmt.Sprintf(extractionPrompt, goal, constraintsText, template.FormatTurns(turns))

	out, err := e.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          prompt,
		ModelID:         e.cfg.ExtractionModel,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
		Structured:      true,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("salience extraction failed, using lexical fallback")
		return Extraction{Items: lexicalFallback(goal, constraints, turns), UsedFallback: true}
	}

	texts, ok := parseSalientItems(out.RawJSON)
	if !ok || len(texts) == 0 {
		e.logger.Warn().Msg("salience extraction returned no usable items, using lexical fallback")
		return Extraction{Items: lexicalFallback(goal, constraints, turns), UsedFallback: true}
	}

	if len(texts) > maxRawItems {
		texts = rankAndTruncate(texts, topItems)
	}

	items := make([]Item, 0, len(texts))
	for _, text := range texts {
		items = append(items, Item{Text: text, SourceTurn: findSourceTurn(text, turns)})
	}
	return Extraction{Items: items}
}

// Merge folds extracted items into the owned set.
func (e *Engine) Merge(ctx context.Context, items []Item) error {
	return e.set.Merge(ctx, items)
}

// CompressBackground summarizes the turn span minus the already-preserved
// salience set. Failures degrade to a fixed one-line summary.
func (e *Engine) CompressBackground(ctx context.Context, turns []template.Turn) string {
	salienceText := "None"
	if e.set.Len() > 0 {
		var lines []string
		for _, item := range e.set.Items() {
			lines = append(lines, "- "+item.Text)
		}
		salienceText = strings.Join(lines, "\n")
	}
	prompt := fmt.Sprintf(backgroundPrompt, salienceText, template.FormatTurns(turns))

	out, err := e.completer.Complete(ctx, ports.CompletionRequest{
		Prompt:          prompt,
		ModelID:         e.cfg.CompressionModel,
		MaxOutputTokens: 500,
	})
	if err != nil || strings.TrimSpace(out.Text) == "" {
		e.logger.Warn().Err(err).Msg("background compression failed, using fallback summary")
		return fmt.Sprintf("Previous conversation context (%d turns).", len(turns))
	}
	return strings.TrimSpace(out.Text)
}

// parseSalientItems decodes {"salient_items": ["...", ...]} from structured
// output. Non-string and blank entries are dropped.
func parseSalientItems(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var payload struct {
		SalientItems []any `json:"salient_items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	var texts []string
	for _, entry := range payload.SalientItems {
		if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
			texts = append(texts, strings.TrimSpace(s))
		}
	}
	return texts, true
}

// lexicalFallback is the fixed-schema degraded mode: the goal, every known
// constraint, and any turn sentences carrying constraint or decision cues.
func lexicalFallback(goal string, constraints []string, turns []template.Turn) []Item {
	var items []Item
	if goal != "" {
		items = append(items, Item{Text: "Original Goal: " + goal, SourceTurn: -1})
	}
	for _, c := range constraints {
		items = append(items, Item{Text: "Constraint: " + c, SourceTurn: -1})
	}
	for _, turn := range turns {
		for _, sentence := range splitSentences(turn.Content) {
			if classify(sentence) != priorityFact {
				items = append(items, Item{Text: sentence, SourceTurn: turn.ID})
			}
		}
	}
	return items
}

func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// rankAndTruncate keeps the top n items by priority class, preferring shorter
// quotes within a class.
func rankAndTruncate(texts []string, n int) []string {
	ranked := make([]string, len(texts))
	copy(ranked, texts)
	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := classify(ranked[i]), classify(ranked[j])
		if ci != cj {
			return ci < cj
		}
		return len(ranked[i]) < len(ranked[j])
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// findSourceTurn maps a quote back to the first turn containing it, or -1
// when the quote does not appear verbatim.
func findSourceTurn(text string, turns []template.Turn) int {
	needle := strings.ToLower(text)
	for _, turn := range turns {
		if strings.Contains(strings.ToLower(turn.Content), needle) {
			return turn.ID
		}
	}
	return -1
}
