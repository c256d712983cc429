package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

func TestCoreRenderContainsAllSections(t *testing.T) {
	strat := NewProtectedCore(testDeps(&stubCompleter{}))
	strat.Initialize("Choose a database", []string{"Must be PostgreSQL", "Budget under $500/mo"})
	strat.UpdateGoal("Choose a managed database", "hosting preference")

	rendered := strat.core.Render()
	assert.Contains(t, rendered, "PROTECTED CORE (AUTHORITATIVE - Never forget these):")
	assert.Contains(t, rendered, "Original Goal: Choose a database")
	assert.Contains(t, rendered, "Current Goal: Choose a managed database")
	assert.Contains(t, rendered, "- Must be PostgreSQL")
	assert.Contains(t, rendered, "- Budget under $500/mo")
	assert.Contains(t, rendered, "Goal updated to: Choose a managed database (Rationale: hosting preference)")
	assert.Contains(t, rendered, "INSTRUCTION: Always prioritize the CURRENT GOAL and HARD CONSTRAINTS")
}

// The original goal must survive any number of goal updates; only the current
// goal moves.
func TestCoreOriginalGoalNeverOverwritten(t *testing.T) {
	strat := NewProtectedCore(testDeps(&stubCompleter{}))
	strat.Initialize("original goal", nil)

	strat.UpdateGoal("second goal", "")
	strat.UpdateGoal("third goal", "")

	assert.Equal(t, "original goal", strat.core.OriginalGoal)
	assert.Equal(t, "third goal", strat.core.CurrentGoal)
	require.Len(t, strat.core.KeyDecisions, 2)
	assert.Equal(t, "Goal updated to: second goal", strat.core.KeyDecisions[0].Decision)
	// Empty rationale gets the default.
	assert.Equal(t, "Goal evolution during task execution", strat.core.KeyDecisions[0].Rationale)
}

// The core block survives compression verbatim even when the summarizer is
// down; only the halo degrades.
func TestProtectedCoreSurvivesServiceFailure(t *testing.T) {
	failing := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			return ports.Completion{}, ports.NewServiceError(ports.ErrUnavailable, "down", nil)
		},
	}
	strat := NewProtectedCore(testDeps(failing))
	strat.Initialize("Choose a database", []string{"Must be PostgreSQL"})

	for i := 0; i < 3; i++ {
		out := strat.Compress(context.Background(), sampleTurns(), 4)
		assert.Contains(t, out, "Original Goal: Choose a database")
		assert.Contains(t, out, "- Must be PostgreSQL")
		assert.Contains(t, out, "Previous conversation context (1 turns).")
	}
}

// Turns inside the raw recent window stay out of the halo summarization
// request; they appear verbatim in the output instead.
func TestProtectedCoreHaloExcludesRecentTurns(t *testing.T) {
	var haloPrompt string
	completer := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			haloPrompt = req.Prompt
			return ports.Completion{Text: "summary of early turns"}, nil
		},
	}
	strat := NewProtectedCore(testDeps(completer))
	strat.Initialize("Choose a database", nil)

	out := strat.Compress(context.Background(), sampleTurns(), 4)

	assert.Contains(t, haloPrompt, "Turn 1")
	assert.NotContains(t, haloPrompt, "Turn 2")
	assert.NotContains(t, haloPrompt, "Turn 3")
	assert.NotContains(t, haloPrompt, "Turn 4")
	assert.Contains(t, out, "Turn 4 (assistant): Noted the budget requirement.")
}

// With the whole window inside the recent span there is nothing to
// summarize and no summary section is emitted.
func TestProtectedCoreSkipsHaloForShortWindow(t *testing.T) {
	calls := 0
	completer := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			calls++
			return ports.Completion{Text: "summary"}, nil
		},
	}
	strat := NewProtectedCore(testDeps(completer))
	strat.Initialize("goal", nil)

	out := strat.Compress(context.Background(), sampleTurns(), 2)

	assert.Zero(t, calls)
	assert.NotContains(t, out, "=== CONVERSATION SUMMARY ===")
	assert.Contains(t, out, "=== RECENT TURNS ===")
}

func TestProtectedCoreSectionOrder(t *testing.T) {
	strat := NewProtectedCore(testDeps(&stubCompleter{}))
	strat.Initialize("goal", []string{"constraint"})

	out := strat.Compress(context.Background(), sampleTurns(), 4)
	coreIdx := strings.Index(out, "PROTECTED CORE")
	summaryIdx := strings.Index(out, "=== CONVERSATION SUMMARY ===")
	recentIdx := strings.Index(out, "=== RECENT TURNS ===")
	require.NotEqual(t, -1, coreIdx)
	require.NotEqual(t, -1, summaryIdx)
	require.NotEqual(t, -1, recentIdx)
	assert.Less(t, coreIdx, summaryIdx)
	assert.Less(t, summaryIdx, recentIdx)
}

func TestProtectedCoreReinitializeReplacesCore(t *testing.T) {
	strat := NewProtectedCore(testDeps(&stubCompleter{}))
	strat.Initialize("first goal", []string{"a"})
	strat.UpdateGoal("changed", "")
	strat.Initialize("second goal", []string{"b"})

	assert.Equal(t, "second goal", strat.core.OriginalGoal)
	assert.Equal(t, "second goal", strat.core.CurrentGoal)
	assert.Empty(t, strat.core.KeyDecisions)
	assert.Equal(t, []string{"b"}, strat.core.HardConstraints)
}

func TestHybridContextLayering(t *testing.T) {
	completer := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			if req.Structured {
				return ports.Completion{
					Text:    `{"salient_items": ["It must be PostgreSQL"]}`,
					RawJSON: []byte(`{"salient_items": ["It must be PostgreSQL"]}`),
				}, nil
			}
			return ports.Completion{Text: "background summary"}, nil
		},
	}
	strat := NewHybrid(testDeps(completer))
	strat.Initialize("Choose a database", []string{"Must be PostgreSQL"})

	out := strat.Compress(context.Background(), sampleTurns(), 4)
	coreIdx := strings.Index(out, "PROTECTED CORE")
	salientIdx := strings.Index(out, "=== SALIENT INFORMATION ===")
	backgroundIdx := strings.Index(out, "=== BACKGROUND SUMMARY ===")
	recentIdx := strings.Index(out, "=== RECENT TURNS ===")
	require.NotEqual(t, -1, coreIdx)
	require.NotEqual(t, -1, salientIdx)
	require.NotEqual(t, -1, backgroundIdx)
	require.NotEqual(t, -1, recentIdx)
	assert.Less(t, coreIdx, salientIdx)
	assert.Less(t, salientIdx, backgroundIdx)
	assert.Less(t, backgroundIdx, recentIdx)
	assert.Contains(t, out, "It must be PostgreSQL")
}

func TestSelectiveSalienceSectionOrder(t *testing.T) {
	completer := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			if req.Structured {
				return ports.Completion{
					Text:    `{"salient_items": ["Must be PostgreSQL"]}`,
					RawJSON: []byte(`{"salient_items": ["Must be PostgreSQL"]}`),
				}, nil
			}
			return ports.Completion{Text: "background summary"}, nil
		},
	}
	strat := NewSelectiveSalience(testDeps(completer))
	strat.Initialize("Choose a database", []string{"Must be PostgreSQL"})

	out := strat.Compress(context.Background(), sampleTurns(), 4)
	salientIdx := strings.Index(out, "=== SALIENT INFORMATION ===")
	backgroundIdx := strings.Index(out, "=== BACKGROUND SUMMARY ===")
	recentIdx := strings.Index(out, "=== RECENT TURNS ===")
	require.NotEqual(t, -1, salientIdx)
	assert.Less(t, salientIdx, backgroundIdx)
	assert.Less(t, backgroundIdx, recentIdx)
	assert.NotContains(t, out, "PROTECTED CORE")
}

// The salience set accumulates across compressions within a trial.
func TestSelectiveSalienceSetGrowsMonotonically(t *testing.T) {
	call := 0
	completer := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			if req.Structured {
				call++
				if call == 1 {
					raw := `{"salient_items": ["Must be PostgreSQL"]}`
					return ports.Completion{Text: raw, RawJSON: []byte(raw)}, nil
				}
				raw := `{"salient_items": ["Budget is $500"]}`
				return ports.Completion{Text: raw, RawJSON: []byte(raw)}, nil
			}
			return ports.Completion{Text: "background"}, nil
		},
	}
	strat := NewSelectiveSalience(testDeps(completer))
	strat.Initialize("Choose a database", nil)

	strat.Compress(context.Background(), sampleTurns(), 2)
	assert.Equal(t, 1, strat.Set().Len())

	strat.Compress(context.Background(), sampleTurns(), 4)
	assert.Equal(t, 2, strat.Set().Len())
}
