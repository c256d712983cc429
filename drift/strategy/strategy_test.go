package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

// stubCompleter implements Completer for testing.
type stubCompleter struct {
	completeFunc func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error)
	calls        int
}

func (s *stubCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	s.calls++
	if s.completeFunc != nil {
		return s.completeFunc(ctx, req)
	}
	return ports.Completion{Text: "stub summary"}, nil
}

// stubEmbedder assigns each distinct text its own one-hot vector, so
// identical strings are maximally similar and everything else is orthogonal.
type stubEmbedder struct {
	indexes map[string]int
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([]ports.Vector, error) {
	if s.indexes == nil {
		s.indexes = make(map[string]int)
	}
	vectors := make([]ports.Vector, len(texts))
	for i, text := range texts {
		idx, ok := s.indexes[text]
		if !ok {
			idx = len(s.indexes)
			s.indexes[text] = idx
		}
		vec := make(ports.Vector, 64)
		vec[idx%64] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *stubEmbedder) Dimension() int { return 64 }

func testDeps(completer ports.Completer) Deps {
	return Deps{
		Completer:    completer,
		Embedder:     &stubEmbedder{},
		Logger:       zerolog.Nop(),
		SystemPrompt: "You are a helpful assistant.",
	}
}

func sampleTurns() []template.Turn {
	return []template.Turn{
		{ID: 1, Role: "user", Content: "We need to pick a database. It must be PostgreSQL."},
		{ID: 2, Role: "assistant", Content: "Understood, I decided to evaluate managed PostgreSQL offerings."},
		{ID: 3, Role: "user", Content: "Also keep costs under control."},
		{ID: 4, Role: "assistant", Content: "Noted the budget requirement."},
		{ID: 5, Role: "user", Content: "What about backups?"},
	}
}

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New("nonexistent", testDeps(&stubCompleter{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestNamesStable(t *testing.T) {
	names := Names()
	assert.Len(t, names, 9)
	assert.Contains(t, names, "naive")
	assert.Contains(t, names, "protected-core")
	assert.Contains(t, names, "selective-salience")
	assert.Contains(t, names, "hybrid")
	assert.Contains(t, names, "external")
}

// Every registered strategy must return a usable context on an empty turn
// list without erroring or panicking.
func TestCompressEmptyInputAllStrategies(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			strat, err := New(name, testDeps(&stubCompleter{}))
			require.NoError(t, err)
			strat.Initialize("Build a CLI tool", []string{"Must use Go"})

			out := strat.Compress(context.Background(), nil, 0)
			assert.NotEmpty(t, out)
		})
	}
}

// Service failures never propagate; every strategy degrades to a local
// fallback and still returns a context string.
func TestCompressServiceFailureAllStrategies(t *testing.T) {
	failing := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			return ports.Completion{}, ports.NewServiceError(ports.ErrUnavailable, "backend down", errors.New("dial refused"))
		},
	}
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			strat, err := New(name, testDeps(failing))
			require.NoError(t, err)
			strat.Initialize("Build a CLI tool", []string{"Must use Go"})

			out := strat.Compress(context.Background(), sampleTurns(), 4)
			assert.NotEmpty(t, out)
		})
	}
}

func TestCompressTriggerPointClamped(t *testing.T) {
	strat, err := New("naive", testDeps(&stubCompleter{}))
	require.NoError(t, err)
	strat.Initialize("goal", nil)

	turns := sampleTurns()
	assert.NotEmpty(t, strat.Compress(context.Background(), turns, -3))
	assert.NotEmpty(t, strat.Compress(context.Background(), turns, len(turns)+10))
}

func TestNaiveFallbackKeepsRecentTurns(t *testing.T) {
	failing := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			return ports.Completion{}, ports.NewServiceError(ports.ErrTimeout, "deadline", nil)
		},
	}
	strat := NewNaive(testDeps(failing))
	strat.Initialize("goal", nil)

	out := strat.Compress(context.Background(), sampleTurns(), 4)
	assert.Contains(t, out, "Turn 4")
	assert.Contains(t, out, "budget requirement")
}

func TestCheckpointSkipsPriorSummaries(t *testing.T) {
	turns := []template.Turn{
		{ID: 1, Role: "user", Content: "Original request"},
		{ID: 2, Role: "user", Content: checkpointSummaryPrefix + "\n\nold summary"},
		{ID: 3, Role: "user", Content: "Follow-up request"},
	}
	messages := collectUserMessages(turns)
	require.Len(t, messages, 2)
	assert.Equal(t, "Original request", messages[0])
	assert.Equal(t, "Follow-up request", messages[1])
}

func TestCheckpointUserMessageCapTruncates(t *testing.T) {
	c := NewCheckpoint(testDeps(&stubCompleter{}))
	big := strings.Repeat("x", checkpointUserMessageMaxTokens*4+400)
	selected := c.selectUserMessages([]string{big})
	require.Len(t, selected, 1)
	assert.True(t, strings.HasSuffix(selected[0], "...[truncated]"))
	assert.Less(t, len(selected[0]), len(big))
}

func TestCheckpointContextStructure(t *testing.T) {
	strat := NewCheckpoint(testDeps(&stubCompleter{}))
	strat.Initialize("goal", nil)

	out := strat.Compress(context.Background(), sampleTurns(), 4)
	sysIdx := strings.Index(out, "System:")
	userIdx := strings.Index(out, "--- Previous User Messages ---")
	summaryIdx := strings.Index(out, "--- Conversation Summary ---")
	require.NotEqual(t, -1, sysIdx)
	require.NotEqual(t, -1, userIdx)
	require.NotEqual(t, -1, summaryIdx)
	assert.Less(t, sysIdx, userIdx)
	assert.Less(t, userIdx, summaryIdx)
	assert.Contains(t, out, checkpointSummaryPrefix)
}

func TestHierarchicalRollsUpSegments(t *testing.T) {
	completer := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			if strings.Contains(req.Prompt, "Combine the following") {
				return ports.Completion{Text: "rolled-up digest"}, nil
			}
			return ports.Completion{Text: "segment summary"}, nil
		},
	}
	strat := NewHierarchical(testDeps(completer))
	strat.Initialize("goal", nil)

	// 120 turns at segment size 20 produces 6 segments, forcing a roll-up.
	var turns []template.Turn
	for i := 1; i <= 120; i++ {
		turns = append(turns, template.Turn{ID: i, Role: "user", Content: "message"})
	}
	out := strat.Compress(context.Background(), turns, 120)
	assert.Contains(t, out, "=== CONVERSATION DIGEST ===")
	assert.Contains(t, out, "rolled-up digest")
	assert.NotContains(t, out, "=== SEGMENT SUMMARIES ===")
}

func TestHierarchicalIncrementalSummarization(t *testing.T) {
	completer := &stubCompleter{}
	strat := NewHierarchical(testDeps(completer))
	strat.Initialize("goal", nil)

	var turns []template.Turn
	for i := 1; i <= 40; i++ {
		turns = append(turns, template.Turn{ID: i, Role: "user", Content: "message"})
	}

	strat.Compress(context.Background(), turns, 20)
	callsAfterFirst := completer.calls
	strat.Compress(context.Background(), turns, 40)
	// Second compression only summarizes the new segment.
	assert.Equal(t, callsAfterFirst+1, completer.calls)
}

func TestNotesSeededWithGoalAndConstraints(t *testing.T) {
	failing := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			return ports.Completion{}, ports.NewServiceError(ports.ErrUnavailable, "down", nil)
		},
	}
	strat := NewNotes(testDeps(failing))
	strat.Initialize("Ship the importer", []string{"No breaking schema changes"})

	out := strat.Compress(context.Background(), sampleTurns(), 3)
	assert.Contains(t, out, "Goal: Ship the importer")
	assert.Contains(t, out, "Constraint: No breaking schema changes")
}

func TestObservationalLogIsAppendOnly(t *testing.T) {
	responses := []string{"- first observation", "- second observation"}
	i := 0
	completer := &stubCompleter{
		completeFunc: func(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
			out := ports.Completion{Text: responses[i%len(responses)]}
			i++
			return out, nil
		},
	}
	strat := NewObservational(testDeps(completer))
	strat.Initialize("goal", nil)

	turns := sampleTurns()
	first := strat.Compress(context.Background(), turns, 2)
	assert.Contains(t, first, "first observation")

	second := strat.Compress(context.Background(), turns, 4)
	assert.Contains(t, second, "first observation")
	assert.Contains(t, second, "second observation")
}

func TestExternalWithoutCommandFallsBack(t *testing.T) {
	strat := NewExternal(testDeps(&stubCompleter{}))
	strat.Initialize("goal", nil)

	out := strat.Compress(context.Background(), sampleTurns(), 4)
	assert.Contains(t, out, "Turn 4")
}

func TestExternalSubprocessOutput(t *testing.T) {
	deps := testDeps(&stubCompleter{})
	deps.ExternalCommand = []string{"cat"}
	strat := NewExternal(deps)
	strat.Initialize("goal", []string{"constraint"})

	out := strat.Compress(context.Background(), sampleTurns(), 2)
	// cat echoes the request JSON back, which becomes the compressed context.
	assert.Contains(t, out, `"trigger_point":2`)
	assert.Contains(t, out, `"goal":"goal"`)
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, ApproxTokens(""))
	assert.Equal(t, 1, ApproxTokens("abc"))
	assert.Equal(t, 1, ApproxTokens("abcd"))
	assert.Equal(t, 2, ApproxTokens("abcde"))
}
