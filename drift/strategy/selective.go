package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/instinct8/driftbench/drift/salience"
	"github.com/instinct8/driftbench/drift/template"
)

// SelectiveSalience preserves goal-critical quotes verbatim via the salience
// pipeline and compresses only the background. Context is rebuilt as
// salient items + background summary + recent raw turns.
type SelectiveSalience struct {
	engine       *salience.Engine
	logger       zerolog.Logger
	systemPrompt string

	originalGoal string
	currentGoal  string
	constraints  []string
}

func NewSelectiveSalience(deps Deps) *SelectiveSalience {
	logger := deps.Logger.With().Str("strategy", "selective-salience").Logger()
	set := salience.NewSet(deps.Embedder, deps.Cache, salience.Config{
		SimilarityThreshold: deps.SimilarityThreshold,
		TokenBudget:         deps.SalienceTokenBudget,
		EnforceBudget:       deps.EnforceBudget,
	})
	engine := salience.NewEngine(deps.Completer, set, salience.EngineConfig{
		ExtractionModel:  deps.ExtractionModel,
		CompressionModel: deps.SummaryModel,
	}, logger)
	return &SelectiveSalience{
		engine:       engine,
		logger:       logger,
		systemPrompt: deps.SystemPrompt,
	}
}

func (s *SelectiveSalience) Initialize(originalGoal string, constraints []string) {
	if s.originalGoal != "" && s.originalGoal != originalGoal {
		s.logger.Warn().Str("previous_goal", s.originalGoal).Msg("re-initialized, overwriting goal")
	}
	s.originalGoal = originalGoal
	s.currentGoal = originalGoal
	s.constraints = append([]string(nil), constraints...)
}

// UpdateGoal switches the goal used to steer extraction. The original goal is
// kept so extraction can still recognize quotes about it.
func (s *SelectiveSalience) UpdateGoal(newGoal, rationale string) {
	s.currentGoal = newGoal
}

func (s *SelectiveSalience) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)
	if len(window) > 0 {
		extraction := s.engine.Extract(ctx, s.currentGoal, s.constraints, window)
		if extraction.UsedFallback {
			s.logger.Info().Int("items", len(extraction.Items)).Msg("extraction degraded to lexical fallback")
		}
		if err := s.engine.Merge(ctx, extraction.Items); err != nil {
			s.logger.Warn().Err(err).Msg("salience merge failed, keeping previous set")
		}
	}

	background := ""
	if len(window) > 0 {
		background = s.engine.CompressBackground(ctx, window)
	}
	return s.assemble(background, recent(turns, triggerPoint, RecentWindow))
}

func (s *SelectiveSalience) Name() string { return "selective-salience" }

// Set exposes the underlying salience set for inspection.
func (s *SelectiveSalience) Set() *salience.Set { return s.engine.Set() }

func (s *SelectiveSalience) assemble(background string, recentTurns []template.Turn) string {
	var parts []string
	if s.systemPrompt != "" {
		parts = append(parts, "System: "+s.systemPrompt)
	}
	if items := salience.Prioritize(s.engine.Set().Items()); len(items) > 0 {
		var lines []string
		for i, item := range items {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, item.Text))
		}
		parts = append(parts, "=== SALIENT INFORMATION ===\n"+strings.Join(lines, "\n"))
	}
	if background != "" {
		parts = append(parts, "=== BACKGROUND SUMMARY ===\n"+background)
	}
	if len(recentTurns) > 0 {
		parts = append(parts, "=== RECENT TURNS ===\n"+template.FormatTurns(recentTurns))
	}
	if len(parts) == 0 {
		return "(No previous conversation)"
	}
	return strings.Join(parts, "\n\n")
}

var _ Strategy = (*SelectiveSalience)(nil)
