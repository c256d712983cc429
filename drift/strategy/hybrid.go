package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/instinct8/driftbench/drift/salience"
	"github.com/instinct8/driftbench/drift/template"
)

// Hybrid layers a protected core over selective salience. The core carries
// goal, constraints, and decisions verbatim; the salience set carries
// goal-critical quotes verbatim; only the background is summarized.
// Context structure: protected core + salient items + background + recent.
type Hybrid struct {
	engine       *salience.Engine
	logger       zerolog.Logger
	systemPrompt string

	core        *Core
	initialized bool
}

func NewHybrid(deps Deps) *Hybrid {
	logger := deps.Logger.With().Str("strategy", "hybrid").Logger()
	set := salience.NewSet(deps.Embedder, deps.Cache, salience.Config{
		SimilarityThreshold: deps.SimilarityThreshold,
		TokenBudget:         deps.SalienceTokenBudget,
		EnforceBudget:       deps.EnforceBudget,
	})
	engine := salience.NewEngine(deps.Completer, set, salience.EngineConfig{
		ExtractionModel:  deps.ExtractionModel,
		CompressionModel: deps.SummaryModel,
	}, logger)
	return &Hybrid{
		engine:       engine,
		logger:       logger,
		systemPrompt: deps.SystemPrompt,
	}
}

func (h *Hybrid) Initialize(originalGoal string, constraints []string) {
	if h.initialized {
		h.logger.Warn().Str("previous_goal", h.core.OriginalGoal).Msg("re-initialized, replacing protected core")
	}
	h.core = &Core{
		OriginalGoal:    originalGoal,
		CurrentGoal:     originalGoal,
		HardConstraints: append([]string(nil), constraints...),
		UpdatedAt:       time.Now(),
	}
	h.initialized = true
}

func (h *Hybrid) UpdateGoal(newGoal, rationale string) {
	if !h.initialized {
		h.logger.Warn().Msg("UpdateGoal before Initialize, ignoring")
		return
	}
	h.core.UpdateGoal(newGoal, rationale)
}

func (h *Hybrid) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)

	goal := ""
	var constraints []string
	if h.initialized {
		goal = h.core.CurrentGoal
		constraints = h.core.HardConstraints
	}

	background := ""
	if len(window) > 0 {
		extraction := h.engine.Extract(ctx, goal, constraints, window)
		if extraction.UsedFallback {
			h.logger.Info().Int("items", len(extraction.Items)).Msg("extraction degraded to lexical fallback")
		}
		if err := h.engine.Merge(ctx, extraction.Items); err != nil {
			h.logger.Warn().Err(err).Msg("salience merge failed, keeping previous set")
		}
		background = h.engine.CompressBackground(ctx, window)
	}

	return h.assemble(background, recent(turns, triggerPoint, RecentWindow))
}

func (h *Hybrid) Name() string { return "hybrid" }

// Set exposes the underlying salience set for inspection.
func (h *Hybrid) Set() *salience.Set { return h.engine.Set() }

func (h *Hybrid) assemble(background string, recentTurns []template.Turn) string {
	var parts []string
	if h.systemPrompt != "" {
		parts = append(parts, "System: "+h.systemPrompt)
	}
	if h.initialized {
		parts = append(parts, h.core.Render())
	}
	if items := salience.Prioritize(h.engine.Set().Items()); len(items) > 0 {
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

var _ Strategy = (*Hybrid)(nil)
