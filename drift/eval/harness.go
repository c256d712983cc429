// Package eval runs drift trials, aggregates their metrics, and persists
// results.
package eval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/probe"
	"github.com/instinct8/driftbench/drift/strategy"
	"github.com/instinct8/driftbench/drift/template"
)

// TrialResult is one trial of one strategy against one template. Incomplete
// trials keep the points measured so far; aggregation skips them.
type TrialResult struct {
	TrialID    string                          `json:"trial_id"`
	Strategy   string                          `json:"strategy"`
	TemplateID string                          `json:"template_id"`
	StartedAt  time.Time                       `json:"started_at"`
	FinishedAt time.Time                       `json:"finished_at"`
	Completed  bool                            `json:"completed"`
	Aborted    string                          `json:"aborted,omitempty"` // cancellation reason, when incomplete
	Points     []probe.CompressionPointMetrics `json:"points"`
}

// Harness drives the probing protocol around each compression point of a
// template: probe, compress, probe again, judge both rounds.
type Harness struct {
	prober *probe.Prober
	judge  *probe.Judge
	tracer ports.Tracer
	logger zerolog.Logger
}

func NewHarness(prober *probe.Prober, judge *probe.Judge, tracer ports.Tracer, logger zerolog.Logger) *Harness {
	if tracer == nil {
		tracer = noopTracer{}
	}
	return &Harness{prober: prober, judge: judge, tracer: tracer, logger: logger}
}

// RunTrial executes one trial. Compression points are visited strictly in
// ascending turn order; cancellation is honored between points, never inside
// one, so each point's before/after pair is always consistent.
func (h *Harness) RunTrial(ctx context.Context, strat strategy.Strategy, tmpl *template.Template) TrialResult {
	result := TrialResult{
		TrialID:    uuid.NewString(),
		Strategy:   strat.Name(),
		TemplateID: tmpl.TemplateID,
		StartedAt:  time.Now(),
	}
	logger := h.logger.With().
		Str("trial_id", result.TrialID).
		Str("strategy", result.Strategy).
		Str("template_id", result.TemplateID).
		Logger()

	ctx, finish := h.tracer.StartSpan(ctx, "trial", map[string]any{
		"trial_id":    result.TrialID,
		"strategy":    result.Strategy,
		"template_id": result.TemplateID,
	})
	defer finish(nil)

	strat.Initialize(tmpl.InitialSetup.OriginalGoal, tmpl.InitialSetup.HardConstraints)

	for _, point := range tmpl.CompressionPoints() {
		if err := ctx.Err(); err != nil {
			result.Aborted = err.Error()
			result.FinishedAt = time.Now()
			logger.Warn().Err(err).Int("points_done", len(result.Points)).Msg("trial aborted between compression points")
			return result
		}
		result.Points = append(result.Points, h.runPoint(ctx, logger, strat, tmpl, point))
	}

	result.Completed = true
	result.FinishedAt = time.Now()
	logger.Info().Int("points", len(result.Points)).Msg("trial completed")
	return result
}

func (h *Harness) runPoint(ctx context.Context, logger zerolog.Logger, strat strategy.Strategy, tmpl *template.Template, point int) probe.CompressionPointMetrics {
	goal := tmpl.InitialSetup.OriginalGoal
	constraints := tmpl.InitialSetup.HardConstraints

	goalProbe, constraintProbe, behavioralTest := probeTexts(tmpl)

	rawContext := assembleRawContext(tmpl, point)
	before := h.prober.Round(ctx, rawContext, goalProbe, constraintProbe, "")

	compressed := strat.Compress(ctx, tmpl.Turns, point)
	after := h.prober.Round(ctx, compressed, goalProbe, constraintProbe, behavioralTest)

	metrics := probe.CompressionPointMetrics{
		TurnID:       tmpl.Turns[point].ID,
		TokensBefore: strategy.ApproxTokens(rawContext),
		TokensAfter:  strategy.ApproxTokens(compressed),
	}
	metrics.GoalCoherenceBefore = h.judge.GoalCoherence(ctx, goal, before.StatedGoal)
	metrics.GoalCoherenceAfter = h.judge.GoalCoherence(ctx, goal, after.StatedGoal)
	metrics.ConstraintRecallBefore = h.judge.ConstraintRecall(ctx, constraints, before.StatedConstraints)
	metrics.ConstraintRecallAfter = h.judge.ConstraintRecall(ctx, constraints, after.StatedConstraints)
	if behavioralTest != "" {
		metrics.BehavioralAlignment = h.judge.BehavioralAlignment(ctx, goal, constraints, behavioralTest, after.BehavioralReply)
	}
	metrics.Finalize()

	logger.Debug().
		Int("turn_id", metrics.TurnID).
		Bool("drift_detected", metrics.DriftDetected).
		Float64("compression_ratio", metrics.CompressionRatio).
		Msg("compression point measured")
	return metrics
}

func probeTexts(tmpl *template.Template) (goalProbe, constraintProbe, behavioralTest string) {
	if tmpl.ProbingTasks == nil {
		return "", "", ""
	}
	goalProbe = tmpl.ProbingTasks.GoalProbe
	constraintProbe = tmpl.ProbingTasks.ConstraintProbe
	if tmpl.ProbingTasks.BehavioralTest != nil {
		behavioralTest = tmpl.ProbingTasks.BehavioralTest.Prompt
	}
	return goalProbe, constraintProbe, behavioralTest
}

// assembleRawContext is the uncompressed context the agent would have at the
// trigger point: system prompt plus every prior turn verbatim.
func assembleRawContext(tmpl *template.Template, point int) string {
	turns := tmpl.Turns
	if point < len(turns) {
		turns = turns[:point]
	}
	formatted := template.FormatTurns(turns)
	if tmpl.InitialSetup.SystemPrompt != "" {
		if formatted == "" {
			return "System: " + tmpl.InitialSetup.SystemPrompt
		}
		return "System: " + tmpl.InitialSetup.SystemPrompt + "\n\n" + formatted
	}
	return formatted
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}
func (noopTracer) Event(ctx context.Context, name string, attrs map[string]any) {}
