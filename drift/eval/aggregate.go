package eval

import (
	"gonum.org/v1/gonum/stat"
)

// Aggregate is the cross-trial summary for one strategy/template pair.
// Only completed trials contribute; absent per-point metrics are skipped
// rather than counted as zero. Variance is reported alongside the mean so a
// strategy that oscillates between perfect recall and total loss is not
// mistaken for a steady mid performer.
type Aggregate struct {
	Strategy   string `json:"strategy"`
	TemplateID string `json:"template_id"`

	Trials          int `json:"trials"`
	CompletedTrials int `json:"completed_trials"`

	AvgGoalCoherenceBefore    *float64 `json:"avg_goal_coherence_before,omitempty"`
	AvgGoalCoherenceAfter     *float64 `json:"avg_goal_coherence_after,omitempty"`
	AvgGoalDrift              *float64 `json:"avg_goal_drift,omitempty"`
	GoalDriftVariance         *float64 `json:"goal_drift_variance,omitempty"`
	AvgConstraintRecallBefore *float64 `json:"avg_constraint_recall_before,omitempty"`
	AvgConstraintRecallAfter  *float64 `json:"avg_constraint_recall_after,omitempty"`
	AvgBehavioralAlignment    *float64 `json:"avg_behavioral_alignment,omitempty"`
	AvgCompressionRatio       *float64 `json:"avg_compression_ratio,omitempty"`

	// DriftRate is the fraction of measured compression points flagged as
	// drift across all completed trials.
	DriftRate *float64 `json:"drift_rate,omitempty"`
}

// Aggregate summarizes trial results for one strategy/template pair. Results
// from other pairs are ignored, so callers can pass a mixed slice.
func AggregateTrials(strategyName, templateID string, results []TrialResult) Aggregate {
	agg := Aggregate{Strategy: strategyName, TemplateID: templateID}

	var coherenceBefore, coherenceAfter, drifts []float64
	var recallBefore, recallAfter, alignment, ratios []float64
	driftFlags, driftMeasured := 0, 0

	for _, trial := range results {
		if trial.Strategy != strategyName || trial.TemplateID != templateID {
			continue
		}
		agg.Trials++
		if !trial.Completed {
			continue
		}
		agg.CompletedTrials++

		for _, point := range trial.Points {
			appendIf(&coherenceBefore, point.GoalCoherenceBefore)
			appendIf(&coherenceAfter, point.GoalCoherenceAfter)
			appendIf(&recallBefore, point.ConstraintRecallBefore)
			appendIf(&recallAfter, point.ConstraintRecallAfter)
			appendIf(&alignment, point.BehavioralAlignment)
			if point.GoalDrift != nil {
				drifts = append(drifts, *point.GoalDrift)
				driftMeasured++
				if point.DriftDetected {
					driftFlags++
				}
			}
			if point.TokensBefore > 0 {
				ratios = append(ratios, point.CompressionRatio)
			}
		}
	}

	agg.AvgGoalCoherenceBefore = meanOf(coherenceBefore)
	agg.AvgGoalCoherenceAfter = meanOf(coherenceAfter)
	agg.AvgGoalDrift = meanOf(drifts)
	agg.AvgConstraintRecallBefore = meanOf(recallBefore)
	agg.AvgConstraintRecallAfter = meanOf(recallAfter)
	agg.AvgBehavioralAlignment = meanOf(alignment)
	agg.AvgCompressionRatio = meanOf(ratios)

	if len(drifts) >= 2 {
		v := stat.Variance(drifts, nil)
		agg.GoalDriftVariance = &v
	}
	if driftMeasured > 0 {
		rate := float64(driftFlags) / float64(driftMeasured)
		agg.DriftRate = &rate
	}
	return agg
}

func appendIf(dst *[]float64, v *float64) {
	if v != nil {
		*dst = append(*dst, *v)
	}
}

func meanOf(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	m := stat.Mean(values, nil)
	return &m
}
