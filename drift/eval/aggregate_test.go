package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instinct8/driftbench/drift/probe"
)

func completedTrial(strategy, templateID string, points ...probe.CompressionPointMetrics) TrialResult {
	return TrialResult{
		TrialID:    "trial-" + strategy,
		Strategy:   strategy,
		TemplateID: templateID,
		Completed:  true,
		Points:     points,
	}
}

func driftPoint(before, after float64) probe.CompressionPointMetrics {
	m := probe.CompressionPointMetrics{
		GoalCoherenceBefore: probe.Float64Ptr(before),
		GoalCoherenceAfter:  probe.Float64Ptr(after),
		TokensBefore:        1000,
		TokensAfter:         250,
	}
	m.Finalize()
	return m
}

// Two trials with different drift must surface both mean and a nonzero
// variance; averaging alone would hide the oscillation.
func TestAggregateExposesVarianceAcrossTrials(t *testing.T) {
	results := []TrialResult{
		completedTrial("hybrid", "db", driftPoint(0.9, 0.9)),  // drift 0.0
		completedTrial("hybrid", "db", driftPoint(0.9, 0.7)),  // drift 0.2
	}
	agg := AggregateTrials("hybrid", "db", results)

	assert.Equal(t, 2, agg.Trials)
	assert.Equal(t, 2, agg.CompletedTrials)
	require.NotNil(t, agg.AvgGoalDrift)
	assert.InDelta(t, 0.1, *agg.AvgGoalDrift, 1e-9)
	require.NotNil(t, agg.GoalDriftVariance)
	assert.InDelta(t, 0.02, *agg.GoalDriftVariance, 1e-9)
	require.NotNil(t, agg.DriftRate)
	assert.InDelta(t, 0.5, *agg.DriftRate, 1e-9)
	require.NotNil(t, agg.AvgCompressionRatio)
	assert.InDelta(t, 0.25, *agg.AvgCompressionRatio, 1e-9)
}

// Incomplete trials are retained in the result set but contribute nothing to
// the aggregate.
func TestAggregateExcludesIncompleteTrials(t *testing.T) {
	incomplete := TrialResult{
		Strategy:   "naive",
		TemplateID: "db",
		Completed:  false,
		Aborted:    "context canceled",
		Points:     []probe.CompressionPointMetrics{driftPoint(0.9, 0.1)},
	}
	results := []TrialResult{
		completedTrial("naive", "db", driftPoint(0.9, 0.85)),
		incomplete,
	}
	agg := AggregateTrials("naive", "db", results)

	assert.Equal(t, 2, agg.Trials)
	assert.Equal(t, 1, agg.CompletedTrials)
	require.NotNil(t, agg.AvgGoalDrift)
	assert.InDelta(t, 0.05, *agg.AvgGoalDrift, 1e-9)
}

// Absent judge metrics are skipped, not treated as zero.
func TestAggregateSkipsAbsentMetrics(t *testing.T) {
	withAlignment := driftPoint(0.9, 0.9)
	withAlignment.BehavioralAlignment = probe.Float64Ptr(4)
	withoutAlignment := driftPoint(0.9, 0.9)

	results := []TrialResult{completedTrial("notes", "db", withAlignment, withoutAlignment)}
	agg := AggregateTrials("notes", "db", results)

	require.NotNil(t, agg.AvgBehavioralAlignment)
	assert.InDelta(t, 4.0, *agg.AvgBehavioralAlignment, 1e-9)
}

func TestAggregateIgnoresOtherPairs(t *testing.T) {
	results := []TrialResult{
		completedTrial("naive", "db", driftPoint(0.9, 0.2)),
		completedTrial("hybrid", "db", driftPoint(0.9, 0.9)),
	}
	agg := AggregateTrials("hybrid", "db", results)
	assert.Equal(t, 1, agg.Trials)
	require.NotNil(t, agg.AvgGoalDrift)
	assert.InDelta(t, 0.0, *agg.AvgGoalDrift, 1e-9)
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := AggregateTrials("naive", "db", nil)
	assert.Zero(t, agg.Trials)
	assert.Nil(t, agg.AvgGoalDrift)
	assert.Nil(t, agg.GoalDriftVariance)
	assert.Nil(t, agg.DriftRate)
}
