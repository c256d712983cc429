package adapters

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

func testRecord(id, strategy, templateID string, completed bool) ports.TrialRecord {
	payload, _ := json.Marshal(map[string]any{"trial_id": id})
	return ports.TrialRecord{
		TrialID:    id,
		Strategy:   strategy,
		TemplateID: templateID,
		Completed:  completed,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
		Payload:    payload,
	}
}

func TestSQLiteResultStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteResultStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveTrial(ctx, testRecord("t1", "naive", "db-choice", true)))
	require.NoError(t, store.SaveTrial(ctx, testRecord("t2", "hybrid", "db-choice", false)))

	records, err := store.LoadTrials(ctx, "naive", "db-choice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].TrialID)
	assert.True(t, records[0].Completed)
	assert.JSONEq(t, `{"trial_id":"t1"}`, string(records[0].Payload))
}

func TestSQLiteResultStoreEmptySelectorsMatchAll(t *testing.T) {
	store, err := NewSQLiteResultStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveTrial(ctx, testRecord("t1", "naive", "a", true)))
	require.NoError(t, store.SaveTrial(ctx, testRecord("t2", "hybrid", "b", true)))

	records, err := store.LoadTrials(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// Re-saving the same trial id overwrites rather than duplicating.
func TestSQLiteResultStoreIdempotentSave(t *testing.T) {
	store, err := NewSQLiteResultStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	rec := testRecord("t1", "naive", "a", false)
	require.NoError(t, store.SaveTrial(ctx, rec))
	rec.Completed = true
	require.NoError(t, store.SaveTrial(ctx, rec))

	records, err := store.LoadTrials(ctx, "naive", "a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Completed)
}
