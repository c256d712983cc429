package harnessports

import (
	"context"
	"encoding/json"
	"time"
)

// TrialRecord is one persisted trial. Payload carries the full per-point
// metrics document; the scalar columns exist for querying.
type TrialRecord struct {
	TrialID    string
	Strategy   string
	TemplateID string
	Completed  bool
	StartedAt  time.Time
	FinishedAt time.Time
	Payload    json.RawMessage
}

// ResultStore persists trial results.
type ResultStore interface {
	SaveTrial(ctx context.Context, record TrialRecord) error
	// LoadTrials returns records for a strategy/template pair in start order.
	// Empty selectors match everything.
	LoadTrials(ctx context.Context, strategy, templateID string) ([]TrialRecord, error)
	Close() error
}
