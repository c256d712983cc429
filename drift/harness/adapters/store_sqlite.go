package adapters

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

const trialSchema = `
CREATE TABLE IF NOT EXISTS trial_results (
	trial_id    TEXT PRIMARY KEY,
	strategy    TEXT NOT NULL,
	template_id TEXT NOT NULL,
	completed   INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trial_results_pair ON trial_results (strategy, template_id, started_at);
`

// SQLiteResultStore implements ResultStore on a local SQLite database.
type SQLiteResultStore struct {
	db *sql.DB
}

// NewSQLiteResultStore opens (creating if needed) the database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteResultStore(path string) (*SQLiteResultStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if _, err := db.Exec(trialSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize result store schema: %w", err)
	}
	return &SQLiteResultStore{db: db}, nil
}

func (s *SQLiteResultStore) SaveTrial(ctx context.Context, record ports.TrialRecord) error {
	query := `
		INSERT OR REPLACE INTO trial_results
			(trial_id, strategy, template_id, completed, started_at, finished_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.TrialID, record.Strategy, record.TemplateID,
		boolToInt(record.Completed), record.StartedAt, record.FinishedAt,
		string(record.Payload))
	if err != nil {
		return fmt.Errorf("save trial %s: %w", record.TrialID, err)
	}
	return nil
}

func (s *SQLiteResultStore) LoadTrials(ctx context.Context, strategy, templateID string) ([]ports.TrialRecord, error) {
	query := `
		SELECT trial_id, strategy, template_id, completed, started_at, finished_at, payload
		FROM trial_results
		WHERE (? = '' OR strategy = ?) AND (? = '' OR template_id = ?)
		ORDER BY started_at
	`
	rows, err := s.db.QueryContext(ctx, query, strategy, strategy, templateID, templateID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var records []ports.TrialRecord
	for rows.Next() {
		var rec ports.TrialRecord
		var completed int
		var payload string
		if err := rows.Scan(&rec.TrialID, &rec.Strategy, &rec.TemplateID, &completed,
			&rec.StartedAt, &rec.FinishedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		rec.Completed = completed != 0
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return records, nil
}

func (s *SQLiteResultStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.ResultStore = (*SQLiteResultStore)(nil)
