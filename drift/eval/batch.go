package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/strategy"
	"github.com/instinct8/driftbench/drift/template"
)

// BatchConfig describes one batch run: the cross product of strategies and
// templates, each pair run TrialsPerPair times.
type BatchConfig struct {
	Strategies    []string
	TemplateIDs   []string
	TrialsPerPair int
	Concurrency   int
}

// PairSummary reports one strategy/template cell of the batch.
type PairSummary struct {
	Strategy   string    `json:"strategy"`
	TemplateID string    `json:"template_id"`
	Completed  int       `json:"completed"`
	Aborted    int       `json:"aborted"`
	Aggregate  Aggregate `json:"aggregate"`
}

// BatchReport is the full output of a batch run.
type BatchReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Trials     []TrialResult `json:"trials"`
	Pairs      []PairSummary `json:"pairs"`
}

// WriteJSON persists the report as indented JSON.
func (r *BatchReport) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode batch report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write batch report: %w", err)
	}
	return nil
}

// BatchRunner fans trials out over a bounded worker pool. Each trial gets a
// fresh strategy instance; trials never share mutable state.
type BatchRunner struct {
	harness   *Harness
	templates *template.Store
	deps      func() strategy.Deps
	store     ports.ResultStore // optional
	logger    zerolog.Logger
}

func NewBatchRunner(harness *Harness, templates *template.Store, deps func() strategy.Deps, store ports.ResultStore, logger zerolog.Logger) *BatchRunner {
	return &BatchRunner{harness: harness, templates: templates, deps: deps, store: store, logger: logger}
}

// Run executes the batch. Template and strategy resolution failures abort the
// run up front; individual trial aborts (cancellation) are recorded in the
// report, not returned as errors.
func (b *BatchRunner) Run(ctx context.Context, cfg BatchConfig) (*BatchReport, error) {
	if cfg.TrialsPerPair <= 0 {
		cfg.TrialsPerPair = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	// Fail fast on unknown strategies and invalid templates before spending
	// any completion budget.
	templates := make(map[string]*template.Template, len(cfg.TemplateIDs))
	for _, id := range cfg.TemplateIDs {
		tmpl, err := b.templates.Load(id)
		if err != nil {
			return nil, err
		}
		templates[id] = tmpl
	}
	for _, name := range cfg.Strategies {
		if _, err := strategy.New(name, b.deps()); err != nil {
			return nil, err
		}
	}

	report := &BatchReport{StartedAt: time.Now()}
	var mu sync.Mutex

	workers := pool.New().WithMaxGoroutines(cfg.Concurrency)
	for _, strategyName := range cfg.Strategies {
		for _, templateID := range cfg.TemplateIDs {
			for trial := 0; trial < cfg.TrialsPerPair; trial++ {
				workers.Go(func() {
					deps := b.deps()
					deps.SystemPrompt = templates[templateID].InitialSetup.SystemPrompt
					strat, err := strategy.New(strategyName, deps)
					if err != nil {
						b.logger.Error().Err(err).Str("strategy", strategyName).Msg("strategy construction failed")
						return
					}
					result := b.harness.RunTrial(ctx, strat, templates[templateID])
					b.persist(ctx, result)
					mu.Lock()
					report.Trials = append(report.Trials, result)
					mu.Unlock()
				})
			}
		}
	}
	workers.Wait()

	for _, strategyName := range cfg.Strategies {
		for _, templateID := range cfg.TemplateIDs {
			summary := PairSummary{
				Strategy:   strategyName,
				TemplateID: templateID,
				Aggregate:  AggregateTrials(strategyName, templateID, report.Trials),
			}
			for _, trial := range report.Trials {
				if trial.Strategy != strategyName || trial.TemplateID != templateID {
					continue
				}
				if trial.Completed {
					summary.Completed++
				} else {
					summary.Aborted++
				}
			}
			report.Pairs = append(report.Pairs, summary)
		}
	}

	report.FinishedAt = time.Now()
	return report, nil
}

func (b *BatchRunner) persist(ctx context.Context, result TrialResult) {
	if b.store == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		b.logger.Error().Err(err).Str("trial_id", result.TrialID).Msg("trial encoding failed")
		return
	}
	record := ports.TrialRecord{
		TrialID:    result.TrialID,
		Strategy:   result.Strategy,
		TemplateID: result.TemplateID,
		Completed:  result.Completed,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Payload:    payload,
	}
	// Persist even when the run context was cancelled; partial trials are
	// kept, they are just excluded from aggregates.
	saveCtx := ctx
	if saveCtx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := b.store.SaveTrial(saveCtx, record); err != nil {
		b.logger.Error().Err(err).Str("trial_id", result.TrialID).Msg("trial persistence failed")
	}
}
