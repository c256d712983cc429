package eval

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/instinct8/driftbench/drift/config"
	"github.com/instinct8/driftbench/drift/harness/adapters"
	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/probe"
	"github.com/instinct8/driftbench/drift/strategy"
	"github.com/instinct8/driftbench/drift/template"
)

// Runtime is the fully wired evaluation stack built from configuration.
type Runtime struct {
	Completer ports.Completer
	Embedder  ports.Embedder
	Templates *template.Store
	Store     ports.ResultStore
	Runner    *BatchRunner

	cfg    *config.Config
	logger zerolog.Logger
	stops  []func()
}

// BuildRuntime assembles adapters, harness, and batch runner from config.
// The completion and embedding backends are decorated with rate limiting and
// bounded retry; each trial's strategy gets its own embedding cache.
func BuildRuntime(cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{cfg: cfg, logger: logger}

	apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
	limiter := adapters.NewTokenBucket(cfg.Provider.RateLimitRPS, 0)

	var completer ports.Completer = adapters.NewHTTPCompleter(
		cfg.Provider.BaseURL, apiKey, cfg.Provider.SummaryModel, cfg.Provider.RequestTimeout)
	if cfg.Provider.RateLimitRPS > 0 {
		completer = adapters.NewRateLimitedCompleter(completer, limiter, "completion")
	}
	completer = adapters.NewRetryingCompleter(completer, adapters.RetryPolicy{
		MaxAttempts: cfg.Provider.MaxAttempts,
		BaseBackoff: cfg.Provider.BaseBackoff,
		Timeout:     cfg.Provider.RequestTimeout,
	})
	rt.Completer = completer

	var embedder ports.Embedder
	if cfg.Embedding.Provider == "http" {
		embedder = adapters.NewHTTPEmbedder(
			cfg.Embedding.BaseURL, apiKey, cfg.Embedding.Model, cfg.Embedding.Dims, cfg.Provider.EmbedTimeout)
		if cfg.Provider.RateLimitRPS > 0 {
			embedder = adapters.NewRateLimitedEmbedder(embedder, limiter, "embedding")
		}
		embedder = adapters.NewRetryingEmbedder(embedder, adapters.RetryPolicy{
			MaxAttempts: cfg.Provider.MaxAttempts,
			BaseBackoff: cfg.Provider.BaseBackoff,
			Timeout:     cfg.Provider.EmbedTimeout,
		})
	} else {
		embedder = adapters.NewLocalEmbedder(cfg.Embedding.Dims)
	}
	rt.Embedder = embedder

	templates, err := template.NewStore(cfg.Templates.Dir, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Templates.Watch {
		stop, err := templates.Watch()
		if err != nil {
			logger.Warn().Err(err).Msg("template watcher unavailable")
		} else {
			rt.stops = append(rt.stops, stop)
		}
	}
	rt.Templates = templates

	if cfg.Results.SQLitePath != "" {
		store, err := adapters.NewSQLiteResultStore(cfg.Results.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.Store = store
		rt.stops = append(rt.stops, func() { store.Close() })
	}

	var tracer ports.Tracer = adapters.NoopTracer{}
	if cfg.Eval.EnableTracing {
		tracer = adapters.NewZerologTracer(logger)
	}

	prober := probe.NewProber(rt.Completer, cfg.Provider.ProbeModel, logger.With().Str("component", "prober").Logger())
	judge := probe.NewJudge(rt.Completer, cfg.Provider.JudgeModel, logger.With().Str("component", "judge").Logger())
	harness := NewHarness(prober, judge, tracer, logger.With().Str("component", "harness").Logger())

	deps := func() strategy.Deps {
		return strategy.Deps{
			Completer: rt.Completer,
			Embedder:  rt.Embedder,
			// Fresh cache per trial; sharing one across trials would let one
			// trial's embeddings influence another's deduplication.
			Cache:               adapters.NewLRUCache(cfg.Provider.CacheCapacity),
			Logger:              logger,
			SummaryModel:        cfg.Provider.SummaryModel,
			ExtractionModel:     cfg.Provider.ExtractionModel,
			SimilarityThreshold: cfg.Salience.SimilarityThreshold,
			SalienceTokenBudget: cfg.Salience.TokenBudget,
			EnforceBudget:       cfg.Salience.EnforceBudget,
		}
	}
	rt.Runner = NewBatchRunner(harness, templates, deps, rt.Store, logger.With().Str("component", "batch").Logger())

	return rt, nil
}

// Close releases watcher and store resources.
func (rt *Runtime) Close() {
	for _, stop := range rt.stops {
		stop()
	}
}
