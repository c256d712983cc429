//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/instinct8/driftbench/drift/config"
	"github.com/instinct8/driftbench/drift/eval"
)

const smokeTemplate = `{
  "template_id": "smoke",
  "initial_setup": {
    "original_goal": "Choose a database for the project",
    "hard_constraints": ["Must be PostgreSQL"],
    "system_prompt": "You are a technical advisor."
  },
  "turns": [
    {"turn_id": 1, "role": "user", "content": "We need to choose a database. It must be PostgreSQL."},
    {"turn_id": 2, "role": "assistant", "content": "Understood, PostgreSQL it is. I will evaluate hosting options."},
    {"turn_id": 3, "role": "user", "content": "Great, compare managed offerings.", "is_compression_point": true}
  ]
}`

// RunSmokeBatch wires the full runtime from config and runs one tiny batch.
// Requires a reachable completion backend; intended for manual verification.
func RunSmokeBatch() {
	dir, err := os.MkdirTemp("", "driftbench-smoke")
	must(err, "tempdir")
	defer os.RemoveAll(dir)
	must(os.WriteFile(filepath.Join(dir, "smoke.json"), []byte(smokeTemplate), 0o644), "write template")

	cfg, err := config.LoadConfig("")
	must(err, "config")
	cfg.Templates.Dir = dir
	cfg.Results.SQLitePath = filepath.Join(dir, "results.db")

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	rt, err := eval.BuildRuntime(cfg, logger)
	must(err, "runtime")
	defer rt.Close()

	report, err := rt.Runner.Run(context.Background(), eval.BatchConfig{
		Strategies:    []string{"naive", "protected-core"},
		TemplateIDs:   []string{"smoke"},
		TrialsPerPair: 1,
		Concurrency:   2,
	})
	must(err, "batch")

	for _, pair := range report.Pairs {
		fmt.Printf("%s/%s completed=%d aborted=%d\n", pair.Strategy, pair.TemplateID, pair.Completed, pair.Aborted)
	}
	must(report.WriteJSON(filepath.Join(dir, "report.json")), "report")
	fmt.Println("OK: smoke batch")
}
