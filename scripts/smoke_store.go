//go:build integration
// +build integration

package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/instinct8/driftbench/drift/harness/adapters"
	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeStore executes the result store smoke checks.
func RunSmokeStore() {
	fmt.Println("Smoke test: SQLite result store")
	tmp := "./smoke.db"
	defer os.Remove(tmp)

	store, err := adapters.NewSQLiteResultStore(tmp)
	must(err, "open")
	defer store.Close()

	ctx := context.Background()
	payload, _ := json.Marshal(map[string]any{"points": []any{}})
	record := ports.TrialRecord{
		TrialID:    "smoke-trial",
		Strategy:   "naive",
		TemplateID: "smoke-template",
		Completed:  true,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Payload:    payload,
	}
	must(store.SaveTrial(ctx, record), "save")

	records, err := store.LoadTrials(ctx, "naive", "smoke-template")
	must(err, "load")
	if len(records) != 1 || records[0].TrialID != "smoke-trial" {
		log.Fatalf("unexpected records: %+v", records)
	}
	fmt.Println("OK: trial round trip")

	// Idempotent overwrite
	must(store.SaveTrial(ctx, record), "re-save")
	records, err = store.LoadTrials(ctx, "", "")
	must(err, "load all")
	if len(records) != 1 {
		log.Fatalf("expected 1 record after overwrite, got %d", len(records))
	}
	fmt.Println("OK: overwrite by trial_id")
}
