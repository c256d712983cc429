//go:build integration
// +build integration

package scripts

import (
	"os"
	"testing"
)

func TestScriptsIntegration(t *testing.T) {
	if os.Getenv("RUN_SCRIPTS_TESTS") == "" {
		t.Skip("skipping integration test; set RUN_SCRIPTS_TESTS=1 to run")
	}

	t.Run("SmokeStore", func(t *testing.T) {
		RunSmokeStore()
	})

	t.Run("SmokeBatch", func(t *testing.T) {
		RunSmokeBatch()
	})
}
