package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instinct8/driftbench/drift/config"
)

func testRuntimeConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join("testdata", "db-choice.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db-choice.json"), data, 0o644))

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Templates.Dir = dir
	cfg.Templates.Watch = false
	cfg.Results.SQLitePath = ""
	cfg.Embedding.Provider = "local"
	return cfg
}

func TestBuildRuntimeWiresComponents(t *testing.T) {
	rt, err := BuildRuntime(testRuntimeConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer rt.Close()

	assert.NotNil(t, rt.Completer)
	assert.NotNil(t, rt.Embedder)
	assert.NotNil(t, rt.Templates)
	assert.NotNil(t, rt.Runner)
	assert.Nil(t, rt.Store)

	ids, err := rt.Templates.List()
	require.NoError(t, err)
	assert.Contains(t, ids, "db-choice")
}

// Each trial's strategy must get its own embedding cache; a cache shared
// across trials would let one trial's embeddings influence another's
// deduplication decisions.
func TestBuildRuntimeGivesEachTrialAFreshCache(t *testing.T) {
	rt, err := BuildRuntime(testRuntimeConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer rt.Close()

	first := rt.Runner.deps()
	second := rt.Runner.deps()
	require.NotNil(t, first.Cache)
	require.NotNil(t, second.Cache)
	assert.NotSame(t, first.Cache, second.Cache)
}
