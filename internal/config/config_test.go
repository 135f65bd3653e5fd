package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := NewDefault()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.Decomposition.ChunkSize)
	assert.Equal(t, 10, cfg.Augmentation.BetweennessSamples)
	assert.Equal(t, int64(42), cfg.Augmentation.LeidenSeed)
	assert.Equal(t, 3, cfg.Augmentation.MinCommunitySize)
	assert.Equal(t, 16, cfg.Enrichment.HNSWM)
	assert.Equal(t, 200, cfg.Enrichment.EfConstruction)
	assert.Equal(t, 50, cfg.Enrichment.EfSearch)
	assert.Equal(t, 0.5, cfg.Search.PPRAlpha)
	assert.Equal(t, 2, cfg.Search.PPRIterations)
	assert.Equal(t, 5, cfg.Search.PPRTopKPerKind)
	assert.Equal(t, 4, cfg.Concurrency.MaxLLMConcurrency)
	assert.Equal(t, 16, cfg.Concurrency.MaxEmbeddingConcurrency)
	assert.Equal(t, 10000, cfg.Concurrency.CacheSize)
	assert.Equal(t, 30*time.Second, cfg.Navigation.SelectionTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty namespace", func(c *Config) { c.CorpusNamespace = "" }},
		{"zero chunk size", func(c *Config) { c.Decomposition.ChunkSize = 0 }},
		{"overlap over chunk", func(c *Config) { c.Decomposition.ChunkOverlap = 512 }},
		{"alpha out of range", func(c *Config) { c.Search.PPRAlpha = 1.5 }},
		{"euclidean metric", func(c *Config) { c.Enrichment.Metric = "euclidean" }},
		{"zero llm concurrency", func(c *Config) { c.Concurrency.MaxLLMConcurrency = 0 }},
		{"zero rate limit", func(c *Config) { c.Navigation.RateLimitPerMin = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
corpus_namespace: research
search:
  vector_k: 20
  ppr_alpha: 0.15
augmentation:
  min_community_size: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "research", cfg.CorpusNamespace)
	assert.Equal(t, 20, cfg.Search.VectorK)
	assert.Equal(t, 0.15, cfg.Search.PPRAlpha)
	assert.Equal(t, 5, cfg.Augmentation.MinCommunitySize)
	// Untouched values keep defaults.
	assert.Equal(t, 2, cfg.Search.PPRIterations)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
search:
  vector_k: 20
  nearest_neighbours: 5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config keys")
	assert.Contains(t, err.Error(), "search.nearest_neighbours")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
search:
  vector_k: 20
`)
	t.Setenv("CORPUSD_SEARCH_VECTOR_K", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.VectorK)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.CorpusNamespace)
}

func TestLoadValidatesResult(t *testing.T) {
	path := writeConfig(t, `
search:
  ppr_alpha: 2.0
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ppr_alpha")
}

func TestLoadAllowsLoggingFieldsMap(t *testing.T) {
	path := writeConfig(t, `
logging:
  fields:
    deployment: staging
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Logging.Fields["deployment"])
}
