// Package config provides configuration loading for corpusd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with hardcoded defaults beneath both. Every recognised option is
// a typed field; unknown keys in the config file are rejected at load so a
// typo never silently falls back to a default.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/telemetry"
)

// Config holds the complete corpusd configuration.
type Config struct {
	// CorpusNamespace names the corpus all ingestion writes to.
	CorpusNamespace string `koanf:"corpus_namespace"`

	Decomposition DecompositionConfig `koanf:"decomposition"`
	Augmentation  AugmentationConfig  `koanf:"augmentation"`
	Enrichment    EnrichmentConfig    `koanf:"enrichment"`
	Search        SearchConfig        `koanf:"search"`
	Navigation    NavigationConfig    `koanf:"navigation"`
	Concurrency   ConcurrencyConfig   `koanf:"concurrency"`
	LLM           LLMConfig           `koanf:"llm"`
	Archive       ArchiveConfig       `koanf:"archive"`
	Logging       logging.Config      `koanf:"logging"`
	Telemetry     telemetry.Config    `koanf:"telemetry"`
}

// DecompositionConfig bounds chunk handling.
type DecompositionConfig struct {
	ChunkSize             int `koanf:"chunk_size"`
	ChunkOverlap          int `koanf:"chunk_overlap"`
	SemanticUnitMaxLength int `koanf:"semantic_unit_max_length"`
}

// AugmentationConfig bounds attribute synthesis and community detection.
type AugmentationConfig struct {
	BetweennessSamples int     `koanf:"betweenness_samples"`
	AttributeBatch     int     `koanf:"attribute_batch"`
	LeidenResolution   float64 `koanf:"leiden_resolution"`
	LeidenSeed         int64   `koanf:"leiden_seed"`
	MinCommunitySize   int     `koanf:"min_community_size"`
}

// EnrichmentConfig bounds embedding and index construction.
type EnrichmentConfig struct {
	EmbeddingModel string `koanf:"embedding_model"`
	EmbeddingDim   int    `koanf:"embedding_dim"`
	EmbeddingBatch int    `koanf:"embedding_batch"`
	HNSWM          int    `koanf:"hnsw_m"`
	EfConstruction int    `koanf:"ef_construction"`
	EfSearch       int    `koanf:"ef_search"`
	Metric         string `koanf:"metric"`
	HNSWSeed       int64  `koanf:"hnsw_seed"`
}

// SearchConfig bounds dual search and PPR retrieval.
type SearchConfig struct {
	VectorK           int     `koanf:"vector_k"`
	QueryExpansion    bool    `koanf:"query_expansion"`
	PPRAlpha          float64 `koanf:"ppr_alpha"`
	PPRIterations     int     `koanf:"ppr_iterations"`
	PPRTopKPerKind    int     `koanf:"ppr_top_k_per_kind"`
	PPRConvergence    float64 `koanf:"ppr_convergence"`
	RetrieveMaxTokens int     `koanf:"retrieve_max_tokens"`
	ScoreThreshold    float64 `koanf:"score_threshold"`
}

// NavigationConfig bounds the navigator service.
type NavigationConfig struct {
	SelectionTimeout  time.Duration `koanf:"selection_timeout"`
	TransformTimeout  time.Duration `koanf:"transform_timeout"`
	NavigationTimeout time.Duration `koanf:"navigation_timeout"`
	FallbackEnabled   bool          `koanf:"fallback_enabled"`
	RecordCorpuscles  bool          `koanf:"record_corpuscles"`
	RateLimitPerMin   float64       `koanf:"rate_limit_per_min"`
}

// ConcurrencyConfig bounds parallelism and cache sizing.
type ConcurrencyConfig struct {
	MaxLLMConcurrency       int `koanf:"max_llm_concurrency"`
	MaxEmbeddingConcurrency int `koanf:"max_embedding_concurrency"`
	MaxStoreConcurrency     int `koanf:"max_store_concurrency"`
	CacheSize               int `koanf:"cache_size"`
}

// LLMConfig selects the language-model endpoint.
type LLMConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Model             string        `koanf:"model"`
	APIKeyEnv         string        `koanf:"api_key_env"`
	RequestsPerMinute float64       `koanf:"requests_per_minute"`
	CallTimeout       time.Duration `koanf:"call_timeout"`
	EmbedTimeout      time.Duration `koanf:"embed_timeout"`
}

// ArchiveConfig locates the persistent vector archive.
type ArchiveConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// NewDefault returns the standard defaults.
func NewDefault() *Config {
	return &Config{
		CorpusNamespace: "default",
		Decomposition: DecompositionConfig{
			ChunkSize:             512,
			ChunkOverlap:          64,
			SemanticUnitMaxLength: 256,
		},
		Augmentation: AugmentationConfig{
			BetweennessSamples: 10,
			AttributeBatch:     5,
			LeidenResolution:   1.0,
			LeidenSeed:         42,
			MinCommunitySize:   3,
		},
		Enrichment: EnrichmentConfig{
			EmbeddingModel: "BAAI/bge-small-en-v1.5",
			EmbeddingDim:   384,
			EmbeddingBatch: 100,
			HNSWM:          16,
			EfConstruction: 200,
			EfSearch:       50,
			Metric:         "cosine",
			HNSWSeed:       42,
		},
		Search: SearchConfig{
			VectorK:           10,
			PPRAlpha:          0.5,
			PPRIterations:     2,
			PPRTopKPerKind:    5,
			PPRConvergence:    1e-6,
			RetrieveMaxTokens: 8192,
			ScoreThreshold:    0.1,
		},
		Navigation: NavigationConfig{
			SelectionTimeout:  30 * time.Second,
			TransformTimeout:  45 * time.Second,
			NavigationTimeout: 90 * time.Second,
			RateLimitPerMin:   100,
		},
		Concurrency: ConcurrencyConfig{
			MaxLLMConcurrency:       4,
			MaxEmbeddingConcurrency: 16,
			MaxStoreConcurrency:     3,
			CacheSize:               10000,
		},
		LLM: LLMConfig{
			BaseURL:           "http://localhost:11434/v1",
			Model:             "gpt-4o-mini",
			APIKeyEnv:         "CORPUSD_LLM_API_KEY",
			RequestsPerMinute: 50,
			CallTimeout:       60 * time.Second,
			EmbedTimeout:      15 * time.Second,
		},
		Archive: ArchiveConfig{
			Path:     "~/.config/corpusd/vectors",
			Compress: true,
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// Validate checks the configuration section by section.
func (c *Config) Validate() error {
	if c.CorpusNamespace == "" {
		return fmt.Errorf("corpus_namespace is required")
	}

	if c.Decomposition.ChunkSize < 1 {
		return fmt.Errorf("decomposition.chunk_size must be positive, got %d", c.Decomposition.ChunkSize)
	}
	if c.Decomposition.ChunkOverlap < 0 || c.Decomposition.ChunkOverlap >= c.Decomposition.ChunkSize {
		return fmt.Errorf("decomposition.chunk_overlap %d must be in [0, chunk_size)", c.Decomposition.ChunkOverlap)
	}

	if c.Augmentation.BetweennessSamples < 1 {
		return fmt.Errorf("augmentation.betweenness_samples must be positive, got %d", c.Augmentation.BetweennessSamples)
	}
	if c.Augmentation.LeidenResolution <= 0 {
		return fmt.Errorf("augmentation.leiden_resolution must be positive, got %g", c.Augmentation.LeidenResolution)
	}
	if c.Augmentation.MinCommunitySize < 1 {
		return fmt.Errorf("augmentation.min_community_size must be positive, got %d", c.Augmentation.MinCommunitySize)
	}

	if c.Enrichment.EmbeddingDim < 1 {
		return fmt.Errorf("enrichment.embedding_dim must be positive, got %d", c.Enrichment.EmbeddingDim)
	}
	if c.Enrichment.Metric != "cosine" {
		return fmt.Errorf("enrichment.metric: only cosine is supported, got %q", c.Enrichment.Metric)
	}
	if c.Enrichment.HNSWM < 2 {
		return fmt.Errorf("enrichment.hnsw_m must be at least 2, got %d", c.Enrichment.HNSWM)
	}

	if c.Search.PPRAlpha <= 0 || c.Search.PPRAlpha >= 1 {
		return fmt.Errorf("search.ppr_alpha must be in (0,1), got %g", c.Search.PPRAlpha)
	}
	if c.Search.PPRIterations < 1 {
		return fmt.Errorf("search.ppr_iterations must be positive, got %d", c.Search.PPRIterations)
	}
	if c.Search.VectorK < 1 {
		return fmt.Errorf("search.vector_k must be positive, got %d", c.Search.VectorK)
	}

	if c.Concurrency.MaxLLMConcurrency < 1 {
		return fmt.Errorf("concurrency.max_llm_concurrency must be positive, got %d", c.Concurrency.MaxLLMConcurrency)
	}
	if c.Concurrency.MaxEmbeddingConcurrency < 1 {
		return fmt.Errorf("concurrency.max_embedding_concurrency must be positive, got %d", c.Concurrency.MaxEmbeddingConcurrency)
	}

	if c.Navigation.RateLimitPerMin <= 0 {
		return fmt.Errorf("navigation.rate_limit_per_min must be positive, got %g", c.Navigation.RateLimitPerMin)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
