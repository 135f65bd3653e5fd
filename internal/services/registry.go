// Package services assembles the corpusd service graph from configuration
// and exposes it through a single registry, mirroring the construction order
// the components require: store and embedder first, then search, then the
// navigation stack.
package services

import (
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/decompose"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/graphalgo"
	"github.com/fyrsmithlabs/corpusd/internal/limit"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
	"github.com/fyrsmithlabs/corpusd/internal/search"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
	"github.com/fyrsmithlabs/corpusd/internal/zpt"
)

// Registry provides access to all corpusd services.
type Registry interface {
	Store() graph.Store
	Embedder() embeddings.Service
	LLM() llm.Adapter
	Pipeline() *decompose.Pipeline
	Dual() *search.Dual
	Navigator() *zpt.Navigator
	Sessions() *zpt.SessionStore
}

// Options carries the pre-built adapters the registry composes. Store, LLM
// and Embedder are required; Archive may be nil.
type Options struct {
	Config   *config.Config
	Store    graph.Store
	LLM      llm.Adapter
	Embedder embeddings.Service
	Archive  *vectorstore.Archive
	Logger   *zap.Logger
}

type registry struct {
	store     graph.Store
	embedder  embeddings.Service
	llm       llm.Adapter
	pipeline  *decompose.Pipeline
	dual      *search.Dual
	navigator *zpt.Navigator
	sessions  *zpt.SessionStore
}

// NewRegistry wires the full service graph.
func NewRegistry(opts Options) (Registry, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefault()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pipelineOpts := decompose.Options{
		Corpus:                cfg.CorpusNamespace,
		ChunkParallelism:      cfg.Concurrency.MaxLLMConcurrency,
		SemanticUnitMaxLength: cfg.Decomposition.SemanticUnitMaxLength,
		AttributeBatch:        cfg.Augmentation.AttributeBatch,
		Betweenness: graphalgo.BetweennessOptions{
			Samples: cfg.Augmentation.BetweennessSamples,
			Seed:    cfg.Augmentation.LeidenSeed,
		},
		Leiden: graphalgo.LeidenOptions{
			Resolution:       cfg.Augmentation.LeidenResolution,
			Seed:             cfg.Augmentation.LeidenSeed,
			MinCommunitySize: cfg.Augmentation.MinCommunitySize,
		},
		EmbeddingBatch: cfg.Enrichment.EmbeddingBatch,
	}
	pipeline, err := decompose.New(opts.Store, opts.LLM, opts.Embedder, opts.Archive, pipelineOpts, logger)
	if err != nil {
		return nil, err
	}

	dualCfg := search.Config{
		Corpus:         cfg.CorpusNamespace,
		VectorK:        cfg.Search.VectorK,
		ScoreThreshold: cfg.Search.ScoreThreshold,
	}
	dual, err := search.NewDual(opts.Store, opts.LLM, opts.Embedder, dualCfg, logger)
	if err != nil {
		return nil, err
	}

	selectorCfg := zpt.SelectorConfig{
		Corpus:           cfg.CorpusNamespace,
		StoreConcurrency: cfg.Concurrency.MaxStoreConcurrency,
		Traversal: search.TraversalOptions{
			PageRank: graphalgo.PageRankOptions{
				Alpha:       cfg.Search.PPRAlpha,
				Iterations:  cfg.Search.PPRIterations,
				Convergence: cfg.Search.PPRConvergence,
			},
			TopKPerKind: cfg.Search.PPRTopKPerKind,
		},
	}
	selector, err := zpt.NewSelector(opts.Store, opts.Embedder, dual, selectorCfg, logger)
	if err != nil {
		return nil, err
	}

	transformer := zpt.NewTransformer(opts.LLM, zpt.TransformerConfig{
		ChunkSize:         cfg.Decomposition.ChunkSize,
		ChunkOverlap:      cfg.Decomposition.ChunkOverlap,
		SummaryImportance: 0.5,
	}, logger)

	limiter, err := limit.NewPerClient(limit.Config{
		RequestsPerMinute: cfg.Navigation.RateLimitPerMin,
		Burst:             10,
		IdleEviction:      limit.DefaultConfig().IdleEviction,
	})
	if err != nil {
		return nil, err
	}

	sessions := zpt.NewSessionStore()
	navigator, err := zpt.NewNavigator(opts.Store, selector, transformer, sessions, limiter, zpt.NavigatorConfig{
		SelectionTimeout:  cfg.Navigation.SelectionTimeout,
		TransformTimeout:  cfg.Navigation.TransformTimeout,
		NavigationTimeout: cfg.Navigation.NavigationTimeout,
		CacheSize:         cfg.Concurrency.CacheSize,
		FallbackEnabled:   cfg.Navigation.FallbackEnabled,
		Corpus:            cfg.CorpusNamespace,
		RecordCorpuscles:  cfg.Navigation.RecordCorpuscles,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &registry{
		store:     opts.Store,
		embedder:  opts.Embedder,
		llm:       opts.LLM,
		pipeline:  pipeline,
		dual:      dual,
		navigator: navigator,
		sessions:  sessions,
	}, nil
}

func (r *registry) Store() graph.Store            { return r.store }
func (r *registry) Embedder() embeddings.Service  { return r.embedder }
func (r *registry) LLM() llm.Adapter              { return r.llm }
func (r *registry) Pipeline() *decompose.Pipeline { return r.pipeline }
func (r *registry) Dual() *search.Dual            { return r.dual }
func (r *registry) Navigator() *zpt.Navigator     { return r.navigator }
func (r *registry) Sessions() *zpt.SessionStore   { return r.sessions }
