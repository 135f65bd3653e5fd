package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/decompose"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/graphalgo"
	"github.com/fyrsmithlabs/corpusd/internal/hnsw"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/search"
	"github.com/fyrsmithlabs/corpusd/internal/services"
	"github.com/fyrsmithlabs/corpusd/internal/telemetry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
	"github.com/fyrsmithlabs/corpusd/internal/zpt"
)

func newRootCmd() *cobra.Command {
	var configPath string
	var offline bool

	root := &cobra.Command{
		Use:           "corpusd",
		Short:         "Graph-augmented retrieval over a typed knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().BoolVar(&offline, "offline", false, "use the deterministic hash embedder and no LLM endpoint")

	root.AddCommand(newDecomposeCmd(&configPath, &offline))
	root.AddCommand(newNavigateCmd(&configPath, &offline))
	root.AddCommand(newSearchCmd(&configPath, &offline))
	root.AddCommand(newHealthCmd(&configPath, &offline))
	return root
}

func newSearchCmd(configPath *string, offline *bool) *cobra.Command {
	var maxTokens int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run the retrieval pipeline: entry points, shallow PPR, filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, cfg, logger, err := buildRegistry(*configPath, *offline)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			traversal := search.TraversalOptions{
				PageRank: graphalgo.PageRankOptions{
					Alpha:       cfg.Search.PPRAlpha,
					Iterations:  cfg.Search.PPRIterations,
					Convergence: cfg.Search.PPRConvergence,
				},
				TopKPerKind: cfg.Search.PPRTopKPerKind,
			}
			items, err := reg.Dual().Run(cmd.Context(), args[0], traversal, maxTokens)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(items, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 8192, "retrieval token cap")
	return cmd
}

// buildRegistry loads config and wires the full service graph.
func buildRegistry(configPath string, offline bool) (services.Registry, *config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	// Telemetry registers the global providers; the CLI is short-lived, so
	// batched exports flush on process exit at the collector's cadence.
	if _, err := telemetry.New(context.Background(), &cfg.Telemetry); err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.NewLogger(&cfg.Logging, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		embedder embeddings.Service
		adapter  llm.Adapter
	)
	if offline {
		embedder = embeddings.NewHash(cfg.Enrichment.EmbeddingDim)
		adapter = llm.NewMock()
	} else {
		client, err := openai.New(
			openai.WithBaseURL(cfg.LLM.BaseURL),
			openai.WithModel(cfg.LLM.Model),
			openai.WithEmbeddingModel(cfg.Enrichment.EmbeddingModel),
			openai.WithToken(apiToken(cfg)),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating model client: %w", err)
		}
		lcEmbedder, err := lcembeddings.NewEmbedder(client)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating embedder: %w", err)
		}
		embCfg := embeddings.DefaultConfig(cfg.Enrichment.EmbeddingModel, cfg.Enrichment.EmbeddingDim)
		embCfg.BatchSize = cfg.Enrichment.EmbeddingBatch
		embCfg.MaxConcurrency = cfg.Concurrency.MaxEmbeddingConcurrency
		embCfg.CallTimeout = cfg.LLM.EmbedTimeout
		embedder, err = embeddings.NewProvider(lcEmbedder, embCfg)
		if err != nil {
			return nil, nil, nil, err
		}

		llmCfg := llm.DefaultConfig()
		llmCfg.MaxConcurrency = cfg.Concurrency.MaxLLMConcurrency
		llmCfg.RequestsPerMinute = cfg.LLM.RequestsPerMinute
		llmCfg.CallTimeout = cfg.LLM.CallTimeout
		adapter, err = llm.NewLangchainAdapter(client, llmCfg)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	var archive *vectorstore.Archive
	if cfg.Archive.Path != "" {
		archive, err = vectorstore.New(vectorstore.Config{
			Path:     cfg.Archive.Path,
			Compress: cfg.Archive.Compress,
			Model:    embedder.Model(),
			Dim:      embedder.Dim(),
		}, logger.Underlying())
		if err != nil {
			logger.Warn(context.Background(), "vector archive unavailable", zap.Error(err))
			archive = nil
		}
	}

	reg, err := services.NewRegistry(services.Options{
		Config:   cfg,
		Store:    graph.NewMemoryStore(),
		LLM:      adapter,
		Embedder: embedder,
		Archive:  archive,
		Logger:   logger.Underlying(),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return reg, cfg, logger, nil
}

func apiToken(cfg *config.Config) string {
	if key := os.Getenv(cfg.LLM.APIKeyEnv); key != "" {
		return key
	}
	// langchaingo requires a token; local OpenAI-compatible endpoints
	// ignore it.
	return "unused"
}

// chunkFile is the decompose input schema.
type chunkFile struct {
	Chunks []decompose.Chunk `json:"chunks"`
}

func newDecomposeCmd(configPath *string, offline *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decompose <chunks.json>",
		Short: "Decompose chunks into the knowledge graph and enrich it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, cfg, logger, err := buildRegistry(*configPath, *offline)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var input chunkFile
			if err := json.Unmarshal(data, &input); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			pipeline := reg.Pipeline()
			res, err := pipeline.Decompose(ctx, input.Chunks)
			if err != nil {
				return err
			}
			if _, err := pipeline.Augment(ctx); err != nil {
				return err
			}
			agg, err := pipeline.Aggregate(ctx)
			if err != nil {
				return err
			}
			enrich, index, err := pipeline.Enrich(ctx, res, hnsw.Config{
				Dim:            cfg.Enrichment.EmbeddingDim,
				M:              cfg.Enrichment.HNSWM,
				EfConstruction: cfg.Enrichment.EfConstruction,
				EfSearch:       cfg.Enrichment.EfSearch,
				Seed:           cfg.Enrichment.HNSWSeed,
			})
			if err != nil {
				return err
			}
			if ms, ok := reg.Store().(*graph.MemoryStore); ok {
				ms.SetSearcher(index)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"decomposed %d chunks (%d failed), %d communities via %s, %d text elements, %d embedded, %d semantic edges\n",
				len(res.Chunks), len(res.Failed()), agg.Communities, agg.Method,
				enrich.TextElements, enrich.Embedded, enrich.SemanticEdges)
			return nil
		},
	}
	return cmd
}

func newNavigateCmd(configPath *string, offline *bool) *cobra.Command {
	var (
		zoom, tilt, query, format string
		maxTokens                 int
	)
	cmd := &cobra.Command{
		Use:   "navigate",
		Short: "Run one navigation against the current graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, logger, err := buildRegistry(*configPath, *offline)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			req := zpt.Request{
				Query:    query,
				Zoom:     zpt.Zoom(zoom),
				Tilt:     zpt.Tilt(tilt),
				ClientID: "cli",
				Transform: zpt.Transform{
					MaxTokens: maxTokens,
					Format:    zpt.Format(format),
				},
			}
			env, err := reg.Navigator().Navigate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&zoom, "zoom", string(zpt.ZoomUnit), "zoom level")
	cmd.Flags().StringVar(&tilt, "tilt", string(zpt.TiltKeywords), "tilt projection")
	cmd.Flags().StringVar(&query, "query", "", "natural-language query")
	cmd.Flags().StringVar(&format, "format", string(zpt.FormatStructured), "output format")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 4000, "token budget")
	return cmd
}

func newHealthCmd(configPath *string, offline *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report corpus health",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, cfg, logger, err := buildRegistry(*configPath, *offline)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			report, err := reg.Store().CorpusHealth(cmd.Context(), cfg.CorpusNamespace)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
