package embeddings

import (
	"context"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

// Service is the embedding adapter the enrichment stage and the navigator
// consume.
type Service interface {
	// Model identifies the embedding model; indexes built with a different
	// model id must be invalidated.
	Model() string

	// Dim returns the vector dimension.
	Dim() int

	// EmbedQuery embeds one query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of document texts, one vector per
	// input, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Config configures the provider-backed service.
type Config struct {
	// Model is the embedding model id recorded alongside stored vectors.
	Model string

	// Dim is the expected output dimension.
	Dim int

	// BatchSize bounds one provider call.
	BatchSize int

	// MaxConcurrency caps in-flight provider calls.
	MaxConcurrency int

	// CallTimeout bounds one provider call.
	CallTimeout time.Duration
}

// DefaultConfig returns the process defaults.
func DefaultConfig(model string, dim int) Config {
	return Config{
		Model:          model,
		Dim:            dim,
		BatchSize:      100,
		MaxConcurrency: 16,
		CallTimeout:    15 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fault.Invalid("embedding model id is required")
	}
	if c.Dim <= 0 {
		return fault.Invalid("embedding dimension must be positive, got %d", c.Dim)
	}
	if c.BatchSize < 1 {
		return fault.Invalid("embedding batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxConcurrency < 1 {
		return fault.Invalid("embedding concurrency must be positive, got %d", c.MaxConcurrency)
	}
	return nil
}

// Provider adapts a langchaingo embedder into the Service contract, adding
// batching, bounded concurrency, dimension checking and fault mapping.
type Provider struct {
	embedder lcembeddings.Embedder
	cfg      Config
	sem      *semaphore.Weighted
	policy   fault.RetryPolicy
}

// NewProvider wraps a langchaingo embedder.
func NewProvider(embedder lcembeddings.Embedder, cfg Config) (*Provider, error) {
	if embedder == nil {
		return nil, fault.Invalid("embedder is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		embedder: embedder,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		policy:   fault.DefaultRetryPolicy(),
	}, nil
}

// Model implements Service.
func (p *Provider) Model() string { return p.cfg.Model }

// Dim implements Service.
func (p *Provider) Dim() int { return p.cfg.Dim }

// EmbedQuery implements Service.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fault.FromContext(ctx)
	}
	defer p.sem.Release(1)

	var vec []float32
	err := fault.Retry(ctx, p.policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()

		out, err := p.embedder.EmbedQuery(callCtx, text)
		if err != nil {
			if ctxErr := fault.FromContext(ctx); ctxErr != nil {
				return ctxErr
			}
			return fault.Unavailable(err, "embedding call failed")
		}
		vec = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vec) != p.cfg.Dim {
		return nil, fault.DimensionMismatch(p.cfg.Dim, len(vec))
	}
	return vec, nil
}

// EmbedDocuments implements Service. Batches run concurrently under the
// semaphore; output order matches input order.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)

	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return fault.FromContext(ctx)
			}
			defer p.sem.Release(1)

			return fault.Retry(ctx, p.policy, func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
				defer cancel()

				vecs, err := p.embedder.EmbedDocuments(callCtx, texts[start:end])
				if err != nil {
					if ctxErr := fault.FromContext(ctx); ctxErr != nil {
						return ctxErr
					}
					return fault.Unavailable(err, "embedding batch failed")
				}
				if len(vecs) != end-start {
					return fault.Internal(nil, "embedder returned %d vectors for %d inputs", len(vecs), end-start)
				}
				for i, v := range vecs {
					if len(v) != p.cfg.Dim {
						return fault.DimensionMismatch(p.cfg.Dim, len(v))
					}
					out[start+i] = v
				}
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Service = (*Provider)(nil)
