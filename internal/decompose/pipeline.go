package decompose

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/corpusd/internal/decompose"

// Pipeline drives the four construction stages over one corpus.
type Pipeline struct {
	store    graph.Store
	llm      llm.Adapter
	embedder embeddings.Service
	archive  *vectorstore.Archive // optional
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer

	// labelLocks serialises entity find-or-create per folded label.
	labelMu    sync.Mutex
	labelLocks map[string]*sync.Mutex
}

// New creates a pipeline. The archive may be nil when persistence of vectors
// is not wanted.
func New(store graph.Store, adapter llm.Adapter, embedder embeddings.Service, archive *vectorstore.Archive, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fault.Invalid("graph store is required")
	}
	if adapter == nil {
		return nil, fault.Invalid("llm adapter is required")
	}
	if embedder == nil {
		return nil, fault.Invalid("embedding service is required")
	}
	if opts.Corpus == "" {
		return nil, fault.Invalid("corpus name is required")
	}
	if opts.ChunkParallelism < 1 {
		opts.ChunkParallelism = 1
	}
	if opts.AttributeBatch < 1 {
		opts.AttributeBatch = 1
	}
	if opts.EmbeddingBatch < 1 {
		opts.EmbeddingBatch = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:      store,
		llm:        adapter,
		embedder:   embedder,
		archive:    archive,
		opts:       opts,
		logger:     logger.Named("decompose"),
		tracer:     otel.Tracer(instrumentationName),
		labelLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockLabel returns the mutex guarding one folded label, creating it lazily.
func (p *Pipeline) lockLabel(folded string) *sync.Mutex {
	p.labelMu.Lock()
	defer p.labelMu.Unlock()
	mu, ok := p.labelLocks[folded]
	if !ok {
		mu = &sync.Mutex{}
		p.labelLocks[folded] = mu
	}
	return mu
}

// Decompose processes chunks into Units, Entities and Relationships.
// Chunks run in parallel; a chunk whose adapter calls fail terminally is
// recorded in the result and skipped, keeping its partial writes.
func (p *Pipeline) Decompose(ctx context.Context, chunks []Chunk) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "decompose.chunks")
	defer span.End()
	span.SetAttributes(
		attribute.String("corpus", p.opts.Corpus),
		attribute.Int("chunk_count", len(chunks)),
	)

	result := &Result{
		Chunks:   make([]ChunkOutcome, len(chunks)),
		EntityID: make(map[string]string),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ChunkParallelism)

	var done int
	var doneMu sync.Mutex
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			outcome := p.processChunk(gctx, chunk, result)
			result.mu.Lock()
			result.Chunks[i] = outcome
			result.mu.Unlock()

			doneMu.Lock()
			done++
			n := done
			doneMu.Unlock()
			if p.opts.Progress != nil {
				p.opts.Progress("decompose", n, len(chunks))
			}

			// Cancellation aborts the whole run; chunk-level errors do not.
			if outcome.Err != nil && fault.CodeOf(outcome.Err) == fault.CodeCancelled {
				return outcome.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	failed := len(result.Failed())
	if failed > 0 {
		p.logger.Warn("decomposition finished with failed chunks",
			zap.Int("failed", failed),
			zap.Int("total", len(chunks)),
		)
	}
	return result, nil
}

// processChunk runs the per-chunk extraction. Errors after partial commits
// leave the committed elements in place.
func (p *Pipeline) processChunk(ctx context.Context, chunk Chunk, result *Result) ChunkOutcome {
	outcome := ChunkOutcome{Chunk: chunk}

	units, err := p.llm.ExtractSemanticUnits(ctx, chunk.Content)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	// Entities created by this chunk, for relationship endpoint resolution.
	chunkEntities := make(map[string]string) // folded label -> id
	var chunkNames []string

	for _, su := range units {
		su.Text = truncateAtWord(su.Text, p.opts.SemanticUnitMaxLength)
		uid := unitID(p.opts.Corpus, chunk.Source, su.Text)
		el := graph.Element{
			ID:      uid,
			Kind:    graph.KindUnit,
			Label:   su.Summary,
			Content: su.Text,
			Corpus:  p.opts.Corpus,
			Source:  chunk.Source,
		}
		if err := p.store.UpsertElement(ctx, el); err != nil {
			outcome.Err = err
			return outcome
		}
		outcome.UnitIDs = append(outcome.UnitIDs, uid)

		names, err := p.llm.ExtractEntities(ctx, su.Text)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		for _, name := range names {
			eid, err := p.findOrCreateEntity(ctx, name)
			if err != nil {
				outcome.Err = err
				return outcome
			}
			folded := foldLabel(name)
			if _, seen := chunkEntities[folded]; !seen {
				chunkEntities[folded] = eid
				chunkNames = append(chunkNames, name)
			}
			if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredHasUnit, Src: eid, Dst: uid}); err != nil {
				outcome.Err = err
				return outcome
			}
		}

		rels, err := p.llm.ExtractRelationships(ctx, su.Text, chunkNames)
		if err != nil {
			outcome.Err = err
			return outcome
		}
		for _, rel := range rels {
			srcID, okSrc := chunkEntities[foldLabel(rel.Source)]
			dstID, okDst := chunkEntities[foldLabel(rel.Target)]
			if !okSrc || !okDst {
				// Endpoints must resolve against this chunk's entities.
				continue
			}
			rid := relationshipID(p.opts.Corpus, srcID, dstID, rel.Description)
			el := graph.Element{
				ID:      rid,
				Kind:    graph.KindRelationship,
				Label:   rel.Description,
				Content: rel.Description,
				Corpus:  p.opts.Corpus,
				Source:  chunk.Source,
			}
			if err := p.store.UpsertElement(ctx, el); err != nil {
				outcome.Err = err
				return outcome
			}
			if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredHasSourceEntity, Src: rid, Dst: srcID}); err != nil {
				outcome.Err = err
				return outcome
			}
			if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredHasTargetEntity, Src: rid, Dst: dstID}); err != nil {
				outcome.Err = err
				return outcome
			}
		}
	}

	result.mu.Lock()
	for folded, id := range chunkEntities {
		result.EntityID[folded] = id
	}
	result.mu.Unlock()
	return outcome
}

// findOrCreateEntity resolves an entity by case-folded label within the
// corpus, creating it as an entry point when absent. Creation is serialised
// per folded label so concurrent chunks cannot race the upsert.
func (p *Pipeline) findOrCreateEntity(ctx context.Context, name string) (string, error) {
	folded := foldLabel(name)
	mu := p.lockLabel(folded)
	mu.Lock()
	defer mu.Unlock()

	id := entityID(p.opts.Corpus, name)
	existing, err := p.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return id, nil
	}

	el := graph.Element{
		ID:         id,
		Kind:       graph.KindEntity,
		Label:      name,
		Corpus:     p.opts.Corpus,
		EntryPoint: true,
	}
	if err := p.store.UpsertElement(ctx, el); err != nil {
		return "", err
	}
	return id, nil
}

// truncateAtWord bounds s to max characters, cutting at a word boundary.
func truncateAtWord(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

// sortedKeys returns map keys in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
