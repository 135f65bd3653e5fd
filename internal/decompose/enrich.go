package decompose

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/hnsw"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// Enrich inserts TextElements, backfills embeddings on every retrievable
// node missing one, and rebuilds the HNSW index whose base-layer pairs become
// connectsTo "semantic" edges. Returns the freshly built index so the caller
// can attach it to the store's similarity search.
func (p *Pipeline) Enrich(ctx context.Context, decomposition *Result, indexCfg hnsw.Config) (*EnrichResult, *hnsw.Index, error) {
	ctx, span := p.tracer.Start(ctx, "decompose.enrich")
	defer span.End()

	result := &EnrichResult{}

	// Text elements per original chunk, wired from the chunk's units.
	for _, outcome := range decomposition.Chunks {
		if outcome.Err != nil || outcome.Chunk.Content == "" {
			continue
		}
		tid := textElementID(p.opts.Corpus, outcome.Chunk.Source, outcome.Chunk.Content)
		el := graph.Element{
			ID:      tid,
			Kind:    graph.KindTextElement,
			Label:   outcome.Chunk.Source,
			Content: outcome.Chunk.Content,
			Corpus:  p.opts.Corpus,
			Source:  outcome.Chunk.Source,
		}
		if err := p.store.UpsertElement(ctx, el); err != nil {
			return result, nil, err
		}
		result.TextElements++
		for _, uid := range outcome.UnitIDs {
			if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredHasTextElement, Src: uid, Dst: tid}); err != nil {
				return result, nil, err
			}
		}
	}

	// Embedding backfill over every embeddable kind.
	if err := p.backfillEmbeddings(ctx, result); err != nil {
		return result, nil, err
	}

	// Index rebuild and semantic edge derivation.
	index, err := p.buildIndex(ctx, indexCfg, result)
	if err != nil {
		return result, nil, err
	}

	span.SetAttributes(
		attribute.Int("text_elements", result.TextElements),
		attribute.Int("embedded", result.Embedded),
		attribute.Int("semantic_edges", result.SemanticEdges),
	)
	p.logger.Info("enrichment complete",
		zap.Int("text_elements", result.TextElements),
		zap.Int("embedded", result.Embedded),
		zap.Int("skipped_embeds", result.SkippedEmbeds),
		zap.Int("semantic_edges", result.SemanticEdges),
	)
	return result, index, nil
}

// backfillEmbeddings embeds retrievable nodes missing a vector, in batches.
// A failed batch skips its nodes: they stay keyword-searchable until retried.
func (p *Pipeline) backfillEmbeddings(ctx context.Context, result *EnrichResult) error {
	missing := false
	var pending []graph.Element
	for _, kind := range []graph.Kind{graph.KindTextElement, graph.KindUnit, graph.KindAttribute, graph.KindCommunityElement} {
		els, err := p.store.QueryByKind(ctx, kind, graph.Filters{Corpus: p.opts.Corpus, HasEmbedding: &missing}, 0)
		if err != nil {
			return err
		}
		for _, el := range els {
			if el.Content != "" {
				pending = append(pending, el)
			}
		}
	}

	var archived []vectorstore.Entry
	for start := 0; start < len(pending); start += p.opts.EmbeddingBatch {
		end := start + p.opts.EmbeddingBatch
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for i, el := range batch {
			texts[i] = el.Content
		}

		vecs, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return err
			}
			p.logger.Warn("embedding batch failed; nodes stay keyword-searchable",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			result.SkippedEmbeds += len(batch)
			continue
		}

		for i, el := range batch {
			el.Embedding = vecs[i]
			if err := p.store.UpsertElement(ctx, el); err != nil {
				return err
			}
			archived = append(archived, vectorstore.Entry{ID: el.ID, Content: el.Content, Embedding: vecs[i]})
			result.Embedded++
		}
		if p.opts.Progress != nil {
			p.opts.Progress("embed", end, len(pending))
		}
	}

	if p.archive != nil && len(archived) > 0 {
		if err := p.archive.Put(ctx, p.opts.Corpus, archived); err != nil {
			// Archive loss is recoverable: the store still holds vectors.
			p.logger.Warn("vector archive write failed", zap.Error(err))
		}
	}
	return nil
}

// buildIndex rebuilds HNSW over every embedded element and adds one semantic
// connectsTo edge per base-layer pair, accumulating weight on repeats.
func (p *Pipeline) buildIndex(ctx context.Context, cfg hnsw.Config, result *EnrichResult) (*hnsw.Index, error) {
	if cfg.Dim == 0 {
		cfg = hnsw.DefaultConfig(p.embedder.Dim())
	}
	index, err := hnsw.New(cfg)
	if err != nil {
		return nil, err
	}

	has := true
	for _, kind := range []graph.Kind{graph.KindTextElement, graph.KindUnit, graph.KindAttribute, graph.KindCommunityElement} {
		els, err := p.store.QueryByKind(ctx, kind, graph.Filters{Corpus: p.opts.Corpus, HasEmbedding: &has}, 0)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			if err := index.Insert(el.ID, el.Embedding); err != nil {
				return nil, err
			}
		}
	}

	for _, pair := range index.BaseLayerEdges() {
		err := p.store.AddEdge(ctx, graph.Edge{
			Predicate: graph.PredConnectsTo,
			Src:       pair[0],
			Dst:       pair[1],
			Weight:    1,
			SubType:   "semantic",
		})
		if err != nil {
			return nil, err
		}
		result.SemanticEdges++
	}
	return index, nil
}
