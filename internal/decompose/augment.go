package decompose

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/graphalgo"
)

// Augment identifies important entities (k-core ∪ sampled betweenness) and
// synthesises an Attribute for each from its connected Units and
// Relationships.
func (p *Pipeline) Augment(ctx context.Context) (*AugmentResult, error) {
	ctx, span := p.tracer.Start(ctx, "decompose.augment")
	defer span.End()

	snap, err := p.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	important := make(map[string]struct{})
	for _, id := range graphalgo.KCoreEntities(snap).Entities {
		important[id] = struct{}{}
	}
	for _, id := range graphalgo.SampledBetweenness(snap, p.opts.Betweenness).Important {
		important[id] = struct{}{}
	}

	ids := sortedKeys(important)
	span.SetAttributes(attribute.Int("important_entities", len(ids)))

	result := &AugmentResult{ImportantEntities: ids}
	if len(ids) == 0 {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.AttributeBatch)

	created := make([]int, len(ids))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			n, err := p.synthesiseAttribute(gctx, snap, id)
			if err != nil {
				return err
			}
			created[i] = n
			if p.opts.Progress != nil {
				p.opts.Progress("augment", i+1, len(ids))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, n := range created {
		result.AttributesCreated += n
	}
	p.logger.Info("augmentation complete",
		zap.Int("important_entities", len(ids)),
		zap.Int("attributes", result.AttributesCreated),
	)
	return result, nil
}

// synthesiseAttribute gathers one entity's evidence and writes its attribute.
func (p *Pipeline) synthesiseAttribute(ctx context.Context, snap *graph.Snapshot, entityID string) (int, error) {
	entity := snap.Get(entityID)
	if entity == nil {
		return 0, nil
	}

	var units, rels []string
	for _, nb := range snap.Neighbours(entityID) {
		el := snap.Get(nb)
		if el == nil || el.Content == "" {
			continue
		}
		switch el.Kind {
		case graph.KindUnit:
			units = append(units, el.Content)
		case graph.KindRelationship:
			rels = append(rels, el.Content)
		}
	}
	if len(units) == 0 && len(rels) == 0 {
		return 0, nil
	}
	sort.Strings(units)
	sort.Strings(rels)

	summary, err := p.llm.SummarizeEntity(ctx, entity.Label, units, rels)
	if err != nil {
		// One failed summary degrades that entity only.
		p.logger.Warn("entity summarisation failed",
			zap.String("entity", entityID),
			zap.Error(err),
		)
		return 0, nil
	}

	aid := attributeID(p.opts.Corpus, entityID, summary)
	el := graph.Element{
		ID:      aid,
		Kind:    graph.KindAttribute,
		Label:   entity.Label,
		Content: summary,
		Corpus:  p.opts.Corpus,
		Source:  entityID,
	}
	if err := p.store.UpsertElement(ctx, el); err != nil {
		return 0, err
	}
	if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredHasAttribute, Src: entityID, Dst: aid}); err != nil {
		return 0, err
	}
	return 1, nil
}
