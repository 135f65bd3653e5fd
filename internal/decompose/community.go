package decompose

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/graphalgo"
)

// Aggregate runs community detection and materialises one CommunityElement
// plus one Overview attribute per insight. Community members gain inCommunity
// edges; semantically matching members link back to the community elements.
// Re-running replaces communities: ids derive from membership, so a stable
// graph reproduces the same records.
func (p *Pipeline) Aggregate(ctx context.Context) (*AggregateResult, error) {
	ctx, span := p.tracer.Start(ctx, "decompose.aggregate")
	defer span.End()

	snap, err := p.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	detection := graphalgo.Leiden(snap, p.opts.Leiden)
	result := &AggregateResult{Method: detection.Method, Communities: len(detection.Communities)}
	span.SetAttributes(
		attribute.String("method", detection.Method),
		attribute.Int("communities", len(detection.Communities)),
	)

	assigned := make(map[string]struct{})
	for ci, members := range detection.Communities {
		if err := p.aggregateCommunity(ctx, snap, members, result); err != nil {
			return result, err
		}
		for _, m := range members {
			assigned[m] = struct{}{}
		}
		if p.opts.Progress != nil {
			p.opts.Progress("aggregate", ci+1, len(detection.Communities))
		}
	}
	result.MembersUnassigned = snap.Len() - len(assigned)

	p.logger.Info("community aggregation complete",
		zap.String("method", detection.Method),
		zap.Int("communities", result.Communities),
		zap.Int("insights", result.InsightsCreated),
	)
	return result, nil
}

func (p *Pipeline) aggregateCommunity(ctx context.Context, snap *graph.Snapshot, members []string, result *AggregateResult) error {
	cid := communityID(p.opts.Corpus, members)
	if err := p.store.UpsertElement(ctx, graph.Element{
		ID:     cid,
		Kind:   graph.KindCommunity,
		Label:  "community " + cid[len(cid)-12:],
		Corpus: p.opts.Corpus,
	}); err != nil {
		return err
	}

	var contents []string
	for _, m := range members {
		if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredInCommunity, Src: m, Dst: cid}); err != nil {
			return err
		}
		if el := snap.Get(m); el != nil && el.Content != "" {
			contents = append(contents, el.Content)
		}
	}
	if len(contents) == 0 {
		return nil
	}
	sort.Strings(contents)

	insights, err := p.llm.SummarizeCommunity(ctx, contents)
	if err != nil {
		// A failed community summary degrades that community only.
		p.logger.Warn("community summarisation failed",
			zap.String("community", cid),
			zap.Error(err),
		)
		return nil
	}

	var elementIDs []string
	for _, insight := range insights {
		ceID := communityElementID(p.opts.Corpus, cid, insight.Title)
		if err := p.store.UpsertElement(ctx, graph.Element{
			ID:      ceID,
			Kind:    graph.KindCommunityElement,
			Label:   insight.Title,
			Content: insight.Content,
			Corpus:  p.opts.Corpus,
			Source:  cid,
		}); err != nil {
			return err
		}
		if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredHasCommunityElement, Src: cid, Dst: ceID}); err != nil {
			return err
		}
		if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredInCommunity, Src: ceID, Dst: cid}); err != nil {
			return err
		}

		ovID := overviewID(p.opts.Corpus, ceID)
		if err := p.store.UpsertElement(ctx, graph.Element{
			ID:         ovID,
			Kind:       graph.KindAttribute,
			SubType:    graph.SubTypeOverview,
			Label:      insight.Title,
			Content:    insight.Content,
			Corpus:     p.opts.Corpus,
			Source:     ceID,
			EntryPoint: true,
		}); err != nil {
			return err
		}
		if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredConnectsTo, Src: ovID, Dst: ceID, SubType: "overview"}); err != nil {
			return err
		}

		elementIDs = append(elementIDs, ceID)
		result.InsightsCreated++
	}

	matches, err := p.semanticMatch(ctx, snap, members, elementIDs)
	if err != nil {
		return err
	}
	result.SemanticMatches += matches
	return nil
}

// semanticMatch clusters member embeddings (k = ⌊√n⌋, n the number of
// matchable members: Units and Attributes with content) and links each
// community element to Units and Attributes in its own cluster. Members
// without content are skipped; embeddings are computed on demand so the
// aggregation stage does not depend on enrichment having run.
func (p *Pipeline) semanticMatch(ctx context.Context, snap *graph.Snapshot, members, elementIDs []string) (int, error) {
	if len(elementIDs) == 0 {
		return 0, nil
	}

	// Matchable members: units and attributes with content.
	var matchable []string
	texts := make(map[string]string)
	for _, m := range members {
		el := snap.Get(m)
		if el == nil || el.Content == "" {
			continue
		}
		if el.Kind != graph.KindUnit && el.Kind != graph.KindAttribute {
			continue
		}
		matchable = append(matchable, m)
		texts[m] = el.Content
	}
	if len(matchable) == 0 {
		return 0, nil
	}

	// Community elements join the clustering with their own content.
	for _, ceID := range elementIDs {
		el, err := p.store.Get(ctx, ceID)
		if err != nil {
			return 0, err
		}
		if el != nil && el.Content != "" {
			texts[ceID] = el.Content
		}
	}

	ids := sortedKeys(texts)
	docs := make([]string, len(ids))
	for i, id := range ids {
		docs[i] = texts[id]
	}
	vecs, err := p.embedder.EmbedDocuments(ctx, docs)
	if err != nil {
		p.logger.Warn("semantic matching skipped: embedding failed", zap.Error(err))
		return 0, nil
	}

	vectors := make(map[string][]float32, len(ids))
	for i, id := range ids {
		vectors[id] = vecs[i]
	}

	clusters := graphalgo.KMeans(vectors, graphalgo.KMeansOptions{
		K:    graphalgo.SemanticK(len(matchable)),
		Seed: p.opts.Leiden.Seed,
	})

	matches := 0
	for _, ceID := range elementIDs {
		ceCluster, ok := clusters[ceID]
		if !ok {
			continue
		}
		for _, m := range matchable {
			if clusters[m] != ceCluster {
				continue
			}
			if err := p.store.AddEdge(ctx, graph.Edge{Predicate: graph.PredConnectsTo, Src: ceID, Dst: m, SubType: "semantic"}); err != nil {
				return matches, err
			}
			matches++
		}
	}
	return matches, nil
}
