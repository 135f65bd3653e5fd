package search

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/graphalgo"
)

// crossKinds are the node kinds the traversal selects per-kind winners from.
var crossKinds = []graph.Kind{
	graph.KindEntity,
	graph.KindUnit,
	graph.KindAttribute,
	graph.KindRelationship,
	graph.KindCommunityElement,
	graph.KindTextElement,
}

// TraversalOptions configures the shallow PPR expansion.
type TraversalOptions struct {
	// PageRank parameterises the diffusion; shallow defaults bound it to
	// near neighbours.
	PageRank graphalgo.PageRankOptions

	// TopKPerKind caps winners per node kind.
	TopKPerKind int
}

// DefaultTraversalOptions returns the standard shallow-diffusion defaults.
func DefaultTraversalOptions() TraversalOptions {
	return TraversalOptions{
		PageRank:    graphalgo.ShallowPageRankOptions(),
		TopKPerKind: 5,
	}
}

// Traverse diffuses mass from the entry points and returns the cross nodes:
// the per-kind top scorers excluding the seeds themselves. The PPR score map
// is returned alongside for downstream ranking.
func Traverse(ctx context.Context, store graph.Store, entries []EntryPoint, opts TraversalOptions) ([]CrossNode, map[string]float64, error) {
	if len(entries) == 0 {
		return nil, nil, fault.Invalid("traversal requires entry points")
	}
	if opts.TopKPerKind < 1 {
		opts.TopKPerKind = 5
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	seeds := make([]string, 0, len(entries))
	exclude := make(map[string]struct{}, len(entries))
	for _, ep := range entries {
		if _, ok := exclude[ep.ID]; ok {
			continue
		}
		exclude[ep.ID] = struct{}{}
		seeds = append(seeds, ep.ID)
	}
	sort.Strings(seeds)

	scores, err := graphalgo.PersonalizedPageRank(snap, seeds, opts.PageRank)
	if err != nil {
		return nil, nil, err
	}

	perKind := graphalgo.TopKPerKind(snap, scores, opts.TopKPerKind, exclude, crossKinds...)

	var cross []CrossNode
	for _, kind := range crossKinds {
		for _, id := range perKind[kind] {
			cross = append(cross, CrossNode{ID: id, Kind: kind, Score: scores[id]})
		}
	}
	sort.Slice(cross, func(i, j int) bool {
		if cross[i].Score != cross[j].Score {
			return cross[i].Score > cross[j].Score
		}
		return cross[i].ID < cross[j].ID
	})
	return cross, scores, nil
}
