package search

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// Retrieve filters the union of entry points and cross nodes down to
// retrievable content: retrievable kinds only (Overview attributes excluded),
// non-empty content, and for cross nodes a score at or above the threshold
// (entry points are kept whatever their score). Items order by score
// descending, ties by id. maxTokens bounds the cumulative content size
// (four characters per token); zero means unbounded.
func Retrieve(ctx context.Context, store graph.Store, entries []EntryPoint, cross []CrossNode, scoreThreshold float64, maxTokens int) ([]Item, error) {
	type candidate struct {
		id     string
		origin Origin
		score  float64
	}

	var candidates []candidate
	seen := make(map[string]struct{})
	for _, ep := range entries {
		if _, ok := seen[ep.ID]; ok {
			continue
		}
		seen[ep.ID] = struct{}{}
		candidates = append(candidates, candidate{id: ep.ID, origin: ep.Origin, score: ep.Score})
	}
	for _, cn := range cross {
		if _, ok := seen[cn.ID]; ok {
			continue
		}
		seen[cn.ID] = struct{}{}
		candidates = append(candidates, candidate{id: cn.ID, origin: OriginCross, score: cn.Score})
	}

	var items []Item
	for _, c := range candidates {
		el, err := store.Get(ctx, c.id)
		if err != nil {
			return nil, err
		}
		if el == nil || !el.IsRetrievable() || el.Content == "" {
			continue
		}
		if scoreThreshold > 0 && c.origin == OriginCross && c.score < scoreThreshold {
			continue
		}
		items = append(items, Item{
			ID:            el.ID,
			Kind:          el.Kind,
			Label:         el.Label,
			Content:       el.Content,
			ContentLength: len(el.Content),
			Origin:        c.origin,
			Score:         c.score,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})

	if maxTokens > 0 {
		used := 0
		for i, item := range items {
			tokens := (item.ContentLength + 3) / 4
			if used+tokens > maxTokens {
				items = items[:i]
				break
			}
			used += tokens
		}
	}
	return items, nil
}

// Run executes the full retrieval pipeline for one query: dual entry-point
// identification, shallow PPR traversal, and the retrieval filter.
func (d *Dual) Run(ctx context.Context, query string, traversal TraversalOptions, maxTokens int) ([]Item, error) {
	entries, err := d.EntryPoints(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	cross, _, err := Traverse(ctx, d.store, entries, traversal)
	if err != nil {
		return nil, err
	}
	return Retrieve(ctx, d.store, entries, cross, d.cfg.ScoreThreshold, maxTokens)
}
