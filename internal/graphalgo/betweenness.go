package graphalgo

import (
	"math"
	"math/rand"
	"sort"

	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// BetweennessOptions configures the sampled approximation.
type BetweennessOptions struct {
	// Samples is the number of source-target pairs to evaluate.
	Samples int

	// Seed drives pair selection.
	Seed int64
}

// DefaultBetweennessOptions returns the standard defaults.
func DefaultBetweennessOptions() BetweennessOptions {
	return BetweennessOptions{Samples: 10, Seed: 42}
}

// BetweennessResult holds sampled centrality scores.
type BetweennessResult struct {
	// Scores maps node id to accumulated pair dependency.
	Scores map[string]float64

	// Threshold is avg(b)·max(1, ⌊log10|V|⌋).
	Threshold float64

	// Important are the entity ids whose score exceeds the threshold,
	// alphabetical.
	Important []string
}

// SampledBetweenness approximates betweenness centrality over the full
// undirected projection using randomly sampled source-target pairs.
func SampledBetweenness(snap *graph.Snapshot, opts BetweennessOptions) *BetweennessResult {
	proj := NewProjection(snap)
	result := &BetweennessResult{Scores: make(map[string]float64)}
	n := proj.Len()
	if n < 3 || opts.Samples <= 0 {
		return result
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	scores := make([]float64, n)
	for s := 0; s < opts.Samples; s++ {
		src := rng.Intn(n)
		dst := rng.Intn(n)
		if src == dst {
			continue
		}
		accumulatePairDependency(proj, src, dst, scores)
	}

	var sum float64
	for i, b := range scores {
		result.Scores[proj.ID(i)] = b
		sum += b
	}
	avg := sum / float64(n)
	scale := math.Floor(math.Log10(float64(n)))
	if scale < 1 {
		scale = 1
	}
	result.Threshold = avg * scale

	for i, b := range scores {
		id := proj.ID(i)
		el := snap.Get(id)
		if el == nil || el.Kind != graph.KindEntity {
			continue
		}
		if b > result.Threshold {
			result.Important = append(result.Important, id)
		}
	}
	sort.Strings(result.Important)
	return result
}

// accumulatePairDependency adds the fraction of shortest src→dst paths
// passing through each interior node (Brandes pair dependency).
func accumulatePairDependency(p *Projection, src, dst int, scores []float64) {
	n := p.Len()
	dist := make([]int, n)
	sigma := make([]float64, n)
	preds := make([][]int, n)
	for i := range dist {
		dist[i] = -1
	}
	dist[src] = 0
	sigma[src] = 1

	queue := []int{src}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, nb := range p.adj[v] {
			w := nb.idx
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				preds[w] = append(preds[w], v)
			}
		}
	}

	if dist[dst] < 0 || sigma[dst] == 0 {
		return
	}

	// Walk back from dst distributing the pair dependency across
	// predecessors proportional to path counts.
	delta := make([]float64, n)
	delta[dst] = 1
	order := make([]int, 0, n)
	seen := make([]bool, n)
	stack := []int{dst}
	seen[dst] = true
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, v)
		for _, pr := range preds[v] {
			if !seen[pr] {
				seen[pr] = true
				stack = append(stack, pr)
			}
		}
	}
	sort.Slice(order, func(i, j int) bool { return dist[order[i]] > dist[order[j]] })

	for _, v := range order {
		for _, pr := range preds[v] {
			delta[pr] += sigma[pr] / sigma[v] * delta[v]
		}
		if v != src && v != dst {
			scores[v] += delta[v]
		}
	}
}
