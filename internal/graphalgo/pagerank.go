package graphalgo

import (
	"math"
	"sort"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// PageRankOptions configures personalized PageRank.
type PageRankOptions struct {
	// Alpha is the teleport probability back to the seed distribution.
	Alpha float64

	// Iterations bounds the power iteration.
	Iterations int

	// Convergence is the L1 early-exit tolerance.
	Convergence float64
}

// ShallowPageRankOptions bounds diffusion to near neighbours.
func ShallowPageRankOptions() PageRankOptions {
	return PageRankOptions{Alpha: 0.5, Iterations: 2, Convergence: 1e-6}
}

// DeepPageRankOptions diffuses mass further for wide exploration.
func DeepPageRankOptions() PageRankOptions {
	return PageRankOptions{Alpha: 0.15, Iterations: 10, Convergence: 1e-6}
}

// PersonalizedPageRank diffuses uniform seed mass over the directed graph.
// Transitions are row-normalised per source over all predicates, with
// connectsTo edge weights respected; dangling mass returns to the seeds.
func PersonalizedPageRank(snap *graph.Snapshot, seeds []string, opts PageRankOptions) (map[string]float64, error) {
	if len(seeds) == 0 {
		return nil, fault.Invalid("pagerank requires at least one seed")
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		return nil, fault.Invalid("pagerank alpha must be in (0,1), got %g", opts.Alpha)
	}
	if opts.Iterations < 1 {
		return nil, fault.Invalid("pagerank iterations must be positive, got %d", opts.Iterations)
	}

	ids := snap.IDs()
	n := len(ids)
	if n == 0 {
		return map[string]float64{}, nil
	}
	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	// Row-normalised transitions: structural edges follow their direction;
	// connectsTo edges are symmetric, so incoming ones also contribute.
	type arc struct {
		dst    int
		weight float64
	}
	out := make([][]arc, n)
	for i, id := range ids {
		type hop struct {
			dst string
			w   float64
		}
		var hops []hop
		for _, e := range snap.OutEdges(id) {
			w := e.Weight
			if w <= 0 {
				w = 1
			}
			hops = append(hops, hop{dst: e.Dst, w: w})
		}
		for _, e := range snap.InEdges(id, graph.PredConnectsTo) {
			w := e.Weight
			if w <= 0 {
				w = 1
			}
			hops = append(hops, hop{dst: e.Src, w: w})
		}

		var rowSum float64
		for _, h := range hops {
			rowSum += h.w
		}
		if rowSum == 0 {
			continue
		}
		for _, h := range hops {
			j, ok := index[h.dst]
			if !ok {
				continue
			}
			out[i] = append(out[i], arc{dst: j, weight: h.w / rowSum})
		}
	}

	restart := make([]float64, n)
	seedMass := 1.0 / float64(len(seeds))
	for _, s := range seeds {
		i, ok := index[s]
		if !ok {
			return nil, fault.NotFound("pagerank seed %s", s)
		}
		restart[i] += seedMass
	}

	pi := make([]float64, n)
	copy(pi, restart)
	next := make([]float64, n)

	for iter := 0; iter < opts.Iterations; iter++ {
		var dangling float64
		for i := range next {
			next[i] = 0
		}
		for i, mass := range pi {
			if mass == 0 {
				continue
			}
			if len(out[i]) == 0 {
				dangling += mass
				continue
			}
			for _, a := range out[i] {
				next[a.dst] += mass * a.weight
			}
		}

		var delta float64
		for i := range next {
			v := opts.Alpha*restart[i] + (1-opts.Alpha)*(next[i]+dangling*restart[i])
			delta += math.Abs(v - pi[i])
			next[i] = v
		}
		pi, next = next, pi

		if opts.Convergence > 0 && delta < opts.Convergence {
			break
		}
	}

	scores := make(map[string]float64, n)
	for i, id := range ids {
		scores[id] = pi[i]
	}
	return scores, nil
}

// TopKPerKind selects the k highest-scoring node ids of each kind, excluding
// the given set. Ties break by id ascending.
func TopKPerKind(snap *graph.Snapshot, scores map[string]float64, k int, exclude map[string]struct{}, kinds ...graph.Kind) map[graph.Kind][]string {
	byKind := make(map[graph.Kind][]string)
	for _, kind := range kinds {
		var ids []string
		for _, el := range snap.ElementsOfKind(kind) {
			if _, skip := exclude[el.ID]; skip {
				continue
			}
			if scores[el.ID] > 0 {
				ids = append(ids, el.ID)
			}
		}
		sort.Slice(ids, func(i, j int) bool {
			if scores[ids[i]] != scores[ids[j]] {
				return scores[ids[i]] > scores[ids[j]]
			}
			return ids[i] < ids[j]
		})
		if len(ids) > k {
			ids = ids[:k]
		}
		if len(ids) > 0 {
			byKind[kind] = ids
		}
	}
	return byKind
}
