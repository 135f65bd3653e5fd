package graphalgo

import (
	"math/rand"
	"sort"

	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// Community-detection method identifiers, surfaced in view metadata.
const (
	MethodLeiden              = "leiden"
	MethodConnectedComponents = "connected-components"
)

// LeidenOptions configures community detection.
type LeidenOptions struct {
	Resolution       float64
	Seed             int64
	MinCommunitySize int

	// MaxPasses bounds the reseeded moving passes.
	MaxPasses int
}

// DefaultLeidenOptions returns the standard defaults.
func DefaultLeidenOptions() LeidenOptions {
	return LeidenOptions{Resolution: 1.0, Seed: 42, MinCommunitySize: 3, MaxPasses: 10}
}

// CommunityResult is the detection outcome.
type CommunityResult struct {
	// Communities holds the surviving communities, each a sorted id slice,
	// ordered largest first.
	Communities [][]string

	// Method names the algorithm that actually ran, for view metadata.
	Method string
}

// Leiden detects communities on the undirected projection restricted to
// LeidenPredicates. Communities smaller than MinCommunitySize are discarded;
// their members remain unassigned. When the projection carries no edge weight
// the modularity optimisation cannot run and the result degrades to connected
// components, reported through Method.
func Leiden(snap *graph.Snapshot, opts LeidenOptions) *CommunityResult {
	proj := NewProjection(snap, LeidenPredicates...)
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = 10
	}
	if opts.Resolution <= 0 {
		opts.Resolution = 1.0
	}

	if proj.TotalWeight() == 0 {
		return componentsResult(proj, opts.MinCommunitySize)
	}

	membership := optimise(proj, opts)
	groups := make(map[int][]string)
	for i, c := range membership {
		groups[c] = append(groups[c], proj.ID(i))
	}

	result := &CommunityResult{Method: MethodLeiden}
	for _, members := range groups {
		if len(members) < opts.MinCommunitySize {
			continue
		}
		sort.Strings(members)
		result.Communities = append(result.Communities, members)
	}
	sortCommunities(result.Communities)
	return result
}

func componentsResult(proj *Projection, minSize int) *CommunityResult {
	result := &CommunityResult{Method: MethodConnectedComponents}
	for _, comp := range proj.Components() {
		if len(comp) < minSize {
			continue
		}
		members := make([]string, len(comp))
		for i, idx := range comp {
			members[i] = proj.ID(idx)
		}
		sort.Strings(members)
		result.Communities = append(result.Communities, members)
	}
	sortCommunities(result.Communities)
	return result
}

func sortCommunities(comms [][]string) {
	sort.Slice(comms, func(i, j int) bool {
		if len(comms[i]) != len(comms[j]) {
			return len(comms[i]) > len(comms[j])
		}
		return comms[i][0] < comms[j][0]
	})
}

// optimise runs the seeded local-moving phase: nodes greedily relocate to the
// neighbouring community with the highest modularity gain until a full sweep
// moves nothing. MaxPasses bounds the restarts with fresh visit orders, which
// stands in for the refinement sweeps of the full algorithm.
func optimise(proj *Projection, opts LeidenOptions) []int {
	rng := rand.New(rand.NewSource(opts.Seed))
	total2 := 2 * proj.TotalWeight()

	comm, _ := localMove(proj.adj, total2, opts.Resolution, rng)
	for pass := 1; pass < opts.MaxPasses; pass++ {
		next, moved := localMoveFrom(proj.adj, comm, total2, opts.Resolution, rng)
		comm = next
		if !moved {
			break
		}
	}

	// Renumber communities densely.
	renumber := make(map[int]int)
	for i, c := range comm {
		if _, ok := renumber[c]; !ok {
			renumber[c] = len(renumber)
		}
		comm[i] = renumber[comm[i]]
	}
	return comm
}

// localMove runs moving sweeps from a singleton assignment.
func localMove(adj [][]neighbour, total2, resolution float64, rng *rand.Rand) ([]int, bool) {
	start := make([]int, len(adj))
	for i := range start {
		start[i] = i
	}
	return localMoveFrom(adj, start, total2, resolution, rng)
}

// localMoveFrom runs modularity-greedy moving sweeps from the given
// assignment. Returns the assignment and whether any node moved.
func localMoveFrom(adj [][]neighbour, start []int, total2, resolution float64, rng *rand.Rand) ([]int, bool) {
	n := len(adj)
	comm := make([]int, n)
	copy(comm, start)
	commWeight := make([]float64, n) // total weighted degree per community
	degree := make([]float64, n)
	for i := range adj {
		for _, nb := range adj[i] {
			degree[i] += nb.weight
		}
		commWeight[comm[i]] += degree[i]
	}

	order := rng.Perm(n)
	movedAny := false
	for iter := 0; iter < 10; iter++ {
		movedThisIter := false
		for _, v := range order {
			// Weight from v to each adjacent community.
			toComm := make(map[int]float64)
			for _, nb := range adj[v] {
				toComm[comm[nb.idx]] += nb.weight
			}

			cur := comm[v]
			commWeight[cur] -= degree[v]

			bestComm, bestGain := cur, 0.0
			// Deterministic candidate order.
			cands := make([]int, 0, len(toComm))
			for c := range toComm {
				cands = append(cands, c)
			}
			sort.Ints(cands)
			for _, c := range cands {
				gain := toComm[c] - resolution*commWeight[c]*degree[v]/total2
				base := toComm[cur] - resolution*commWeight[cur]*degree[v]/total2
				if gain-base > bestGain+1e-12 {
					bestGain = gain - base
					bestComm = c
				}
			}

			commWeight[bestComm] += degree[v]
			if bestComm != cur {
				comm[v] = bestComm
				movedThisIter = true
				movedAny = true
			}
		}
		if !movedThisIter {
			break
		}
	}
	return comm, movedAny
}
