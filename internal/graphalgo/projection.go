package graphalgo

import (
	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// LeidenPredicates is the edge set community detection runs over: structural
// entity attachments, semantic edges, and entity-to-entity links through
// relationship nodes.
var LeidenPredicates = []graph.Predicate{
	graph.PredHasUnit,
	graph.PredHasAttribute,
	graph.PredConnectsTo,
	graph.PredHasSourceEntity,
	graph.PredHasTargetEntity,
}

type neighbour struct {
	idx    int
	weight float64
}

// Projection is an undirected weighted view of a snapshot restricted to a
// predicate set. Node indices are assigned in ascending id order.
type Projection struct {
	ids   []string
	index map[string]int
	adj   [][]neighbour
	total float64 // sum of edge weights (each undirected edge counted once)
}

// NewProjection builds the undirected projection. An empty predicate list
// includes every edge.
func NewProjection(snap *graph.Snapshot, predicates ...graph.Predicate) *Projection {
	ids := snap.IDs()
	p := &Projection{
		ids:   ids,
		index: make(map[string]int, len(ids)),
		adj:   make([][]neighbour, len(ids)),
	}
	for i, id := range ids {
		p.index[id] = i
	}

	type pair struct{ a, b int }
	weights := make(map[pair]float64)
	for _, e := range snap.Edges(predicates...) {
		a, okA := p.index[e.Src]
		b, okB := p.index[e.Dst]
		if !okA || !okB || a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		weights[pair{a, b}] += w
	}

	for pr, w := range weights {
		p.adj[pr.a] = append(p.adj[pr.a], neighbour{idx: pr.b, weight: w})
		p.adj[pr.b] = append(p.adj[pr.b], neighbour{idx: pr.a, weight: w})
		p.total += w
	}
	for i := range p.adj {
		sortNeighbours(p.adj[i])
	}
	return p
}

func sortNeighbours(list []neighbour) {
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].idx < list[j-1].idx; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
}

// Len returns the node count.
func (p *Projection) Len() int { return len(p.ids) }

// ID returns the element id at index i.
func (p *Projection) ID(i int) string { return p.ids[i] }

// IndexOf returns the index of id and whether it is present.
func (p *Projection) IndexOf(id string) (int, bool) {
	i, ok := p.index[id]
	return i, ok
}

// Degree returns the number of projection neighbours of node i.
func (p *Projection) Degree(i int) int { return len(p.adj[i]) }

// WeightedDegree returns the sum of incident edge weights of node i.
func (p *Projection) WeightedDegree(i int) float64 {
	var sum float64
	for _, n := range p.adj[i] {
		sum += n.weight
	}
	return sum
}

// TotalWeight returns the sum of undirected edge weights.
func (p *Projection) TotalWeight() float64 { return p.total }

// Components returns the connected components as index slices, each sorted,
// largest first (ties by smallest member index).
func (p *Projection) Components() [][]int {
	visited := make([]bool, p.Len())
	var comps [][]int
	for start := 0; start < p.Len(); start++ {
		if visited[start] {
			continue
		}
		var comp []int
		stack := []int{start}
		visited[start] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)
			for _, n := range p.adj[cur] {
				if !visited[n.idx] {
					visited[n.idx] = true
					stack = append(stack, n.idx)
				}
			}
		}
		sortInts(comp)
		comps = append(comps, comp)
	}
	sortComponents(comps)
	return comps
}

func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

func sortComponents(comps [][]int) {
	for i := 1; i < len(comps); i++ {
		for j := i; j > 0 && lessComponent(comps[j], comps[j-1]); j-- {
			comps[j], comps[j-1] = comps[j-1], comps[j]
		}
	}
}

func lessComponent(a, b []int) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a[0] < b[0]
}
