package graph

import (
	"sort"
)

// Snapshot is an immutable copy of the graph at one write version. All
// algorithm runs consume snapshots; they never observe later writes.
type Snapshot struct {
	version  uint64
	elements map[string]Element
	out      map[string][]Edge
	in       map[string][]Edge
}

// Version returns the write version the snapshot was captured at.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of elements.
func (s *Snapshot) Len() int { return len(s.elements) }

// Get returns the element or nil.
func (s *Snapshot) Get(id string) *Element {
	el, ok := s.elements[id]
	if !ok {
		return nil
	}
	return &el
}

// IDs returns all element ids in ascending order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.elements))
	for id := range s.elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ElementsOfKind returns elements of one kind ordered by id.
func (s *Snapshot) ElementsOfKind(kind Kind) []Element {
	var out []Element
	for _, id := range s.IDs() {
		if el := s.elements[id]; el.Kind == kind {
			out = append(out, el)
		}
	}
	return out
}

// OutEdges returns outgoing edges of id, optionally predicate-restricted,
// ordered by (predicate, dst).
func (s *Snapshot) OutEdges(id string, predicates ...Predicate) []Edge {
	return filterEdges(s.out[id], predicates)
}

// InEdges returns incoming edges of id, optionally predicate-restricted.
func (s *Snapshot) InEdges(id string, predicates ...Predicate) []Edge {
	return filterEdges(s.in[id], predicates)
}

// Neighbours returns the distinct adjacent ids of id over both directions,
// optionally predicate-restricted, in ascending order.
func (s *Snapshot) Neighbours(id string, predicates ...Predicate) []string {
	seen := make(map[string]struct{})
	for _, e := range s.OutEdges(id, predicates...) {
		seen[e.Dst] = struct{}{}
	}
	for _, e := range s.InEdges(id, predicates...) {
		seen[e.Src] = struct{}{}
	}
	delete(seen, id)
	ids := make([]string, 0, len(seen))
	for n := range seen {
		ids = append(ids, n)
	}
	sort.Strings(ids)
	return ids
}

// Degree returns the number of distinct neighbours of id.
func (s *Snapshot) Degree(id string) int {
	return len(s.Neighbours(id))
}

// Edges yields every edge in the snapshot, ordered by (src, predicate, dst).
func (s *Snapshot) Edges(predicates ...Predicate) []Edge {
	srcs := make([]string, 0, len(s.out))
	for src := range s.out {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)

	var all []Edge
	for _, src := range srcs {
		all = append(all, filterEdges(s.out[src], predicates)...)
	}
	return all
}

func filterEdges(edges []Edge, predicates []Predicate) []Edge {
	if len(predicates) == 0 {
		out := make([]Edge, len(edges))
		copy(out, edges)
		sortEdges(out)
		return out
	}
	want := make(map[Predicate]struct{}, len(predicates))
	for _, p := range predicates {
		want[p] = struct{}{}
	}
	var out []Edge
	for _, e := range edges {
		if _, ok := want[e.Predicate]; ok {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		if edges[i].Predicate != edges[j].Predicate {
			return edges[i].Predicate < edges[j].Predicate
		}
		return edges[i].Dst < edges[j].Dst
	})
}
