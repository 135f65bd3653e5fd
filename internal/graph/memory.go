package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

// MemoryStore is the in-memory reference Store. One logical writer, many
// readers; every write bumps the version counter.
type MemoryStore struct {
	mu       sync.RWMutex
	version  uint64
	elements map[string]Element
	out      map[string]map[edgeKey]Edge
	in       map[string]map[edgeKey]Edge
	searcher Searcher

	// now is swappable for deterministic tests.
	now func() time.Time
}

type edgeKey struct {
	predicate Predicate
	other     string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		elements: make(map[string]Element),
		out:      make(map[string]map[edgeKey]Edge),
		in:       make(map[string]map[edgeKey]Edge),
		now:      time.Now,
	}
}

// SetSearcher attaches the vector index used by SimilaritySearch.
func (m *MemoryStore) SetSearcher(s Searcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searcher = s
}

// Version returns the current write version.
func (m *MemoryStore) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// UpsertElement is idempotent on id. Attaching an embedding to an existing
// element is an update; changing the kind is a Conflict.
func (m *MemoryStore) UpsertElement(ctx context.Context, el Element) error {
	if err := fault.FromContext(ctx); err != nil {
		return err
	}
	if el.ID == "" {
		return fault.Invalid("element id is required")
	}
	if !el.Kind.Valid() {
		return fault.Invalid("unknown element kind %q", el.Kind)
	}
	if el.Corpus == "" && el.Kind != KindCorpus {
		return fault.Invalid("element %s missing corpus", el.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.elements[el.ID]; ok {
		if existing.Kind != el.Kind {
			return fault.Conflict("element %s kind changed from %s to %s", el.ID, existing.Kind, el.Kind)
		}
		// The upsert replaces the stored record; only the original
		// creation timestamp is kept.
		el.CreatedAt = existing.CreatedAt
	} else if el.CreatedAt.IsZero() {
		el.CreatedAt = m.now()
	}

	m.elements[el.ID] = el
	m.version++
	return nil
}

// AddEdge inserts or updates an edge. Both endpoints must exist.
func (m *MemoryStore) AddEdge(ctx context.Context, edge Edge) error {
	if err := fault.FromContext(ctx); err != nil {
		return err
	}
	if edge.Src == "" || edge.Dst == "" {
		return fault.Invalid("edge endpoints are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.elements[edge.Src]; !ok {
		return fault.NotFound("edge source %s", edge.Src)
	}
	if _, ok := m.elements[edge.Dst]; !ok {
		return fault.NotFound("edge target %s", edge.Dst)
	}
	if edge.Weight == 0 {
		edge.Weight = 1
	}

	key := edgeKey{predicate: edge.Predicate, other: edge.Dst}
	if m.out[edge.Src] == nil {
		m.out[edge.Src] = make(map[edgeKey]Edge)
	}
	if existing, ok := m.out[edge.Src][key]; ok && edge.Predicate.Accumulating() {
		edge.Weight += existing.Weight
	}
	m.out[edge.Src][key] = edge

	inKey := edgeKey{predicate: edge.Predicate, other: edge.Src}
	if m.in[edge.Dst] == nil {
		m.in[edge.Dst] = make(map[edgeKey]Edge)
	}
	m.in[edge.Dst][inKey] = edge

	m.version++
	return nil
}

// Get returns the element or nil when absent.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Element, error) {
	if err := fault.FromContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	el, ok := m.elements[id]
	if !ok {
		return nil, nil
	}
	return &el, nil
}

// Neighbours returns adjacent ids in ascending order.
func (m *MemoryStore) Neighbours(ctx context.Context, id string, predicates ...Predicate) ([]string, error) {
	if err := fault.FromContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.elements[id]; !ok {
		return nil, fault.NotFound("element %s", id)
	}

	want := func(p Predicate) bool {
		if len(predicates) == 0 {
			return true
		}
		for _, q := range predicates {
			if p == q {
				return true
			}
		}
		return false
	}

	seen := make(map[string]struct{})
	for key := range m.out[id] {
		if want(key.predicate) {
			seen[key.other] = struct{}{}
		}
	}
	for key := range m.in[id] {
		if want(key.predicate) {
			seen[key.other] = struct{}{}
		}
	}
	delete(seen, id)

	ids := make([]string, 0, len(seen))
	for n := range seen {
		ids = append(ids, n)
	}
	sort.Strings(ids)
	return ids, nil
}

// QueryByKind returns matching elements ordered by id.
func (m *MemoryStore) QueryByKind(ctx context.Context, kind Kind, filters Filters, limit int) ([]Element, error) {
	if err := fault.FromContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members map[string]struct{}
	if filters.Community != "" {
		members = make(map[string]struct{})
		for src, edges := range m.out {
			for key := range edges {
				if key.predicate == PredInCommunity && key.other == filters.Community {
					members[src] = struct{}{}
				}
			}
		}
	}

	ids := make([]string, 0, len(m.elements))
	for id := range m.elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Element
	for _, id := range ids {
		el := m.elements[id]
		if el.Kind != kind {
			continue
		}
		if !matchFilters(&el, filters, members) {
			continue
		}
		out = append(out, el)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchFilters(el *Element, f Filters, communityMembers map[string]struct{}) bool {
	if !f.CreatedAfter.IsZero() && el.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && el.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	if f.LabelContains != "" && !strings.Contains(strings.ToLower(el.Label), strings.ToLower(f.LabelContains)) {
		return false
	}
	if f.HasEmbedding != nil && (len(el.Embedding) > 0) != *f.HasEmbedding {
		return false
	}
	if f.Corpus != "" && el.Corpus != f.Corpus {
		return false
	}
	if communityMembers != nil {
		if _, ok := communityMembers[el.ID]; !ok {
			return false
		}
	}
	return true
}

// SimilaritySearch delegates to the attached Searcher, filtering hits to the
// candidate kinds.
func (m *MemoryStore) SimilaritySearch(ctx context.Context, vector []float32, k int, kinds []Kind, filters Filters) ([]Hit, error) {
	if err := fault.FromContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	searcher := m.searcher
	m.mu.RUnlock()

	if searcher == nil {
		return nil, fault.Unavailable(nil, "no vector index attached")
	}

	kindSet := make(map[Kind]struct{}, len(kinds))
	for _, kd := range kinds {
		kindSet[kd] = struct{}{}
	}

	filter := func(id string) bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		el, ok := m.elements[id]
		if !ok {
			return false
		}
		if len(kindSet) > 0 {
			if _, ok := kindSet[el.Kind]; !ok {
				return false
			}
		}
		return matchFilters(&el, filters, nil)
	}

	return searcher.Search(vector, k, filter)
}

// CorpusHealth reports counts, embedding coverage, average degree and the
// largest connected component for one corpus.
func (m *MemoryStore) CorpusHealth(ctx context.Context, corpus string) (*HealthReport, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{Counts: make(map[Kind]int)}
	var embeddable, embedded, degreeSum int
	ids := make([]string, 0, snap.Len())
	for _, id := range snap.IDs() {
		el := snap.Get(id)
		if corpus != "" && el.Corpus != corpus {
			continue
		}
		ids = append(ids, id)
		report.Counts[el.Kind]++
		if el.Kind.Embeddable() {
			embeddable++
			if len(el.Embedding) > 0 {
				embedded++
			}
		}
		degreeSum += snap.Degree(id)
	}
	if embeddable > 0 {
		report.EmbeddingCoverage = float64(embedded) / float64(embeddable)
	}
	if len(ids) > 0 {
		report.AvgDegree = float64(degreeSum) / float64(len(ids))
	}
	report.LargestComponentSize = largestComponent(snap, ids)
	return report, nil
}

func largestComponent(snap *Snapshot, ids []string) int {
	inScope := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inScope[id] = struct{}{}
	}
	visited := make(map[string]struct{}, len(ids))
	best := 0
	for _, id := range ids {
		if _, done := visited[id]; done {
			continue
		}
		size := 0
		stack := []string{id}
		visited[id] = struct{}{}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			for _, n := range snap.Neighbours(cur) {
				if _, ok := inScope[n]; !ok {
					continue
				}
				if _, done := visited[n]; !done {
					visited[n] = struct{}{}
					stack = append(stack, n)
				}
			}
		}
		if size > best {
			best = size
		}
	}
	return best
}

// Snapshot captures a copy-on-read view at the current version.
func (m *MemoryStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := fault.FromContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{
		version:  m.version,
		elements: make(map[string]Element, len(m.elements)),
		out:      make(map[string][]Edge, len(m.out)),
		in:       make(map[string][]Edge, len(m.in)),
	}
	for id, el := range m.elements {
		snap.elements[id] = el
	}
	for src, edges := range m.out {
		for _, e := range edges {
			snap.out[src] = append(snap.out[src], e)
		}
	}
	for dst, edges := range m.in {
		for _, e := range edges {
			snap.in[dst] = append(snap.in[dst], e)
		}
	}
	return snap, nil
}

var _ Store = (*MemoryStore)(nil)
