package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// Config holds HNSW construction parameters.
type Config struct {
	// Dim is the embedding dimension. Required.
	Dim int

	// M is the max connections per node above layer 0 (layer 0 allows 2M).
	M int

	// EfConstruction is the candidate-list width during insertion.
	EfConstruction int

	// EfSearch is the candidate-list width during queries.
	EfSearch int

	// Seed drives level assignment; fixed seed means reproducible builds.
	Seed int64
}

// DefaultConfig returns the standard parameters.
func DefaultConfig(dim int) Config {
	return Config{Dim: dim, M: 16, EfConstruction: 200, EfSearch: 50, Seed: 42}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Dim <= 0 {
		return fault.Invalid("hnsw dimension must be positive, got %d", c.Dim)
	}
	if c.M < 2 {
		return fault.Invalid("hnsw M must be at least 2, got %d", c.M)
	}
	if c.EfConstruction < c.M {
		return fault.Invalid("hnsw efConstruction %d must be >= M %d", c.EfConstruction, c.M)
	}
	if c.EfSearch < 1 {
		return fault.Invalid("hnsw efSearch must be positive, got %d", c.EfSearch)
	}
	return nil
}

type node struct {
	id     string
	vec    []float32 // unit-normalised
	level  int
	// links[l] holds neighbour slot indices at layer l, kept similarity-sorted.
	links [][]int
}

// Index is a deterministic HNSW index with cosine similarity.
type Index struct {
	cfg       Config
	levelMult float64

	mu    sync.RWMutex
	nodes []*node
	byID  map[string]int
	entry int
	top   int
	rng   *rand.Rand
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Index{
		cfg:       cfg,
		levelMult: 1.0 / math.Log(float64(cfg.M)),
		byID:      make(map[string]int),
		entry:     -1,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Dim returns the index dimension.
func (ix *Index) Dim() int { return ix.cfg.Dim }

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Insert adds a vector under id. Re-inserting an existing id is a Conflict;
// callers rebuild the index instead of mutating it in place.
func (ix *Index) Insert(id string, vec []float32) error {
	if len(vec) != ix.cfg.Dim {
		return fault.DimensionMismatch(ix.cfg.Dim, len(vec))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.byID[id]; exists {
		return fault.Conflict("vector %s already indexed", id)
	}

	level := ix.randomLevel()
	n := &node{id: id, vec: normalize(vec), level: level, links: make([][]int, level+1)}
	slot := len(ix.nodes)
	ix.nodes = append(ix.nodes, n)
	ix.byID[id] = slot

	if ix.entry < 0 {
		ix.entry = slot
		ix.top = level
		return nil
	}

	ep := ix.entry
	// Greedy descent through layers above the new node's level.
	for l := ix.top; l > level; l-- {
		ep = ix.greedyClosest(ep, n.vec, l)
	}

	maxL := level
	if ix.top < maxL {
		maxL = ix.top
	}
	for l := maxL; l >= 0; l-- {
		candidates := ix.searchLayer(ep, n.vec, ix.cfg.EfConstruction, l)
		m := ix.maxLinks(l)
		selected := candidates
		if len(selected) > m {
			selected = selected[:m]
		}
		for _, c := range selected {
			n.links[l] = append(n.links[l], c.slot)
			ix.linkBack(c.slot, slot, l)
		}
		if len(candidates) > 0 {
			ep = candidates[0].slot
		}
	}

	if level > ix.top {
		ix.top = level
		ix.entry = slot
	}
	return nil
}

// Search returns the top-k ids by cosine similarity to vec, most similar
// first. filter, when non-nil, drops candidates before ranking.
func (ix *Index) Search(vec []float32, k int, filter func(id string) bool) ([]graph.Hit, error) {
	if len(vec) != ix.cfg.Dim {
		return nil, fault.DimensionMismatch(ix.cfg.Dim, len(vec))
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.entry < 0 {
		return nil, nil
	}

	q := normalize(vec)
	ep := ix.entry
	for l := ix.top; l > 0; l-- {
		ep = ix.greedyClosest(ep, q, l)
	}

	ef := ix.cfg.EfSearch
	if ef < k {
		ef = k
	}
	candidates := ix.searchLayer(ep, q, ef, 0)

	hits := make([]graph.Hit, 0, k)
	for _, c := range candidates {
		id := ix.nodes[c.slot].id
		if filter != nil && !filter(id) {
			continue
		}
		hits = append(hits, graph.Hit{ID: id, Score: c.sim})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// BaseLayerEdges returns the distinct undirected layer-0 pairs (a < b).
func (ix *Index) BaseLayerEdges() [][2]string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[[2]string]struct{})
	for _, n := range ix.nodes {
		if len(n.links) == 0 {
			continue
		}
		for _, other := range n.links[0] {
			a, b := n.id, ix.nodes[other].id
			if a > b {
				a, b = b, a
			}
			if a == b {
				continue
			}
			seen[[2]string{a, b}] = struct{}{}
		}
	}

	pairs := make([][2]string, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

func (ix *Index) maxLinks(layer int) int {
	if layer == 0 {
		return 2 * ix.cfg.M
	}
	return ix.cfg.M
}

func (ix *Index) randomLevel() int {
	return int(math.Floor(-math.Log(ix.rng.Float64()+1e-12) * ix.levelMult))
}

// greedyClosest walks layer l from ep towards q until no neighbour improves.
func (ix *Index) greedyClosest(ep int, q []float32, l int) int {
	best := ep
	bestSim := dot(ix.nodes[ep].vec, q)
	for {
		improved := false
		n := ix.nodes[best]
		if l < len(n.links) {
			for _, other := range n.links[l] {
				if sim := dot(ix.nodes[other].vec, q); sim > bestSim {
					best, bestSim = other, sim
					improved = true
				}
			}
		}
		if !improved {
			return best
		}
	}
}

type scored struct {
	slot int
	sim  float64
}

// candidateHeap is a max-heap on similarity; ties break on id for determinism.
type candidateHeap struct {
	items []scored
	ids   func(slot int) string
}

func (h *candidateHeap) Len() int { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool {
	if h.items[i].sim != h.items[j].sim {
		return h.items[i].sim > h.items[j].sim
	}
	return h.ids(h.items[i].slot) < h.ids(h.items[j].slot)
}
func (h *candidateHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x any)         { h.items = append(h.items, x.(scored)) }
func (h *candidateHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// searchLayer performs a best-first expansion on layer l and returns up to ef
// results, most similar first, deterministically ordered.
func (ix *Index) searchLayer(ep int, q []float32, ef, l int) []scored {
	ids := func(slot int) string { return ix.nodes[slot].id }

	visited := map[int]struct{}{ep: {}}
	frontier := &candidateHeap{ids: ids}
	heap.Init(frontier)
	heap.Push(frontier, scored{slot: ep, sim: dot(ix.nodes[ep].vec, q)})

	results := []scored{{slot: ep, sim: dot(ix.nodes[ep].vec, q)}}

	for frontier.Len() > 0 {
		cur := heap.Pop(frontier).(scored)
		if len(results) >= ef && cur.sim < results[len(results)-1].sim {
			break
		}
		n := ix.nodes[cur.slot]
		if l >= len(n.links) {
			continue
		}
		for _, other := range n.links[l] {
			if _, ok := visited[other]; ok {
				continue
			}
			visited[other] = struct{}{}
			sim := dot(ix.nodes[other].vec, q)
			if len(results) < ef || sim > results[len(results)-1].sim {
				heap.Push(frontier, scored{slot: other, sim: sim})
				results = insertSorted(results, scored{slot: other, sim: sim}, ids)
				if len(results) > ef {
					results = results[:ef]
				}
			}
		}
	}
	return results
}

func insertSorted(list []scored, item scored, ids func(int) string) []scored {
	pos := sort.Search(len(list), func(i int) bool {
		if list[i].sim != item.sim {
			return list[i].sim < item.sim
		}
		return ids(list[i].slot) > ids(item.slot)
	})
	list = append(list, scored{})
	copy(list[pos+1:], list[pos:])
	list[pos] = item
	return list
}

// linkBack adds src to dst's neighbour list on layer l, pruning to the layer
// cap by keeping the most similar links.
func (ix *Index) linkBack(dst, src, l int) {
	n := ix.nodes[dst]
	if l >= len(n.links) {
		return
	}
	n.links[l] = append(n.links[l], src)
	limit := ix.maxLinks(l)
	if len(n.links[l]) <= limit {
		return
	}
	sort.Slice(n.links[l], func(i, j int) bool {
		si := dot(ix.nodes[n.links[l][i]].vec, n.vec)
		sj := dot(ix.nodes[n.links[l][j]].vec, n.vec)
		if si != sj {
			return si > sj
		}
		return ix.nodes[n.links[l][i]].id < ix.nodes[n.links[l][j]].id
	})
	n.links[l] = n.links[l][:limit]
}

func normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		copy(out, vec)
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

var _ graph.Searcher = (*Index)(nil)
