package zpt

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/search"
)

const instrumentationName = "github.com/fyrsmithlabs/corpusd/internal/zpt"

// Selected is one chosen element with its blended score.
type Selected struct {
	Element graph.Element
	Score   float64

	degree int
}

// Selection is the selector output.
type Selection struct {
	Items []Selected

	// Warnings names strategies that degraded.
	Warnings []string

	// GraphVersion is the snapshot version the selection saw.
	GraphVersion uint64
}

// SelectorConfig bounds the selector.
type SelectorConfig struct {
	// Corpus restricts candidates to one namespace.
	Corpus string

	// StoreConcurrency caps concurrent graph-store reads per request.
	StoreConcurrency int

	// Traversal parameterises the graph strategy.
	Traversal search.TraversalOptions
}

// DefaultSelectorConfig returns the standard defaults.
func DefaultSelectorConfig(corpus string) SelectorConfig {
	return SelectorConfig{
		Corpus:           corpus,
		StoreConcurrency: 3,
		Traversal:        search.DefaultTraversalOptions(),
	}
}

// Selector runs the four ranking strategies in parallel and blends them with
// the zoom weight table.
type Selector struct {
	store    graph.Store
	embedder embeddings.Service
	dual     *search.Dual // optional; graph strategy degrades without it
	cfg      SelectorConfig
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewSelector creates a selector. dual may be nil; the graph strategy then
// reports itself degraded whenever a query is present.
func NewSelector(store graph.Store, embedder embeddings.Service, dual *search.Dual, cfg SelectorConfig, logger *zap.Logger) (*Selector, error) {
	if store == nil {
		return nil, fault.Invalid("graph store is required")
	}
	if embedder == nil {
		return nil, fault.Invalid("embedding service is required")
	}
	if cfg.StoreConcurrency < 1 {
		cfg.StoreConcurrency = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		store:    store,
		embedder: embedder,
		dual:     dual,
		cfg:      cfg,
		logger:   logger.Named("selector"),
		tracer:   otel.Tracer(instrumentationName),
	}, nil
}

// Select gathers candidates for the request's zoom and pan, scores them with
// the four strategies, and returns the capped, deterministically ordered
// selection.
func (s *Selector) Select(ctx context.Context, req Request) (*Selection, error) {
	ctx, span := s.tracer.Start(ctx, "zpt.select")
	defer span.End()
	span.SetAttributes(
		attribute.String("zoom", string(req.Zoom)),
		attribute.String("tilt", string(req.Tilt)),
	)

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := s.gatherCandidates(ctx, snap, req)
	if err != nil {
		return nil, err
	}
	selection := &Selection{GraphVersion: snap.Version()}
	if len(candidates) == 0 {
		return selection, nil
	}

	scores, warnings, err := s.runStrategies(ctx, snap, req, candidates)
	if err != nil {
		return nil, err
	}
	selection.Warnings = warnings

	blended := blend(candidates, scores, weightTable[req.Zoom], req.Tilt)

	sort.Slice(blended, func(i, j int) bool {
		if blended[i].Score != blended[j].Score {
			return blended[i].Score > blended[j].Score
		}
		if blended[i].degree != blended[j].degree {
			return blended[i].degree > blended[j].degree
		}
		return blended[i].Element.ID < blended[j].Element.ID
	})

	limit := req.Zoom.Cap()
	if len(blended) > limit {
		blended = blended[:limit]
	}

	if req.Zoom.expands() {
		blended = s.expandEntities(snap, blended, limit)
	}

	selection.Items = blended
	span.SetAttributes(attribute.Int("selected", len(blended)))
	return selection, nil
}

// gatherCandidates loads zoom-kind elements passing the pan filters.
func (s *Selector) gatherCandidates(ctx context.Context, snap *graph.Snapshot, req Request) ([]Selected, error) {
	filters := graph.Filters{Corpus: s.cfg.Corpus}
	if req.Pan.Temporal != nil {
		filters.CreatedAfter = req.Pan.Temporal.Start
		filters.CreatedBefore = req.Pan.Temporal.End
	}

	entityIDs, err := s.resolvePanEntities(ctx, req.Pan.Entities)
	if err != nil {
		return nil, err
	}

	var out []Selected
	for _, kind := range req.Zoom.Kinds() {
		els, err := s.store.QueryByKind(ctx, kind, filters, 0)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			if req.Zoom.overviewOnly() && el.Kind == graph.KindAttribute && el.SubType != graph.SubTypeOverview {
				continue
			}
			if !matchesPan(snap, &el, req.Pan, entityIDs) {
				continue
			}
			out = append(out, Selected{Element: el, degree: snap.Degree(el.ID)})
		}
	}
	return out, nil
}

// resolvePanEntities maps pan entity references (ids or names) to ids.
func (s *Selector) resolvePanEntities(ctx context.Context, refs []string) (map[string]struct{}, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if el, err := s.store.Get(ctx, ref); err != nil {
			return nil, err
		} else if el != nil {
			out[el.ID] = struct{}{}
			continue
		}
		// Not an id: match entity labels.
		matches, err := s.store.QueryByKind(ctx, graph.KindEntity, graph.Filters{Corpus: s.cfg.Corpus, LabelContains: ref}, 0)
		if err != nil {
			return nil, err
		}
		for _, el := range matches {
			if strings.EqualFold(strings.TrimSpace(el.Label), strings.TrimSpace(ref)) {
				out[el.ID] = struct{}{}
			}
		}
	}
	return out, nil
}

// matchesPan applies the ANDed pan filters to one candidate.
func matchesPan(snap *graph.Snapshot, el *graph.Element, pan Pan, entityIDs map[string]struct{}) bool {
	if len(pan.Domains) > 0 {
		matched := false
		label := strings.ToLower(el.Label)
		for _, d := range pan.Domains {
			if d != "" && strings.Contains(label, strings.ToLower(d)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(pan.Keywords) > 0 {
		haystack := strings.ToLower(el.Label + " " + el.Content)
		matched := false
		for _, kw := range pan.Keywords {
			if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(entityIDs) > 0 {
		if _, ok := entityIDs[el.ID]; !ok {
			connected := false
			for _, nb := range snap.Neighbours(el.ID) {
				if _, ok := entityIDs[nb]; ok {
					connected = true
					break
				}
			}
			if !connected {
				return false
			}
		}
	}
	return true
}

// strategyResult is one strategy's normalised score map or its failure.
type strategyResult struct {
	name   string
	scores map[string]float64
	err    error
}

// runStrategies executes the four strategies in parallel under the
// store-concurrency semaphore. A failed strategy degrades to a warning as
// long as any other succeeded; all four failing is Unavailable.
func (s *Selector) runStrategies(ctx context.Context, snap *graph.Snapshot, req Request, candidates []Selected) (map[string]map[string]float64, []string, error) {
	sem := semaphore.NewWeighted(int64(s.cfg.StoreConcurrency))
	results := make([]strategyResult, 4)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	run := func(slot int, name string, fn func(ctx context.Context) (map[string]float64, error)) {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				mu.Lock()
				results[slot] = strategyResult{name: name, err: fault.FromContext(gctx)}
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			scores, err := fn(gctx)
			mu.Lock()
			results[slot] = strategyResult{name: name, scores: scores, err: err}
			mu.Unlock()
			return nil
		})
	}

	run(0, "embedding", func(ctx context.Context) (map[string]float64, error) {
		return s.embeddingStrategy(ctx, req.Query, candidates)
	})
	run(1, "keyword", func(ctx context.Context) (map[string]float64, error) {
		return keywordStrategy(req.Query, candidates), nil
	})
	run(2, "graph", func(ctx context.Context) (map[string]float64, error) {
		return s.graphStrategy(ctx, req.Query, candidates)
	})
	run(3, "temporal", func(ctx context.Context) (map[string]float64, error) {
		return temporalStrategy(candidates), nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := fault.FromContext(ctx); err != nil {
		return nil, nil, err
	}

	scores := make(map[string]map[string]float64, 4)
	var warnings []string
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			warnings = append(warnings, r.name+" strategy degraded: "+r.err.Error())
			s.logger.Warn("selection strategy degraded",
				zap.String("strategy", r.name),
				zap.Error(r.err),
			)
			continue
		}
		scores[r.name] = r.scores
	}
	if failures == len(results) {
		return nil, warnings, fault.Unavailable(nil, "all selection strategies failed")
	}
	sort.Strings(warnings)
	return scores, warnings, nil
}

// embeddingStrategy scores candidates by cosine similarity to the query.
func (s *Selector) embeddingStrategy(ctx context.Context, query string, candidates []Selected) (map[string]float64, error) {
	if query == "" {
		return nil, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, c := range candidates {
		if len(c.Element.Embedding) != len(vec) {
			continue
		}
		if sim := cosine(vec, c.Element.Embedding); sim > 0 {
			scores[c.Element.ID] = sim
		}
	}
	return scores, nil
}

// keywordStrategy scores candidates by query-term overlap.
func keywordStrategy(query string, candidates []Selected) map[string]float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, c := range candidates {
		haystack := strings.ToLower(c.Element.Label + " " + c.Element.Content)
		matched := 0
		for term := range terms {
			if containsWord(haystack, term) {
				matched++
			}
		}
		if matched > 0 {
			scores[c.Element.ID] = float64(matched) / float64(len(terms))
		}
	}
	return scores
}

// graphStrategy reuses dual search plus shallow PPR for structural scores.
func (s *Selector) graphStrategy(ctx context.Context, query string, candidates []Selected) (map[string]float64, error) {
	if query == "" {
		return nil, nil
	}
	if s.dual == nil {
		return nil, fault.Unavailable(nil, "no dual searcher configured")
	}
	entries, err := s.dual.EntryPoints(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	_, pprScores, err := search.Traverse(ctx, s.store, entries, s.cfg.Traversal)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, c := range candidates {
		if v := pprScores[c.Element.ID]; v > 0 {
			scores[c.Element.ID] = v
		}
	}
	return scores, nil
}

// temporalStrategy scores candidates by recency within the candidate set.
func temporalStrategy(candidates []Selected) map[string]float64 {
	if len(candidates) == 0 {
		return nil
	}
	minT, maxT := candidates[0].Element.CreatedAt, candidates[0].Element.CreatedAt
	for _, c := range candidates[1:] {
		t := c.Element.CreatedAt
		if t.Before(minT) {
			minT = t
		}
		if t.After(maxT) {
			maxT = t
		}
	}

	scores := make(map[string]float64)
	span := maxT.Sub(minT)
	for _, c := range candidates {
		if span <= 0 {
			scores[c.Element.ID] = 1
			continue
		}
		scores[c.Element.ID] = float64(c.Element.CreatedAt.Sub(minT)) / float64(span)
	}
	return scores
}

// tiltBoost amplifies the tilt's own strategy so the chosen projection
// dominates the ordering while the other signals still contribute.
const tiltBoost = 1.5

// blend normalises each strategy map to [0,1] and applies the zoom weights
// with the tilt boost.
func blend(candidates []Selected, scores map[string]map[string]float64, w strategyWeights, tilt Tilt) []Selected {
	weightOf := map[string]float64{
		"embedding": w.embed,
		"keyword":   w.keyword,
		"graph":     w.graph,
		"temporal":  w.temporal,
	}
	switch tilt {
	case TiltEmbedding:
		weightOf["embedding"] *= tiltBoost
	case TiltKeywords:
		weightOf["keyword"] *= tiltBoost
	case TiltGraph:
		weightOf["graph"] *= tiltBoost
	case TiltTemporal:
		weightOf["temporal"] *= tiltBoost
	}

	normalised := make(map[string]map[string]float64, len(scores))
	for name, m := range scores {
		var max float64
		for _, v := range m {
			if v > max {
				max = v
			}
		}
		if max == 0 {
			continue
		}
		n := make(map[string]float64, len(m))
		for id, v := range m {
			n[id] = v / max
		}
		normalised[name] = n
	}

	out := make([]Selected, len(candidates))
	for i, c := range candidates {
		total := 0.0
		for name, m := range normalised {
			total += weightOf[name] * m[c.Element.ID]
		}
		c.Score = total
		out[i] = c
	}
	return out
}

// expandEntities replaces selected entities with their attached units and
// attributes, preserving order and inherited scores.
func (s *Selector) expandEntities(snap *graph.Snapshot, selected []Selected, limit int) []Selected {
	var out []Selected
	seen := make(map[string]struct{})
	for _, sel := range selected {
		if sel.Element.Kind != graph.KindEntity {
			if _, ok := seen[sel.Element.ID]; !ok {
				seen[sel.Element.ID] = struct{}{}
				out = append(out, sel)
			}
			continue
		}
		for _, nb := range snap.Neighbours(sel.Element.ID, graph.PredHasUnit, graph.PredHasAttribute) {
			el := snap.Get(nb)
			if el == nil || el.Content == "" {
				continue
			}
			if _, ok := seen[el.ID]; ok {
				continue
			}
			seen[el.ID] = struct{}{}
			out = append(out, Selected{Element: *el, Score: sel.Score, degree: snap.Degree(el.ID)})
			if len(out) >= limit {
				return out
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func queryTerms(query string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) >= 3 {
			terms[tok] = struct{}{}
		}
	}
	return terms
}

// containsWord reports whole-word containment in an already-lowered string.
func containsWord(haystack, word string) bool {
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isAlnum(haystack[start-1])
		afterOK := end == len(haystack) || !isAlnum(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
