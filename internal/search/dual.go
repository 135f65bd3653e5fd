package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
)

const instrumentationName = "github.com/fyrsmithlabs/corpusd/internal/search"

// Config configures the dual search.
type Config struct {
	// Corpus restricts search to one namespace; empty searches all.
	Corpus string

	// VectorK is the similarity entry-point budget.
	VectorK int

	// ScoreThreshold drops low-scoring similarity entry points.
	ScoreThreshold float64
}

// DefaultConfig returns the standard defaults.
func DefaultConfig(corpus string) Config {
	return Config{Corpus: corpus, VectorK: 10, ScoreThreshold: 0.1}
}

// Dual finds traversal entry points for a query through exact label matching
// and vector similarity.
type Dual struct {
	store    graph.Store
	llm      llm.Adapter
	embedder embeddings.Service
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewDual creates the searcher. The LLM adapter may be nil: mention
// extraction then falls back to tokenisation only.
func NewDual(store graph.Store, adapter llm.Adapter, embedder embeddings.Service, cfg Config, logger *zap.Logger) (*Dual, error) {
	if store == nil {
		return nil, fault.Invalid("graph store is required")
	}
	if embedder == nil {
		return nil, fault.Invalid("embedding service is required")
	}
	if cfg.VectorK < 1 {
		cfg.VectorK = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dual{
		store:    store,
		llm:      adapter,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.Named("search"),
		tracer:   otel.Tracer(instrumentationName),
	}, nil
}

// EntryPoints returns the union of exact and similarity entry points, tagged
// with origin, deterministically ordered (exact first, then by score desc,
// ties by id).
func (d *Dual) EntryPoints(ctx context.Context, query string) ([]EntryPoint, error) {
	ctx, span := d.tracer.Start(ctx, "search.entry_points")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, fault.Invalid("query is required")
	}

	mentions := d.extractMentions(ctx, query)
	span.SetAttributes(attribute.Int("mentions", len(mentions)))

	byID := make(map[string]EntryPoint)

	exact, err := d.exactMatches(ctx, mentions)
	if err != nil {
		return nil, err
	}
	for _, ep := range exact {
		byID[ep.ID] = ep
	}

	vector, err := d.vectorMatches(ctx, query)
	if err != nil {
		// Similarity degradation: exact matches still seed traversal.
		if len(byID) == 0 {
			return nil, err
		}
		d.logger.Warn("vector entry-point search degraded", zap.Error(err))
	}
	for _, ep := range vector {
		if _, ok := byID[ep.ID]; !ok {
			byID[ep.ID] = ep
		}
	}

	out := make([]EntryPoint, 0, len(byID))
	for _, ep := range byID {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Origin == OriginExact) != (out[j].Origin == OriginExact) {
			return out[i].Origin == OriginExact
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	span.SetAttributes(attribute.Int("entry_points", len(out)))
	return out, nil
}

// extractMentions asks the adapter for entity mentions, falling back to
// query tokenisation on failure or absence.
func (d *Dual) extractMentions(ctx context.Context, query string) []string {
	if d.llm != nil {
		mentions, err := d.llm.ExtractEntities(ctx, query)
		if err == nil && len(mentions) > 0 {
			return mentions
		}
		if err != nil {
			d.logger.Debug("mention extraction fell back to tokenisation", zap.Error(err))
		}
	}
	return tokenise(query)
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenise(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenRe.FindAllString(query, -1) {
		if len(tok) < 3 {
			continue
		}
		folded := strings.ToLower(tok)
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// exactMatches scans entities and overview attributes for whole-word,
// case-insensitive label containment of any mention.
func (d *Dual) exactMatches(ctx context.Context, mentions []string) ([]EntryPoint, error) {
	if len(mentions) == 0 {
		return nil, nil
	}

	var out []EntryPoint
	appendMatches := func(els []graph.Element, overviewOnly bool) {
		for _, el := range els {
			if overviewOnly && el.SubType != graph.SubTypeOverview {
				continue
			}
			for _, mention := range mentions {
				if wholeWordMatch(el.Label, mention) {
					out = append(out, EntryPoint{
						ID:     el.ID,
						Kind:   el.Kind,
						Label:  el.Label,
						Origin: OriginExact,
						Score:  1,
					})
					break
				}
			}
		}
	}

	entities, err := d.store.QueryByKind(ctx, graph.KindEntity, graph.Filters{Corpus: d.cfg.Corpus}, 0)
	if err != nil {
		return nil, err
	}
	appendMatches(entities, false)

	overviews, err := d.store.QueryByKind(ctx, graph.KindAttribute, graph.Filters{Corpus: d.cfg.Corpus}, 0)
	if err != nil {
		return nil, err
	}
	appendMatches(overviews, true)

	return out, nil
}

// wholeWordMatch reports whether mention appears in label as a whole word,
// case-insensitively.
func wholeWordMatch(label, mention string) bool {
	label = strings.ToLower(label)
	mention = strings.ToLower(strings.TrimSpace(mention))
	if mention == "" {
		return false
	}
	idx := 0
	for {
		pos := strings.Index(label[idx:], mention)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(mention)
		beforeOK := start == 0 || !isWordChar(rune(label[start-1]))
		afterOK := end == len(label) || !isWordChar(rune(label[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// vectorMatches embeds the query and returns the top-k similarity entry
// points over the retrievable similarity kinds.
func (d *Dual) vectorMatches(ctx context.Context, query string) ([]EntryPoint, error) {
	vec, err := d.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := d.store.SimilaritySearch(ctx, vec, d.cfg.VectorK,
		[]graph.Kind{graph.KindUnit, graph.KindAttribute, graph.KindCommunityElement},
		graph.Filters{Corpus: d.cfg.Corpus})
	if err != nil {
		return nil, err
	}

	var out []EntryPoint
	for _, hit := range hits {
		if hit.Score < d.cfg.ScoreThreshold {
			continue
		}
		el, err := d.store.Get(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if el == nil {
			continue
		}
		out = append(out, EntryPoint{
			ID:     el.ID,
			Kind:   el.Kind,
			Label:  el.Label,
			Origin: OriginVector,
			Score:  hit.Score,
		})
	}
	return out, nil
}
