package zpt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
)

// ContentItem is one rendered result element.
type ContentItem struct {
	ID      string     `json:"id"`
	Kind    graph.Kind `json:"kind"`
	Label   string     `json:"label"`
	Content string     `json:"content"`
	Score   float64    `json:"score"`
	Origin  string     `json:"origin"`
	Tokens  int        `json:"tokens"`
}

// Envelope is the stable result schema for any transport.
type Envelope struct {
	Navigation struct {
		Zoom Zoom `json:"zoom"`
		Pan  Pan  `json:"pan"`
		Tilt Tilt `json:"tilt"`
	} `json:"navigation"`

	Content struct {
		Summary    string        `json:"summary,omitempty"`
		Items      []ContentItem `json:"items"`
		Rendered   string        `json:"rendered,omitempty"`
		TokenCount int           `json:"token_count"`
	} `json:"content"`

	Metadata struct {
		SessionID       string           `json:"session_id"`
		ViewID          string           `json:"view_id"`
		ElementIDs      []string         `json:"element_ids"`
		PipelineTimings map[string]int64 `json:"pipeline_timings_ms"`
		GeneratedAt     time.Time        `json:"generated_at"`
		Mode            string           `json:"mode"`
		CommunityMethod string           `json:"community_method,omitempty"`
		Warnings        []string         `json:"warnings,omitempty"`
	} `json:"metadata"`
}

// TransformerConfig bounds the transformation stage.
type TransformerConfig struct {
	// ChunkSize is the fixed-strategy character boundary.
	ChunkSize int

	// ChunkOverlap is the fixed-strategy overlap.
	ChunkOverlap int

	// SummaryImportance is the minimum importance that justifies an LLM
	// summary when an element overflows the remaining budget.
	SummaryImportance float64
}

// DefaultTransformerConfig returns the standard defaults.
func DefaultTransformerConfig() TransformerConfig {
	return TransformerConfig{ChunkSize: 512, ChunkOverlap: 64, SummaryImportance: 0.5}
}

// Transformer renders a selection into a token-budgeted envelope.
type Transformer struct {
	llm    llm.Adapter // optional; overflow summarisation degrades without it
	cfg    TransformerConfig
	logger *zap.Logger
}

// NewTransformer creates a transformer. The adapter may be nil.
func NewTransformer(adapter llm.Adapter, cfg TransformerConfig, logger *zap.Logger) *Transformer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{llm: adapter, cfg: cfg, logger: logger.Named("transform")}
}

// EstimateTokens approximates the token count of text. Four characters per
// token tracks common BPE vocabularies closely enough for budgeting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// Transform allocates the token budget greedily by importance, chunking each
// admitted element's content with the requested strategy. An element that
// would overflow the budget gets one bounded summarisation attempt when its
// importance clears the threshold; otherwise allocation stops.
func (t *Transformer) Transform(ctx context.Context, req Request, selection *Selection) (*Envelope, error) {
	if selection == nil {
		return nil, fault.Internal(nil, "transform called without a selection")
	}

	env := &Envelope{}
	env.Navigation.Zoom = req.Zoom
	env.Navigation.Pan = req.Pan
	env.Navigation.Tilt = req.Tilt

	// Importance normalises the selector score into [0,1].
	var maxScore float64
	for _, sel := range selection.Items {
		if sel.Score > maxScore {
			maxScore = sel.Score
		}
	}

	budget := req.Transform.MaxTokens
	used := 0
	for _, sel := range selection.Items {
		if err := fault.FromContext(ctx); err != nil {
			return nil, err
		}

		importance := 1.0
		if maxScore > 0 {
			importance = sel.Score / maxScore
		}

		content := sel.Element.Content
		chunks, err := t.chunk(ctx, content, req.Transform.ChunkStrategy)
		if err != nil {
			return nil, err
		}
		content = strings.Join(chunks, "\n")

		tokens := EstimateTokens(content)
		if used+tokens > budget {
			remaining := budget - used
			if importance <= t.cfg.SummaryImportance || t.llm == nil || remaining <= 0 {
				break
			}
			summary, err := t.llm.Summarize(ctx, content, remaining)
			if err != nil || EstimateTokens(summary) > remaining {
				break
			}
			env.Content.Items = append(env.Content.Items, ContentItem{
				ID:      sel.Element.ID,
				Kind:    sel.Element.Kind,
				Label:   sel.Element.Label,
				Content: summary,
				Score:   sel.Score,
				Origin:  originOf(sel.Element),
				Tokens:  EstimateTokens(summary),
			})
			used += EstimateTokens(summary)
			break
		}

		env.Content.Items = append(env.Content.Items, ContentItem{
			ID:      sel.Element.ID,
			Kind:    sel.Element.Kind,
			Label:   sel.Element.Label,
			Content: content,
			Score:   sel.Score,
			Origin:  originOf(sel.Element),
			Tokens:  tokens,
		})
		used += tokens
	}

	env.Content.TokenCount = used
	for _, item := range env.Content.Items {
		env.Metadata.ElementIDs = append(env.Metadata.ElementIDs, item.ID)
	}

	rendered, err := render(req.Transform.Format, env.Content.Items)
	if err != nil {
		return nil, err
	}
	env.Content.Rendered = rendered
	return env, nil
}

func originOf(el graph.Element) string {
	if el.EntryPoint {
		return "entry"
	}
	return "cross"
}

// chunk splits content with the requested strategy. Short content passes
// through untouched.
func (t *Transformer) chunk(ctx context.Context, content string, strategy ChunkStrategy) ([]string, error) {
	if len(content) <= t.cfg.ChunkSize {
		return []string{content}, nil
	}

	switch strategy {
	case ChunkFixed:
		return t.fixedChunks(content), nil
	case ChunkSemantic:
		return t.semanticChunks(ctx, content)
	case ChunkAdaptive:
		return t.adaptiveChunks(ctx, content, func(s string) int { return len(s) }, t.cfg.ChunkSize)
	case ChunkTokenAware:
		return t.adaptiveChunks(ctx, content, EstimateTokens, t.cfg.ChunkSize/4)
	default:
		return []string{content}, nil
	}
}

// fixedChunks applies the hard size boundary with overlap.
func (t *Transformer) fixedChunks(content string) []string {
	var out []string
	step := t.cfg.ChunkSize - t.cfg.ChunkOverlap
	for start := 0; start < len(content); start += step {
		end := start + t.cfg.ChunkSize
		if end >= len(content) {
			out = append(out, content[start:])
			break
		}
		out = append(out, content[start:end])
	}
	return out
}

// semanticChunks splits at adapter-identified boundaries, keeping whole
// boundary blocks. Falls back to fixed chunks without an adapter.
func (t *Transformer) semanticChunks(ctx context.Context, content string) ([]string, error) {
	if t.llm == nil {
		return t.fixedChunks(content), nil
	}
	segments, err := t.llm.IdentifySemanticBoundaries(ctx, content)
	if err != nil {
		if ctxErr := fault.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		t.logger.Warn("semantic chunking degraded to fixed", zap.Error(err))
		return t.fixedChunks(content), nil
	}
	if len(segments) == 0 {
		return t.fixedChunks(content), nil
	}
	return segments, nil
}

// adaptiveChunks uses semantic splitting when the result blocks are small
// enough under the given measure, recursing into fixed chunks otherwise.
func (t *Transformer) adaptiveChunks(ctx context.Context, content string, measure func(string) int, bound int) ([]string, error) {
	segments, err := t.semanticChunks(ctx, content)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, seg := range segments {
		if measure(seg) <= bound {
			out = append(out, seg)
			continue
		}
		out = append(out, t.fixedChunks(seg)...)
	}
	return out, nil
}

// render produces the format-specific content rendering. The envelope around
// it is identical for every format.
func render(format Format, items []ContentItem) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return "", fault.Internal(err, "rendering items")
		}
		return string(data), nil

	case FormatStructured:
		var b strings.Builder
		for _, item := range items {
			fmt.Fprintf(&b, "[%s] %s (score %.3f)\n%s\n\n", item.Kind, item.Label, item.Score, item.Content)
		}
		return strings.TrimSpace(b.String()), nil

	case FormatMarkdown:
		var b strings.Builder
		for _, item := range items {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", item.Label, item.Content)
		}
		return strings.TrimSpace(b.String()), nil

	case FormatConversational:
		var parts []string
		for _, item := range items {
			parts = append(parts, item.Content)
		}
		return strings.Join(parts, " "), nil

	default:
		return "", fault.Invalid("unknown format %q", format)
	}
}

// summariseLabels builds the optional envelope summary line.
func summariseLabels(items []ContentItem) string {
	if len(items) == 0 {
		return ""
	}
	labels := make([]string, 0, len(items))
	seen := make(map[string]struct{})
	for _, item := range items {
		if item.Label == "" {
			continue
		}
		if _, ok := seen[item.Label]; ok {
			continue
		}
		seen[item.Label] = struct{}{}
		labels = append(labels, item.Label)
	}
	sort.Strings(labels)
	if len(labels) > 5 {
		labels = labels[:5]
	}
	return strings.Join(labels, "; ")
}
