package zpt

import (
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// Zoom is the level of abstraction, ordered most detailed to most abstract.
type Zoom string

const (
	ZoomMicro     Zoom = "micro"
	ZoomEntity    Zoom = "entity"
	ZoomText      Zoom = "text"
	ZoomUnit      Zoom = "unit"
	ZoomCommunity Zoom = "community"
	ZoomCorpus    Zoom = "corpus"
)

// Valid reports whether z names a known zoom level.
func (z Zoom) Valid() bool {
	switch z {
	case ZoomMicro, ZoomEntity, ZoomText, ZoomUnit, ZoomCommunity, ZoomCorpus:
		return true
	default:
		return false
	}
}

// Kinds returns the candidate element kinds for this zoom.
func (z Zoom) Kinds() []graph.Kind {
	switch z {
	case ZoomMicro:
		return []graph.Kind{graph.KindTextElement}
	case ZoomEntity:
		return []graph.Kind{graph.KindEntity}
	case ZoomText:
		return []graph.Kind{graph.KindTextElement, graph.KindUnit}
	case ZoomUnit:
		return []graph.Kind{graph.KindUnit}
	case ZoomCommunity:
		return []graph.Kind{graph.KindCommunityElement, graph.KindAttribute}
	case ZoomCorpus:
		return []graph.Kind{graph.KindCommunityElement}
	default:
		return nil
	}
}

// Cap returns the zoom's result cap.
func (z Zoom) Cap() int {
	switch z {
	case ZoomMicro:
		return 5
	case ZoomEntity:
		return 25
	case ZoomText:
		return 15
	case ZoomUnit:
		return 25
	case ZoomCommunity:
		return 20
	case ZoomCorpus:
		return 10
	default:
		return 0
	}
}

// RequiresQuery reports whether the zoom needs a query string. Micro and
// text navigation can browse without one.
func (z Zoom) RequiresQuery() bool {
	return z != ZoomMicro && z != ZoomText
}

// expands reports whether selected elements expand into their attached
// units and attributes (the entity zoom).
func (z Zoom) expands() bool { return z == ZoomEntity }

// overviewOnly reports whether Attribute candidates are restricted to the
// Overview sub-type (community zoom).
func (z Zoom) overviewOnly() bool { return z == ZoomCommunity }

// Tilt is the projection style applied during selection.
type Tilt string

const (
	TiltKeywords  Tilt = "keywords"
	TiltEmbedding Tilt = "embedding"
	TiltGraph     Tilt = "graph"
	TiltTemporal  Tilt = "temporal"
)

// Valid reports whether t names a known tilt.
func (t Tilt) Valid() bool {
	switch t {
	case TiltKeywords, TiltEmbedding, TiltGraph, TiltTemporal:
		return true
	default:
		return false
	}
}

// Pan limits on list-shaped filters.
const (
	maxPanDomains  = 5
	maxPanKeywords = 10
	maxPanEntities = 8
)

// TimeRange bounds element creation time; zero values are open ends.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Pan holds the optional candidate filters. All present filters AND.
type Pan struct {
	Domains  []string   `json:"domains,omitempty"`
	Keywords []string   `json:"keywords,omitempty"`
	Entities []string   `json:"entities,omitempty"`
	Temporal *TimeRange `json:"temporal,omitempty"`
}

// validate checks list bounds and temporal sanity.
func (p *Pan) validate() *fault.Error {
	if len(p.Domains) > maxPanDomains {
		return fault.Invalid("pan allows at most %d domains, got %d", maxPanDomains, len(p.Domains)).
			WithDetail("code", "INVALID_PAN")
	}
	if len(p.Keywords) > maxPanKeywords {
		return fault.Invalid("pan allows at most %d keywords, got %d", maxPanKeywords, len(p.Keywords)).
			WithDetail("code", "INVALID_PAN")
	}
	if len(p.Entities) > maxPanEntities {
		return fault.Invalid("pan allows at most %d entities, got %d", maxPanEntities, len(p.Entities)).
			WithDetail("code", "INVALID_PAN")
	}
	if p.Temporal != nil && !p.Temporal.Start.IsZero() && !p.Temporal.End.IsZero() && p.Temporal.End.Before(p.Temporal.Start) {
		return fault.Invalid("pan temporal range ends before it starts").
			WithDetail("code", "INVALID_PAN")
	}
	return nil
}

// Format names the output rendering.
type Format string

const (
	FormatJSON           Format = "json"
	FormatStructured     Format = "structured"
	FormatMarkdown       Format = "markdown"
	FormatConversational Format = "conversational"
)

// Valid reports whether f names a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatStructured, FormatMarkdown, FormatConversational:
		return true
	default:
		return false
	}
}

// ChunkStrategy names the content chunking behaviour.
type ChunkStrategy string

const (
	ChunkFixed      ChunkStrategy = "fixed"
	ChunkSemantic   ChunkStrategy = "semantic"
	ChunkAdaptive   ChunkStrategy = "adaptive"
	ChunkTokenAware ChunkStrategy = "token_aware"
)

// Valid reports whether s names a known strategy.
func (s ChunkStrategy) Valid() bool {
	switch s {
	case ChunkFixed, ChunkSemantic, ChunkAdaptive, ChunkTokenAware:
		return true
	default:
		return false
	}
}

// Token budget bounds.
const (
	minMaxTokens     = 256
	maxMaxTokens     = 16384
	defaultMaxTokens = 4000
)

// Transform holds output shaping options.
type Transform struct {
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Format        Format        `json:"format,omitempty"`
	ChunkStrategy ChunkStrategy `json:"chunk_strategy,omitempty"`
}

// withDefaults fills unset fields.
func (t Transform) withDefaults() Transform {
	if t.MaxTokens == 0 {
		t.MaxTokens = defaultMaxTokens
	}
	if t.Format == "" {
		t.Format = FormatStructured
	}
	if t.ChunkStrategy == "" {
		t.ChunkStrategy = ChunkTokenAware
	}
	return t
}

// Request is one navigation call.
type Request struct {
	Query     string    `json:"query,omitempty"`
	Zoom      Zoom      `json:"zoom"`
	Pan       Pan       `json:"pan,omitempty"`
	Tilt      Tilt      `json:"tilt"`
	Transform Transform `json:"transform,omitempty"`

	// ClientID groups views into sessions and keys rate limiting.
	ClientID string `json:"client_id,omitempty"`
}

// Validate normalises and validates the request. It touches no adapter, so
// invalid input never costs a model call.
func (r *Request) Validate() error {
	if !r.Zoom.Valid() {
		return fault.Invalid("unknown zoom %q", r.Zoom).WithDetail("code", "INVALID_ZOOM")
	}
	if !r.Tilt.Valid() {
		return fault.Invalid("unknown tilt %q", r.Tilt).WithDetail("code", "INVALID_TILT")
	}
	if err := r.Pan.validate(); err != nil {
		return err
	}

	r.Transform = r.Transform.withDefaults()
	if r.Transform.MaxTokens < minMaxTokens || r.Transform.MaxTokens > maxMaxTokens {
		return fault.Invalid("max_tokens %d outside [%d, %d]", r.Transform.MaxTokens, minMaxTokens, maxMaxTokens)
	}
	if !r.Transform.Format.Valid() {
		return fault.Invalid("unknown format %q", r.Transform.Format)
	}
	if !r.Transform.ChunkStrategy.Valid() {
		return fault.Invalid("unknown chunk strategy %q", r.Transform.ChunkStrategy)
	}

	if r.Query == "" && r.Zoom.RequiresQuery() {
		return fault.Invalid("zoom %q requires a query", r.Zoom)
	}
	return nil
}
