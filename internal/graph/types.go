package graph

import (
	"time"
)

// Kind identifies an element type in the heterogeneous graph.
type Kind string

const (
	KindTextElement      Kind = "TextElement"
	KindUnit             Kind = "Unit"
	KindEntity           Kind = "Entity"
	KindRelationship     Kind = "Relationship"
	KindAttribute        Kind = "Attribute"
	KindCommunityElement Kind = "CommunityElement"
	KindCommunity        Kind = "Community"
	KindCorpus           Kind = "Corpus"
	KindCorpuscle        Kind = "Corpuscle"
)

// SubTypeOverview marks an Attribute synthesised from a community. Overview
// attributes are entry points and are excluded from retrieval.
const SubTypeOverview = "Overview"

// Retrievable reports whether content of this kind may appear in a final
// result. Overview attributes are excluded at the element level, not here.
func (k Kind) Retrievable() bool {
	switch k {
	case KindTextElement, KindUnit, KindAttribute, KindCommunityElement, KindRelationship:
		return true
	default:
		return false
	}
}

// Embeddable reports whether elements of this kind carry embedding vectors.
func (k Kind) Embeddable() bool {
	switch k {
	case KindTextElement, KindUnit, KindAttribute, KindCommunityElement:
		return true
	default:
		return false
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTextElement, KindUnit, KindEntity, KindRelationship, KindAttribute,
		KindCommunityElement, KindCommunity, KindCorpus, KindCorpuscle:
		return true
	default:
		return false
	}
}

// Predicate identifies an edge type.
type Predicate string

const (
	PredHasUnit             Predicate = "hasUnit"
	PredHasAttribute        Predicate = "hasAttribute"
	PredHasTextElement      Predicate = "hasTextElement"
	PredHasCommunityElement Predicate = "hasCommunityElement"
	PredInCommunity         Predicate = "inCommunity"
	PredHasSourceEntity     Predicate = "hasSourceEntity"
	PredHasTargetEntity     Predicate = "hasTargetEntity"
	PredConnectsTo          Predicate = "connectsTo"
)

// Accumulating reports whether repeated AddEdge calls increment the weight
// instead of replacing the edge.
func (p Predicate) Accumulating() bool { return p == PredConnectsTo }

// Element is the common supertype for all graph records.
type Element struct {
	// ID is an opaque URI, stable for the life of the corpus.
	ID string

	Kind  Kind
	Label string

	// Content is the element's text. Empty for bare entities.
	Content string

	// Embedding is attached during enrichment; nil until then.
	Embedding []float32

	// SubType refines the kind, e.g. SubTypeOverview for attributes or
	// "semantic" provenance on derived elements.
	SubType string

	// EntryPoint marks the element as eligible to seed traversal.
	EntryPoint bool

	// Corpus names the ingestion namespace this element belongs to.
	Corpus string

	// Source is the provenance reference (document id for text elements,
	// producing stage otherwise).
	Source string

	CreatedAt time.Time
}

// IsRetrievable applies the kind rule plus the Overview exclusion.
func (e *Element) IsRetrievable() bool {
	if !e.Kind.Retrievable() {
		return false
	}
	if e.Kind == KindAttribute && e.SubType == SubTypeOverview {
		return false
	}
	return true
}

// Edge is a directed typed edge. Weight is meaningful for connectsTo only.
type Edge struct {
	Predicate Predicate
	Src       string
	Dst       string
	Weight    float64
	SubType   string
}

// HealthReport summarises one corpus for diagnostics.
type HealthReport struct {
	Counts               map[Kind]int
	EmbeddingCoverage    float64 // fraction of embeddable elements carrying a vector
	AvgDegree            float64
	LargestComponentSize int
}
