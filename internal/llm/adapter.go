package llm

import (
	"context"
)

// SemanticUnit is one extracted independent fact or event.
type SemanticUnit struct {
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

// Relationship is one extracted directed relation between named entities.
type Relationship struct {
	Description string `json:"description"`
	Source      string `json:"source"`
	Target      string `json:"target"`
}

// Insight is one community-level finding.
type Insight struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// Adapter is the abstract language-model interface the core consumes.
type Adapter interface {
	// ExtractSemanticUnits decomposes a text chunk into independent units.
	ExtractSemanticUnits(ctx context.Context, text string) ([]SemanticUnit, error)

	// ExtractEntities returns named-entity mentions found in text.
	ExtractEntities(ctx context.Context, text string) ([]string, error)

	// ExtractRelationships finds relations between the given entities
	// within one unit's text.
	ExtractRelationships(ctx context.Context, unitText string, entityNames []string) ([]Relationship, error)

	// SummarizeEntity synthesises an attribute summary for one entity from
	// its connected units and relationships.
	SummarizeEntity(ctx context.Context, entityLabel string, units, relationships []string) (string, error)

	// SummarizeCommunity produces insights from community member contents.
	SummarizeCommunity(ctx context.Context, memberContents []string) ([]Insight, error)

	// IdentifySemanticBoundaries splits text at topical boundaries.
	IdentifySemanticBoundaries(ctx context.Context, text string) ([]string, error)

	// Summarize compresses text into at most maxTokens tokens.
	Summarize(ctx context.Context, text string, maxTokens int) (string, error)
}
