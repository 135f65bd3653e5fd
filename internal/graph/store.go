package graph

import (
	"context"
	"time"
)

// Filters narrows QueryByKind results. Zero values mean "no constraint".
type Filters struct {
	// CreatedAfter / CreatedBefore bound the element creation time.
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// LabelContains matches case-insensitively against the preferred label.
	LabelContains string

	// HasEmbedding restricts to elements that carry (true) or lack (false)
	// an embedding vector. Nil means no constraint.
	HasEmbedding *bool

	// Corpus restricts to one corpus namespace.
	Corpus string

	// Community restricts to members of one community (via inCommunity).
	Community string
}

// Hit is one similarity-search result.
type Hit struct {
	ID    string
	Score float64
}

// Searcher resolves vector similarity queries. The graph store delegates
// SimilaritySearch to it; the HNSW index satisfies this.
type Searcher interface {
	Search(vector []float32, k int, filter func(id string) bool) ([]Hit, error)
}

// Store is the typed persistence contract from the perspective of the
// algorithms and the navigator. Implementations may be remote; callers do not
// retry store operations, so a transient failure reaches the caller as is.
type Store interface {
	// UpsertElement is idempotent on id. It fails with InvalidInput when
	// required attributes are missing and Conflict when the kind changes
	// under an existing id.
	UpsertElement(ctx context.Context, el Element) error

	// AddEdge inserts or updates an edge. connectsTo edges accumulate
	// weight on repeat; structural predicates replace.
	AddEdge(ctx context.Context, edge Edge) error

	// Get returns the element or nil when absent.
	Get(ctx context.Context, id string) (*Element, error)

	// Neighbours yields adjacent element ids in deterministic (ascending)
	// order, optionally restricted to the given predicates.
	Neighbours(ctx context.Context, id string, predicates ...Predicate) ([]string, error)

	// QueryByKind returns up to limit elements of the kind matching the
	// filters, ordered by id. limit <= 0 means unbounded.
	QueryByKind(ctx context.Context, kind Kind, filters Filters, limit int) ([]Element, error)

	// SimilaritySearch delegates to the vector index, then filters hits to
	// the candidate kinds and the given filters.
	SimilaritySearch(ctx context.Context, vector []float32, k int, kinds []Kind, filters Filters) ([]Hit, error)

	// CorpusHealth summarises one corpus.
	CorpusHealth(ctx context.Context, corpus string) (*HealthReport, error)

	// Snapshot captures a read-consistent view for one algorithm run.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Version returns the current write version. Two calls returning the
	// same version bracket an unchanged graph.
	Version() uint64
}
