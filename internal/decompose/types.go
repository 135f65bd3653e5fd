package decompose

import (
	"sync"

	"github.com/fyrsmithlabs/corpusd/internal/graphalgo"
)

// Chunk is one ingestion input.
type Chunk struct {
	Content string
	Source  string
}

// Options configures the pipeline stages.
type Options struct {
	// Corpus is the namespace every produced element belongs to.
	Corpus string

	// ChunkParallelism bounds concurrent chunk processing.
	ChunkParallelism int

	// SemanticUnitMaxLength truncates over-long extracted units, in
	// characters, at a word boundary. Zero disables truncation.
	SemanticUnitMaxLength int

	// AttributeBatch bounds concurrent entity summarisations.
	AttributeBatch int

	// Betweenness configures the sampled centrality pass.
	Betweenness graphalgo.BetweennessOptions

	// Leiden configures community detection.
	Leiden graphalgo.LeidenOptions

	// EmbeddingBatch bounds one enrichment embedding call.
	EmbeddingBatch int

	// Progress, when set, receives stage progress lines.
	Progress func(stage string, done, total int)
}

// DefaultOptions returns the standard defaults for one corpus.
func DefaultOptions(corpus string) Options {
	return Options{
		Corpus:                corpus,
		ChunkParallelism:      4,
		SemanticUnitMaxLength: 256,
		AttributeBatch:        5,
		Betweenness:           graphalgo.DefaultBetweennessOptions(),
		Leiden:                graphalgo.DefaultLeidenOptions(),
		EmbeddingBatch:        100,
	}
}

// ChunkOutcome records what one chunk produced.
type ChunkOutcome struct {
	Chunk   Chunk
	UnitIDs []string

	// Err is the terminal failure when the chunk was skipped. Partial
	// writes before the failure remain committed.
	Err error
}

// Result is the Decompose stage output, consumed by Enrich.
type Result struct {
	mu       sync.Mutex
	Chunks   []ChunkOutcome
	EntityID map[string]string // folded label -> element id
}

// Failed returns the outcomes whose chunk was skipped.
func (r *Result) Failed() []ChunkOutcome {
	var out []ChunkOutcome
	for _, c := range r.Chunks {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// AugmentResult reports the attribute synthesis stage.
type AugmentResult struct {
	ImportantEntities []string
	AttributesCreated int
}

// AggregateResult reports community aggregation.
type AggregateResult struct {
	// Method names the community-detection algorithm that ran, surfaced
	// in navigation view metadata.
	Method string

	Communities       int
	InsightsCreated   int
	SemanticMatches   int
	MembersUnassigned int
}

// EnrichResult reports the enrichment stage.
type EnrichResult struct {
	TextElements  int
	Embedded      int
	SkippedEmbeds int
	SemanticEdges int
}
