package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/decompose"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/hnsw"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
)

const (
	chunkOne = "Hinton was awarded the Nobel Prize for inventing backpropagation."
	chunkTwo = "Backpropagation laid the foundation for modern neural networks."
)

// buildCorpus decomposes and enriches the two-chunk S2 corpus, returning the
// store with its searcher attached.
func buildCorpus(t *testing.T) (*graph.MemoryStore, llm.Adapter, embeddings.Service) {
	t.Helper()
	store := graph.NewMemoryStore()
	mock := llm.NewMock()
	mock.Units[chunkOne] = []llm.SemanticUnit{{Text: chunkOne, Summary: "Hinton won the Nobel Prize"}}
	mock.Entities[chunkOne] = []string{"Hinton", "Nobel Prize"}
	mock.Relationships[chunkOne] = []llm.Relationship{{Description: "was awarded", Source: "Hinton", Target: "Nobel Prize"}}
	mock.Units[chunkTwo] = []llm.SemanticUnit{{Text: chunkTwo, Summary: "Backpropagation enabled neural networks"}}
	mock.Entities[chunkTwo] = []string{"Backpropagation"}

	embedder := embeddings.NewHash(64)
	p, err := decompose.New(store, mock, embedder, nil, decompose.DefaultOptions("demo"), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	res, err := p.Decompose(ctx, []decompose.Chunk{
		{Content: chunkOne, Source: "d1"},
		{Content: chunkTwo, Source: "d2"},
	})
	require.NoError(t, err)

	_, index, err := p.Enrich(ctx, res, hnsw.Config{})
	require.NoError(t, err)
	store.SetSearcher(index)

	return store, mock, embedder
}

func newDual(t *testing.T, store graph.Store, adapter llm.Adapter, embedder embeddings.Service) *Dual {
	t.Helper()
	d, err := NewDual(store, adapter, embedder, DefaultConfig("demo"), zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestEntryPointsExactAndVector(t *testing.T) {
	store, adapter, embedder := buildCorpus(t)
	d := newDual(t, store, adapter, embedder)

	// The query shares "Hinton" with the first unit under the hash embedder.
	entries, err := d.EntryPoints(context.Background(), "What prize did Hinton win?")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var exactLabels []string
	hasVector := false
	for _, ep := range entries {
		switch ep.Origin {
		case OriginExact:
			exactLabels = append(exactLabels, ep.Label)
		case OriginVector:
			hasVector = true
		}
	}
	assert.Contains(t, exactLabels, "Hinton")
	assert.True(t, hasVector, "similarity entry points expected")

	// Exact entries sort before vector entries.
	assert.Equal(t, OriginExact, entries[0].Origin)
}

func TestEntryPointsEmptyQuery(t *testing.T) {
	store, adapter, embedder := buildCorpus(t)
	d := newDual(t, store, adapter, embedder)

	_, err := d.EntryPoints(context.Background(), "   ")
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))
}

func TestEntryPointsFallbackTokenisation(t *testing.T) {
	store, _, embedder := buildCorpus(t)
	// No adapter: mentions come from tokenisation.
	d := newDual(t, store, nil, embedder)

	entries, err := d.EntryPoints(context.Background(), "tell me about Hinton")
	require.NoError(t, err)

	found := false
	for _, ep := range entries {
		if ep.Origin == OriginExact && ep.Label == "Hinton" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWholeWordMatching(t *testing.T) {
	assert.True(t, wholeWordMatch("Nobel Prize", "nobel"))
	assert.True(t, wholeWordMatch("Hinton", "HINTON"))
	assert.False(t, wholeWordMatch("Hintonian", "hinton"))
	assert.False(t, wholeWordMatch("backpropagation", "prop"))
}

func TestTraverseFindsCrossNodes(t *testing.T) {
	store, adapter, embedder := buildCorpus(t)
	d := newDual(t, store, adapter, embedder)
	ctx := context.Background()

	entries, err := d.EntryPoints(ctx, "What did Hinton win?")
	require.NoError(t, err)

	cross, scores, err := Traverse(ctx, store, entries, DefaultTraversalOptions())
	require.NoError(t, err)
	require.NotEmpty(t, scores)

	// Cross nodes never repeat entry points.
	seeds := make(map[string]struct{})
	for _, ep := range entries {
		seeds[ep.ID] = struct{}{}
	}
	for _, cn := range cross {
		_, isSeed := seeds[cn.ID]
		assert.False(t, isSeed, "cross node %s is a seed", cn.ID)
		assert.Greater(t, cn.Score, 0.0)
	}
}

func TestTraverseRequiresEntries(t *testing.T) {
	store, _, _ := buildCorpus(t)
	_, _, err := Traverse(context.Background(), store, nil, DefaultTraversalOptions())
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))
}

func TestRetrieveClosure(t *testing.T) {
	store, adapter, embedder := buildCorpus(t)
	d := newDual(t, store, adapter, embedder)
	ctx := context.Background()

	entries, err := d.EntryPoints(ctx, "What did Hinton win?")
	require.NoError(t, err)
	cross, _, err := Traverse(ctx, store, entries, DefaultTraversalOptions())
	require.NoError(t, err)

	items, err := Retrieve(ctx, store, entries, cross, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, items)

	// P3: every item is retrievable with non-empty content.
	for _, item := range items {
		assert.True(t, item.Kind.Retrievable(), "kind %s", item.Kind)
		assert.NotEmpty(t, item.Content)
		assert.Equal(t, len(item.Content), item.ContentLength)
	}

	// Both units are reachable: one via entry points, one via diffusion.
	var contents []string
	for _, item := range items {
		contents = append(contents, item.Content)
	}
	assert.Contains(t, contents, chunkOne)
	assert.Contains(t, contents, chunkTwo)
}

func TestRetrieveExcludesEntitiesAndOverviews(t *testing.T) {
	store := graph.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "e", Kind: graph.KindEntity, Corpus: "c", Label: "E", Content: "entity text"}))
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "o", Kind: graph.KindAttribute, SubType: graph.SubTypeOverview, Corpus: "c", Label: "O", Content: "overview"}))
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "u", Kind: graph.KindUnit, Corpus: "c", Label: "U", Content: "unit text"}))
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "empty", Kind: graph.KindUnit, Corpus: "c", Label: "empty"}))

	entries := []EntryPoint{{ID: "e", Origin: OriginExact, Score: 1}, {ID: "o", Origin: OriginExact, Score: 1}}
	cross := []CrossNode{{ID: "u", Score: 0.5}, {ID: "empty", Score: 0.4}}

	items, err := Retrieve(ctx, store, entries, cross, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "u", items[0].ID)
	assert.Equal(t, OriginCross, items[0].Origin)
}

func TestRetrieveScoreThreshold(t *testing.T) {
	store := graph.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "hi", Kind: graph.KindUnit, Corpus: "c", Content: "high"}))
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "lo", Kind: graph.KindUnit, Corpus: "c", Content: "low"}))

	cross := []CrossNode{{ID: "hi", Score: 0.5}, {ID: "lo", Score: 0.01}}
	items, err := Retrieve(ctx, store, nil, cross, 0.1, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "hi", items[0].ID)
}

func TestRetrieveTokenCap(t *testing.T) {
	store := graph.NewMemoryStore()
	ctx := context.Background()
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "a", Kind: graph.KindUnit, Corpus: "c", Content: string(long)}))
	require.NoError(t, store.UpsertElement(ctx, graph.Element{ID: "b", Kind: graph.KindUnit, Corpus: "c", Content: string(long)}))

	cross := []CrossNode{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}}

	// 400 chars is 100 tokens; a 150-token cap admits only the first item.
	items, err := Retrieve(ctx, store, nil, cross, 0, 150)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestRunFullPipeline(t *testing.T) {
	store, adapter, embedder := buildCorpus(t)
	d := newDual(t, store, adapter, embedder)

	items, err := d.Run(context.Background(), "What did Hinton win?", DefaultTraversalOptions(), 8192)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	for _, item := range items {
		assert.True(t, item.Kind.Retrievable())
		assert.NotEmpty(t, item.Content)
	}
}
