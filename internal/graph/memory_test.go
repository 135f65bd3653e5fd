package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func mustUpsert(t *testing.T, s *MemoryStore, el Element) {
	t.Helper()
	require.NoError(t, s.UpsertElement(context.Background(), el))
}

func TestUpsertValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertElement(ctx, Element{Kind: KindUnit, Corpus: "c"})
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))

	err = s.UpsertElement(ctx, Element{ID: "u1", Kind: Kind("Bogus"), Corpus: "c"})
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))

	err = s.UpsertElement(ctx, Element{ID: "u1", Kind: KindUnit})
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))
}

func TestUpsertConflictOnKindChange(t *testing.T) {
	s := newTestStore(t)
	mustUpsert(t, s, Element{ID: "x", Kind: KindUnit, Corpus: "c"})

	err := s.UpsertElement(context.Background(), Element{ID: "x", Kind: KindEntity, Corpus: "c"})
	assert.Equal(t, fault.CodeConflict, fault.CodeOf(err))
}

func TestUpsertKeepsCreationTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "x", Kind: KindUnit, Corpus: "c", Content: "v1"})

	first, err := s.Get(ctx, "x")
	require.NoError(t, err)

	mustUpsert(t, s, Element{ID: "x", Kind: KindUnit, Corpus: "c", Content: "v1", Embedding: []float32{1, 0}})
	second, err := s.Get(ctx, "x")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Len(t, second.Embedding, 2)
}

func TestConnectsToWeightAccumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "a", Kind: KindUnit, Corpus: "c"})
	mustUpsert(t, s, Element{ID: "b", Kind: KindUnit, Corpus: "c"})

	require.NoError(t, s.AddEdge(ctx, Edge{Predicate: PredConnectsTo, Src: "a", Dst: "b", SubType: "semantic"}))
	require.NoError(t, s.AddEdge(ctx, Edge{Predicate: PredConnectsTo, Src: "a", Dst: "b", SubType: "semantic"}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	edges := snap.OutEdges("a", PredConnectsTo)
	require.Len(t, edges, 1)
	assert.Equal(t, 2.0, edges[0].Weight)
}

func TestStructuralEdgeReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "e", Kind: KindEntity, Corpus: "c"})
	mustUpsert(t, s, Element{ID: "u", Kind: KindUnit, Corpus: "c"})

	require.NoError(t, s.AddEdge(ctx, Edge{Predicate: PredHasUnit, Src: "e", Dst: "u"}))
	require.NoError(t, s.AddEdge(ctx, Edge{Predicate: PredHasUnit, Src: "e", Dst: "u"}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	edges := snap.OutEdges("e", PredHasUnit)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].Weight)
}

func TestAddEdgeRequiresEndpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "a", Kind: KindUnit, Corpus: "c"})

	err := s.AddEdge(ctx, Edge{Predicate: PredConnectsTo, Src: "a", Dst: "ghost"})
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestNeighboursDeterministicOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "e", Kind: KindEntity, Corpus: "c"})
	for _, id := range []string{"u3", "u1", "u2"} {
		mustUpsert(t, s, Element{ID: id, Kind: KindUnit, Corpus: "c"})
		require.NoError(t, s.AddEdge(ctx, Edge{Predicate: PredHasUnit, Src: "e", Dst: id}))
	}

	got, err := s.Neighbours(ctx, "e", PredHasUnit)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, got)
}

func TestQueryByKindFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "u1", Kind: KindUnit, Corpus: "c", Label: "Nobel Prize fact", Embedding: []float32{1}})
	mustUpsert(t, s, Element{ID: "u2", Kind: KindUnit, Corpus: "c", Label: "Other fact"})
	mustUpsert(t, s, Element{ID: "e1", Kind: KindEntity, Corpus: "c", Label: "Hinton"})

	byLabel, err := s.QueryByKind(ctx, KindUnit, Filters{LabelContains: "nobel"}, 0)
	require.NoError(t, err)
	require.Len(t, byLabel, 1)
	assert.Equal(t, "u1", byLabel[0].ID)

	yes := true
	withVec, err := s.QueryByKind(ctx, KindUnit, Filters{HasEmbedding: &yes}, 0)
	require.NoError(t, err)
	require.Len(t, withVec, 1)
	assert.Equal(t, "u1", withVec[0].ID)

	limited, err := s.QueryByKind(ctx, KindUnit, Filters{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "a", Kind: KindUnit, Corpus: "c"})

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	v := snap.Version()

	mustUpsert(t, s, Element{ID: "b", Kind: KindUnit, Corpus: "c"})

	assert.Equal(t, 1, snap.Len())
	assert.Nil(t, snap.Get("b"))
	assert.Equal(t, v, snap.Version())
	assert.Greater(t, s.Version(), v)
}

func TestCorpusHealth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, Element{ID: "e1", Kind: KindEntity, Corpus: "c", Label: "A"})
	mustUpsert(t, s, Element{ID: "u1", Kind: KindUnit, Corpus: "c", Embedding: []float32{1}})
	mustUpsert(t, s, Element{ID: "u2", Kind: KindUnit, Corpus: "c"})
	mustUpsert(t, s, Element{ID: "lone", Kind: KindUnit, Corpus: "c"})
	require.NoError(t, s.AddEdge(ctx, Edge{Predicate: PredHasUnit, Src: "e1", Dst: "u1"}))
	require.NoError(t, s.AddEdge(ctx, Edge{Predicate: PredHasUnit, Src: "e1", Dst: "u2"}))

	health, err := s.CorpusHealth(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, health.Counts[KindEntity])
	assert.Equal(t, 3, health.Counts[KindUnit])
	assert.InDelta(t, 1.0/3.0, health.EmbeddingCoverage, 1e-9)
	assert.Equal(t, 3, health.LargestComponentSize)
}

func TestRetrievabilityRules(t *testing.T) {
	overview := Element{Kind: KindAttribute, SubType: SubTypeOverview}
	assert.False(t, overview.IsRetrievable())

	attr := Element{Kind: KindAttribute}
	assert.True(t, attr.IsRetrievable())

	entity := Element{Kind: KindEntity}
	assert.False(t, entity.IsRetrievable())

	unit := Element{Kind: KindUnit}
	assert.True(t, unit.IsRetrievable())
}
