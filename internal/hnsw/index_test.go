package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

func newIndex(t *testing.T, dim int) *Index {
	t.Helper()
	ix, err := New(DefaultConfig(dim))
	require.NoError(t, err)
	return ix
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Dim: 0, M: 16, EfConstruction: 200, EfSearch: 50})
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))

	_, err = New(Config{Dim: 4, M: 1, EfConstruction: 200, EfSearch: 50})
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))

	_, err = New(Config{Dim: 4, M: 16, EfConstruction: 8, EfSearch: 50})
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))
}

func TestInsertDimensionMismatch(t *testing.T) {
	ix := newIndex(t, 4)
	err := ix.Insert("a", []float32{1, 0})
	assert.Equal(t, fault.CodeDimensionMismatch, fault.CodeOf(err))
}

func TestInsertDuplicateID(t *testing.T) {
	ix := newIndex(t, 2)
	require.NoError(t, ix.Insert("a", []float32{1, 0}))
	err := ix.Insert("a", []float32{0, 1})
	assert.Equal(t, fault.CodeConflict, fault.CodeOf(err))
}

func TestSearchFindsNearest(t *testing.T) {
	ix := newIndex(t, 2)
	require.NoError(t, ix.Insert("east", []float32{1, 0}))
	require.NoError(t, ix.Insert("north", []float32{0, 1}))
	require.NoError(t, ix.Insert("northeast", []float32{1, 1}))

	hits, err := ix.Search([]float32{1, 0.1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].ID)
	assert.Equal(t, "northeast", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchFilter(t *testing.T) {
	ix := newIndex(t, 2)
	require.NoError(t, ix.Insert("a", []float32{1, 0}))
	require.NoError(t, ix.Insert("b", []float32{0.9, 0.1}))

	hits, err := ix.Search([]float32{1, 0}, 2, func(id string) bool { return id != "a" })
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := newIndex(t, 2)
	hits, err := ix.Search([]float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// randomVectors produces a reproducible vector set independent of the index seed.
func randomVectors(n, dim int, seed int64) map[string][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make(map[string][]float32, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = float32(rng.NormFloat64())
		}
		out[fmt.Sprintf("v%03d", i)] = vec
	}
	return out
}

func TestDeterministicAcrossBuilds(t *testing.T) {
	vecs := randomVectors(200, 8, 7)

	build := func() *Index {
		ix, err := New(DefaultConfig(8))
		require.NoError(t, err)
		for i := 0; i < 200; i++ {
			id := fmt.Sprintf("v%03d", i)
			require.NoError(t, ix.Insert(id, vecs[id]))
		}
		return ix
	}

	a, b := build(), build()

	query := []float32{1, 0, 0.5, 0, 0, 0.25, 0, 0}
	hitsA, err := a.Search(query, 10, nil)
	require.NoError(t, err)
	hitsB, err := b.Search(query, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, hitsA, hitsB)

	assert.Equal(t, a.BaseLayerEdges(), b.BaseLayerEdges())
}

func TestRecallAgainstExact(t *testing.T) {
	vecs := randomVectors(300, 8, 11)
	ix := newIndex(t, 8)
	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("v%03d", i)
		require.NoError(t, ix.Insert(id, vecs[id]))
	}

	query := vecs["v042"]
	hits, err := ix.Search(query, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// The query vector itself must rank first at full similarity.
	assert.Equal(t, "v042", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	// Scores are non-increasing.
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestBaseLayerEdgesConnected(t *testing.T) {
	ix := newIndex(t, 4)
	for i := 0; i < 20; i++ {
		vec := []float32{float32(math.Cos(float64(i))), float32(math.Sin(float64(i))), 1, 0}
		require.NoError(t, ix.Insert(fmt.Sprintf("n%02d", i), vec))
	}

	edges := ix.BaseLayerEdges()
	assert.NotEmpty(t, edges)
	for _, e := range edges {
		assert.Less(t, e[0], e[1])
	}
}
