package embeddings

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

// fakeEmbedder implements the langchaingo embedder surface for tests.
type fakeEmbedder struct {
	dim   int
	fail  int32 // remaining failures before success
	calls int32
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if atomic.AddInt32(&f.fail, -1) >= 0 {
		return nil, errors.New("transient")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func testConfig(dim int) Config {
	cfg := DefaultConfig("test-model", dim)
	cfg.BatchSize = 2
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("", 8)
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(cfg.Validate()))

	cfg = DefaultConfig("m", 0)
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(cfg.Validate()))

	require.NoError(t, DefaultConfig("m", 8).Validate())
}

func TestEmbedDocumentsBatchesInOrder(t *testing.T) {
	f := &fakeEmbedder{dim: 4, fail: -1}
	p, err := NewProvider(f, testConfig(4))
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := p.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	// 5 inputs at batch size 2 -> 3 provider calls.
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.calls))
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	f := &fakeEmbedder{dim: 4, fail: 1}
	p, err := NewProvider(f, testConfig(4))
	require.NoError(t, err)

	vec, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	f := &fakeEmbedder{dim: 3, fail: -1}
	p, err := NewProvider(f, testConfig(4))
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "hello")
	assert.Equal(t, fault.CodeDimensionMismatch, fault.CodeOf(err))
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHash(32)
	ctx := context.Background()

	a, err := h.EmbedQuery(ctx, "Hinton won the Nobel Prize")
	require.NoError(t, err)
	b, err := h.EmbedQuery(ctx, "Hinton won the Nobel Prize")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestHashEmbedderSimilarityOrdering(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	q, _ := h.EmbedQuery(ctx, "nobel prize hinton")
	near, _ := h.EmbedQuery(ctx, "hinton was awarded the nobel prize")
	far, _ := h.EmbedQuery(ctx, "completely unrelated text about gardening")

	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
