package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Hash is a deterministic token-hashing embedder. Texts sharing vocabulary
// land near each other in cosine space, which is enough for tests and for
// keyword-grade offline corpora. It never fails and needs no network.
type Hash struct {
	dim int
}

// NewHash creates a hash embedder of the given dimension.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = 64
	}
	return &Hash{dim: dim}
}

// Model implements Service.
func (h *Hash) Model() string { return "hash-v1" }

// Dim implements Service.
func (h *Hash) Dim() int { return h.dim }

// EmbedQuery implements Service.
func (h *Hash) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

// EmbedDocuments implements Service.
func (h *Hash) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *Hash) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		hasher := fnv.New32a()
		hasher.Write([]byte(tok))
		sum := hasher.Sum32()
		slot := int(sum % uint32(h.dim))
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[slot] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

var _ Service = (*Hash)(nil)
