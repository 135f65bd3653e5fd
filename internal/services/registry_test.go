package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
	"github.com/fyrsmithlabs/corpusd/internal/llm"
)

func TestNewRegistryWiresServices(t *testing.T) {
	reg, err := NewRegistry(Options{
		Store:    graph.NewMemoryStore(),
		LLM:      llm.NewMock(),
		Embedder: embeddings.NewHash(64),
	})
	require.NoError(t, err)

	assert.NotNil(t, reg.Store())
	assert.NotNil(t, reg.Embedder())
	assert.NotNil(t, reg.LLM())
	assert.NotNil(t, reg.Pipeline())
	assert.NotNil(t, reg.Dual())
	assert.NotNil(t, reg.Navigator())
	assert.NotNil(t, reg.Sessions())
}

func TestNewRegistryRequiresStore(t *testing.T) {
	_, err := NewRegistry(Options{
		LLM:      llm.NewMock(),
		Embedder: embeddings.NewHash(64),
	})
	assert.Error(t, err)
}
