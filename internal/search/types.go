package search

import (
	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// Origin tags how a node entered the result set.
type Origin string

const (
	// OriginExact marks entry points found by label match.
	OriginExact Origin = "exact"

	// OriginVector marks entry points found by similarity.
	OriginVector Origin = "vector"

	// OriginCross marks nodes reached by PPR diffusion.
	OriginCross Origin = "cross"
)

// EntryPoint is one traversal seed.
type EntryPoint struct {
	ID     string
	Kind   graph.Kind
	Label  string
	Origin Origin
	Score  float64
}

// CrossNode is one node reached from the entry points.
type CrossNode struct {
	ID    string
	Kind  graph.Kind
	Score float64
}

// Item is one retrievable result with its metadata.
type Item struct {
	ID            string
	Kind          graph.Kind
	Label         string
	Content       string
	ContentLength int
	Origin        Origin
	Score         float64
}
