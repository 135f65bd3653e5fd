// Package hnsw implements the approximate nearest-neighbour index over
// element embeddings (Hierarchical Navigable Small World graphs).
//
// The index is deliberately deterministic: level assignment draws from a
// seeded source, and all candidate orderings break ties by element id, so a
// given seed and insertion order always reproduce the same layer structure
// and the same search results. Layer-0 adjacency is exposed through
// BaseLayerEdges for semantic-edge construction; the index can be rebuilt
// from the graph store at any time.
package hnsw
