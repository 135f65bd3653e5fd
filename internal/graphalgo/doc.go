// Package graphalgo implements the structural algorithms that run over graph
// snapshots: k-core entity selection, sampled betweenness centrality, Leiden
// community detection, personalized PageRank, and the seeded k-means used for
// community semantic matching.
//
// Every algorithm consumes an immutable *graph.Snapshot and returns an
// immutable result. All randomised steps draw from explicit seeds and all
// orderings break ties by element id, so results are reproducible for a given
// snapshot version.
package graphalgo
