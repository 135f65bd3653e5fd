// Package search implements the retrieval pipeline: dual-mode entry-point
// identification (exact label match plus vector similarity), shallow
// personalized-PageRank traversal to cross nodes, and the type-aware
// retrieval filter that keeps only retrievable content.
package search
