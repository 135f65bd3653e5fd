// Package graph defines the typed heterogeneous knowledge graph: element
// kinds, edge predicates, and the Store contract used by every algorithm and
// the navigator.
//
// The store owns all element records. Elements cross package boundaries by
// identifier; there are no object-graph cycles in memory — algorithms
// traverse via the store. Read paths operate on a Snapshot, a consistent
// copy-on-read view tagged with the store version at capture time, so an
// algorithm run never observes writes started after it.
//
// MemoryStore is the reference implementation: a single logical writer,
// many readers, deterministic iteration order (by id), and connectsTo weight
// accumulation on repeated edges.
package graph
