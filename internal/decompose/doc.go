// Package decompose turns text chunks into the typed knowledge graph and
// enriches it in four stages:
//
//  1. Decompose: chunks → Units, Entities, Relationships (G₁).
//  2. Augment: important entities gain synthesised Attributes (G₂).
//  3. Aggregate: Leiden communities gain CommunityElements and Overview
//     attributes (G₃).
//  4. Enrich: TextElements, embeddings, and HNSW-derived semantic edges (G₄).
//
// Identifiers are content-derived, so re-running a stage over the same input
// is a no-op modulo timestamps: entity resolution deduplicates by case-folded
// label, and every other element hashes its defining content into its id.
// Chunks process in parallel; per-label keyed mutexes serialise entity
// find-or-create. A chunk whose LLM calls fail irrecoverably is reported and
// skipped — the partial graph committed before the failure remains.
package decompose
