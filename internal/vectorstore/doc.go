// Package vectorstore persists element embeddings alongside the corpus using
// chromem-go, an embedded pure-Go vector database.
//
// The archive is the durable copy of every vector the enrichment stage
// produces: one collection per corpus, tagged with the embedding model id.
// Opening a collection written by a different model invalidates it, because
// vectors from different models are not comparable. The in-process HNSW
// index is rebuilt from the graph store; the archive exists so that rebuilds
// do not have to re-embed the corpus.
package vectorstore
