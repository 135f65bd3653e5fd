// Package embeddings generates vector embeddings for element content.
//
// The Service interface hides the provider; the langchaingo-backed
// implementation talks to OpenAI-compatible endpoints (including local TEI
// servers). Hash is a deterministic offline embedder used by tests and by
// corpora that only need keyword-grade similarity.
//
// All embeddings attached to one corpus share one model and one dimension;
// the vectorstore archive records the model id so stale vectors are
// invalidated when the model changes.
package embeddings
