// Package llm defines the language-model adapter the pipeline and the
// navigator consume, plus a langchaingo-backed implementation and a scripted
// mock for tests.
//
// The adapter surface mirrors the decomposition and navigation needs: unit
// extraction, entity extraction, relationship extraction, entity/community
// summarisation, semantic boundary identification, and a budget-bounded
// summary used during transformation. All calls pass through a shared rate
// limiter and a concurrency semaphore; transient provider failures surface as
// fault.Unavailable so callers can retry with fault.Retry.
package llm
