// Package fault defines the transport-neutral error taxonomy shared by every
// corpusd component.
//
// Every failure that crosses a component boundary is a *Error carrying a
// machine-readable Code, a human-readable message, and whether a retry is
// advisable. Adapters wrap their transport errors into the taxonomy at the
// boundary; callers branch on fault.CodeOf rather than on provider-specific
// error types.
//
// The package also provides Retry, the single bounded-backoff helper used for
// the LLM and embedding adapters' retries. Graph store calls are not retried.
package fault
