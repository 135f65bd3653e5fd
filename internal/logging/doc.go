// Package logging wraps Zap with context-aware methods and the correlation
// fields navigation cares about: trace/span ids, corpus, session and request
// identifiers travel in the context and land on every log line.
//
// Output goes to stdout (JSON or console) and optionally to an OTEL log
// bridge when a LoggerProvider is supplied.
package logging
