// Package zpt implements the navigation core: the Zoom/Pan/Tilt parameter
// model, the four-strategy corpuscle selector, the token-budgeted
// transformer, and the navigator service that ties them together with
// caching, rate limiting, timeouts and session/view provenance.
//
// Zoom picks the abstraction level (candidate kinds plus a result cap), Pan
// filters candidates (domains, keywords, entities, temporal range), and Tilt
// chooses the projection that dominates ranking. The selector always runs all
// four strategies in parallel and blends them with the zoom-specific weight
// table; a failed strategy degrades to a warning as long as one succeeded.
//
// Every navigation call that passes validation and rate limiting appends one
// immutable View to its session, recording parameters, selected ids with
// scores, per-stage timings, and error outcomes; a cancelled call appends
// none.
package zpt
