// Package freshen implements the per-request freshening engine: reference
// counted Fresheners, the shared request context that coordinates one worker
// per column, the buffered-write commit protocol, and the bounded reader and
// worker pools.
//
// The public entry point lives in the rowfresh root package; freshen is the
// machinery underneath it. FreshnessPolicy and ScoreFunction are the two
// extension points callers implement.
package freshen
