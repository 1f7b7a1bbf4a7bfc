// Package rowfresh provides a read-through freshening layer for wide-column
// stores. On each read it decides, per requested column, whether the stored
// value is stale according to a pluggable freshness policy, and if so
// recomputes the value with a pluggable score function before returning data
// to the caller.
//
// # Quick Start
//
//	table := memstore.New("users")
//	reg := registry.NewStatic()
//	reg.Attach("users", store.NewColumnName("info", "recommendations"), registry.Binding{
//	    Policy: policy.NewShelfLife(time.Hour),
//	    Score:  recommendationScorer{},
//	})
//
//	reader, err := rowfresh.New(table, reg).
//	    Timeout(100 * time.Millisecond).
//	    AutomaticReread(time.Minute).
//	    Build(ctx)
//	if err != nil { ... }
//	defer reader.Close()
//
//	row, err := reader.Get(ctx, "user-42", store.NewDataRequest(
//	    store.NewColumnName("info", "recommendations")))
//
// # Consistency Modes
//
// By default a request commits all-or-nothing: the writes of every stale
// column are buffered together and flushed as one atomic batch when the last
// worker finishes. With PartialFreshening(true) each stale column commits
// independently, immediately after its score function returns, and the
// response may reflect any subset of them depending on timing.
//
// # Deadlines
//
// The timeout bounds how long Get waits, not how long freshening runs.
// Workers still running when the deadline fires continue in the background
// and commit their results to the store; a later read observes them.
//
// # Freshener Lifecycle
//
// Column bindings are loaded from a Registry into an immutable snapshot that
// is atomically swapped on reread. Fresheners are reference counted, so a
// swap never disrupts requests already holding the old bindings; auxiliary
// store connections close only after the last in-flight request drains.
package rowfresh
