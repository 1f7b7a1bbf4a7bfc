package freshen

import (
	"time"

	"github.com/hupe1980/rowfresh/store"
)

// MetricsObserver defines the interface for observing freshening events.
type MetricsObserver interface {
	// OnFreshen is called when a worker finishes. stale reports whether the
	// score function ran.
	OnFreshen(column store.ColumnName, stale bool, duration time.Duration, err error)

	// OnFlush is called when a buffer commit completes.
	OnFlush(cells int, duration time.Duration, err error)

	// OnReread is called when a registry reread completes.
	OnReread(bindings int, duration time.Duration, err error)

	// OnTimeout is called when a request deadline fires with workers still
	// outstanding.
	OnTimeout(pending int)

	// OnQueueDepth reports the depth of a background queue.
	OnQueueDepth(name string, depth int)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (o *NoopMetricsObserver) OnFreshen(column store.ColumnName, stale bool, duration time.Duration, err error) {
}
func (o *NoopMetricsObserver) OnFlush(cells int, duration time.Duration, err error)    {}
func (o *NoopMetricsObserver) OnReread(bindings int, duration time.Duration, err error) {}
func (o *NoopMetricsObserver) OnTimeout(pending int)                                   {}
func (o *NoopMetricsObserver) OnQueueDepth(name string, depth int)                     {}
