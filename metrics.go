package rowfresh

import "github.com/hupe1980/rowfresh/freshen"

// MetricsObserver observes freshening events. It is defined in the freshen
// package and re-exported here so callers configuring a reader do not need
// to import the engine package.
type MetricsObserver = freshen.MetricsObserver

// NoopMetricsObserver is a no-op MetricsObserver.
type NoopMetricsObserver = freshen.NoopMetricsObserver
