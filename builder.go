// Package rowfresh: fluent builder API for creating readers.
// The builder is immutable - each method returns a new builder with the
// updated configuration.
package rowfresh

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/rowfresh/registry"
	"github.com/hupe1980/rowfresh/store"
)

// Defaults applied by Build when an option was not set.
const (
	// DefaultTimeout is how long Get waits for freshening before returning
	// best-effort data.
	DefaultTimeout = 100 * time.Millisecond

	// DefaultReaderPoolSize bounds concurrent store readers.
	DefaultReaderPoolSize = 8
)

const (
	setTimeout = 1 << iota
	setReread
	setPartial
	setColumns
	setWorkers
	setReaderPool
	setScoreRate
)

// New creates a ReaderBuilder targeting the given table, with bindings
// resolved through reg.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. Setting the same option twice is a configuration
// error reported by Build, before any request is served.
//
// Example:
//
//	reader, err := rowfresh.New(table, reg).
//	    Timeout(100 * time.Millisecond).
//	    AutomaticReread(time.Hour).
//	    PartialFreshening(true).
//	    Build(ctx)
func New(table store.Table, reg registry.Registry) ReaderBuilder {
	return ReaderBuilder{
		table:          table,
		registry:       reg,
		timeout:        DefaultTimeout,
		readerPoolSize: DefaultReaderPoolSize,
	}
}

// ReaderBuilder is an immutable fluent builder for creating Readers.
type ReaderBuilder struct {
	table          store.Table
	registry       registry.Registry
	timeout        time.Duration
	rereadPeriod   time.Duration
	partial        bool
	columns        []store.ColumnName
	logger         *Logger
	metrics        MetricsObserver
	workers        int
	readerPoolSize int
	scoreLimit     rate.Limit
	scoreBurst     int

	setBits uint
	err     error
}

func (b ReaderBuilder) mark(bit uint, name string) ReaderBuilder {
	if b.err == nil && b.setBits&bit != 0 {
		b.err = &ErrBuild{Reason: name + " already set"}
	}
	b.setBits |= bit
	return b
}

// Timeout sets how long Get waits for freshening before returning stale
// data. Must be positive. May be overridden per request with WithTimeout.
// Default: 100ms.
func (b ReaderBuilder) Timeout(d time.Duration) ReaderBuilder {
	b = b.mark(setTimeout, "timeout")
	if b.err == nil && d <= 0 {
		b.err = &ErrBuild{Reason: "timeout must be positive"}
	}
	b.timeout = d
	return b
}

// AutomaticReread makes the reader reload freshener bindings from the
// registry on the given interval. Must be positive; without this option the
// reader never rereads automatically.
func (b ReaderBuilder) AutomaticReread(period time.Duration) ReaderBuilder {
	b = b.mark(setReread, "reread period")
	if b.err == nil && period <= 0 {
		b.err = &ErrBuild{Reason: "reread period must be positive"}
	}
	b.rereadPeriod = period
	return b
}

// PartialFreshening controls the consistency mode. When true, each stale
// column commits independently, immediately after its score function
// returns, and Get may surface any subset of those commits. When false
// (default), all writes of a request are buffered together and flushed as
// one atomic batch when the last worker finishes.
func (b ReaderBuilder) PartialFreshening(allow bool) ReaderBuilder {
	b = b.mark(setPartial, "partial freshening")
	b.partial = allow
	return b
}

// ColumnsToFreshen restricts freshening to the given columns.
//
//   - A qualified column enables the Freshener for that column only.
//   - A family name enables every Freshener bound in that family.
//
// Default: all columns with bound Fresheners.
func (b ReaderBuilder) ColumnsToFreshen(columns ...store.ColumnName) ReaderBuilder {
	b = b.mark(setColumns, "columns to freshen")
	b.columns = columns
	return b
}

// Workers sets the size of the shared freshening worker pool.
// Default: 2x GOMAXPROCS (freshening is store-I/O bound).
func (b ReaderBuilder) Workers(n int) ReaderBuilder {
	b = b.mark(setWorkers, "workers")
	if b.err == nil && n <= 0 {
		b.err = &ErrBuild{Reason: "workers must be positive"}
	}
	b.workers = n
	return b
}

// ReaderPoolSize bounds the number of store readers checked out
// concurrently across all requests. Default: 8.
func (b ReaderBuilder) ReaderPoolSize(n int) ReaderBuilder {
	b = b.mark(setReaderPool, "reader pool size")
	if b.err == nil && n <= 0 {
		b.err = &ErrBuild{Reason: "reader pool size must be positive"}
	}
	b.readerPoolSize = n
	return b
}

// ScoreRateLimit caps score-function executions per second across all
// requests, bounding the layer's write amplification. burst must be at
// least 1. Default: unlimited.
func (b ReaderBuilder) ScoreRateLimit(limit rate.Limit, burst int) ReaderBuilder {
	b = b.mark(setScoreRate, "score rate limit")
	if b.err == nil && burst < 1 {
		b.err = &ErrBuild{Reason: "score rate burst must be at least 1"}
	}
	b.scoreLimit = limit
	b.scoreBurst = burst
	return b
}

// WithLogger sets the structured logger for operation tracing.
func (b ReaderBuilder) WithLogger(l *Logger) ReaderBuilder {
	b.logger = l
	return b
}

// WithMetrics sets the metrics observer for monitoring.
func (b ReaderBuilder) WithMetrics(m MetricsObserver) ReaderBuilder {
	b.metrics = m
	return b
}

// Build validates the configuration, loads the initial freshener snapshot
// from the registry, and returns a serving Reader.
func (b ReaderBuilder) Build(ctx context.Context) (*Reader, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.table == nil {
		return nil, &ErrBuild{Reason: "target table must be set"}
	}
	if b.registry == nil {
		return nil, &ErrBuild{Reason: "registry must be set"}
	}
	return newReader(ctx, b)
}

// MustBuild creates the Reader, panicking on error.
func (b ReaderBuilder) MustBuild(ctx context.Context) *Reader {
	r, err := b.Build(ctx)
	if err != nil {
		panic(err)
	}
	return r
}
