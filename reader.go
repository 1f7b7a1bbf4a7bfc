package rowfresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hupe1980/rowfresh/freshen"
	"github.com/hupe1980/rowfresh/registry"
	"github.com/hupe1980/rowfresh/store"
)

// Reader is the freshening read entry point for one table. It resolves the
// Fresheners applicable to each request, dispatches one worker per column
// onto a shared pool, bounds its wait with a deadline, and assembles the
// response from whatever the chosen mode and deadline allow.
//
// Readers are safe for concurrent use.
type Reader struct {
	table        store.Table
	registry     registry.Registry
	timeout      time.Duration
	rereadPeriod time.Duration
	partial      bool
	columns      []store.ColumnName
	logger       *Logger
	metrics      MetricsObserver
	limiter      *rate.Limiter

	pool    *freshen.WorkerPool
	readers *freshen.ReaderPool

	snapshot atomic.Pointer[fresheners]

	sf      singleflight.Group
	closeCh chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	reqSeq  atomic.Uint64
}

// fresheners is one immutable registry snapshot. The reader swaps the
// snapshot pointer atomically on reread; requests in flight keep the
// snapshot they started with, and its Fresheners drain by reference count.
type fresheners struct {
	byColumn map[store.ColumnName]*freshen.Freshener
}

// retire drops each Freshener's base reference. Teardown happens when the
// last request-held reference is released.
func (s *fresheners) retire(log *Logger) {
	for col, f := range s.byColumn {
		if err := f.Release(); err != nil {
			log.Error("freshener teardown failed", "column", col.String(), "error", err)
		}
	}
}

func newReader(ctx context.Context, b ReaderBuilder) (*Reader, error) {
	log := b.logger
	if log == nil {
		log = NoopLogger()
	}
	var metrics MetricsObserver = b.metrics
	if metrics == nil {
		metrics = &NoopMetricsObserver{}
	}

	r := &Reader{
		table:        b.table,
		registry:     b.registry,
		timeout:      b.timeout,
		rereadPeriod: b.rereadPeriod,
		partial:      b.partial,
		columns:      b.columns,
		logger:       log.WithTable(b.table.Name()),
		metrics:      metrics,
		pool:         freshen.NewWorkerPool(b.workers),
		readers:      freshen.NewReaderPool(b.table, b.readerPoolSize),
		closeCh:      make(chan struct{}),
	}
	if b.scoreBurst > 0 {
		r.limiter = rate.NewLimiter(b.scoreLimit, b.scoreBurst)
	}
	r.snapshot.Store(&fresheners{byColumn: map[store.ColumnName]*freshen.Freshener{}})

	if err := r.reread(ctx); err != nil {
		r.pool.Close()
		_ = r.readers.Close()
		return nil, err
	}

	if r.rereadPeriod > 0 {
		r.wg.Add(1)
		go r.rereadLoop()
	}
	return r, nil
}

// GetOption customizes a single Get call.
type GetOption func(*getOptions)

type getOptions struct {
	timeout   time.Duration
	overrides map[string]string
}

// WithTimeout overrides the reader-level freshening timeout for one
// request.
func WithTimeout(d time.Duration) GetOption {
	return func(o *getOptions) {
		o.timeout = d
	}
}

// WithParameterOverrides sets request-level parameters that shadow the
// Fresheners' own parameters for this request.
func WithParameterOverrides(overrides map[string]string) GetOption {
	return func(o *getOptions) {
		o.overrides = overrides
	}
}

// Get reads a row, freshening the requested columns to the extent the
// configured mode and deadline allow. Workers still running when the
// deadline fires are not cancelled; they commit their results in the
// background, visible to later reads.
func (r *Reader) Get(ctx context.Context, key store.RowKey, req store.DataRequest, opts ...GetOption) (store.RowData, error) {
	if r.closed.Load() {
		return store.RowData{}, ErrReaderClosed
	}

	o := getOptions{timeout: r.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	applicable := r.acquire(req)
	if len(applicable) == 0 {
		// No Freshener applies: plain read, no freshening overhead.
		return r.readers.Get(ctx, key, req)
	}

	start := time.Now()
	rc := freshen.NewRequestContext(freshen.RequestConfig{
		ID:         fmt.Sprintf("req-%d", r.reqSeq.Add(1)),
		Key:        key,
		Request:    req,
		Fresheners: applicable,
		Overrides:  o.overrides,
		Partial:    r.partial,
		Table:      r.table,
		Readers:    r.readers,
		Pool:       r.pool,
		Limiter:    r.limiter,
		Logger:     engineLogger{l: r.logger},
		Metrics:    r.metrics,
	})
	rc.Start(ctx)

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	timedOut := false
	select {
	case <-rc.Done():
	case <-timer.C:
		timedOut = true
		r.metrics.OnTimeout(rc.Pending())
	case <-ctx.Done():
		return store.RowData{}, ctx.Err()
	}

	data, err := r.assemble(ctx, rc, key, req, timedOut)
	r.logger.LogGet(key, rc.Workers(), timedOut, time.Since(start), err)
	return data, err
}

// assemble picks the response source: freshened re-read, the shared
// client-data fetch, or a plain fallback read after a timeout.
func (r *Reader) assemble(ctx context.Context, rc *freshen.RequestContext, key store.RowKey, req store.DataRequest, timedOut bool) (store.RowData, error) {
	if !timedOut {
		if rc.AllFailed() {
			return store.RowData{}, &ErrFreshening{Key: key, Columns: rc.Workers(), cause: rc.Err()}
		}
		if ferr := rc.FlushErr(); ferr != nil {
			// The workers rescored but the terminal commit failed; the row
			// in the store is still the unfreshened one.
			return store.RowData{}, &ErrCommit{Key: key, cause: ferr}
		}
		if rc.Wrote() {
			return r.readers.Get(ctx, key, req)
		}
		return rc.ClientData().Get(ctx)
	}

	// Deadline fired first. In partial mode any flushes that already landed
	// should be visible; otherwise answer from the shared fetch if it has
	// resolved, or fall back to a plain read of the current row.
	if r.partial && rc.Wrote() {
		return r.readers.Get(ctx, key, req)
	}
	if data, err, ok := rc.ClientData().TryGet(); ok {
		return data, err
	}
	return r.readers.Get(ctx, key, req)
}

// acquire resolves the Fresheners applicable to this request and retains
// them, atomically with respect to a concurrent snapshot swap. If a reread
// retires the snapshot between resolution and retention, TryRetain reports
// the drained Freshener, the partial retention is rolled back, and the whole
// acquisition restarts against the new snapshot.
func (r *Reader) acquire(req store.DataRequest) map[store.ColumnName]*freshen.Freshener {
	for {
		applicable := r.resolve(req)
		retained := make([]*freshen.Freshener, 0, len(applicable))
		ok := true
		for _, f := range applicable {
			if !f.TryRetain() {
				ok = false
				break
			}
			retained = append(retained, f)
		}
		if ok {
			return applicable
		}
		for _, f := range retained {
			if err := f.Release(); err != nil {
				r.logger.Error("freshener teardown failed", "error", err)
			}
		}
	}
}

// resolve filters the current snapshot down to the Fresheners applicable to
// this request: qualified bindings match their exact column, family
// bindings fan out to each requested qualifier of that family (qualified
// bindings shadow them), and the columns-to-freshen allowlist applies last.
func (r *Reader) resolve(req store.DataRequest) map[store.ColumnName]*freshen.Freshener {
	snap := r.snapshot.Load()
	applicable := make(map[store.ColumnName]*freshen.Freshener)
	for _, c := range req.Columns {
		if !c.IsFullyQualified() {
			// Bare-family request entries have no concrete write target;
			// they are served by the plain read untouched.
			continue
		}
		if !r.allowed(c) {
			continue
		}
		if f, ok := snap.byColumn[c]; ok {
			applicable[c] = f
			continue
		}
		if f, ok := snap.byColumn[store.FamilyName(c.Family)]; ok {
			applicable[c] = f
		}
	}
	return applicable
}

func (r *Reader) allowed(c store.ColumnName) bool {
	if len(r.columns) == 0 {
		return true
	}
	for _, a := range r.columns {
		if a == c {
			return true
		}
		if !a.IsFullyQualified() && a.Family == c.Family {
			return true
		}
	}
	return false
}

// RereadFresheners reloads column bindings from the registry and atomically
// swaps in a new snapshot. Requests already in flight keep their bindings;
// the old snapshot's Fresheners drain by reference count. Concurrent calls
// (manual or periodic) are collapsed into one load.
func (r *Reader) RereadFresheners(ctx context.Context) error {
	if r.closed.Load() {
		return ErrReaderClosed
	}
	_, err, _ := r.sf.Do("reread", func() (interface{}, error) {
		return nil, r.reread(ctx)
	})
	return err
}

func (r *Reader) reread(ctx context.Context) error {
	start := time.Now()
	bindings, err := r.registry.LoadFresheners(ctx, r.table.Name())
	if err != nil {
		r.metrics.OnReread(0, time.Since(start), err)
		r.logger.LogReread(0, err)
		return err
	}

	byColumn := make(map[store.ColumnName]*freshen.Freshener, len(bindings))
	for col, b := range bindings {
		byColumn[col] = freshen.NewFreshener(b.Policy, b.Score, b.KVStores, b.Parameters)
	}

	old := r.snapshot.Swap(&fresheners{byColumn: byColumn})
	if old != nil {
		old.retire(r.logger)
	}

	r.metrics.OnReread(len(byColumn), time.Since(start), nil)
	r.logger.LogReread(len(byColumn), nil)
	return nil
}

func (r *Reader) rereadLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.rereadPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.closeCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.rereadPeriod)
			_ = r.RereadFresheners(ctx)
			cancel()
		}
	}
}

// Close stops the reread loop, waits for accepted freshening work to
// finish, retires the current snapshot and releases the pools. The target
// table itself stays open; the caller owns it.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(r.closeCh)
	r.wg.Wait()

	// Worker pool first: draining it lets in-flight workers finish their
	// pooled reads and commits before the reader pool goes away.
	r.pool.Close()

	var firstErr error
	if err := r.readers.Close(); err != nil {
		firstErr = err
	}

	if old := r.snapshot.Swap(&fresheners{byColumn: map[store.ColumnName]*freshen.Freshener{}}); old != nil {
		old.retire(r.logger)
	}
	return firstErr
}
