package freshen

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hupe1980/rowfresh/store"
)

// RequestConfig carries everything a request context needs. Fresheners must
// already be retained on behalf of this request; the context takes over the
// obligation to release them.
type RequestConfig struct {
	ID         string
	Key        store.RowKey
	Request    store.DataRequest
	Fresheners map[store.ColumnName]*Freshener
	Overrides  map[string]string
	Partial    bool
	Table      store.Table
	Readers    *ReaderPool
	Pool       *WorkerPool
	Limiter    *rate.Limiter
	Logger     Logger
	Metrics    MetricsObserver
}

// RequestContext is the shared coordination state for one read request. It
// tracks the outstanding-worker count, owns the shared buffer in atomic mode,
// memoizes the shared client-data fetch, and carries the sticky any-write
// flag.
//
// Completion detection is a race to be last: the counter starts at the
// number of dispatched workers, every worker decrements exactly once, and
// the unique worker observing zero performs the shared flush. No barrier or
// join primitive is needed.
type RequestContext struct {
	id         string
	key        store.RowKey
	clientReq  store.DataRequest
	fresheners map[store.ColumnName]*Freshener
	overrides  map[string]string
	partial    bool
	table      store.Table
	readers    *ReaderPool
	pool       *WorkerPool
	limiter    *rate.Limiter
	logger     Logger
	metrics    MetricsObserver

	// detachedCtx outlives the caller's deadline: workers, late flushes and
	// the shared client fetch run against it so a timeout never cancels
	// work in progress.
	detachedCtx context.Context

	sharedBuf *Buffer

	outstanding atomic.Int32
	anyWrite    atomic.Bool
	done        chan struct{}

	clientOnce   sync.Once
	clientFuture *RowFuture

	errMu    sync.Mutex
	firstErr error
	flushErr error
	failures int
}

// NewRequestContext creates the coordination state for one request.
func NewRequestContext(cfg RequestConfig) *RequestContext {
	c := &RequestContext{
		id:         cfg.ID,
		key:        cfg.Key,
		clientReq:  cfg.Request,
		fresheners: cfg.Fresheners,
		overrides:  cfg.Overrides,
		partial:    cfg.Partial,
		table:      cfg.Table,
		readers:    cfg.Readers,
		pool:       cfg.Pool,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		done:       make(chan struct{}),
	}
	if c.logger == nil {
		c.logger = &noopLogger{}
	}
	if c.metrics == nil {
		c.metrics = &NoopMetricsObserver{}
	}
	if !c.partial {
		c.sharedBuf = NewBuffer(cfg.Table)
	}
	c.outstanding.Store(int32(len(cfg.Fresheners)))
	if len(cfg.Fresheners) == 0 {
		close(c.done)
	}
	return c
}

// Start dispatches one worker per bound column onto the shared pool. Workers
// run on a context detached from ctx: the caller's deadline bounds only how
// long the reader waits, never the work itself.
func (c *RequestContext) Start(ctx context.Context) {
	c.detachedCtx = context.WithoutCancel(ctx)

	for column, freshener := range c.fresheners {
		w := &qualifiedWorker{rc: c, column: column, freshener: freshener}
		if err := c.pool.Submit(ctx, w.runOnPool); err != nil {
			// The worker will never run: settle its accounting here so
			// completion detection and refcounts stay balanced.
			c.recordErr(err)
			if c.finishWorker() == 0 {
				// A failed dispatch can still be the last finisher; the
				// terminal flush duty falls to it like any other worker.
				if !c.partial && c.Wrote() {
					if ferr := c.sharedBuf.Flush(c.detachedCtx); ferr != nil {
						c.recordFlushErr(ferr)
					}
				}
				c.complete()
			}
			if rerr := freshener.Release(); rerr != nil {
				c.logger.Errorf("%s release after failed dispatch: %v", c.id, rerr)
			}
		}
	}
	if c.pool != nil {
		c.metrics.OnQueueDepth("freshen", c.pool.QueueDepth())
	}
}

// Done is closed when every worker has finished.
func (c *RequestContext) Done() <-chan struct{} { return c.done }

// Wrote reports whether any worker buffered a write for this request.
func (c *RequestContext) Wrote() bool { return c.anyWrite.Load() }

// Workers returns the number of columns being freshened.
func (c *RequestContext) Workers() int { return len(c.fresheners) }

// Pending returns the number of workers still outstanding.
func (c *RequestContext) Pending() int { return int(c.outstanding.Load()) }

// Err returns the first worker failure, if any.
func (c *RequestContext) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.firstErr
}

// FlushErr returns the terminal shared-flush failure, if any. Set only in
// atomic mode; a partial-mode commit failure counts against its own worker
// instead.
func (c *RequestContext) FlushErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.flushErr
}

// AllFailed reports whether every worker failed.
func (c *RequestContext) AllFailed() bool {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.failures > 0 && c.failures == len(c.fresheners)
}

// ClientData returns the shared client-data future, creating it on first
// use. At most one such fetch is issued per request no matter how many
// workers observe it.
func (c *RequestContext) ClientData() *RowFuture {
	c.clientOnce.Do(func() {
		ctx := c.detachedCtx
		if ctx == nil {
			ctx = context.Background()
		}
		c.clientFuture = newRowFuture(func() (store.RowData, error) {
			return c.readers.Get(ctx, c.key, c.clientReq)
		})
	})
	return c.clientFuture
}

// openBuffer returns the buffer a rescoring worker should write into: the
// request-shared buffer in atomic mode, a fresh private one in partial mode.
func (c *RequestContext) openBuffer() *Buffer {
	if c.partial {
		return NewBuffer(c.table)
	}
	return c.sharedBuf
}

// markWrote sets the sticky any-write flag.
func (c *RequestContext) markWrote() { c.anyWrite.Store(true) }

// finishWorker decrements the outstanding counter and returns the remaining
// count. Exactly one caller observes zero; that caller owns the terminal
// flush (atomic mode) and signals completion afterwards via complete.
func (c *RequestContext) finishWorker() int32 {
	n := c.outstanding.Add(-1)
	if n < 0 {
		panic("freshen: worker finished twice")
	}
	return n
}

// complete closes the done channel. Called exactly once, by the last
// finisher, after any terminal flush has returned, so an observer woken by
// Done sees every committed write.
func (c *RequestContext) complete() { close(c.done) }

func (c *RequestContext) recordErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.failures++
	if c.firstErr == nil {
		c.firstErr = err
	}
}

func (c *RequestContext) recordFlushErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.flushErr == nil {
		c.flushErr = err
	}
}
