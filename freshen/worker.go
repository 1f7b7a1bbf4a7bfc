package freshen

import (
	"context"
	"time"

	"github.com/hupe1980/rowfresh/store"
)

// qualifiedWorker freshens one column in the context of one get request.
// One instance per (request, column), executed on the shared worker pool.
type qualifiedWorker struct {
	rc        *RequestContext
	column    store.ColumnName
	freshener *Freshener
}

// runOnPool is the pool entry point. It runs the freshness check and
// conditional rescore, then settles the worker's accounting in one place:
// the outstanding counter is decremented exactly once on every path
// (success, policy or score failure, I/O failure), the Freshener reference
// is released on every path, and the request's done signal fires only after
// the last finisher has completed its terminal flush.
func (w *qualifiedWorker) runOnPool() {
	rc := w.rc
	start := time.Now()

	stale, private, err := w.work(rc.detachedCtx)
	if err != nil {
		rc.recordErr(err)
		rc.logger.Errorf("%s freshener attached to %s failed: %v", rc.id, w.column, err)
	}

	wrote := false
	if rc.partial && private != nil {
		// Partial mode: a rescoring worker commits its private buffer
		// immediately, independent of the other workers' state. The commit
		// must land before the counter settles so that Done implies every
		// partial-mode write is visible.
		if ferr := w.flush(private); ferr != nil {
			rc.recordErr(ferr)
		} else {
			wrote = true
		}
	}

	if remaining := rc.finishWorker(); remaining == 0 {
		if !rc.partial && rc.Wrote() {
			// Atomic mode: the unique last finisher flushes the shared
			// buffer, which at this point holds every write buffered by
			// every worker of the request. A failed worker can be the last
			// finisher; it still owns the flush so the surviving columns'
			// writes are not lost.
			if ferr := w.flush(rc.sharedBuf); ferr != nil {
				rc.recordFlushErr(ferr)
			} else {
				wrote = true
			}
		}
		rc.complete()
	}

	rc.metrics.OnFreshen(w.column, stale, time.Since(start), err)
	if err == nil {
		rc.logger.Debugf("%s freshener attached to %s finished (stale=%t wrote=%t)", rc.id, w.column, stale, wrote)
	}

	if rerr := w.freshener.Release(); rerr != nil {
		rc.logger.Errorf("%s freshener release for %s: %v", rc.id, w.column, rerr)
	}
}

// work checks freshness and, if stale, rescores and buffers the new value.
// It returns the private buffer holding the write in partial mode (nil
// otherwise) and never touches the completion counter.
func (w *qualifiedWorker) work(ctx context.Context) (stale bool, private *Buffer, err error) {
	rc := w.rc
	fctx := &internalContext{
		clientReq: rc.clientReq,
		column:    w.column,
		params:    w.freshener.params,
		overrides: rc.overrides,
		kv:        w.freshener.kv,
	}

	policy := w.freshener.Policy()

	var dataToCheck store.RowData
	if policy.ShouldUseClientDataRequest(fctx) {
		dataToCheck, err = rc.ClientData().Get(ctx)
	} else {
		dataToCheck, err = rc.readers.Get(ctx, rc.key, policy.DataRequest(fctx))
	}
	if err != nil {
		return false, nil, err
	}

	fresh, err := policy.IsFresh(dataToCheck, fctx)
	if err != nil {
		return false, nil, err
	}
	if fresh {
		rc.logger.Debugf("%s freshener attached to %s returned fresh", rc.id, w.column)
		return false, nil, nil
	}

	rc.logger.Debugf("%s freshener attached to %s returned stale and will run its score function", rc.id, w.column)

	score := w.freshener.Score()
	input, err := rc.readers.Get(ctx, rc.key, score.DataRequest(fctx))
	if err != nil {
		return true, nil, err
	}

	if rc.limiter != nil {
		if err := rc.limiter.Wait(ctx); err != nil {
			return true, nil, err
		}
	}

	sv, err := score.Score(input, fctx)
	if err != nil {
		return true, nil, err
	}
	ts := sv.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	buffer := rc.openBuffer()
	buffer.Put(rc.key, w.column, ts, sv.Value)
	rc.markWrote()

	if rc.partial {
		return true, buffer, nil
	}
	return true, nil, nil
}

func (w *qualifiedWorker) flush(b *Buffer) error {
	start := time.Now()
	cells := b.Len()
	err := b.Flush(w.rc.detachedCtx)
	w.rc.metrics.OnFlush(cells, time.Since(start), err)
	return err
}
