package freshen

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/rowfresh/store"
)

// ReaderPool is a bounded, blocking-checkout pool of row readers shared by
// all workers of a process. Checkout blocks until a slot frees up or the
// caller's context is done; idle readers are reused.
type ReaderPool struct {
	table store.Table
	sem   *semaphore.Weighted

	mu     sync.Mutex
	idle   []store.RowReader
	closed bool
}

// NewReaderPool creates a pool with the given capacity. size must be
// positive.
func NewReaderPool(table store.Table, size int) *ReaderPool {
	if size <= 0 {
		size = 4
	}
	return &ReaderPool{
		table: table,
		sem:   semaphore.NewWeighted(int64(size)),
	}
}

// WithReader checks a reader out, runs fn, and checks it back in on every
// exit path, including a panic in fn.
func (p *ReaderPool) WithReader(ctx context.Context, fn func(r store.RowReader) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	r, err := p.checkout()
	if err != nil {
		p.sem.Release(1)
		return err
	}
	defer func() {
		p.checkin(r)
		p.sem.Release(1)
	}()
	return fn(r)
}

// Get is a convenience wrapper running a single pooled read.
func (p *ReaderPool) Get(ctx context.Context, key store.RowKey, req store.DataRequest) (store.RowData, error) {
	var data store.RowData
	err := p.WithReader(ctx, func(r store.RowReader) error {
		var err error
		data, err = r.Get(ctx, key, req)
		return err
	})
	return data, err
}

func (p *ReaderPool) checkout() (store.RowReader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		r := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return r, nil
	}
	return p.table.NewReader()
}

func (p *ReaderPool) checkin(r store.RowReader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = r.Close()
		return
	}
	p.idle = append(p.idle, r)
}

// Close closes all idle readers. Checked-out readers are closed as they are
// returned.
func (p *ReaderPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var firstErr error
	for _, r := range p.idle {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	return firstErr
}
