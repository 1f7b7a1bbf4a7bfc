package freshen

import (
	"context"

	"github.com/hupe1980/rowfresh/store"
)

// RowFuture is an asynchronously resolved row read. It is memoized: the
// fetch runs once and every observer sees the same result, which is how a
// request shares a single client-data read across all of its workers.
type RowFuture struct {
	done chan struct{}
	data store.RowData
	err  error
}

// newRowFuture starts fetch on its own goroutine.
func newRowFuture(fetch func() (store.RowData, error)) *RowFuture {
	f := &RowFuture{done: make(chan struct{})}
	go func() {
		f.data, f.err = fetch()
		close(f.done)
	}()
	return f
}

// Get blocks until the fetch resolves or ctx is done.
func (f *RowFuture) Get(ctx context.Context) (store.RowData, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return store.RowData{}, ctx.Err()
	}
}

// TryGet returns the result without blocking. ok is false while the fetch
// is still in flight.
func (f *RowFuture) TryGet() (data store.RowData, err error, ok bool) {
	select {
	case <-f.done:
		return f.data, f.err, true
	default:
		return store.RowData{}, nil, false
	}
}
