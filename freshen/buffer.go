package freshen

import (
	"context"
	"sync"

	"github.com/hupe1980/rowfresh/store"
)

// Buffer accumulates pending cell writes and commits them to the store as
// one atomic batch. In atomic mode all workers of a request share one
// Buffer; in partial mode each rescoring worker owns a private Buffer
// holding at most one write.
//
// Flush may be called at most once. Calling it twice is a programming error
// and panics rather than silently re-committing.
type Buffer struct {
	table store.Table

	mu      sync.Mutex
	puts    []store.Put
	flushed bool
}

// NewBuffer creates an empty buffer committing to the given table.
func NewBuffer(table store.Table) *Buffer {
	return &Buffer{table: table}
}

// Put appends a pending write.
func (b *Buffer) Put(key store.RowKey, col store.ColumnName, ts int64, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		panic("freshen: put into flushed buffer")
	}
	b.puts = append(b.puts, store.Put{Key: key, Column: col, Timestamp: ts, Value: value})
}

// Len returns the number of pending writes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.puts)
}

// Flush commits all pending writes as one atomic batch. An empty buffer
// flushes without touching the store.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.flushed {
		b.mu.Unlock()
		panic("freshen: buffer flushed twice")
	}
	b.flushed = true
	puts := b.puts
	b.puts = nil
	b.mu.Unlock()

	if len(puts) == 0 {
		return nil
	}

	w, err := b.table.NewBatchWriter()
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Write(ctx, puts)
}
