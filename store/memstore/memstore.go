// Package memstore provides an in-memory store.Table backed by Go maps.
// It is suitable for tests and for datasets that fit in memory.
package memstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/rowfresh/store"
)

// Compile-time interface check.
var _ store.Table = (*Table)(nil)

// Table is an in-memory wide-column table. All operations are guarded by a
// single RWMutex, which also makes batch writes atomic with respect to reads.
type Table struct {
	name string

	mu   sync.RWMutex
	rows map[store.RowKey]map[store.ColumnName][]store.Cell

	closed atomic.Bool
}

// New creates an empty in-memory table with the given name.
func New(name string) *Table {
	return &Table{
		name: name,
		rows: make(map[store.RowKey]map[store.ColumnName][]store.Cell),
	}
}

// Name returns the table identity.
func (t *Table) Name() string { return t.name }

// NewReader opens a reader against this table.
func (t *Table) NewReader() (store.RowReader, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	return &reader{table: t}, nil
}

// NewBatchWriter opens an atomic batch writer against this table.
func (t *Table) NewBatchWriter() (store.BatchWriter, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	return &writer{table: t}, nil
}

// Close marks the table closed. Outstanding readers and writers fail on
// their next operation.
func (t *Table) Close() error {
	t.closed.Store(true)
	return nil
}

// Get reads the newest cell per selected column. Exposed on the table
// directly for test convenience; RowReader delegates here.
func (t *Table) Get(key store.RowKey, req store.DataRequest) (store.RowData, error) {
	if t.closed.Load() {
		return store.RowData{}, store.ErrClosed
	}
	if key == "" {
		return store.RowData{}, store.ErrEmptyKey
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	data := store.RowData{Key: key, Cells: make(map[store.ColumnName]store.Cell)}
	row, ok := t.rows[key]
	if !ok {
		return data, nil
	}
	for col, versions := range row {
		if len(versions) == 0 || !req.Contains(col) {
			continue
		}
		data.Cells[col] = versions[0]
	}
	return data, nil
}

// Put writes a single cell. Test convenience; batch writers go through
// applyBatch.
func (t *Table) Put(key store.RowKey, col store.ColumnName, ts int64, value []byte) error {
	return t.applyBatch([]store.Put{{Key: key, Column: col, Timestamp: ts, Value: value}})
}

// VersionCount returns the number of stored versions for a column.
func (t *Table) VersionCount(key store.RowKey, col store.ColumnName) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows[key][col])
}

func (t *Table) applyBatch(puts []store.Put) error {
	if t.closed.Load() {
		return store.ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range puts {
		if p.Key == "" {
			return store.ErrEmptyKey
		}
		row, ok := t.rows[p.Key]
		if !ok {
			row = make(map[store.ColumnName][]store.Cell)
			t.rows[p.Key] = row
		}
		cell := store.Cell{Timestamp: p.Timestamp, Value: p.Value}
		versions := row[p.Column]
		// Newest first. Inserts are near-sorted in practice, so a linear
		// scan from the front is fine.
		idx := 0
		for idx < len(versions) && versions[idx].Timestamp > p.Timestamp {
			idx++
		}
		versions = append(versions, store.Cell{})
		copy(versions[idx+1:], versions[idx:])
		versions[idx] = cell
		row[p.Column] = versions
	}
	return nil
}

type reader struct {
	table  *Table
	closed atomic.Bool
}

func (r *reader) Get(ctx context.Context, key store.RowKey, req store.DataRequest) (store.RowData, error) {
	if r.closed.Load() {
		return store.RowData{}, store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return store.RowData{}, err
	}
	return r.table.Get(key, req)
}

func (r *reader) Close() error {
	r.closed.Store(true)
	return nil
}

type writer struct {
	table  *Table
	closed atomic.Bool
}

func (w *writer) Write(ctx context.Context, puts []store.Put) error {
	if w.closed.Load() {
		return store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.table.applyBatch(puts)
}

func (w *writer) Close() error {
	w.closed.Store(true)
	return nil
}
