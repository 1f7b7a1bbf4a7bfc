// Package pebblestore provides a store.Table backed by Pebble.
//
// Cells are laid out as one Pebble key per version:
//
//	rowKey \x00 family \x00 qualifier \x00 ^timestamp
//
// The timestamp suffix is big-endian and bit-inverted, so versions of one
// column sort newest first and a read is a short forward scan. Row keys,
// families and qualifiers must not contain NUL bytes.
package pebblestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/hupe1980/rowfresh/store"
)

// Compile-time interface check.
var _ store.Table = (*Table)(nil)

// Config holds tunable parameters for a Table. Use functional Option values
// with Open rather than constructing a Config directly.
type Config struct {
	// CacheSize is the shared block-cache capacity in bytes.
	CacheSize int64

	// SyncWrites makes batch commits wait for the WAL fsync.
	SyncWrites bool
}

// Option mutates the Config during Open.
type Option func(*Config)

// WithCacheSize sets the Pebble block-cache capacity in bytes.
func WithCacheSize(bytes int64) Option {
	return func(c *Config) { c.CacheSize = bytes }
}

// WithSyncWrites makes commits durable before Write returns.
func WithSyncWrites(sync bool) Option {
	return func(c *Config) { c.SyncWrites = sync }
}

// Table is a Pebble-backed wide-column table. It is safe for concurrent
// use; Pebble handles its own internal synchronisation.
type Table struct {
	name      string
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	closed    atomic.Bool
}

// Open creates or opens a Pebble database at path. The caller must call
// Close when done to release all resources.
func Open(name, path string, opts ...Option) (*Table, error) {
	cfg := Config{CacheSize: 64 << 20}
	for _, o := range opts {
		o(&cfg)
	}

	cache := pebble.NewCache(cfg.CacheSize)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{Cache: cache})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: failed to open %s: %w", path, err)
	}

	writeOpts := pebble.NoSync
	if cfg.SyncWrites {
		writeOpts = pebble.Sync
	}

	return &Table{name: name, db: db, writeOpts: writeOpts}, nil
}

// Name returns the table identity.
func (t *Table) Name() string { return t.name }

// NewReader opens a reader. Readers share the underlying database and are
// individually cheap.
func (t *Table) NewReader() (store.RowReader, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	return &reader{table: t}, nil
}

// NewBatchWriter opens an atomic batch writer.
func (t *Table) NewBatchWriter() (store.BatchWriter, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	return &writer{table: t}, nil
}

// Close closes the underlying database.
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.db.Close()
}

func (t *Table) get(ctx context.Context, key store.RowKey, req store.DataRequest) (store.RowData, error) {
	if t.closed.Load() {
		return store.RowData{}, store.ErrClosed
	}
	if key == "" {
		return store.RowData{}, store.ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return store.RowData{}, err
	}

	prefix := rowPrefix(key)
	iter, err := t.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return store.RowData{}, err
	}
	defer iter.Close()

	data := store.RowData{Key: key, Cells: make(map[store.ColumnName]store.Cell)}
	for iter.First(); iter.Valid(); iter.Next() {
		col, ts, err := decodeKey(iter.Key(), key)
		if err != nil {
			return store.RowData{}, err
		}
		if !req.Contains(col) {
			continue
		}
		// Versions sort newest first; keep only the first cell per column.
		if _, ok := data.Cells[col]; ok {
			continue
		}
		value := append([]byte(nil), iter.Value()...)
		data.Cells[col] = store.Cell{Timestamp: ts, Value: value}
	}
	return data, iter.Error()
}

func (t *Table) applyBatch(ctx context.Context, puts []store.Put) error {
	if t.closed.Load() {
		return store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := t.db.NewBatch()
	defer batch.Close()

	for _, p := range puts {
		if p.Key == "" {
			return store.ErrEmptyKey
		}
		if err := batch.Set(encodeKey(p.Key, p.Column, p.Timestamp), p.Value, nil); err != nil {
			return err
		}
	}
	return batch.Commit(t.writeOpts)
}

type reader struct {
	table  *Table
	closed atomic.Bool
}

func (r *reader) Get(ctx context.Context, key store.RowKey, req store.DataRequest) (store.RowData, error) {
	if r.closed.Load() {
		return store.RowData{}, store.ErrClosed
	}
	return r.table.get(ctx, key, req)
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
	return w.table.applyBatch(ctx, puts)
}

func (w *writer) Close() error {
	w.closed.Store(true)
	return nil
}

func rowPrefix(key store.RowKey) []byte {
	p := make([]byte, 0, len(key)+1)
	p = append(p, key...)
	return append(p, 0)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1] = 1
	return end
}

func encodeKey(key store.RowKey, col store.ColumnName, ts int64) []byte {
	k := make([]byte, 0, len(key)+len(col.Family)+len(col.Qualifier)+11)
	k = append(k, key...)
	k = append(k, 0)
	k = append(k, col.Family...)
	k = append(k, 0)
	k = append(k, col.Qualifier...)
	k = append(k, 0)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], ^uint64(ts))
	return append(k, tsBuf[:]...)
}

func decodeKey(k []byte, key store.RowKey) (store.ColumnName, int64, error) {
	rest := k[len(key)+1:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return store.ColumnName{}, 0, fmt.Errorf("pebblestore: corrupt key %q", k)
	}
	family := string(rest[:i])
	rest = rest[i+1:]
	j := bytes.IndexByte(rest, 0)
	if j < 0 || len(rest[j+1:]) != 8 {
		return store.ColumnName{}, 0, fmt.Errorf("pebblestore: corrupt key %q", k)
	}
	qualifier := string(rest[:j])
	ts := int64(^binary.BigEndian.Uint64(rest[j+1:]))
	return store.NewColumnName(family, qualifier), ts, nil
}
