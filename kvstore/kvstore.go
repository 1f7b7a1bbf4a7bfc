// Package kvstore provides read access to auxiliary key-value stores for
// freshness policies and score functions. A ReaderFactory is bound to a
// Freshener and stays open for as long as any request holds a reference to
// that Freshener; it is torn down when the Freshener drains.
package kvstore

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors returned by readers and factories.
var (
	ErrClosed       = errors.New("kvstore: closed")
	ErrUnknownStore = errors.New("kvstore: unknown store")
	ErrKeyNotFound  = errors.New("kvstore: key not found")
)

// Reader reads from one auxiliary store.
type Reader interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Close returns the reader to its factory.
	Close() error
}

// ReaderFactory opens readers against named auxiliary stores.
type ReaderFactory interface {
	// Open opens a reader for the named store.
	Open(name string) (Reader, error)

	// Close tears down all underlying store connections. Called once, by the
	// owning Freshener, after the last outstanding reference is released.
	Close() error
}

// MapFactory is an in-memory ReaderFactory backed by named maps. It is
// primarily useful in tests and for small static lookup data.
type MapFactory struct {
	mu     sync.RWMutex
	stores map[string]map[string][]byte
	closed bool
}

// Compile-time interface check.
var _ ReaderFactory = (*MapFactory)(nil)

// NewMapFactory creates an empty MapFactory.
func NewMapFactory() *MapFactory {
	return &MapFactory{stores: make(map[string]map[string][]byte)}
}

// Register adds or replaces a named store.
func (f *MapFactory) Register(name string, data map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores[name] = data
}

// Open opens a reader for the named store.
func (f *MapFactory) Open(name string) (Reader, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	data, ok := f.stores[name]
	if !ok {
		return nil, ErrUnknownStore
	}
	return &mapReader{factory: f, data: data}, nil
}

// Close tears the factory down. Subsequent Open and Get calls fail.
func (f *MapFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *MapFactory) Closed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.closed
}

type mapReader struct {
	factory *MapFactory
	data    map[string][]byte
}

func (r *mapReader) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.factory.mu.RLock()
	defer r.factory.mu.RUnlock()
	if r.factory.closed {
		return nil, ErrClosed
	}
	v, ok := r.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (r *mapReader) Close() error { return nil }
