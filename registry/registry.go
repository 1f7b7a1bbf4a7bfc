// Package registry resolves which Freshener is bound to which column of a
// table. Bindings come either from code (Static) or from records persisted
// in a meta row of the backing store (StoreRegistry), which lets bindings
// survive restarts and be rewritten while readers are serving.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/rowfresh/freshen"
	"github.com/hupe1980/rowfresh/kvstore"
	"github.com/hupe1980/rowfresh/store"
)

// ErrNotFound is returned when no binding exists for a column.
var ErrNotFound = errors.New("registry: binding not found")

// Binding ties a freshness policy and score function (plus optional
// auxiliary stores and parameters) to one column. The column itself is the
// map key in LoadFresheners results.
type Binding struct {
	Policy     freshen.FreshnessPolicy
	Score      freshen.ScoreFunction
	KVStores   kvstore.ReaderFactory
	Parameters map[string]string
}

// Registry is the metadata collaborator the reader polls for bindings.
type Registry interface {
	// LoadFresheners returns the current column bindings for the named
	// table. The result must be safe for the caller to keep: registries
	// return fresh map instances on every call.
	LoadFresheners(ctx context.Context, table string) (map[store.ColumnName]Binding, error)
}

// Static is an in-memory Registry configured from code.
type Static struct {
	mu       sync.RWMutex
	bindings map[string]map[store.ColumnName]Binding
}

// Compile-time interface check.
var _ Registry = (*Static)(nil)

// NewStatic creates an empty Static registry.
func NewStatic() *Static {
	return &Static{bindings: make(map[string]map[store.ColumnName]Binding)}
}

// Attach binds a column of a table. Replaces any existing binding for the
// column; readers pick the change up on their next reread.
func (s *Static) Attach(table string, column store.ColumnName, b Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.bindings[table]
	if !ok {
		m = make(map[store.ColumnName]Binding)
		s.bindings[table] = m
	}
	m[column] = b
}

// Detach removes a column binding.
func (s *Static) Detach(table string, column store.ColumnName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings[table], column)
}

// LoadFresheners returns a copy of the current bindings for table.
func (s *Static) LoadFresheners(ctx context.Context, table string) (map[store.ColumnName]Binding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[store.ColumnName]Binding, len(s.bindings[table]))
	for col, b := range s.bindings[table] {
		out[col] = b
	}
	return out, nil
}

// PolicyFactory constructs a freshness policy from persisted parameters.
type PolicyFactory func(params map[string]string) (freshen.FreshnessPolicy, error)

// ScoreFactory constructs a score function from persisted parameters.
type ScoreFactory func(params map[string]string) (freshen.ScoreFunction, error)

// KVStoreFactory constructs an auxiliary-store reader factory from persisted
// parameters.
type KVStoreFactory func(params map[string]string) (kvstore.ReaderFactory, error)

// FactorySet resolves persisted record names to constructors. StoreRegistry
// needs one because records carry names, not code.
type FactorySet struct {
	mu       sync.RWMutex
	policies map[string]PolicyFactory
	scores   map[string]ScoreFactory
	kvstores map[string]KVStoreFactory
}

// NewFactorySet creates an empty FactorySet.
func NewFactorySet() *FactorySet {
	return &FactorySet{
		policies: make(map[string]PolicyFactory),
		scores:   make(map[string]ScoreFactory),
		kvstores: make(map[string]KVStoreFactory),
	}
}

// RegisterPolicy registers a named policy constructor.
func (f *FactorySet) RegisterPolicy(name string, factory PolicyFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies[name] = factory
}

// RegisterScore registers a named score-function constructor.
func (f *FactorySet) RegisterScore(name string, factory ScoreFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[name] = factory
}

// RegisterKVStore registers a named auxiliary-store constructor.
func (f *FactorySet) RegisterKVStore(name string, factory KVStoreFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kvstores[name] = factory
}

func (f *FactorySet) policy(name string) (PolicyFactory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.policies[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown policy %q", name)
	}
	return p, nil
}

func (f *FactorySet) score(name string) (ScoreFactory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.scores[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown score function %q", name)
	}
	return s, nil
}

func (f *FactorySet) kvstore(name string) (KVStoreFactory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	k, ok := f.kvstores[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown kvstore %q", name)
	}
	return k, nil
}
