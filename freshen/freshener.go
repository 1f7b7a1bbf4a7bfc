package freshen

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/rowfresh/kvstore"
)

// Freshener is an immutable binding of a freshness policy, a score function,
// an auxiliary-store reader factory and a parameter map to one column.
//
// Fresheners are reference counted. A new Freshener starts with one
// reference owned by the registry snapshot it belongs to; each request that
// binds the Freshener retains an additional reference and releases it when
// the owning worker terminates. Retiring the snapshot drops the base
// reference, so teardown (closing the auxiliary-store connections) happens
// only after the last in-flight request drains. This is what lets the reader
// swap in a fresh snapshot on reread without disrupting running requests.
type Freshener struct {
	policy FreshnessPolicy
	score  ScoreFunction
	kv     kvstore.ReaderFactory
	params map[string]string

	refs atomic.Int32
}

// NewFreshener creates a Freshener holding one base reference. kv may be
// nil.
func NewFreshener(policy FreshnessPolicy, score ScoreFunction, kv kvstore.ReaderFactory, params map[string]string) *Freshener {
	f := &Freshener{
		policy: policy,
		score:  score,
		kv:     kv,
		params: params,
	}
	f.refs.Store(1)
	return f
}

// Policy returns the bound freshness policy.
func (f *Freshener) Policy() FreshnessPolicy { return f.policy }

// Score returns the bound score function.
func (f *Freshener) Score() ScoreFunction { return f.score }

// Retain acquires a reference. The caller must already hold one; to acquire
// against a snapshot that may be retiring concurrently, use TryRetain.
func (f *Freshener) Retain() {
	if n := f.refs.Add(1); n <= 1 {
		panic(fmt.Sprintf("freshen: retain on drained Freshener (refs=%d)", n))
	}
}

// TryRetain acquires a reference unless the count has already drained to
// zero. Unlike Retain it is safe against a concurrent snapshot retire: it
// never revives a Freshener whose teardown has begun, and the caller is
// expected to re-resolve its bindings when it reports false.
func (f *Freshener) TryRetain() bool {
	for {
		n := f.refs.Load()
		if n <= 0 {
			return false
		}
		if f.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference. The caller must hold one. When the last
// reference drains the auxiliary-store factory is closed.
func (f *Freshener) Release() error {
	n := f.refs.Add(-1)
	if n < 0 {
		panic("freshen: release without matching retain")
	}
	if n == 0 && f.kv != nil {
		return f.kv.Close()
	}
	return nil
}

// Refs returns the current reference count. Intended for tests.
func (f *Freshener) Refs() int32 { return f.refs.Load() }
