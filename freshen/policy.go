package freshen

import (
	"github.com/hupe1980/rowfresh/kvstore"
	"github.com/hupe1980/rowfresh/store"
)

// TimestampedValue is the result of one score-function run. It is written
// into exactly one column slot. Timestamps are Unix milliseconds.
type TimestampedValue struct {
	Timestamp int64
	Value     []byte
}

// Context exposes per-request state to freshness policies and score
// functions.
type Context interface {
	// ClientDataRequest is the caller's original data request.
	ClientDataRequest() store.DataRequest

	// AttachedColumn is the column this Freshener is bound to for the
	// current request.
	AttachedColumn() store.ColumnName

	// Parameter returns a configuration parameter. Request-level overrides
	// shadow the Freshener's own parameters.
	Parameter(key string) (string, bool)

	// Parameters returns the merged parameter view.
	Parameters() map[string]string

	// KVStore opens readers against auxiliary stores bound to this
	// Freshener. May be nil if none were configured.
	KVStore() kvstore.ReaderFactory
}

// FreshnessPolicy decides whether a stored value is still valid.
type FreshnessPolicy interface {
	// IsFresh inspects the row data selected by DataRequest (or the client
	// data request, see ShouldUseClientDataRequest) and reports whether the
	// attached column needs rescoring.
	IsFresh(data store.RowData, ctx Context) (bool, error)

	// DataRequest names the columns IsFresh needs to see.
	DataRequest(ctx Context) store.DataRequest

	// ShouldUseClientDataRequest reports whether IsFresh should be handed
	// the data fetched for the caller's own request instead of issuing a
	// separate read. All policies of one request that answer true share a
	// single fetch.
	ShouldUseClientDataRequest(ctx Context) bool
}

// ScoreFunction recomputes the value of a stale column.
type ScoreFunction interface {
	// DataRequest names the columns Score needs as input.
	DataRequest(ctx Context) store.DataRequest

	// Score produces the replacement value and its timestamp.
	Score(data store.RowData, ctx Context) (TimestampedValue, error)
}

// internalContext is the Context implementation handed to policies and score
// functions.
type internalContext struct {
	clientReq store.DataRequest
	column    store.ColumnName
	params    map[string]string
	overrides map[string]string
	kv        kvstore.ReaderFactory
}

func (c *internalContext) ClientDataRequest() store.DataRequest { return c.clientReq }
func (c *internalContext) AttachedColumn() store.ColumnName     { return c.column }
func (c *internalContext) KVStore() kvstore.ReaderFactory       { return c.kv }

func (c *internalContext) Parameter(key string) (string, bool) {
	if v, ok := c.overrides[key]; ok {
		return v, true
	}
	v, ok := c.params[key]
	return v, ok
}

func (c *internalContext) Parameters() map[string]string {
	merged := make(map[string]string, len(c.params)+len(c.overrides))
	for k, v := range c.params {
		merged[k] = v
	}
	for k, v := range c.overrides {
		merged[k] = v
	}
	return merged
}
