// Package policy provides stock freshness policies. Each decides, per
// request, whether the column a Freshener is attached to still holds a valid
// value or needs rescoring.
package policy

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hupe1980/rowfresh/freshen"
	"github.com/hupe1980/rowfresh/store"
)

// ParamShelfLife is the parameter key ShelfLife reads its duration from when
// constructed via NewShelfLifeFromParams. The value is milliseconds.
const ParamShelfLife = "shelf-life-ms"

// AlwaysFreshen treats every value as stale, so the score function runs on
// every request. It never needs row data and therefore piggybacks on the
// caller's request instead of issuing its own read.
type AlwaysFreshen struct{}

func (AlwaysFreshen) IsFresh(data store.RowData, ctx freshen.Context) (bool, error) {
	return false, nil
}

func (AlwaysFreshen) DataRequest(ctx freshen.Context) store.DataRequest {
	return store.DataRequest{}
}

func (AlwaysFreshen) ShouldUseClientDataRequest(ctx freshen.Context) bool { return true }

// NeverFreshen treats every value as fresh, disabling rescoring for the
// attached column without detaching its Freshener.
type NeverFreshen struct{}

func (NeverFreshen) IsFresh(data store.RowData, ctx freshen.Context) (bool, error) {
	return true, nil
}

func (NeverFreshen) DataRequest(ctx freshen.Context) store.DataRequest {
	return store.DataRequest{}
}

func (NeverFreshen) ShouldUseClientDataRequest(ctx freshen.Context) bool { return true }

// ShelfLife considers the attached column fresh while its newest cell is
// younger than TTL. A missing cell is stale.
type ShelfLife struct {
	TTL time.Duration

	// Now is the clock; defaults to time.Now. Tests may replace it.
	Now func() time.Time
}

// NewShelfLife creates a ShelfLife policy with the given TTL.
func NewShelfLife(ttl time.Duration) *ShelfLife {
	return &ShelfLife{TTL: ttl}
}

// NewShelfLifeFromParams creates a ShelfLife policy from Freshener
// parameters, reading ParamShelfLife as milliseconds.
func NewShelfLifeFromParams(params map[string]string) (*ShelfLife, error) {
	raw, ok := params[ParamShelfLife]
	if !ok {
		return nil, fmt.Errorf("policy: missing parameter %q", ParamShelfLife)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid %q: %w", ParamShelfLife, err)
	}
	return &ShelfLife{TTL: time.Duration(ms) * time.Millisecond}, nil
}

func (p *ShelfLife) IsFresh(data store.RowData, ctx freshen.Context) (bool, error) {
	col := ctx.AttachedColumn()
	cell, ok := data.Cell(col.Family, col.Qualifier)
	if !ok {
		return false, nil
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	age := now().UnixMilli() - cell.Timestamp
	return age < p.TTL.Milliseconds(), nil
}

func (p *ShelfLife) DataRequest(ctx freshen.Context) store.DataRequest {
	return store.NewDataRequest(ctx.AttachedColumn())
}

func (p *ShelfLife) ShouldUseClientDataRequest(ctx freshen.Context) bool { return false }

// NewerThan considers the attached column fresh if its newest cell is newer
// than a fixed timestamp (Unix milliseconds). A missing cell is stale.
type NewerThan struct {
	Timestamp int64
}

func (p *NewerThan) IsFresh(data store.RowData, ctx freshen.Context) (bool, error) {
	col := ctx.AttachedColumn()
	cell, ok := data.Cell(col.Family, col.Qualifier)
	if !ok {
		return false, nil
	}
	return cell.Timestamp > p.Timestamp, nil
}

func (p *NewerThan) DataRequest(ctx freshen.Context) store.DataRequest {
	return store.NewDataRequest(ctx.AttachedColumn())
}

func (p *NewerThan) ShouldUseClientDataRequest(ctx freshen.Context) bool { return false }
