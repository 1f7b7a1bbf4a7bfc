package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/rowfresh/store"
)

// Meta-row layout: one row per target table, one cell per bound column.
const (
	metaRowPrefix  = "rowfresh.meta:"
	metaFamily     = "freshener"
	columnNameSep  = ":"
	recordVersionV = 1
)

// Record is the persisted form of a binding: factory names plus parameters,
// JSON-encoded into one cell of the meta row.
type Record struct {
	Version    int               `json:"version"`
	Policy     string            `json:"policy"`
	Score      string            `json:"score"`
	KVStores   string            `json:"kvstores,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// StoreRegistry persists bindings in a meta table of the backing store. The
// meta row for a target table holds one cell per bound column, qualified by
// the column's own name; the qualifiers are discovered at load time, which
// is exactly the map-type-family read pattern the data model supports.
type StoreRegistry struct {
	meta      store.Table
	factories *FactorySet
}

// Compile-time interface check.
var _ Registry = (*StoreRegistry)(nil)

// NewStoreRegistry creates a registry persisting into the given meta table.
func NewStoreRegistry(meta store.Table, factories *FactorySet) *StoreRegistry {
	return &StoreRegistry{meta: meta, factories: factories}
}

// Attach persists a binding record for one column of a table.
func (r *StoreRegistry) Attach(ctx context.Context, table string, column store.ColumnName, rec Record) error {
	if !column.IsFullyQualified() && column.Family == "" {
		return fmt.Errorf("registry: column must name at least a family, got %q", column)
	}
	if rec.Version == 0 {
		rec.Version = recordVersionV
	}
	if _, err := r.factories.policy(rec.Policy); err != nil {
		return err
	}
	if _, err := r.factories.score(rec.Score); err != nil {
		return err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	w, err := r.meta.NewBatchWriter()
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Write(ctx, []store.Put{{
		Key:       metaRow(table),
		Column:    store.NewColumnName(metaFamily, encodeColumn(column)),
		Timestamp: time.Now().UnixMilli(),
		Value:     raw,
	}})
}

// LoadFresheners reads the meta row for table and instantiates every
// persisted binding through the factory set.
func (r *StoreRegistry) LoadFresheners(ctx context.Context, table string) (map[store.ColumnName]Binding, error) {
	reader, err := r.meta.NewReader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	row, err := reader.Get(ctx, metaRow(table), store.NewDataRequest(store.FamilyName(metaFamily)))
	if err != nil {
		return nil, err
	}

	out := make(map[store.ColumnName]Binding, len(row.Cells))
	for cell, data := range row.Cells {
		column, err := decodeColumn(cell.Qualifier)
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data.Value, &rec); err != nil {
			return nil, fmt.Errorf("registry: corrupt record for %s: %w", column, err)
		}
		b, err := r.instantiate(rec)
		if err != nil {
			return nil, fmt.Errorf("registry: binding for %s: %w", column, err)
		}
		out[column] = b
	}
	return out, nil
}

func (r *StoreRegistry) instantiate(rec Record) (Binding, error) {
	pf, err := r.factories.policy(rec.Policy)
	if err != nil {
		return Binding{}, err
	}
	p, err := pf(rec.Parameters)
	if err != nil {
		return Binding{}, err
	}

	sf, err := r.factories.score(rec.Score)
	if err != nil {
		return Binding{}, err
	}
	s, err := sf(rec.Parameters)
	if err != nil {
		return Binding{}, err
	}

	b := Binding{Policy: p, Score: s, Parameters: rec.Parameters}
	if rec.KVStores != "" {
		kf, err := r.factories.kvstore(rec.KVStores)
		if err != nil {
			return Binding{}, err
		}
		kv, err := kf(rec.Parameters)
		if err != nil {
			return Binding{}, err
		}
		b.KVStores = kv
	}
	return b, nil
}

func metaRow(table string) store.RowKey {
	return store.RowKey(metaRowPrefix + table)
}

func encodeColumn(c store.ColumnName) string {
	if !c.IsFullyQualified() {
		return c.Family
	}
	return c.Family + columnNameSep + c.Qualifier
}

func decodeColumn(qualifier string) (store.ColumnName, error) {
	if qualifier == "" {
		return store.ColumnName{}, fmt.Errorf("registry: empty column qualifier in meta row")
	}
	family, rest, found := strings.Cut(qualifier, columnNameSep)
	if !found {
		return store.FamilyName(family), nil
	}
	return store.NewColumnName(family, rest), nil
}
