package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rowfresh/freshen"
	"github.com/hupe1980/rowfresh/kvstore"
	"github.com/hupe1980/rowfresh/policy"
	"github.com/hupe1980/rowfresh/registry"
	"github.com/hupe1980/rowfresh/store"
	"github.com/hupe1980/rowfresh/store/memstore"
)

func newMetaTable(t *testing.T) *memstore.Table {
	t.Helper()
	return memstore.New("rowfresh-meta")
}

func newFactories() *registry.FactorySet {
	factories := registry.NewFactorySet()
	factories.RegisterPolicy("always", func(params map[string]string) (freshen.FreshnessPolicy, error) {
		return policy.AlwaysFreshen{}, nil
	})
	factories.RegisterScore("noop", func(params map[string]string) (freshen.ScoreFunction, error) {
		return noopScore{}, nil
	})
	factories.RegisterKVStore("maps", func(params map[string]string) (kvstore.ReaderFactory, error) {
		return kvstore.NewMapFactory(), nil
	})
	return factories
}

func TestStoreRegistry_RoundTrip(t *testing.T) {
	reg := registry.NewStoreRegistry(newMetaTable(t), newFactories())
	ctx := context.Background()

	colA := store.NewColumnName("model", "churn")
	colB := store.NewColumnName("model", "upsell")

	require.NoError(t, reg.Attach(ctx, "users", colA, registry.Record{
		Policy:     "always",
		Score:      "noop",
		Parameters: map[string]string{"threshold": "0.5"},
	}))
	require.NoError(t, reg.Attach(ctx, "users", colB, registry.Record{
		Policy:   "always",
		Score:    "noop",
		KVStores: "maps",
	}))

	bindings, err := reg.LoadFresheners(ctx, "users")
	require.NoError(t, err)
	require.Len(t, bindings, 2)

	assert.Equal(t, "0.5", bindings[colA].Parameters["threshold"])
	assert.Nil(t, bindings[colA].KVStores)
	assert.NotNil(t, bindings[colB].KVStores)
}

func TestStoreRegistry_FamilyBinding(t *testing.T) {
	reg := registry.NewStoreRegistry(newMetaTable(t), newFactories())
	ctx := context.Background()

	family := store.FamilyName("model")
	require.NoError(t, reg.Attach(ctx, "users", family, registry.Record{
		Policy: "always",
		Score:  "noop",
	}))

	bindings, err := reg.LoadFresheners(ctx, "users")
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	_, ok := bindings[family]
	assert.True(t, ok, "family bindings survive the meta-row round trip")
}

func TestStoreRegistry_ReplaceBinding(t *testing.T) {
	meta := newMetaTable(t)
	reg := registry.NewStoreRegistry(meta, newFactories())
	ctx := context.Background()
	col := store.NewColumnName("model", "churn")

	require.NoError(t, reg.Attach(ctx, "users", col, registry.Record{
		Policy:     "always",
		Score:      "noop",
		Parameters: map[string]string{"v": "1"},
	}))
	require.NoError(t, reg.Attach(ctx, "users", col, registry.Record{
		Policy:     "always",
		Score:      "noop",
		Parameters: map[string]string{"v": "2"},
	}))

	bindings, err := reg.LoadFresheners(ctx, "users")
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "2", bindings[col].Parameters["v"])
}

func TestStoreRegistry_TablesAreIsolated(t *testing.T) {
	reg := registry.NewStoreRegistry(newMetaTable(t), newFactories())
	ctx := context.Background()

	require.NoError(t, reg.Attach(ctx, "users", store.NewColumnName("model", "churn"), registry.Record{
		Policy: "always",
		Score:  "noop",
	}))

	bindings, err := reg.LoadFresheners(ctx, "orders")
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestStoreRegistry_RejectsEmptyColumn(t *testing.T) {
	reg := registry.NewStoreRegistry(newMetaTable(t), newFactories())

	err := reg.Attach(context.Background(), "users", store.ColumnName{}, registry.Record{
		Policy: "always",
		Score:  "noop",
	})
	assert.Error(t, err)
}

func TestStoreRegistry_CorruptRecord(t *testing.T) {
	meta := newMetaTable(t)
	reg := registry.NewStoreRegistry(meta, newFactories())

	// Scribble a non-JSON cell into the meta row by hand.
	require.NoError(t, meta.Put("rowfresh.meta:users", store.NewColumnName("freshener", "model:churn"), 1, []byte("{not json")))

	_, err := reg.LoadFresheners(context.Background(), "users")
	assert.ErrorContains(t, err, "corrupt record")
}
