package freshen_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rowfresh/freshen"
	"github.com/hupe1980/rowfresh/store"
	"github.com/hupe1980/rowfresh/store/memstore"
)

func TestBuffer_FlushCommitsAllPuts(t *testing.T) {
	table := memstore.New("scores")
	b := freshen.NewBuffer(table)

	b.Put("row1", store.NewColumnName("model", "churn"), 100, []byte("0.9"))
	b.Put("row1", store.NewColumnName("model", "upsell"), 100, []byte("0.2"))
	assert.Equal(t, 2, b.Len())

	require.NoError(t, b.Flush(context.Background()))

	row, err := table.Get("row1", store.NewDataRequest(store.FamilyName("model")))
	require.NoError(t, err)
	assert.Equal(t, []byte("0.9"), row.Value("model", "churn"))
	assert.Equal(t, []byte("0.2"), row.Value("model", "upsell"))
}

func TestBuffer_EmptyFlushSkipsStore(t *testing.T) {
	table := memstore.New("scores")
	require.NoError(t, table.Close())

	// An empty flush must not open a writer against the closed table.
	b := freshen.NewBuffer(table)
	require.NoError(t, b.Flush(context.Background()))
}

func TestBuffer_DoubleFlushPanics(t *testing.T) {
	b := freshen.NewBuffer(memstore.New("scores"))
	require.NoError(t, b.Flush(context.Background()))

	assert.Panics(t, func() { _ = b.Flush(context.Background()) })
}

func TestBuffer_PutAfterFlushPanics(t *testing.T) {
	b := freshen.NewBuffer(memstore.New("scores"))
	require.NoError(t, b.Flush(context.Background()))

	assert.Panics(t, func() {
		b.Put("row1", store.NewColumnName("model", "churn"), 100, []byte("x"))
	})
}

func TestBuffer_FlushClosedTableFails(t *testing.T) {
	table := memstore.New("scores")
	b := freshen.NewBuffer(table)
	b.Put("row1", store.NewColumnName("model", "churn"), 100, []byte("x"))

	require.NoError(t, table.Close())
	assert.ErrorIs(t, b.Flush(context.Background()), store.ErrClosed)
}
