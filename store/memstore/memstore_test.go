package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rowfresh/store"
	"github.com/hupe1980/rowfresh/store/memstore"
)

func TestTable_NewestVersionWins(t *testing.T) {
	table := memstore.New("users")
	col := store.NewColumnName("info", "name")

	require.NoError(t, table.Put("row1", col, 100, []byte("old")))
	require.NoError(t, table.Put("row1", col, 200, []byte("new")))
	// Out-of-order arrival must not shadow the newer cell.
	require.NoError(t, table.Put("row1", col, 150, []byte("mid")))

	row, err := table.Get("row1", store.NewDataRequest(col))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), row.Value("info", "name"))
	assert.EqualValues(t, 200, row.Timestamp("info", "name"))
	assert.Equal(t, 3, table.VersionCount("row1", col))
}

func TestTable_MissingRowIsNotAnError(t *testing.T) {
	table := memstore.New("users")

	row, err := table.Get("nope", store.NewDataRequest(store.NewColumnName("info", "name")))
	require.NoError(t, err)
	assert.Empty(t, row.Cells)
}

func TestTable_FamilyRequest(t *testing.T) {
	table := memstore.New("users")
	require.NoError(t, table.Put("row1", store.NewColumnName("model", "churn"), 1, []byte("a")))
	require.NoError(t, table.Put("row1", store.NewColumnName("model", "upsell"), 1, []byte("b")))
	require.NoError(t, table.Put("row1", store.NewColumnName("info", "name"), 1, []byte("c")))

	row, err := table.Get("row1", store.NewDataRequest(store.FamilyName("model")))
	require.NoError(t, err)
	assert.Len(t, row.Cells, 2)
	assert.Equal(t, []byte("a"), row.Value("model", "churn"))
	assert.Equal(t, []byte("b"), row.Value("model", "upsell"))
}

func TestTable_BatchWriteAppliesAllPuts(t *testing.T) {
	table := memstore.New("users")

	w, err := table.NewBatchWriter()
	require.NoError(t, err)
	defer w.Close()

	puts := []store.Put{
		{Key: "row1", Column: store.NewColumnName("model", "a"), Timestamp: 1, Value: []byte("x")},
		{Key: "row1", Column: store.NewColumnName("model", "b"), Timestamp: 1, Value: []byte("y")},
		{Key: "row2", Column: store.NewColumnName("model", "a"), Timestamp: 1, Value: []byte("z")},
	}
	require.NoError(t, w.Write(context.Background(), puts))

	row1, err := table.Get("row1", store.NewDataRequest(store.FamilyName("model")))
	require.NoError(t, err)
	assert.Len(t, row1.Cells, 2)

	row2, err := table.Get("row2", store.NewDataRequest(store.FamilyName("model")))
	require.NoError(t, err)
	assert.Len(t, row2.Cells, 1)
}

func TestTable_EmptyKeyRejected(t *testing.T) {
	table := memstore.New("users")

	_, err := table.Get("", store.NewDataRequest(store.NewColumnName("info", "name")))
	assert.ErrorIs(t, err, store.ErrEmptyKey)

	err = table.Put("", store.NewColumnName("info", "name"), 1, []byte("x"))
	assert.ErrorIs(t, err, store.ErrEmptyKey)
}

func TestTable_ClosedBehavior(t *testing.T) {
	table := memstore.New("users")

	r, err := table.NewReader()
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// A closed reader fails even while the table stays open.
	_, err = r.Get(context.Background(), "row1", store.DataRequest{})
	assert.ErrorIs(t, err, store.ErrClosed)

	require.NoError(t, table.Close())

	_, err = table.NewReader()
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = table.NewBatchWriter()
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = table.Get("row1", store.DataRequest{})
	assert.ErrorIs(t, err, store.ErrClosed)
}
