package dynamostore_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rowfresh/store"
	"github.com/hupe1980/rowfresh/store/dynamostore"
)

// fakeClient is an in-memory stand-in for the DynamoDB client, keyed the way
// the adapter lays items out: partition key rk, range key sk.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]map[string]types.AttributeValue

	queries      int
	transactions int
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func (c *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++

	rk := params.ExpressionAttributeValues[":rk"].(*types.AttributeValueMemberS).Value
	partition := c.items[rk]

	sks := make([]string, 0, len(partition))
	for sk := range partition {
		sks = append(sks, sk)
	}
	sort.Strings(sks)

	out := &dynamodb.QueryOutput{}
	for _, sk := range sks {
		out.Items = append(out.Items, partition[sk])
	}
	return out, nil
}

func (c *fakeClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions++

	for _, item := range params.TransactItems {
		rk := item.Put.Item["rk"].(*types.AttributeValueMemberS).Value
		sk := item.Put.Item["sk"].(*types.AttributeValueMemberS).Value
		partition := c.items[rk]
		if partition == nil {
			partition = make(map[string]map[string]types.AttributeValue)
			c.items[rk] = partition
		}
		partition[sk] = item.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func TestTable_RoundTrip(t *testing.T) {
	client := newFakeClient()
	table := dynamostore.New("users", client, "rowfresh-cells")
	col := store.NewColumnName("info", "name")

	w, err := table.NewBatchWriter()
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, []store.Put{
		{Key: "row1", Column: col, Timestamp: 100, Value: []byte("ada")},
	}))

	r, err := table.NewReader()
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Get(ctx, "row1", store.NewDataRequest(col))
	require.NoError(t, err)
	assert.Equal(t, []byte("ada"), row.Value("info", "name"))
	assert.EqualValues(t, 100, row.Timestamp("info", "name"))
}

func TestTable_NewestVersionWins(t *testing.T) {
	client := newFakeClient()
	table := dynamostore.New("users", client, "rowfresh-cells")
	col := store.NewColumnName("info", "name")

	w, err := table.NewBatchWriter()
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, []store.Put{
		{Key: "row1", Column: col, Timestamp: 100, Value: []byte("old")},
		{Key: "row1", Column: col, Timestamp: 300, Value: []byte("new")},
		{Key: "row1", Column: col, Timestamp: 200, Value: []byte("mid")},
	}))

	r, err := table.NewReader()
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Get(ctx, "row1", store.NewDataRequest(col))
	require.NoError(t, err)

	// The inverted sort key must order versions newest first.
	assert.Equal(t, []byte("new"), row.Value("info", "name"))
}

func TestTable_FamilyRequestFiltersOtherFamilies(t *testing.T) {
	client := newFakeClient()
	table := dynamostore.New("users", client, "rowfresh-cells")

	w, err := table.NewBatchWriter()
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, []store.Put{
		{Key: "row1", Column: store.NewColumnName("model", "churn"), Timestamp: 1, Value: []byte("a")},
		{Key: "row1", Column: store.NewColumnName("info", "name"), Timestamp: 1, Value: []byte("b")},
	}))

	r, err := table.NewReader()
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Get(ctx, "row1", store.NewDataRequest(store.FamilyName("model")))
	require.NoError(t, err)
	assert.Len(t, row.Cells, 1)
	assert.Equal(t, []byte("a"), row.Value("model", "churn"))
}

func TestTable_BatchIsOneTransaction(t *testing.T) {
	client := newFakeClient()
	table := dynamostore.New("users", client, "rowfresh-cells")

	w, err := table.NewBatchWriter()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write(context.Background(), []store.Put{
		{Key: "row1", Column: store.NewColumnName("model", "a"), Timestamp: 1, Value: []byte("x")},
		{Key: "row1", Column: store.NewColumnName("model", "b"), Timestamp: 1, Value: []byte("y")},
		{Key: "row2", Column: store.NewColumnName("model", "a"), Timestamp: 1, Value: []byte("z")},
	}))

	assert.Equal(t, 1, client.transactions)
}

func TestTable_OversizedBatchRejected(t *testing.T) {
	client := newFakeClient()
	table := dynamostore.New("users", client, "rowfresh-cells")

	w, err := table.NewBatchWriter()
	require.NoError(t, err)
	defer w.Close()

	puts := make([]store.Put, 101)
	for i := range puts {
		puts[i] = store.Put{Key: "row1", Column: store.NewColumnName("model", string(rune('a'+i%26))+strings.Repeat("x", i/26)), Timestamp: 1, Value: []byte("v")}
	}

	err = w.Write(context.Background(), puts)
	assert.ErrorContains(t, err, "transaction limit")
	assert.Equal(t, 0, client.transactions)
}

func TestTable_ClosedBehavior(t *testing.T) {
	table := dynamostore.New("users", newFakeClient(), "rowfresh-cells")
	require.NoError(t, table.Close())

	_, err := table.NewReader()
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = table.NewBatchWriter()
	assert.ErrorIs(t, err, store.ErrClosed)
}
