// Package dynamostore provides a store.Table backed by DynamoDB.
//
// Cells are laid out as one item per version:
//   - Partition key: rk (string) - the row key
//   - Sort key: sk (string) - family \x00 qualifier \x00 inverted timestamp
//
// The timestamp component is a zero-padded inverted decimal, so versions of
// one column sort newest first and a row read is a single Query. Row keys,
// families and qualifiers must not contain NUL bytes.
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name rowfresh-cells \
//	  --attribute-definitions AttributeName=rk,AttributeType=S AttributeName=sk,AttributeType=S \
//	  --key-schema AttributeName=rk,KeyType=HASH AttributeName=sk,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/rowfresh/store"
)

// Compile-time interface check.
var _ store.Table = (*Table)(nil)

// Client is the interface for DynamoDB operations.
type Client interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// maxTransactItems is the DynamoDB transaction item limit.
const maxTransactItems = 100

// Table is a DynamoDB-backed wide-column table.
type Table struct {
	name      string
	client    Client
	tableName string
	closed    atomic.Bool
}

// New creates a Table on an existing DynamoDB table. The client is usually
// *dynamodb.Client but may be any implementation of the narrow Client
// interface, which keeps the adapter testable without AWS access.
func New(name string, client Client, tableName string) *Table {
	return &Table{name: name, client: client, tableName: tableName}
}

// Name returns the table identity.
func (t *Table) Name() string { return t.name }

// NewReader opens a reader. Readers share the client and are individually
// cheap.
func (t *Table) NewReader() (store.RowReader, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	return &reader{table: t}, nil
}

// NewBatchWriter opens an atomic batch writer.
func (t *Table) NewBatchWriter() (store.BatchWriter, error) {
	if t.closed.Load() {
		return nil, store.ErrClosed
	}
	return &writer{table: t}, nil
}

// Close marks the table closed. The caller owns the client.
func (t *Table) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *Table) get(ctx context.Context, key store.RowKey, req store.DataRequest) (store.RowData, error) {
	if t.closed.Load() {
		return store.RowData{}, store.ErrClosed
	}
	if key == "" {
		return store.RowData{}, store.ErrEmptyKey
	}

	data := store.RowData{Key: key, Cells: make(map[store.ColumnName]store.Cell)}

	var startKey map[string]types.AttributeValue
	for {
		resp, err := t.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(t.tableName),
			KeyConditionExpression: aws.String("rk = :rk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":rk": &types.AttributeValueMemberS{Value: string(key)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return store.RowData{}, fmt.Errorf("dynamostore: failed to query row %q: %w", key, err)
		}

		for _, item := range resp.Items {
			col, ts, value, err := decodeItem(item)
			if err != nil {
				return store.RowData{}, err
			}
			if !req.Contains(col) {
				continue
			}
			// The inverted sort key yields versions newest first; keep only
			// the first cell per column.
			if _, ok := data.Cells[col]; ok {
				continue
			}
			data.Cells[col] = store.Cell{Timestamp: ts, Value: value}
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return data, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func (t *Table) applyBatch(ctx context.Context, puts []store.Put) error {
	if t.closed.Load() {
		return store.ErrClosed
	}
	if len(puts) == 0 {
		return nil
	}
	if len(puts) > maxTransactItems {
		return fmt.Errorf("dynamostore: batch of %d puts exceeds the transaction limit of %d", len(puts), maxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(puts))
	for _, p := range puts {
		if p.Key == "" {
			return store.ErrEmptyKey
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(t.tableName),
				Item: map[string]types.AttributeValue{
					"rk": &types.AttributeValueMemberS{Value: string(p.Key)},
					"sk": &types.AttributeValueMemberS{Value: encodeSortKey(p.Column, p.Timestamp)},
					"ts": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", p.Timestamp)},
					"v":  &types.AttributeValueMemberB{Value: p.Value},
				},
			},
		})
	}

	if _, err := t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		return fmt.Errorf("dynamostore: failed to commit batch: %w", err)
	}
	return nil
}

type reader struct {
	table  *Table
	closed atomic.Bool
}

func (r *reader) Get(ctx context.Context, key store.RowKey, req store.DataRequest) (store.RowData, error) {
	if r.closed.Load() {
		return store.RowData{}, store.ErrClosed
	}
	return r.table.get(ctx, key, req)
}

func (r *reader) Close() error {
	r.closed.Store(true)
	return nil
}

type writer struct {
	table  *Table
	closed atomic.Bool
}

func (w *writer) Write(ctx context.Context, puts []store.Put) error {
	if w.closed.Load() {
		return store.ErrClosed
	}
	return w.table.applyBatch(ctx, puts)
}

func (w *writer) Close() error {
	w.closed.Store(true)
	return nil
}

// encodeSortKey builds the range key. The timestamp is inverted and
// zero-padded so lexicographic order is newest first.
func encodeSortKey(col store.ColumnName, ts int64) string {
	inverted := ^uint64(ts)
	return fmt.Sprintf("%s\x00%s\x00%020d", col.Family, col.Qualifier, inverted)
}

func decodeItem(item map[string]types.AttributeValue) (store.ColumnName, int64, []byte, error) {
	skAttr, ok := item["sk"].(*types.AttributeValueMemberS)
	if !ok {
		return store.ColumnName{}, 0, nil, errors.New("dynamostore: missing sk attribute")
	}
	parts := strings.SplitN(skAttr.Value, "\x00", 3)
	if len(parts) != 3 {
		return store.ColumnName{}, 0, nil, fmt.Errorf("dynamostore: corrupt sort key %q", skAttr.Value)
	}

	tsAttr, ok := item["ts"].(*types.AttributeValueMemberN)
	if !ok {
		return store.ColumnName{}, 0, nil, errors.New("dynamostore: missing ts attribute")
	}
	var ts int64
	if _, err := fmt.Sscanf(tsAttr.Value, "%d", &ts); err != nil {
		return store.ColumnName{}, 0, nil, fmt.Errorf("dynamostore: failed to parse timestamp: %w", err)
	}

	vAttr, ok := item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return store.ColumnName{}, 0, nil, errors.New("dynamostore: missing v attribute")
	}

	return store.NewColumnName(parts[0], parts[1]), ts, vAttr.Value, nil
}
