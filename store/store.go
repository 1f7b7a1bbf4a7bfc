// Package store defines the wide-column data model and the collaborator
// interfaces rowfresh reads from and writes to.
//
// A Table holds rows addressed by an opaque RowKey. Each row contains cells
// addressed by a (family, qualifier) ColumnName; a cell slot is versioned by
// timestamp and reads return the newest cell per requested column.
//
// Implementations can provide different storage strategies (in-memory,
// Pebble-backed, DynamoDB-backed, remote).
package store

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by Table implementations.
var (
	ErrClosed      = errors.New("store: table is closed")
	ErrRowNotFound = errors.New("store: row not found")
	ErrEmptyKey    = errors.New("store: row key must not be empty")
)

// RowKey identifies one logical record in the store. Opaque to rowfresh.
type RowKey string

// ColumnName is a (family, qualifier) pair identifying one versioned value
// slot in a row. A ColumnName with an empty Qualifier names a whole family;
// qualifiers within a map-type family are discovered at request time rather
// than fixed by schema.
type ColumnName struct {
	Family    string
	Qualifier string
}

// NewColumnName creates a fully qualified column name.
func NewColumnName(family, qualifier string) ColumnName {
	return ColumnName{Family: family, Qualifier: qualifier}
}

// FamilyName creates a ColumnName addressing an entire family.
func FamilyName(family string) ColumnName {
	return ColumnName{Family: family}
}

// IsFullyQualified reports whether the name addresses a single column rather
// than a whole family.
func (c ColumnName) IsFullyQualified() bool {
	return c.Qualifier != ""
}

func (c ColumnName) String() string {
	if c.Qualifier == "" {
		return c.Family
	}
	return c.Family + ":" + c.Qualifier
}

// Cell is one versioned value.
type Cell struct {
	Timestamp int64
	Value     []byte
}

// RowData is the result of a read: the newest cell per returned column.
type RowData struct {
	Key   RowKey
	Cells map[ColumnName]Cell
}

// Cell returns the newest cell for the given column.
func (r RowData) Cell(family, qualifier string) (Cell, bool) {
	c, ok := r.Cells[NewColumnName(family, qualifier)]
	return c, ok
}

// Value returns the newest value for the given column, or nil if absent.
func (r RowData) Value(family, qualifier string) []byte {
	c, ok := r.Cell(family, qualifier)
	if !ok {
		return nil
	}
	return c.Value
}

// Timestamp returns the newest timestamp for the given column, or -1 if
// absent.
func (r RowData) Timestamp(family, qualifier string) int64 {
	c, ok := r.Cell(family, qualifier)
	if !ok {
		return -1
	}
	return c.Timestamp
}

// DataRequest names the columns a read should return. Fully qualified
// entries select single columns; family entries select every qualifier
// present in that family.
type DataRequest struct {
	Columns []ColumnName
}

// NewDataRequest builds a request for the given columns.
func NewDataRequest(columns ...ColumnName) DataRequest {
	return DataRequest{Columns: columns}
}

// Contains reports whether the request selects the given fully qualified
// column, either directly or through its family.
func (d DataRequest) Contains(c ColumnName) bool {
	for _, rc := range d.Columns {
		if rc == c {
			return true
		}
		if !rc.IsFullyQualified() && rc.Family == c.Family {
			return true
		}
	}
	return false
}

// Put is one pending cell write.
type Put struct {
	Key       RowKey
	Column    ColumnName
	Timestamp int64
	Value     []byte
}

func (p Put) String() string {
	return fmt.Sprintf("put{%s %s @%d}", p.Key, p.Column, p.Timestamp)
}

// RowReader reads rows from a table. Readers are not required to be safe for
// concurrent use; rowfresh checks them out of a bounded pool.
type RowReader interface {
	// Get returns the newest cell for each column selected by req.
	// A missing row is not an error: it returns RowData with no cells.
	Get(ctx context.Context, key RowKey, req DataRequest) (RowData, error)

	// Close returns the reader's resources.
	Close() error
}

// BatchWriter accumulates cell writes and commits them atomically.
type BatchWriter interface {
	// Write applies all puts as a single atomic batch. Either every put is
	// visible to subsequent reads or none is.
	Write(ctx context.Context, puts []Put) error

	// Close returns the writer's resources.
	Close() error
}

// Table is one logical wide-column table.
// All methods are safe for concurrent use by multiple goroutines.
type Table interface {
	// Name returns the table identity, used to key registry metadata.
	Name() string

	// NewReader opens a reader against this table.
	NewReader() (RowReader, error)

	// NewBatchWriter opens an atomic batch writer against this table.
	NewBatchWriter() (BatchWriter, error)

	// Close releases the table and all resources derived from it.
	Close() error
}
