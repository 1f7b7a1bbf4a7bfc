package rowfresh

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rowfresh/store"
)

var (
	// ErrReaderClosed is returned by Get after Close.
	ErrReaderClosed = errors.New("rowfresh: reader closed")
)

// ErrBuild indicates an invalid reader configuration, reported by Build
// before any request is served.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrBuild struct {
	Reason string
	cause  error
}

func (e *ErrBuild) Error() string {
	return fmt.Sprintf("rowfresh: invalid configuration: %s", e.Reason)
}

func (e *ErrBuild) Unwrap() error { return e.cause }

// ErrFreshening indicates that every freshener of a request failed, leaving
// no usable answer for the requested columns.
//
// The first worker failure can be accessed via errors.Unwrap.
type ErrFreshening struct {
	Key     store.RowKey
	Columns int
	cause   error
}

func (e *ErrFreshening) Error() string {
	return fmt.Sprintf("rowfresh: freshening failed for all %d column(s) of row %q", e.Columns, e.Key)
}

func (e *ErrFreshening) Unwrap() error { return e.cause }

// ErrCommit indicates the atomic batch commit of a request's freshened
// values failed, so the store still holds the unfreshened data.
//
// The underlying store error can be accessed via errors.Unwrap.
type ErrCommit struct {
	Key   store.RowKey
	cause error
}

func (e *ErrCommit) Error() string {
	return fmt.Sprintf("rowfresh: failed to commit freshened values for row %q", e.Key)
}

func (e *ErrCommit) Unwrap() error { return e.cause }
