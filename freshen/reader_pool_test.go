package freshen_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rowfresh/freshen"
	"github.com/hupe1980/rowfresh/store"
	"github.com/hupe1980/rowfresh/store/memstore"
)

func TestReaderPool_Get(t *testing.T) {
	table := memstore.New("users")
	require.NoError(t, table.Put("row1", store.NewColumnName("info", "name"), 1, []byte("ada")))

	p := freshen.NewReaderPool(table, 2)
	defer p.Close()

	data, err := p.Get(context.Background(), "row1", store.NewDataRequest(store.NewColumnName("info", "name")))
	require.NoError(t, err)
	assert.Equal(t, []byte("ada"), data.Value("info", "name"))
}

func TestReaderPool_ReusesIdleReaders(t *testing.T) {
	table := &readerCountingTable{Table: memstore.New("users")}

	p := freshen.NewReaderPool(table, 4)
	defer p.Close()

	ctx := context.Background()
	req := store.NewDataRequest(store.NewColumnName("info", "name"))
	for i := 0; i < 10; i++ {
		_, err := p.Get(ctx, "row1", req)
		require.NoError(t, err)
	}

	// Sequential gets ride the same checked-in reader.
	assert.EqualValues(t, 1, table.opened.Load())
}

func TestReaderPool_BoundsConcurrency(t *testing.T) {
	table := memstore.New("users")
	p := freshen.NewReaderPool(table, 1)
	defer p.Close()

	release := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		_ = p.WithReader(context.Background(), func(r store.RowReader) error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired
	defer close(release)

	// The pool's single slot is held; a bounded wait must time out.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.WithReader(ctx, func(r store.RowReader) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReaderPool_CheckinAfterPanic(t *testing.T) {
	table := memstore.New("users")
	p := freshen.NewReaderPool(table, 1)
	defer p.Close()

	assert.Panics(t, func() {
		_ = p.WithReader(context.Background(), func(r store.RowReader) error {
			panic("boom")
		})
	})

	// The slot must have been released despite the panic.
	err := p.WithReader(context.Background(), func(r store.RowReader) error { return nil })
	require.NoError(t, err)
}

func TestReaderPool_UseAfterClose(t *testing.T) {
	p := freshen.NewReaderPool(memstore.New("users"), 1)
	require.NoError(t, p.Close())

	err := p.WithReader(context.Background(), func(r store.RowReader) error { return nil })
	assert.ErrorIs(t, err, freshen.ErrPoolClosed)
}

// readerCountingTable counts how many readers were opened against it.
type readerCountingTable struct {
	*memstore.Table
	opened atomic.Int32
}

func (t *readerCountingTable) NewReader() (store.RowReader, error) {
	t.opened.Add(1)
	return t.Table.NewReader()
}
