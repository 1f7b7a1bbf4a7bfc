package rowfresh_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rowfresh"
	"github.com/hupe1980/rowfresh/registry"
	"github.com/hupe1980/rowfresh/store/memstore"
	"golang.org/x/time/rate"
)

func TestBuilder_Defaults(t *testing.T) {
	reader, err := rowfresh.New(memstore.New("users"), registry.NewStatic()).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, reader.Close())
}

func TestBuilder_FullOptions(t *testing.T) {
	reader, err := rowfresh.New(memstore.New("users"), registry.NewStatic()).
		Timeout(200 * time.Millisecond).
		AutomaticReread(time.Hour).
		PartialFreshening(true).
		Workers(4).
		ReaderPoolSize(2).
		ScoreRateLimit(rate.Limit(100), 10).
		Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, reader.Close())
}

func TestBuilder_DuplicateOptionRejected(t *testing.T) {
	_, err := rowfresh.New(memstore.New("users"), registry.NewStatic()).
		Timeout(time.Second).
		Timeout(2 * time.Second).
		Build(context.Background())

	var be *rowfresh.ErrBuild
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Reason, "already set")
}

func TestBuilder_InvalidValues(t *testing.T) {
	reg := registry.NewStatic()
	tests := []struct {
		name  string
		build func() (*rowfresh.Reader, error)
	}{
		{
			name: "non-positive timeout",
			build: func() (*rowfresh.Reader, error) {
				return rowfresh.New(memstore.New("users"), reg).Timeout(0).Build(context.Background())
			},
		},
		{
			name: "non-positive reread period",
			build: func() (*rowfresh.Reader, error) {
				return rowfresh.New(memstore.New("users"), reg).AutomaticReread(-time.Second).Build(context.Background())
			},
		},
		{
			name: "non-positive workers",
			build: func() (*rowfresh.Reader, error) {
				return rowfresh.New(memstore.New("users"), reg).Workers(0).Build(context.Background())
			},
		},
		{
			name: "non-positive reader pool",
			build: func() (*rowfresh.Reader, error) {
				return rowfresh.New(memstore.New("users"), reg).ReaderPoolSize(-1).Build(context.Background())
			},
		},
		{
			name: "zero rate burst",
			build: func() (*rowfresh.Reader, error) {
				return rowfresh.New(memstore.New("users"), reg).ScoreRateLimit(rate.Limit(1), 0).Build(context.Background())
			},
		},
		{
			name: "nil table",
			build: func() (*rowfresh.Reader, error) {
				return rowfresh.New(nil, reg).Build(context.Background())
			},
		},
		{
			name: "nil registry",
			build: func() (*rowfresh.Reader, error) {
				return rowfresh.New(memstore.New("users"), nil).Build(context.Background())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			var be *rowfresh.ErrBuild
			assert.ErrorAs(t, err, &be)
		})
	}
}

func TestBuilder_IsImmutable(t *testing.T) {
	base := rowfresh.New(memstore.New("users"), registry.NewStatic())

	// Deriving two readers from one base builder must not trip the
	// duplicate-option check.
	a, err := base.Timeout(time.Second).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	b, err := base.Timeout(2 * time.Second).Build(context.Background())
	require.NoError(t, err)
	defer b.Close()
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	assert.Panics(t, func() {
		rowfresh.New(nil, nil).MustBuild(context.Background())
	})
}
