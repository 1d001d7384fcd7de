package mcpi

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuasiEstimateConverges(t *testing.T) {
	pi, err := QuasiEstimate(context.Background(), 2000, ParallelLoop{Threads: 4})
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, pi, piTol)
}

func TestQuasiEstimateStrategyIndependent(t *testing.T) {
	want, err := QuasiEstimate(context.Background(), 501, Sequential{})
	require.NoError(t, err)
	for _, s := range []Strategy{
		ThreadPool{JobCount: 7, Workers: 3},
		ParallelLoop{Threads: 5, JobCount: 11},
		ThreadPool{JobCount: 1000},
	} {
		got, err := QuasiEstimate(context.Background(), 501, s)
		require.NoError(t, err, s.Name())
		assert.Equal(t, want, got, s.Name())
	}
}

func TestQuasiEstimateSingleCell(t *testing.T) {
	pi, err := QuasiEstimate(context.Background(), 1, Sequential{})
	require.NoError(t, err)
	assert.Equal(t, 4.0, pi)
}

func TestQuasiEstimateInvalid(t *testing.T) {
	ctx := context.Background()
	_, err := QuasiEstimate(ctx, 0, Sequential{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = QuasiEstimate(ctx, 1<<33, Sequential{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = QuasiEstimate(ctx, 10, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = QuasiEstimate(ctx, 10, Remote{Executor: localExecutor()})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
