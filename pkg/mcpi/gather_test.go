package mcpi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatherBoundaries(t *testing.T) {
	pi, err := Gather([]uint64{0}, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, pi)

	pi, err = Gather([]uint64{1}, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, 4.0, pi)
}

func TestGatherSumsBeforeDividing(t *testing.T) {
	pi, err := Gather([]uint64{3, 0, 4}, []uint64{4, 0, 5})
	require.NoError(t, err)
	assert.Equal(t, 4*(7.0/9.0), pi)
}

func TestGatherInvalid(t *testing.T) {
	cases := map[string][2][]uint64{
		"empty":      {nil, nil},
		"mismatch":   {{1, 2}, {3}},
		"no samples": {{0, 0}, {0, 0}},
		"too many":   {{5}, {4}},
		"overflow":   {{0, 0}, {math.MaxUint64, 1}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Gather(tc[0], tc[1])
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestGatherResults(t *testing.T) {
	pi, err := GatherResults([]Result{
		{JobID: 0, Inside: 3, Samples: 4},
		{JobID: 1, Inside: 0, Samples: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, pi)
}
