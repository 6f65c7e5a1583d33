package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRaster(t *testing.T, rows, cols int, data []float64) *Raster {
	t.Helper()
	r, err := New(rows, cols, data, Geotransform{0, 0.01, 0, 10, 0, -0.01}, "EPSG:4326")
	require.NoError(t, err)
	return r
}

func TestComputeExposure_Basic(t *testing.T) {
	conc := mustRaster(t, 2, 2, []float64{10, 0, 0, 5})
	pop := mustRaster(t, 2, 2, []float64{2, 3, 4, 0})

	out, stats, err := ComputeExposure(conc, pop)
	require.NoError(t, err)

	assert.Equal(t, []float64{20, 0, 0, 0}, out.Data)
	assert.Equal(t, 20.0, stats.Total)
	assert.Equal(t, 20.0, stats.Max)
	assert.Equal(t, 0.0, stats.Min)
	assert.Equal(t, 5.0, stats.Mean)
	assert.Equal(t, 1, stats.NonZeroPixels)
	assert.Equal(t, 20.0, stats.NonZeroMean)
}

func TestComputeExposure_CleansInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		conc []float64
		pop  []float64
	}{
		{
			name: "NaN in concentration",
			conc: []float64{math.NaN(), 2, 3, 4},
			pop:  []float64{1, 1, 1, 1},
		},
		{
			name: "negative in population",
			conc: []float64{1, 2, 3, 4},
			pop:  []float64{-5, 1, 1, 1},
		},
		{
			name: "Inf in both",
			conc: []float64{math.Inf(1), 2, 3, 4},
			pop:  []float64{1, math.Inf(-1), 1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conc := mustRaster(t, 2, 2, tt.conc)
			pop := mustRaster(t, 2, 2, tt.pop)

			out, stats, err := ComputeExposure(conc, pop)
			require.NoError(t, err)

			for _, v := range out.Data {
				assert.False(t, math.IsNaN(v), "output must not contain NaN")
				assert.GreaterOrEqual(t, v, 0.0, "output must not contain negatives")
			}
			assert.False(t, math.IsNaN(stats.Total))
			assert.GreaterOrEqual(t, stats.Total, 0.0)
		})
	}
}

func TestComputeExposure_Deterministic(t *testing.T) {
	conc := mustRaster(t, 3, 3, []float64{0.5, 1.7, 0, 3.2, math.NaN(), 9.9, 0.004, 12, 7})
	pop := mustRaster(t, 3, 3, []float64{10, 0, 44, 3, 8, -1, 250, 0.5, 19})

	_, first, err := ComputeExposure(conc, pop)
	require.NoError(t, err)
	_, second, err := ComputeExposure(conc, pop)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeExposure_AllZeroPair(t *testing.T) {
	conc := mustRaster(t, 2, 2, []float64{0, 0, 0, 0})
	pop := mustRaster(t, 2, 2, []float64{0, 0, 0, 0})

	_, stats, err := ComputeExposure(conc, pop)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.NonZeroPixels)
	assert.Equal(t, 0.0, stats.NonZeroMean, "no positive cells must fall back to 0.0, not NaN")
	assert.Equal(t, 0.0, stats.Mean)
	assert.Equal(t, 0.0, stats.Std)
}

func TestComputeExposure_RejectsMisalignedPairs(t *testing.T) {
	base := mustRaster(t, 2, 2, []float64{1, 2, 3, 4})

	shifted, err := New(2, 2, []float64{1, 1, 1, 1}, Geotransform{0.5, 0.01, 0, 10, 0, -0.01}, "EPSG:4326")
	require.NoError(t, err)

	wrongShape := mustRaster(t, 1, 4, []float64{1, 1, 1, 1})

	tests := []struct {
		name string
		pop  *Raster
	}{
		{name: "geotransform mismatch", pop: shifted},
		{name: "shape mismatch", pop: wrongShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ComputeExposure(base, tt.pop)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotAligned)
		})
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(0, 5, nil, Geotransform{}, "")
	assert.Error(t, err)

	_, err = New(2, 2, []float64{1, 2, 3}, Geotransform{}, "")
	assert.Error(t, err)
}
