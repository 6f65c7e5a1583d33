package raster

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_FixedTable(t *testing.T) {
	r := mustRaster(t, 1, 5, []float64{0, 0.0005, 0.005, 50, 50000})

	h := Classify(r)

	assert.Equal(t, 1, h.Counts[BucketZero])
	assert.Equal(t, 1, h.Counts[Bucket001], "0.005 belongs to 0.001-0.01")
	assert.Equal(t, 1, h.Counts[Bucket10], "50 belongs to 10-100")
	assert.Equal(t, 1, h.Counts[BucketOver10000], "50000 belongs to 10000+")
	// 0.0005 falls in the deliberate (0, 0.001) gap and is dropped.
	assert.Equal(t, 4, h.Total())
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		bucket Bucket
	}{
		{name: "exact zero", value: 0, bucket: BucketZero},
		{name: "lower edge 0.001", value: 0.001, bucket: Bucket001},
		{name: "upper edge 0.01 goes up", value: 0.01, bucket: Bucket01},
		{name: "lower edge 1", value: 1, bucket: Bucket1},
		{name: "upper edge 10 goes up", value: 10, bucket: Bucket10},
		{name: "just below 10000", value: 9999.999, bucket: Bucket10000},
		{name: "exactly 10000 is unbounded bucket", value: 10000, bucket: BucketOver10000},
		{name: "huge value", value: 3e12, bucket: BucketOver10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRaster(t, 1, 1, []float64{tt.value})
			h := Classify(r)
			assert.Equal(t, 1, h.Counts[tt.bucket])
			assert.Equal(t, 1, h.Total())
		})
	}
}

func TestClassify_ExcludesInvalidCells(t *testing.T) {
	r := mustRaster(t, 2, 3, []float64{math.NaN(), math.Inf(1), math.Inf(-1), -4, 0, 2})

	h := Classify(r)

	assert.Equal(t, 2, h.Total(), "only the zero and the 2 are classifiable")
	assert.Equal(t, 1, h.Counts[BucketZero])
	assert.Equal(t, 1, h.Counts[Bucket1])
}

func TestClassify_TotalMatchesValidCellCount(t *testing.T) {
	data := []float64{0, 0, 0.5, 7, 123, 4567, 99999, -1, math.NaN(), 0.0009}
	r := mustRaster(t, 2, 5, data)

	validOutsideGap := 0
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			continue
		}
		if v > 0 && v < 0.001 {
			continue
		}
		validOutsideGap++
	}

	h := Classify(r)
	assert.Equal(t, validOutsideGap, h.Total())
}

func TestHistogram_JSONRoundTrip(t *testing.T) {
	r := mustRaster(t, 1, 4, []float64{0, 5, 500, 50000})
	h := Classify(r)

	data, err := json.Marshal(h)
	require.NoError(t, err)

	// All nine labels must be present even when their count is zero.
	var m map[string]int
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Len(t, m, NumBuckets)
	assert.Equal(t, 0, m["0.001-0.01"])
	assert.Equal(t, 1, m["10000+"])

	var back Histogram
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, h, back)
}

func TestHistogram_UnmarshalRejectsUnknownBucket(t *testing.T) {
	var h Histogram
	err := json.Unmarshal([]byte(`{"0-1000000": 3}`), &h)
	assert.Error(t, err)
}
