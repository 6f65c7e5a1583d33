package raster

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DistributionSummary is a cross-asset rollup of one exposure metric.
// GeometricMean covers strictly-positive values only and is 0.0 when none
// exist. Percentiles use linear interpolation between closest ranks
// (rank = p/100 × (n−1)); the convention is fixed for reproducibility.
type DistributionSummary struct {
	Count         int
	Min           float64
	Max           float64
	Mean          float64
	Median        float64
	Std           float64
	GeometricMean float64
	P90           float64
	P95           float64
	P99           float64
	Sum           float64
}

// Summarize computes the distribution rollup over the given values.
// It returns false for an empty input rather than erroring; callers emit
// an absent summary in that case.
func Summarize(values []float64) (DistributionSummary, bool) {
	if len(values) == 0 {
		return DistributionSummary{}, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s := DistributionSummary{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   stat.Mean(sorted, nil),
		Std:    stat.PopStdDev(sorted, nil),
		Median: percentile(sorted, 50),
		P90:    percentile(sorted, 90),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
	}
	for _, v := range sorted {
		s.Sum += v
	}

	var positive []float64
	for _, v := range sorted {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) > 0 {
		s.GeometricMean = stat.GeometricMean(positive, nil)
	}

	return s, true
}

// percentile returns the p-th percentile of sorted values using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
