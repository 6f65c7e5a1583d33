package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// ErrNotAligned indicates a concentration/population pair whose shapes or
// geotransforms differ. Alignment is checked before any arithmetic; a
// mismatched pair is never coerced or resampled.
var ErrNotAligned = eris.New("raster: concentration and population rasters are not spatially aligned")

// ExposureStats summarizes a person-exposure raster. Mean and std are taken
// over all cells (population std, matching the upstream data pipeline);
// NonZeroMean covers strictly-positive cells only and is 0.0 when none exist.
type ExposureStats struct {
	Total         float64 `json:"total_person_exposure"`
	Mean          float64 `json:"mean_person_exposure"`
	Max           float64 `json:"max_person_exposure"`
	Min           float64 `json:"min_person_exposure"`
	Std           float64 `json:"std_person_exposure"`
	NonZeroPixels int     `json:"non_zero_pixels"`
	NonZeroMean   float64 `json:"non_zero_mean"`
}

// CheckAligned verifies that two rasters share an identical shape and a
// bit-for-bit identical geotransform.
func CheckAligned(conc, pop *Raster) error {
	if !conc.SameShape(pop) {
		return eris.Wrapf(ErrNotAligned, "shape %dx%d vs %dx%d", conc.Rows, conc.Cols, pop.Rows, pop.Cols)
	}
	if conc.Transform != pop.Transform {
		return eris.Wrap(ErrNotAligned, "geotransform mismatch")
	}
	return nil
}

// clean maps non-finite and negative samples to zero.
func clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// ComputeExposure derives the person-exposure raster (concentration ×
// population, cell-wise) and its summary statistics. Each source cell is
// cleaned independently: NaN, ±Inf, and negative values contribute zero.
// The inputs are not mutated and the result carries the pair's geotransform.
func ComputeExposure(conc, pop *Raster) (*Raster, ExposureStats, error) {
	if err := CheckAligned(conc, pop); err != nil {
		return nil, ExposureStats{}, err
	}

	n := conc.Size()
	data := make([]float64, n)
	for i := range data {
		data[i] = clean(conc.Data[i]) * clean(pop.Data[i])
	}

	out := &Raster{
		Data:      data,
		Rows:      conc.Rows,
		Cols:      conc.Cols,
		Transform: conc.Transform,
		CRS:       conc.CRS,
	}

	stats := ExposureStats{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}
	var nonZeroSum float64
	for _, v := range data {
		stats.Total += v
		if v > stats.Max {
			stats.Max = v
		}
		if v < stats.Min {
			stats.Min = v
		}
		if v > 0 {
			stats.NonZeroPixels++
			nonZeroSum += v
		}
	}
	stats.Mean = stats.Total / float64(n)
	stats.Std = stat.PopStdDev(data, nil)
	if stats.NonZeroPixels > 0 {
		stats.NonZeroMean = nonZeroSum / float64(stats.NonZeroPixels)
	}

	return out, stats, nil
}
