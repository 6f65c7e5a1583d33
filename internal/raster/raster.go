// Package raster implements the analysis core: raster-pair alignment checks,
// person-exposure computation, order-of-magnitude pixel classification,
// edge-pattern detection, and cross-asset distribution rollups. All functions
// are pure over already-loaded grids; file I/O lives in internal/geotiff.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Geotransform is an affine pixel-to-geographic mapping in GDAL coefficient
// order: originX, pixelWidth, rowRotation, originY, colRotation, pixelHeight.
// For north-up rasters pixelHeight is negative.
type Geotransform [6]float64

// Raster is a single-band 2D grid of float64 samples in row-major order,
// paired with its geotransform and CRS identifier. Treated as immutable once
// constructed; analysis functions never write into Data.
type Raster struct {
	Data      []float64
	Rows      int
	Cols      int
	Transform Geotransform
	CRS       string
}

// New validates dimensions and wraps the given data as a Raster.
func New(rows, cols int, data []float64, transform Geotransform, crs string) (*Raster, error) {
	if rows <= 0 || cols <= 0 {
		return nil, eris.Errorf("raster: invalid dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, eris.Errorf("raster: data length %d does not match %dx%d grid", len(data), rows, cols)
	}
	return &Raster{Data: data, Rows: rows, Cols: cols, Transform: transform, CRS: crs}, nil
}

// At returns the sample at (row, col). No bounds checking beyond the slice's own.
func (r *Raster) At(row, col int) float64 {
	return r.Data[row*r.Cols+col]
}

// Size returns the total number of cells.
func (r *Raster) Size() int {
	return r.Rows * r.Cols
}

// XY returns the geographic coordinates of the center of pixel (row, col).
func (r *Raster) XY(row, col int) (lon, lat float64) {
	gt := r.Transform
	fc := float64(col) + 0.5
	fr := float64(row) + 0.5
	lon = gt[0] + fc*gt[1] + fr*gt[2]
	lat = gt[3] + fc*gt[4] + fr*gt[5]
	return lon, lat
}

// Centerpoint returns the geographic coordinates of the raster's central
// pixel, used as the asset location.
func (r *Raster) Centerpoint() (lon, lat float64) {
	return r.XY(r.Rows/2, r.Cols/2)
}

// Bounds returns the geographic bounding box spanned by the raster's outer
// pixel edges.
func (r *Raster) Bounds() *geom.Bounds {
	gt := r.Transform
	fc := float64(r.Cols)
	fr := float64(r.Rows)

	x0, y0 := gt[0], gt[3]
	x1 := gt[0] + fc*gt[1] + fr*gt[2]
	y1 := gt[3] + fc*gt[4] + fr*gt[5]

	return geom.NewBounds(geom.XY).SetCoords(
		geom.Coord{math.Min(x0, x1), math.Min(y0, y1)},
		geom.Coord{math.Max(x0, x1), math.Max(y0, y1)},
	)
}

// SameShape reports whether two rasters have identical dimensions.
func (r *Raster) SameShape(other *Raster) bool {
	return r.Rows == other.Rows && r.Cols == other.Cols
}
