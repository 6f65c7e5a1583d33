package overlay

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/airshed-analytics/exposure-cli/internal/model"
	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

// Dimensions is the downsampled grid size of an export.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawArrays holds the three downsampled grids as row-major 2D arrays.
type RawArrays struct {
	PersonExposure [][]float64 `json:"person_exposure"`
	Concentration  [][]float64 `json:"concentration"`
	Population     [][]float64 `json:"population"`
}

// RawStats summarizes the downsampled grids for the viewer's legends.
type RawStats struct {
	MaxExposure      float64 `json:"max_exposure"`
	MinExposure      float64 `json:"min_exposure"`
	MaxConcentration float64 `json:"max_concentration"`
	MaxPopulation    float64 `json:"max_population"`
}

// RawData is the per-asset raw export consumed by canvas rendering.
type RawData struct {
	AssetID    string             `json:"asset_id"`
	Country    string             `json:"country"`
	Dimensions Dimensions         `json:"dimensions"`
	Bounds     model.LatLngBounds `json:"bounds"`
	Transform  [6]float64         `json:"transform"`
	Data       RawArrays          `json:"data"`
	Stats      RawStats           `json:"stats"`
}

// RawFilename names the raw export for one asset.
func RawFilename(country, assetID string) string {
	return country + "_" + assetID + "_raw.json"
}

// OverlayDataFilename names the combined overlay-data export for one asset.
func OverlayDataFilename(country, assetID string) string {
	return country + "_" + assetID + "_data.json"
}

// grid2D casts a raster to float32 precision and reshapes it row by row.
func grid2D(r *raster.Raster) [][]float64 {
	rows := make([][]float64, r.Rows)
	for i := 0; i < r.Rows; i++ {
		row := make([]float64, r.Cols)
		for j := 0; j < r.Cols; j++ {
			row[j] = float64(float32(r.At(i, j)))
		}
		rows[i] = row
	}
	return rows
}

// minPositive returns the smallest positive value, or 0 if none exist.
func minPositive(data []float64) float64 {
	var m float64
	for _, v := range data {
		if v > 0 && (m == 0 || v < m) {
			m = v
		}
	}
	return m
}

// BuildRaw assembles the raw export for one asset, downsampled so neither
// dimension drives the payload past maxDim strides. Returns false when the
// asset has no positive exposure.
func BuildRaw(assetID, country string, exposure, conc, pop *raster.Raster, maxDim int) (*RawData, bool) {
	if maxPositive(exposure.Data) <= 0 {
		return nil, false
	}

	factor := min(exposure.Rows, exposure.Cols) / maxDim
	if factor < 1 {
		factor = 1
	}
	ds := Decimate(exposure, factor)
	dsConc := Decimate(conc, factor)
	dsPop := Decimate(pop, factor)

	b := exposure.Bounds()
	gt := ds.Transform

	return &RawData{
		AssetID: assetID,
		Country: country,
		Dimensions: Dimensions{
			Width:  ds.Cols,
			Height: ds.Rows,
		},
		Bounds: model.LatLngBounds{
			North: b.Max(1),
			South: b.Min(1),
			East:  b.Max(0),
			West:  b.Min(0),
		},
		// Affine order: pixel width, row rotation, x origin, column
		// rotation, pixel height, y origin.
		Transform: [6]float64{gt[1], gt[2], gt[0], gt[4], gt[5], gt[3]},
		Data: RawArrays{
			PersonExposure: grid2D(ds),
			Concentration:  grid2D(dsConc),
			Population:     grid2D(dsPop),
		},
		Stats: RawStats{
			MaxExposure:      maxPositive(ds.Data),
			MinExposure:      minPositive(ds.Data),
			MaxConcentration: maxPositive(dsConc.Data),
			MaxPopulation:    maxPositive(dsPop.Data),
		},
	}, true
}

// WriteRaw writes the raw export as compact JSON.
func WriteRaw(path string, raw *RawData) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return eris.Wrapf(err, "overlay: marshal raw data for %s", raw.AssetID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "overlay: create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return eris.Wrapf(err, "overlay: write %s", path)
	}
	return nil
}

// OverlayData is the combined per-asset export that replaces PNG overlays
// for canvas-based rendering.
type OverlayData struct {
	AssetID    string             `json:"asset_id"`
	Country    string             `json:"country"`
	Dimensions Dimensions         `json:"dimensions"`
	Bounds     model.LatLngBounds `json:"bounds"`
	Transform  [6]float64         `json:"transform"`
	DataArrays RawArrays          `json:"data_arrays"`
	Metadata   OverlayDataMeta    `json:"metadata"`
}

// OverlayDataMeta records the provenance of an OverlayData document.
type OverlayDataMeta struct {
	CreatedFrom string `json:"created_from"`
	DataVersion string `json:"data_version"`
}

// overlayDataVersion tags exports in the canvas-rendering format.
const overlayDataVersion = "v3_best_practices"

// BuildOverlayData converts a raw export into the canvas overlay format.
func BuildOverlayData(raw *RawData, sourceName string) *OverlayData {
	return &OverlayData{
		AssetID:    raw.AssetID,
		Country:    raw.Country,
		Dimensions: raw.Dimensions,
		Bounds:     raw.Bounds,
		Transform:  raw.Transform,
		DataArrays: raw.Data,
		Metadata: OverlayDataMeta{
			CreatedFrom: sourceName,
			DataVersion: overlayDataVersion,
		},
	}
}

// WriteOverlayData writes the canvas overlay document as compact JSON.
func WriteOverlayData(path string, od *OverlayData) error {
	buf, err := json.Marshal(od)
	if err != nil {
		return eris.Wrapf(err, "overlay: marshal overlay data for %s", od.AssetID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "overlay: create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return eris.Wrapf(err, "overlay: write %s", path)
	}
	return nil
}
