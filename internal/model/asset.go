// Package model defines the records exchanged between the processing
// pipeline, the store, and the viewer manifest (assets.json).
package model

import (
	"time"

	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

// ScriptVersion is bumped whenever the processing semantics change; records
// written by an older version are superseded on the next batch run.
const ScriptVersion = "1.1.0"

// DataVersion identifies the source raster generation.
const DataVersion = "v2"

// Bounds is a geographic bounding box in left/bottom/right/top order.
type Bounds struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
}

// LatLngBounds is the same box in compass order, as the map viewer expects.
type LatLngBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// AssetFiles names the raster files backing one asset record.
type AssetFiles struct {
	Concentration  string `json:"concentration"`
	Population     string `json:"population"`
	PersonExposure string `json:"person_exposure,omitempty"`
}

// AssetRecord is the per-asset processing result. Records are superseded
// wholesale on reprocessing, never mutated in place.
type AssetRecord struct {
	AssetID                   string               `json:"asset_id"`
	Country                   string               `json:"country"`
	CenterLon                 float64              `json:"center_lon"`
	CenterLat                 float64              `json:"center_lat"`
	TotalPixels               int                  `json:"total_pixels"`
	CRS                       string               `json:"crs"`
	Bounds                    Bounds               `json:"bounds"`
	ConcentrationPixelCounts  raster.Histogram     `json:"concentration_pixel_counts"`
	PopulationPixelCounts     raster.Histogram     `json:"population_pixel_counts"`
	PersonExposurePixelCounts raster.Histogram     `json:"person_exposure_pixel_counts"`
	PersonExposureStats       raster.ExposureStats `json:"person_exposure_stats"`
	ScriptVersion             string               `json:"script_version"`
	ProcessedDate             time.Time            `json:"processed_date"`
	Files                     AssetFiles           `json:"files"`
	Overlay                   *OverlayInfo         `json:"overlay,omitempty"`
	RawDataFile               string               `json:"raw_data_file,omitempty"`
}

// PixelSample is one sampled grid point for hover tooltips.
type PixelSample struct {
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Exposure      float64 `json:"exposure"`
	Concentration float64 `json:"concentration"`
	Population    float64 `json:"population"`
}

// OverlayInfo describes a rendered PNG overlay and its sampled pixels.
type OverlayInfo struct {
	PNGFile           string        `json:"png_file"`
	Bounds            LatLngBounds  `json:"bounds"`
	CRS               string        `json:"crs,omitempty"`
	MaxExposure       float64       `json:"max_exposure"`
	GlobalMaxExposure float64       `json:"global_max_exposure,omitempty"`
	ColorScale        string        `json:"color_scale"`
	PixelCount        int           `json:"pixel_count"`
	Width             int           `json:"width"`
	Height            int           `json:"height"`
	PixelData         []PixelSample `json:"pixel_data"`
}

// AuditEntry is one file's edge-pattern analysis result. Err is set (and
// Report zero) when the file could not be analyzed.
type AuditEntry struct {
	Country  string                    `json:"country"`
	AssetID  string                    `json:"asset_id"`
	FilePath string                    `json:"file_path"`
	FileType string                    `json:"file_type"`
	Report   *raster.EdgePatternReport `json:"report,omitempty"`
	Err      string                    `json:"error,omitempty"`
}

// Suspicious reports whether the entry carries a stripe flag.
func (e AuditEntry) Suspicious() bool {
	return e.Report != nil && e.Report.Suspicious
}
