package model

import (
	"sort"
	"time"

	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

// DistStats is the serialized form of a cross-asset distribution rollup.
// Percentiles are present for the max-per-asset distribution; SumAllAssets
// for the total-per-asset distribution.
type DistStats struct {
	Count         int      `json:"count"`
	Min           float64  `json:"min"`
	Max           float64  `json:"max"`
	Mean          float64  `json:"mean"`
	Median        float64  `json:"median"`
	Std           float64  `json:"std"`
	GeometricMean float64  `json:"geometric_mean"`
	P90           *float64 `json:"percentile_90,omitempty"`
	P95           *float64 `json:"percentile_95,omitempty"`
	P99           *float64 `json:"percentile_99,omitempty"`
	SumAllAssets  *float64 `json:"sum_all_assets,omitempty"`
}

// ColorScaleMeta describes the overlay color mapping for the viewer legend.
type ColorScaleMeta struct {
	Type        string  `json:"type"`
	MinExposure float64 `json:"min_exposure"`
	MaxExposure float64 `json:"max_exposure"`
	Description string  `json:"description"`
}

// ManifestMeta is the metadata block of assets.json.
type ManifestMeta struct {
	ProcessedDate      time.Time       `json:"processed_date"`
	TotalAssets        int             `json:"total_assets"`
	Countries          []string        `json:"countries"`
	DataVersion        string          `json:"data_version"`
	ScriptVersion      string          `json:"script_version"`
	MaxExposureStats   *DistStats      `json:"max_person_exposure_stats,omitempty"`
	TotalExposureStats *DistStats      `json:"total_person_exposure_stats,omitempty"`
	OverlayGenerated   bool            `json:"overlay_generated,omitempty"`
	OverlayCount       int             `json:"overlay_count,omitempty"`
	ColorScale         *ColorScaleMeta `json:"color_scale,omitempty"`
	RawDataExported    bool            `json:"raw_data_exported,omitempty"`
	CanvasRendering    bool            `json:"canvas_rendering_enabled,omitempty"`
}

// Manifest is the complete assets.json document.
type Manifest struct {
	Metadata ManifestMeta  `json:"metadata"`
	Assets   []AssetRecord `json:"assets"`
}

// NewManifest assembles a manifest from processed asset records, computing
// the cross-asset exposure distribution rollups.
func NewManifest(records []AssetRecord, now time.Time) Manifest {
	countrySet := make(map[string]struct{})
	for _, rec := range records {
		countrySet[rec.Country] = struct{}{}
	}
	countries := make([]string, 0, len(countrySet))
	for c := range countrySet {
		countries = append(countries, c)
	}
	sort.Strings(countries)

	m := Manifest{
		Metadata: ManifestMeta{
			ProcessedDate: now.UTC(),
			TotalAssets:   len(records),
			Countries:     countries,
			DataVersion:   DataVersion,
			ScriptVersion: ScriptVersion,
		},
		Assets: records,
	}
	m.Metadata.MaxExposureStats, m.Metadata.TotalExposureStats = SummarizeExposure(records)
	return m
}

// SummarizeExposure computes the max-per-asset and total-per-asset rollups.
// Both are nil when there are no records: an empty batch yields an absent
// summary, not an error.
func SummarizeExposure(records []AssetRecord) (maxStats, totalStats *DistStats) {
	maxValues := make([]float64, 0, len(records))
	totalValues := make([]float64, 0, len(records))
	for _, rec := range records {
		maxValues = append(maxValues, rec.PersonExposureStats.Max)
		totalValues = append(totalValues, rec.PersonExposureStats.Total)
	}

	if s, ok := raster.Summarize(maxValues); ok {
		maxStats = &DistStats{
			Count:         s.Count,
			Min:           s.Min,
			Max:           s.Max,
			Mean:          s.Mean,
			Median:        s.Median,
			Std:           s.Std,
			GeometricMean: s.GeometricMean,
			P90:           ptr(s.P90),
			P95:           ptr(s.P95),
			P99:           ptr(s.P99),
		}
	}
	if s, ok := raster.Summarize(totalValues); ok {
		totalStats = &DistStats{
			Count:         s.Count,
			Min:           s.Min,
			Max:           s.Max,
			Mean:          s.Mean,
			Median:        s.Median,
			Std:           s.Std,
			GeometricMean: s.GeometricMean,
			SumAllAssets:  ptr(s.Sum),
		}
	}
	return maxStats, totalStats
}

func ptr(v float64) *float64 { return &v }
