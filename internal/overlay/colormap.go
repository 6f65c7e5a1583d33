// Package overlay renders person-exposure rasters into map-ready PNG
// overlays and exports downsampled raw grids for canvas rendering.
package overlay

import (
	"image/color"
	"math"
)

// Style selects the overlay colormap.
type Style string

const (
	// StyleUniform maps every asset onto one shared log scale from
	// transparent white to opaque black, so overlays are comparable
	// across assets.
	StyleUniform Style = "uniform"

	// StyleHeat stretches each asset to its own maximum on a
	// yellow/orange/red/purple ramp.
	StyleHeat Style = "heat"
)

// ColorScaleName is the scale identifier written into overlay metadata.
func (s Style) ColorScaleName() string {
	if s == StyleHeat {
		return "log_heat"
	}
	return "log_white_to_black"
}

// UniformColor maps an exposure value onto the shared log scale capped at
// globalMax. Zero and negative values are fully transparent.
func UniformColor(v, globalMax float64) color.NRGBA {
	if v <= 0 || math.IsNaN(v) {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 0}
	}
	norm := math.Log10(math.Max(1, v)) / math.Log10(globalMax)
	if norm > 1 {
		norm = 1
	}
	grey := uint8(255 * (1 - norm))
	return color.NRGBA{R: grey, G: grey, B: grey, A: uint8(norm * 255)}
}

// HeatColor maps an exposure value onto the per-asset heat ramp. assetMax
// is the largest positive value in the (downsampled) grid.
func HeatColor(v, assetMax float64) color.NRGBA {
	if v <= 0 || math.IsNaN(v) {
		return color.NRGBA{}
	}
	if assetMax <= 0 {
		assetMax = 1
	}
	norm := math.Log10(v+1) / math.Log10(assetMax+1)
	if norm > 1 {
		norm = 1
	}

	switch {
	case norm < 0.25:
		return color.NRGBA{R: 255, G: 255, B: 0, A: uint8(norm * 4 * 180)}
	case norm < 0.5:
		p := (norm - 0.25) * 4
		return color.NRGBA{R: 255, G: uint8(255 - p*100), B: 0, A: 200}
	case norm < 0.75:
		p := (norm - 0.5) * 4
		return color.NRGBA{R: 255, G: uint8(155 - p*155), B: 0, A: 220}
	default:
		p := (norm - 0.75) * 4
		return color.NRGBA{R: uint8(255 - p*100), G: 0, B: uint8(p * 200), A: 240}
	}
}
