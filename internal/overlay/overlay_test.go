package overlay

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airshed-analytics/exposure-cli/internal/config"
	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

func testRaster(t *testing.T, rows, cols int, data []float64) *raster.Raster {
	t.Helper()
	r, err := raster.New(rows, cols, data, raster.Geotransform{100, 0.01, 0, 14, 0, -0.01}, "EPSG:4326")
	require.NoError(t, err)
	return r
}

func uniformRenderer(t *testing.T) *Renderer {
	t.Helper()
	rd, err := NewRenderer(config.OverlayConfig{
		Style:             "uniform",
		GlobalMaxExposure: 30_000_000,
		HeatMaxDim:        300,
		UniformMaxDim:     200,
		MaxPixelSamples:   10000,
	})
	require.NoError(t, err)
	return rd
}

func TestNewRenderer_UnknownStyle(t *testing.T) {
	_, err := NewRenderer(config.OverlayConfig{Style: "plasma"})
	assert.Error(t, err)
}

func TestDecimate(t *testing.T) {
	r := testRaster(t, 4, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})

	ds := Decimate(r, 2)
	assert.Equal(t, 2, ds.Rows)
	assert.Equal(t, 2, ds.Cols)
	assert.Equal(t, []float64{1, 3, 9, 11}, ds.Data)

	// Pixel size doubles so geography is preserved.
	assert.InDelta(t, 0.02, ds.Transform[1], 1e-12)
	assert.InDelta(t, -0.02, ds.Transform[5], 1e-12)

	// Factor 1 is the identity.
	assert.Same(t, r, Decimate(r, 1))
}

func TestDecimate_UnevenShape(t *testing.T) {
	r := testRaster(t, 5, 3, make([]float64, 15))
	ds := Decimate(r, 2)
	assert.Equal(t, 3, ds.Rows)
	assert.Equal(t, 2, ds.Cols)
}

func TestRender_Uniform(t *testing.T) {
	rd := uniformRenderer(t)
	exposure := testRaster(t, 2, 2, []float64{1_000_000, 0, 0, 30_000_000})
	conc := testRaster(t, 2, 2, []float64{10, 0, 0, 20})
	pop := testRaster(t, 2, 2, []float64{5, 1, 1, 8})

	pngPath := filepath.Join(t.TempDir(), "THA_a1_overlay.png")
	info, err := rd.Render(exposure, conc, pop, pngPath)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "THA_a1_overlay.png", info.PNGFile)
	assert.Equal(t, "log_white_to_black", info.ColorScale)
	assert.InDelta(t, 30_000_000.0, info.MaxExposure, 1e-6)
	assert.InDelta(t, 30_000_000.0, info.GlobalMaxExposure, 1e-6)
	assert.Equal(t, 2, info.Width)
	assert.Equal(t, 2, info.Height)

	// Bounds in compass order for the 2x2 grid.
	assert.InDelta(t, 14.0, info.Bounds.North, 1e-9)
	assert.InDelta(t, 13.98, info.Bounds.South, 1e-9)
	assert.InDelta(t, 100.02, info.Bounds.East, 1e-9)
	assert.InDelta(t, 100.0, info.Bounds.West, 1e-9)

	// Only the two positive cells are sampled.
	assert.Equal(t, 2, info.PixelCount)
	require.Len(t, info.PixelData, 2)
	assert.InDelta(t, 1_000_000.0, info.PixelData[0].Exposure, 1e-6)
	assert.InDelta(t, 10.0, info.PixelData[0].Concentration, 1e-6)

	// The PNG on disk decodes to the overlay's dimensions.
	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}

func TestRender_Heat(t *testing.T) {
	rd, err := NewRenderer(config.OverlayConfig{
		Style:           "heat",
		HeatMaxDim:      300,
		UniformMaxDim:   200,
		MaxPixelSamples: 10000,
	})
	require.NoError(t, err)

	exposure := testRaster(t, 2, 2, []float64{50, 0, 0, 100})
	conc := testRaster(t, 2, 2, []float64{1, 1, 1, 1})
	pop := testRaster(t, 2, 2, []float64{1, 1, 1, 1})

	info, err := rd.Render(exposure, conc, pop, filepath.Join(t.TempDir(), "o.png"))
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "log_heat", info.ColorScale)
	assert.Equal(t, "EPSG:4326", info.CRS)
	assert.Zero(t, info.GlobalMaxExposure)
	assert.InDelta(t, 100.0, info.MaxExposure, 1e-9)
}

func TestRender_SkipsZeroExposure(t *testing.T) {
	rd := uniformRenderer(t)
	zero := testRaster(t, 2, 2, make([]float64, 4))

	info, err := rd.Render(zero, zero, zero, filepath.Join(t.TempDir(), "o.png"))
	require.NoError(t, err)
	assert.Nil(t, info, "assets without positive exposure get no overlay")
}

func TestRender_CapsPixelSamples(t *testing.T) {
	rd, err := NewRenderer(config.OverlayConfig{
		Style:             "uniform",
		GlobalMaxExposure: 30_000_000,
		UniformMaxDim:     200,
		HeatMaxDim:        300,
		MaxPixelSamples:   3,
	})
	require.NoError(t, err)

	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i + 1)
	}
	r := testRaster(t, 10, 10, data)

	info, err := rd.Render(r, r, r, filepath.Join(t.TempDir(), "o.png"))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 3, info.PixelCount)
}
