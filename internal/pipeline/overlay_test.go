package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airshed-analytics/exposure-cli/internal/config"
	"github.com/airshed-analytics/exposure-cli/internal/overlay"
)

func testRenderer(t *testing.T) *overlay.Renderer {
	t.Helper()
	rd, err := overlay.NewRenderer(config.OverlayConfig{
		Style:             "uniform",
		GlobalMaxExposure: 30_000_000,
		HeatMaxDim:        300,
		UniformMaxDim:     200,
		MaxPixelSamples:   10000,
	})
	require.NoError(t, err)
	return rd
}

func TestGenerateOverlays(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(st, cfg)
	ctx := context.Background()

	pairs := []Pair{
		writePair(t, cfg.Paths.InputDir, "THA", "a1", []float64{10, 20}, []float64{2, 3}, 1, 2),
		// All-zero exposure: processed but never rendered.
		writePair(t, cfg.Paths.InputDir, "VNM", "b2", []float64{0, 0}, []float64{1, 1}, 1, 2),
	}
	_, err := p.Run(ctx, pairs)
	require.NoError(t, err)

	sum, err := p.GenerateOverlays(ctx, testRenderer(t), pairs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Processed)
	assert.Equal(t, int64(1), sum.Skipped)

	// The PNG lands in the overlays dir and the record carries its info.
	_, err = os.Stat(filepath.Join(cfg.Paths.OverlaysDir, "THA_a1_overlay.png"))
	require.NoError(t, err)

	rec, err := st.GetAsset(ctx, "THA", "a1")
	require.NoError(t, err)
	require.NotNil(t, rec.Overlay)
	assert.Equal(t, "THA_a1_overlay.png", rec.Overlay.PNGFile)
	assert.Equal(t, "log_white_to_black", rec.Overlay.ColorScale)

	rec, err = st.GetAsset(ctx, "VNM", "b2")
	require.NoError(t, err)
	assert.Nil(t, rec.Overlay)

	// Second pass skips both without re-rendering.
	sum, err = p.GenerateOverlays(ctx, testRenderer(t), pairs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Processed)
	assert.Equal(t, int64(2), sum.Skipped)
}

func TestGenerateOverlays_UnprocessedPair(t *testing.T) {
	cfg := testConfig(t)
	p := New(newTestStore(t), cfg)

	pair := writePair(t, cfg.Paths.InputDir, "THA", "a1", []float64{1, 2}, []float64{3, 4}, 1, 2)
	sum, err := p.GenerateOverlays(context.Background(), testRenderer(t), []Pair{pair})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Skipped, "overlay requires a processed record")
}

func TestExportRaw(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(st, cfg)
	ctx := context.Background()

	pairs := []Pair{
		writePair(t, cfg.Paths.InputDir, "THA", "a1", []float64{10, 20}, []float64{2, 3}, 1, 2),
	}
	_, err := p.Run(ctx, pairs)
	require.NoError(t, err)

	sum, err := p.ExportRaw(ctx, pairs, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Processed)

	_, err = os.Stat(filepath.Join(cfg.Paths.RawDataDir, "THA_a1_raw.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Paths.OverlaysDir, "THA_a1_data.json"))
	require.NoError(t, err)

	rec, err := st.GetAsset(ctx, "THA", "a1")
	require.NoError(t, err)
	assert.Equal(t, "THA_a1_raw.json", rec.RawDataFile)

	// Existing exports are skipped unless forced.
	sum, err = p.ExportRaw(ctx, pairs, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Skipped)

	p.force = true
	sum, err = p.ExportRaw(ctx, pairs, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Processed)
}

func TestWriteManifest_OverlayMetadata(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(st, cfg)
	ctx := context.Background()

	pairs := []Pair{
		writePair(t, cfg.Paths.InputDir, "THA", "a1", []float64{10, 20}, []float64{2, 3}, 1, 2),
	}
	_, err := p.Run(ctx, pairs)
	require.NoError(t, err)
	_, err = p.GenerateOverlays(ctx, testRenderer(t), pairs)
	require.NoError(t, err)
	_, err = p.ExportRaw(ctx, pairs, 200)
	require.NoError(t, err)

	m, err := p.WriteManifest(ctx)
	require.NoError(t, err)

	assert.True(t, m.Metadata.OverlayGenerated)
	assert.Equal(t, 1, m.Metadata.OverlayCount)
	require.NotNil(t, m.Metadata.ColorScale)
	assert.Equal(t, "log_white_to_black", m.Metadata.ColorScale.Type)
	assert.InDelta(t, 30_000_000.0, m.Metadata.ColorScale.MaxExposure, 1e-6)
	assert.True(t, m.Metadata.RawDataExported)
	assert.True(t, m.Metadata.CanvasRendering)
}
