package overlay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airshed-analytics/exposure-cli/internal/model"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	buf, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestFixBounds(t *testing.T) {
	dir := t.TempDir()
	rawDir := filepath.Join(dir, "raw_data")
	overlaysDir := filepath.Join(dir, "overlays")

	good := model.LatLngBounds{North: 14, South: 13.98, East: 100.02, West: 100}
	writeJSON(t, filepath.Join(rawDir, RawFilename("THA", "a1")), RawData{
		AssetID: "a1", Country: "THA", Bounds: good,
	})
	// Degenerate: east == west.
	writeJSON(t, filepath.Join(overlaysDir, OverlayDataFilename("THA", "a1")), map[string]any{
		"asset_id": "a1",
		"bounds":   map[string]any{"north": 14.0, "south": 13.98, "east": 100.0, "west": 100.0},
	})

	writeJSON(t, filepath.Join(rawDir, RawFilename("VNM", "b2")), RawData{
		AssetID: "b2", Country: "VNM", Bounds: good,
	})
	// Healthy bounds stay untouched.
	healthy := map[string]any{
		"asset_id": "b2",
		"bounds":   map[string]any{"north": 21.0, "south": 20.9, "east": 105.9, "west": 105.8},
	}
	writeJSON(t, filepath.Join(overlaysDir, OverlayDataFilename("VNM", "b2")), healthy)

	// Raw file without a matching overlay document is skipped.
	writeJSON(t, filepath.Join(rawDir, RawFilename("THA", "c3")), RawData{
		AssetID: "c3", Country: "THA", Bounds: good,
	})

	fixed, err := FixBounds(rawDir, overlaysDir)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	buf, err := os.ReadFile(filepath.Join(overlaysDir, OverlayDataFilename("THA", "a1")))
	require.NoError(t, err)
	var doc struct {
		Bounds model.LatLngBounds `json:"bounds"`
	}
	require.NoError(t, json.Unmarshal(buf, &doc))
	assert.Equal(t, good, doc.Bounds)

	buf, err = os.ReadFile(filepath.Join(overlaysDir, OverlayDataFilename("VNM", "b2")))
	require.NoError(t, err)
	var untouched map[string]any
	require.NoError(t, json.Unmarshal(buf, &untouched))
	assert.InDelta(t, 21.0, untouched["bounds"].(map[string]any)["north"].(float64), 1e-9)
}

func TestFixBounds_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	fixed, err := FixBounds(dir, dir)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}
