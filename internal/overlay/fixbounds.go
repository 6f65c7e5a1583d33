package overlay

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FixBounds repairs overlay-data files whose bounds collapsed to a single
// point (east==west or north==south), restoring them from the matching raw
// export. Returns the number of files repaired.
func FixBounds(rawDir, overlaysDir string) (int, error) {
	rawFiles, err := filepath.Glob(filepath.Join(rawDir, "*_raw.json"))
	if err != nil {
		return 0, eris.Wrapf(err, "overlay: list %s", rawDir)
	}

	fixed := 0
	for _, rawPath := range rawFiles {
		buf, err := os.ReadFile(rawPath)
		if err != nil {
			return fixed, eris.Wrapf(err, "overlay: read %s", rawPath)
		}
		var raw RawData
		if err := json.Unmarshal(buf, &raw); err != nil {
			return fixed, eris.Wrapf(err, "overlay: parse %s", rawPath)
		}

		dataPath := filepath.Join(overlaysDir, OverlayDataFilename(raw.Country, raw.AssetID))
		dataBuf, err := os.ReadFile(dataPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fixed, eris.Wrapf(err, "overlay: read %s", dataPath)
		}

		var doc map[string]any
		if err := json.Unmarshal(dataBuf, &doc); err != nil {
			return fixed, eris.Wrapf(err, "overlay: parse %s", dataPath)
		}
		bounds, ok := doc["bounds"].(map[string]any)
		if !ok {
			continue
		}
		east, _ := bounds["east"].(float64)
		west, _ := bounds["west"].(float64)
		north, _ := bounds["north"].(float64)
		south, _ := bounds["south"].(float64)
		if east != west && north != south {
			continue
		}

		doc["bounds"] = raw.Bounds
		out, err := json.Marshal(doc)
		if err != nil {
			return fixed, eris.Wrapf(err, "overlay: marshal %s", dataPath)
		}
		if err := os.WriteFile(dataPath, out, 0o644); err != nil {
			return fixed, eris.Wrapf(err, "overlay: write %s", dataPath)
		}
		fixed++
		zap.L().Info("bounds repaired",
			zap.String("asset_id", raw.AssetID),
			zap.String("country", raw.Country),
		)
	}
	return fixed, nil
}
