// Package pipeline discovers raster pairs under the input tree, runs the
// person-exposure computation across a worker pool, and assembles the
// viewer manifest.
package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileKind distinguishes the two input rasters of an asset.
type FileKind string

const (
	KindConcentration FileKind = "concentration"
	KindPopulation    FileKind = "population"
)

// Pair is one asset's concentration and population rasters.
type Pair struct {
	AssetID  string
	Country  string
	ConcPath string
	PopPath  string
}

// legacyPrefix is the export name used before asset IDs became filenames.
const legacyPrefix = "cmu_plumes_footprints_v2_"

// ParseFilename extracts the asset ID and raster kind from an input file
// name. Current names are {asset_id}-v2.tiff and {asset_id}-pop-v2.tiff;
// legacy exports carry a long prefix with the country code embedded.
func ParseFilename(name string) (assetID string, kind FileKind, ok bool) {
	base, found := strings.CutSuffix(name, ".tiff")
	if !found {
		return "", "", false
	}

	kind = KindConcentration
	if b, isPop := strings.CutSuffix(base, "-pop-v2"); isPop {
		base, kind = b, KindPopulation
	} else if b, isConc := strings.CutSuffix(base, "-v2"); isConc {
		base = b
	} else {
		return "", "", false
	}

	if rest, legacy := strings.CutPrefix(base, legacyPrefix); legacy {
		// The legacy prefix is followed by the 3-letter country code.
		if len(rest) > 4 && rest[3] == '_' {
			rest = rest[4:]
		}
		base = rest
	}

	if base == "" {
		return "", "", false
	}
	return base, kind, true
}

// Discover walks the per-country subdirectories of inputDir and matches
// concentration rasters to their population counterparts. Files without a
// counterpart are logged and dropped.
func Discover(inputDir string) ([]Pair, error) {
	countries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read input dir %s", inputDir)
	}

	var pairs []Pair
	for _, c := range countries {
		if !c.IsDir() || len(c.Name()) != 3 {
			continue
		}
		country := c.Name()
		countryDir := filepath.Join(inputDir, country)

		files, err := os.ReadDir(countryDir)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: read country dir %s", countryDir)
		}

		byAsset := make(map[string]*Pair)
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			assetID, kind, ok := ParseFilename(f.Name())
			if !ok {
				continue
			}
			p := byAsset[assetID]
			if p == nil {
				p = &Pair{AssetID: assetID, Country: country}
				byAsset[assetID] = p
			}
			path := filepath.Join(countryDir, f.Name())
			if kind == KindPopulation {
				p.PopPath = path
			} else {
				p.ConcPath = path
			}
		}

		for _, p := range byAsset {
			if p.ConcPath == "" || p.PopPath == "" {
				zap.L().Warn("unpaired raster, skipping",
					zap.String("country", country),
					zap.String("asset_id", p.AssetID),
				)
				continue
			}
			pairs = append(pairs, *p)
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Country != pairs[j].Country {
			return pairs[i].Country < pairs[j].Country
		}
		return pairs[i].AssetID < pairs[j].AssetID
	})
	return pairs, nil
}
