package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airshed-analytics/exposure-cli/internal/geotiff"
	"github.com/airshed-analytics/exposure-cli/internal/model"
	"github.com/airshed-analytics/exposure-cli/internal/overlay"
	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

func overlayFilename(country, assetID string) string {
	return country + "_" + assetID + "_overlay.png"
}

// loadPairRasters reads the exposure raster from the processed tree plus
// the pair's input rasters.
func (p *Processor) loadPairRasters(pair Pair) (exposure, conc, pop *raster.Raster, err error) {
	exposurePath := filepath.Join(p.paths.ProcessedDir, pair.Country, exposureFilename(pair.AssetID))
	if exposure, err = geotiff.Read(exposurePath); err != nil {
		return nil, nil, nil, err
	}
	if conc, err = geotiff.Read(pair.ConcPath); err != nil {
		return nil, nil, nil, err
	}
	if pop, err = geotiff.Read(pair.PopPath); err != nil {
		return nil, nil, nil, err
	}
	return exposure, conc, pop, nil
}

// GenerateOverlays renders a PNG overlay for every processed pair and
// attaches the overlay metadata to the stored records. Pairs that have not
// been processed yet, or carry no positive exposure, are skipped.
func (p *Processor) GenerateOverlays(ctx context.Context, rd *overlay.Renderer, pairs []Pair) (Summary, error) {
	if len(pairs) == 0 {
		zap.L().Info("no raster pairs found")
		return Summary{}, nil
	}

	zap.L().Info("generating overlays",
		zap.Int("pairs", len(pairs)),
		zap.Int("workers", p.workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var processed, skipped, failed atomic.Int64

	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			log := zap.L().With(
				zap.String("country", pair.Country),
				zap.String("asset_id", pair.AssetID),
			)

			rec, err := p.store.GetAsset(gctx, pair.Country, pair.AssetID)
			if err != nil {
				failed.Add(1)
				log.Error("record lookup failed", zap.Error(err))
				return nil
			}
			if rec == nil {
				skipped.Add(1)
				log.Debug("not processed yet, skipping overlay")
				return nil
			}

			pngPath := filepath.Join(p.paths.OverlaysDir, overlayFilename(pair.Country, pair.AssetID))
			if !p.force && rec.Overlay != nil {
				if _, err := os.Stat(pngPath); err == nil {
					skipped.Add(1)
					log.Debug("overlay exists, skipping")
					return nil
				}
			}

			exposure, conc, pop, err := p.loadPairRasters(pair)
			if err != nil {
				failed.Add(1)
				log.Error("raster load failed", zap.Error(err))
				return nil
			}

			info, err := rd.Render(exposure, conc, pop, pngPath)
			if err != nil {
				failed.Add(1)
				log.Error("overlay render failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			if info == nil {
				skipped.Add(1)
				log.Info("no exposure data, skipping overlay")
				return nil
			}

			rec.Overlay = info
			if err := p.store.UpsertAsset(gctx, *rec); err != nil {
				failed.Add(1)
				log.Error("record update failed", zap.Error(err))
				return nil
			}

			processed.Add(1)
			log.Info("overlay generated",
				zap.String("png", info.PNGFile),
				zap.Int("samples", info.PixelCount),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, eris.Wrap(err, "pipeline: overlay batch")
	}

	s := Summary{
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
	}
	zap.L().Info("overlay batch complete",
		zap.Int64("generated", s.Processed),
		zap.Int64("skipped", s.Skipped),
		zap.Int64("failed", s.Failed),
	)
	return s, nil
}

// ExportRaw writes downsampled raw-data and canvas overlay documents for
// every processed pair and records the export on each asset.
func (p *Processor) ExportRaw(ctx context.Context, pairs []Pair, maxDim int) (Summary, error) {
	if len(pairs) == 0 {
		zap.L().Info("no raster pairs found")
		return Summary{}, nil
	}

	zap.L().Info("exporting raw data",
		zap.Int("pairs", len(pairs)),
		zap.Int("workers", p.workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var processed, skipped, failed atomic.Int64

	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			log := zap.L().With(
				zap.String("country", pair.Country),
				zap.String("asset_id", pair.AssetID),
			)

			rec, err := p.store.GetAsset(gctx, pair.Country, pair.AssetID)
			if err != nil {
				failed.Add(1)
				log.Error("record lookup failed", zap.Error(err))
				return nil
			}
			if rec == nil {
				skipped.Add(1)
				log.Debug("not processed yet, skipping export")
				return nil
			}

			rawName := overlay.RawFilename(pair.Country, pair.AssetID)
			rawPath := filepath.Join(p.paths.RawDataDir, rawName)
			if !p.force {
				if _, err := os.Stat(rawPath); err == nil {
					skipped.Add(1)
					log.Debug("raw export exists, skipping")
					return nil
				}
			}

			exposure, conc, pop, err := p.loadPairRasters(pair)
			if err != nil {
				failed.Add(1)
				log.Error("raster load failed", zap.Error(err))
				return nil
			}

			raw, ok := overlay.BuildRaw(pair.AssetID, pair.Country, exposure, conc, pop, maxDim)
			if !ok {
				skipped.Add(1)
				log.Info("no exposure data, skipping export")
				return nil
			}
			if err := overlay.WriteRaw(rawPath, raw); err != nil {
				failed.Add(1)
				log.Error("raw export failed", zap.Error(err))
				return nil
			}

			dataPath := filepath.Join(p.paths.OverlaysDir, overlay.OverlayDataFilename(pair.Country, pair.AssetID))
			if err := overlay.WriteOverlayData(dataPath, overlay.BuildOverlayData(raw, rawName)); err != nil {
				failed.Add(1)
				log.Error("overlay data export failed", zap.Error(err))
				return nil
			}

			rec.RawDataFile = rawName
			if err := p.store.UpsertAsset(gctx, *rec); err != nil {
				failed.Add(1)
				log.Error("record update failed", zap.Error(err))
				return nil
			}

			processed.Add(1)
			log.Info("raw data exported",
				zap.String("file", rawName),
				zap.Int("width", raw.Dimensions.Width),
				zap.Int("height", raw.Dimensions.Height),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, eris.Wrap(err, "pipeline: export batch")
	}

	s := Summary{
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
	}
	zap.L().Info("export batch complete",
		zap.Int64("exported", s.Processed),
		zap.Int64("skipped", s.Skipped),
		zap.Int64("failed", s.Failed),
	)
	return s, nil
}

// overlayMeta derives the manifest's overlay block from stored records.
func overlayMeta(records []model.AssetRecord) (count int, scale *model.ColorScaleMeta) {
	var name string
	var maxScale float64
	for _, rec := range records {
		if rec.Overlay == nil {
			continue
		}
		count++
		name = rec.Overlay.ColorScale
		m := rec.Overlay.GlobalMaxExposure
		if m == 0 {
			m = rec.Overlay.MaxExposure
		}
		if m > maxScale {
			maxScale = m
		}
	}
	if count == 0 {
		return 0, nil
	}

	scale = &model.ColorScaleMeta{Type: name, MaxExposure: maxScale}
	switch name {
	case "log_heat":
		scale.Description = "Per-asset log scale from transparent yellow to opaque purple"
	default:
		scale.Description = "Log scale from transparent white (0) to opaque black (30M+)"
	}
	return count, scale
}
