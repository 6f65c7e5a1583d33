package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airshed-analytics/exposure-cli/internal/config"
	"github.com/airshed-analytics/exposure-cli/internal/geotiff"
	"github.com/airshed-analytics/exposure-cli/internal/model"
	"github.com/airshed-analytics/exposure-cli/internal/raster"
	"github.com/airshed-analytics/exposure-cli/internal/store"
)

// exposureNoData marks cells outside the computed grid in written rasters.
const exposureNoData = -9999

// Processor runs the person-exposure computation over discovered pairs.
type Processor struct {
	store   store.Store
	paths   config.PathsConfig
	workers int
	force   bool
}

// New creates a Processor from the loaded configuration.
func New(st store.Store, cfg *config.Config) *Processor {
	return &Processor{
		store:   st,
		paths:   cfg.Paths,
		workers: cfg.Process.Workers,
		force:   cfg.Process.Force,
	}
}

// Summary counts the outcomes of a batch run.
type Summary struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

func exposureFilename(assetID string) string {
	return assetID + "-exposure-v2.tiff"
}

// NeedsProcessing reports whether the pair must be (re)computed: no stored
// record, a record from an older script version, or a missing output raster.
// Records written by a newer script version are left alone.
func (p *Processor) NeedsProcessing(ctx context.Context, pair Pair) (bool, error) {
	rec, err := p.store.GetAsset(ctx, pair.Country, pair.AssetID)
	if err != nil {
		return false, err
	}
	if rec == nil || versionLess(rec.ScriptVersion, model.ScriptVersion) {
		return true, nil
	}
	out := filepath.Join(p.paths.ProcessedDir, pair.Country, exposureFilename(pair.AssetID))
	if _, err := os.Stat(out); err != nil {
		return true, nil
	}
	return false, nil
}

// versionLess orders dot-separated numeric versions, so "1.9.0" < "1.10.0".
// Missing segments count as zero.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}

// ProcessPair computes one asset's exposure raster, writes it to the
// processed tree, and stores the resulting record.
func (p *Processor) ProcessPair(ctx context.Context, pair Pair) (*model.AssetRecord, error) {
	conc, err := geotiff.Read(pair.ConcPath)
	if err != nil {
		return nil, err
	}
	pop, err := geotiff.Read(pair.PopPath)
	if err != nil {
		return nil, err
	}

	if err := raster.CheckAligned(conc, pop); err != nil {
		return nil, eris.Wrapf(err, "pipeline: asset %s", pair.AssetID)
	}

	exposure, stats, err := raster.ComputeExposure(conc, pop)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: asset %s", pair.AssetID)
	}

	outDir := filepath.Join(p.paths.ProcessedDir, pair.Country)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create %s", outDir)
	}
	outName := exposureFilename(pair.AssetID)
	if err := geotiff.Write(filepath.Join(outDir, outName), exposure, exposureNoData); err != nil {
		return nil, err
	}

	lon, lat := conc.Centerpoint()
	b := conc.Bounds()

	rec := model.AssetRecord{
		AssetID:                   pair.AssetID,
		Country:                   pair.Country,
		CenterLon:                 lon,
		CenterLat:                 lat,
		TotalPixels:               conc.Size(),
		CRS:                       conc.CRS,
		Bounds:                    model.Bounds{Left: b.Min(0), Bottom: b.Min(1), Right: b.Max(0), Top: b.Max(1)},
		ConcentrationPixelCounts:  raster.Classify(conc),
		PopulationPixelCounts:     raster.Classify(pop),
		PersonExposurePixelCounts: raster.Classify(exposure),
		PersonExposureStats:       stats,
		ScriptVersion:             model.ScriptVersion,
		ProcessedDate:             time.Now().UTC(),
		Files: model.AssetFiles{
			Concentration:  filepath.Join(pair.Country, filepath.Base(pair.ConcPath)),
			Population:     filepath.Join(pair.Country, filepath.Base(pair.PopPath)),
			PersonExposure: filepath.Join(pair.Country, outName),
		},
	}

	if err := p.store.UpsertAsset(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Run processes pairs concurrently. Individual failures are logged and
// counted without aborting the batch.
func (p *Processor) Run(ctx context.Context, pairs []Pair) (Summary, error) {
	if len(pairs) == 0 {
		zap.L().Info("no raster pairs found")
		return Summary{}, nil
	}

	zap.L().Info("processing batch",
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

			if !p.force {
				needed, err := p.NeedsProcessing(gctx, pair)
				if err != nil {
					failed.Add(1)
					log.Error("skip check failed", zap.Error(err))
					return nil
				}
				if !needed {
					skipped.Add(1)
					log.Debug("already processed, skipping")
					return nil
				}
			}

			rec, err := p.ProcessPair(gctx, pair)
			if err != nil {
				failed.Add(1)
				log.Error("processing failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			processed.Add(1)
			log.Info("asset processed",
				zap.Float64("total_person_exposure", rec.PersonExposureStats.Total),
				zap.Int("non_zero_pixels", rec.PersonExposureStats.NonZeroPixels),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, eris.Wrap(err, "pipeline: batch")
	}

	s := Summary{
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
	}
	zap.L().Info("batch complete",
		zap.Int64("processed", s.Processed),
		zap.Int64("skipped", s.Skipped),
		zap.Int64("failed", s.Failed),
	)
	return s, nil
}

// WriteManifest assembles assets.json from every stored record.
func (p *Processor) WriteManifest(ctx context.Context) (*model.Manifest, error) {
	recs, err := p.store.ListAssets(ctx, store.AssetFilter{})
	if err != nil {
		return nil, err
	}

	m := model.NewManifest(recs, time.Now())
	if count, scale := overlayMeta(recs); count > 0 {
		m.Metadata.OverlayGenerated = true
		m.Metadata.OverlayCount = count
		m.Metadata.ColorScale = scale
	}
	for _, rec := range recs {
		if rec.RawDataFile != "" {
			m.Metadata.RawDataExported = true
			m.Metadata.CanvasRendering = true
			break
		}
	}

	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: marshal manifest")
	}
	if err := os.WriteFile(p.paths.Manifest, buf, 0o644); err != nil {
		return nil, eris.Wrapf(err, "pipeline: write %s", p.paths.Manifest)
	}

	zap.L().Info("manifest written",
		zap.String("path", p.paths.Manifest),
		zap.Int("assets", len(recs)),
	)
	return &m, nil
}
