package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airshed-analytics/exposure-cli/internal/geotiff"
	"github.com/airshed-analytics/exposure-cli/internal/model"
	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

// Auditor scans input rasters for edge artifacts.
type Auditor struct {
	zeroThreshold float64
	workers       int
}

// NewAuditor creates an Auditor. Values at or below zeroThreshold count as
// zero during the edge scan.
func NewAuditor(zeroThreshold float64, workers int) *Auditor {
	if workers < 1 {
		workers = 1
	}
	return &Auditor{zeroThreshold: zeroThreshold, workers: workers}
}

// Scan analyzes both rasters of every pair. Unreadable files become error
// entries rather than failing the scan.
func (a *Auditor) Scan(ctx context.Context, pairs []Pair) ([]model.AuditEntry, error) {
	type job struct {
		pair Pair
		path string
		kind FileKind
	}
	var jobs []job
	for _, p := range pairs {
		jobs = append(jobs, job{pair: p, path: p.ConcPath, kind: KindConcentration})
		jobs = append(jobs, job{pair: p, path: p.PopPath, kind: KindPopulation})
	}

	entries := make([]model.AuditEntry, len(jobs))
	var mu sync.Mutex
	var suspicious int

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			e := model.AuditEntry{
				Country:  j.pair.Country,
				AssetID:  j.pair.AssetID,
				FilePath: j.path,
				FileType: string(j.kind),
			}

			r, err := geotiff.Read(j.path)
			if err != nil {
				e.Err = err.Error()
			} else {
				rep := raster.DetectEdgePatterns(r, a.zeroThreshold)
				e.Report = &rep
			}

			entries[i] = e
			if e.Suspicious() {
				mu.Lock()
				suspicious++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: audit scan")
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Country != entries[j].Country {
			return entries[i].Country < entries[j].Country
		}
		if entries[i].AssetID != entries[j].AssetID {
			return entries[i].AssetID < entries[j].AssetID
		}
		return entries[i].FileType < entries[j].FileType
	})

	zap.L().Info("audit scan complete",
		zap.Int("files", len(entries)),
		zap.Int("suspicious", suspicious),
	)
	return entries, nil
}
