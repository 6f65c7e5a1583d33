package overlay

import (
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/airshed-analytics/exposure-cli/internal/config"
	"github.com/airshed-analytics/exposure-cli/internal/model"
	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

// Renderer turns exposure rasters into PNG overlays plus sampled pixel
// data for hover tooltips.
type Renderer struct {
	style           Style
	globalMax       float64
	heatMaxDim      int
	uniformMaxDim   int
	maxPixelSamples int
}

// NewRenderer builds a Renderer from the overlay configuration.
func NewRenderer(cfg config.OverlayConfig) (*Renderer, error) {
	style := Style(cfg.Style)
	if style != StyleUniform && style != StyleHeat {
		return nil, eris.Errorf("overlay: unknown style %q", cfg.Style)
	}
	return &Renderer{
		style:           style,
		globalMax:       cfg.GlobalMaxExposure,
		heatMaxDim:      cfg.HeatMaxDim,
		uniformMaxDim:   cfg.UniformMaxDim,
		maxPixelSamples: cfg.MaxPixelSamples,
	}, nil
}

// Decimate returns a strided copy keeping every factor-th row and column.
// The transform is rescaled so pixel coordinates still map to geography.
func Decimate(r *raster.Raster, factor int) *raster.Raster {
	if factor <= 1 {
		return r
	}
	rows := (r.Rows + factor - 1) / factor
	cols := (r.Cols + factor - 1) / factor
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = r.At(i*factor, j*factor)
		}
	}
	gt := r.Transform
	gt[1] *= float64(factor)
	gt[2] *= float64(factor)
	gt[4] *= float64(factor)
	gt[5] *= float64(factor)
	out, _ := raster.New(rows, cols, data, gt, r.CRS)
	return out
}

// scaleFactor picks the downsample stride for the raster under the
// configured style.
func (rd *Renderer) scaleFactor(rows, cols int) int {
	if rd.style == StyleHeat {
		if rows <= rd.heatMaxDim && cols <= rd.heatMaxDim {
			return 1
		}
		f := rows / rd.heatMaxDim
		if c := cols / rd.heatMaxDim; c > f {
			f = c
		}
		if f < 1 {
			f = 1
		}
		return f
	}
	f := min(rows, cols) / rd.uniformMaxDim
	if f < 1 {
		f = 1
	}
	return f
}

// sampleStride picks the pixel-sampling stride for the downsampled grid.
func (rd *Renderer) sampleStride(rows, cols int) int {
	div := 50
	if rd.style == StyleHeat {
		div = 100
	}
	s := min(rows, cols) / div
	if s < 1 {
		s = 1
	}
	return s
}

func maxPositive(data []float64) float64 {
	var m float64
	for _, v := range data {
		if v > m {
			m = v
		}
	}
	return m
}

// Render writes the overlay PNG for one asset and returns its metadata.
// Assets with no positive exposure are skipped with a nil result.
func (rd *Renderer) Render(exposure, conc, pop *raster.Raster, pngPath string) (*model.OverlayInfo, error) {
	maxExposure := maxPositive(exposure.Data)
	if maxExposure <= 0 {
		return nil, nil
	}

	factor := rd.scaleFactor(exposure.Rows, exposure.Cols)
	ds := Decimate(exposure, factor)
	dsConc := Decimate(conc, factor)
	dsPop := Decimate(pop, factor)

	// The heat ramp stretches to the downsampled grid's own maximum.
	assetMax := maxExposure
	if rd.style == StyleHeat {
		assetMax = maxPositive(ds.Data)
	}

	img := image.NewNRGBA(image.Rect(0, 0, ds.Cols, ds.Rows))
	for i := 0; i < ds.Rows; i++ {
		for j := 0; j < ds.Cols; j++ {
			v := ds.At(i, j)
			if rd.style == StyleHeat {
				img.SetNRGBA(j, i, HeatColor(v, assetMax))
			} else {
				img.SetNRGBA(j, i, UniformColor(v, rd.globalMax))
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(pngPath), 0o755); err != nil {
		return nil, eris.Wrapf(err, "overlay: create %s", filepath.Dir(pngPath))
	}
	f, err := os.Create(pngPath)
	if err != nil {
		return nil, eris.Wrapf(err, "overlay: create %s", pngPath)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return nil, eris.Wrapf(err, "overlay: encode %s", pngPath)
	}

	samples := rd.samplePixels(ds, dsConc, dsPop)
	b := exposure.Bounds()

	info := &model.OverlayInfo{
		PNGFile: filepath.Base(pngPath),
		Bounds: model.LatLngBounds{
			North: b.Max(1),
			South: b.Min(1),
			East:  b.Max(0),
			West:  b.Min(0),
		},
		MaxExposure: assetMax,
		ColorScale:  rd.style.ColorScaleName(),
		PixelCount:  len(samples),
		Width:       ds.Cols,
		Height:      ds.Rows,
		PixelData:   samples,
	}
	if rd.style == StyleHeat {
		info.CRS = exposure.CRS
	} else {
		info.GlobalMaxExposure = rd.globalMax
	}

	zap.L().Debug("overlay rendered",
		zap.String("png", pngPath),
		zap.Int("width", ds.Cols),
		zap.Int("height", ds.Rows),
		zap.Int("samples", len(samples)),
	)
	return info, nil
}

// samplePixels collects positive cells on a coarse grid for tooltips.
func (rd *Renderer) samplePixels(exposure, conc, pop *raster.Raster) []model.PixelSample {
	stride := rd.sampleStride(exposure.Rows, exposure.Cols)
	var samples []model.PixelSample
	for i := 0; i < exposure.Rows; i += stride {
		for j := 0; j < exposure.Cols; j += stride {
			v := exposure.At(i, j)
			if v <= 0 || math.IsNaN(v) {
				continue
			}
			lon, lat := exposure.XY(i, j)
			samples = append(samples, model.PixelSample{
				Lat:           lat,
				Lon:           lon,
				Exposure:      v,
				Concentration: conc.At(i, j),
				Population:    pop.At(i, j),
			})
			if rd.maxPixelSamples > 0 && len(samples) >= rd.maxPixelSamples {
				return samples
			}
		}
	}
	return samples
}
