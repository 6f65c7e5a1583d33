// Package report summarizes processed assets for operators: console
// tables, spreadsheet exports, and a bar-chart HTML view.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/airshed-analytics/exposure-cli/internal/model"
)

// CountryStats rolls one country's assets up.
type CountryStats struct {
	Country       string  `json:"country"`
	Assets        int     `json:"assets"`
	TotalExposure float64 `json:"total_exposure"`
	MaxExposure   float64 `json:"max_exposure"`
	TotalPixels   int     `json:"total_pixels"`
	Overlays      int     `json:"overlays"`
}

// Stats is the full cross-asset report.
type Stats struct {
	TotalAssets        int              `json:"total_assets"`
	Countries          []CountryStats   `json:"countries"`
	MaxExposureStats   *model.DistStats `json:"max_person_exposure_stats,omitempty"`
	TotalExposureStats *model.DistStats `json:"total_person_exposure_stats,omitempty"`
}

// Build computes the report from stored asset records.
func Build(records []model.AssetRecord) *Stats {
	byCountry := make(map[string]*CountryStats)
	for _, rec := range records {
		cs, ok := byCountry[rec.Country]
		if !ok {
			cs = &CountryStats{Country: rec.Country}
			byCountry[rec.Country] = cs
		}
		cs.Assets++
		cs.TotalExposure += rec.PersonExposureStats.Total
		if rec.PersonExposureStats.Max > cs.MaxExposure {
			cs.MaxExposure = rec.PersonExposureStats.Max
		}
		cs.TotalPixels += rec.TotalPixels
		if rec.Overlay != nil {
			cs.Overlays++
		}
	}

	countries := make([]CountryStats, 0, len(byCountry))
	for _, cs := range byCountry {
		countries = append(countries, *cs)
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Country < countries[j].Country })

	s := &Stats{TotalAssets: len(records), Countries: countries}
	s.MaxExposureStats, s.TotalExposureStats = model.SummarizeExposure(records)
	return s
}

// WriteText prints the report as a console table with grouped thousands.
func (s *Stats) WriteText(w io.Writer) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Assets: %d\n\n", s.TotalAssets)
	p.Fprintf(w, "%-8s %8s %10s %18s %18s\n", "Country", "Assets", "Overlays", "Total exposure", "Max exposure")
	for _, cs := range s.Countries {
		p.Fprintf(w, "%-8s %8d %10d %18.0f %18.0f\n",
			cs.Country, cs.Assets, cs.Overlays, cs.TotalExposure, cs.MaxExposure)
	}

	if s.TotalExposureStats != nil {
		p.Fprintf(w, "\nTotal person-exposure across assets:\n")
		p.Fprintf(w, "  mean %.0f  median %.0f  max %.0f",
			s.TotalExposureStats.Mean, s.TotalExposureStats.Median, s.TotalExposureStats.Max)
		if s.TotalExposureStats.SumAllAssets != nil {
			p.Fprintf(w, "  sum %.0f", *s.TotalExposureStats.SumAllAssets)
		}
		p.Fprintf(w, "\n")
	}
	if s.MaxExposureStats != nil && s.MaxExposureStats.P95 != nil {
		p.Fprintf(w, "Max person-exposure per asset: p90 %.0f  p95 %.0f  p99 %.0f\n",
			*s.MaxExposureStats.P90, *s.MaxExposureStats.P95, *s.MaxExposureStats.P99)
	}
}

// WriteXLSX exports per-asset and per-country sheets.
func WriteXLSX(path string, records []model.AssetRecord, s *Stats) error {
	f := xlsx.NewFile()

	assets, err := f.AddSheet("Assets")
	if err != nil {
		return eris.Wrap(err, "report: add assets sheet")
	}
	header := assets.AddRow()
	for _, h := range []string{"Asset ID", "Country", "Total Exposure", "Max Exposure", "Mean Exposure", "Non-zero Pixels", "Total Pixels", "Processed"} {
		header.AddCell().SetString(h)
	}
	for _, rec := range records {
		row := assets.AddRow()
		row.AddCell().SetString(rec.AssetID)
		row.AddCell().SetString(rec.Country)
		row.AddCell().SetFloat(rec.PersonExposureStats.Total)
		row.AddCell().SetFloat(rec.PersonExposureStats.Max)
		row.AddCell().SetFloat(rec.PersonExposureStats.Mean)
		row.AddCell().SetInt(rec.PersonExposureStats.NonZeroPixels)
		row.AddCell().SetInt(rec.TotalPixels)
		row.AddCell().SetString(rec.ProcessedDate.Format("2006-01-02"))
	}

	countries, err := f.AddSheet("Countries")
	if err != nil {
		return eris.Wrap(err, "report: add countries sheet")
	}
	header = countries.AddRow()
	for _, h := range []string{"Country", "Assets", "Overlays", "Total Exposure", "Max Exposure", "Total Pixels"} {
		header.AddCell().SetString(h)
	}
	for _, cs := range s.Countries {
		row := countries.AddRow()
		row.AddCell().SetString(cs.Country)
		row.AddCell().SetInt(cs.Assets)
		row.AddCell().SetInt(cs.Overlays)
		row.AddCell().SetFloat(cs.TotalExposure)
		row.AddCell().SetFloat(cs.MaxExposure)
		row.AddCell().SetInt(cs.TotalPixels)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// WriteHTML renders a bar chart of total person-exposure by country.
func WriteHTML(path string, s *Stats) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Person-exposure by country",
			Width:     "900px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Total person-exposure by country",
			Subtitle: fmt.Sprintf("%d assets", s.TotalAssets),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, len(s.Countries))
	values := make([]opts.BarData, 0, len(s.Countries))
	for _, cs := range s.Countries {
		labels = append(labels, cs.Country)
		values = append(values, opts.BarData{Value: cs.TotalExposure})
	}
	bar.SetXAxis(labels)
	bar.AddSeries("total person-exposure", values)

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close()
	if err := bar.Render(f); err != nil {
		return eris.Wrapf(err, "report: render %s", path)
	}
	return nil
}
