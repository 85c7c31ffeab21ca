// Package report writes optional diagnostics for a composite run: PNG
// histograms of the depth estimate and open-water band values, and an HTML
// summary of the brightness deltas and mosaic fallback.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/marine-composite/internal/monitoring"
	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

// Bins is the histogram bin count.
const Bins = 40

// echartsAssetsPrefix is where the HTML summary loads echarts from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrNoValues is returned when a histogram would be empty.
var ErrNoValues = errors.New("no valid values to plot")

// BandDelta is one band's brightness measurement.
type BandDelta struct {
	Band    string
	Delta   float64
	Applied float64
}

// Summary is the per-run content of the HTML summary.
type Summary struct {
	Title          string
	Tiles          []string
	SceneCount     int
	FallbackPixels int
	TotalPixels    int
	Confidence     float64
	Deltas         []BandDelta
}

// Input is everything a report can draw from. Nil fields are skipped.
type Input struct {
	Summary Summary
	Depth   *raster.Band
	// Composite and OpenWater drive the open-water histograms. OpenWater
	// may be on a coarser grid than the composite.
	Composite *scene.Scene
	OpenWater *raster.Mask
}

// Write renders every diagnostic that in supports into dir and returns the
// files written.
func Write(dir string, in Input) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	var files []string

	if in.Depth != nil {
		path := filepath.Join(dir, "depth_hist.png")
		err := writeBandHistogram(path, "Estimated depth", "Depth (m)", in.Depth)
		switch {
		case errors.Is(err, ErrNoValues):
			monitoring.Logf("report: no valid depth, skipping histogram")
		case err != nil:
			return files, err
		default:
			files = append(files, path)
		}
	}

	if in.Composite != nil && in.OpenWater != nil {
		names := make([]string, 0, len(in.Summary.Deltas))
		for _, d := range in.Summary.Deltas {
			names = append(names, d.Band)
		}
		sort.Strings(names)
		for _, name := range names {
			b, err := in.Composite.Band(name)
			if err != nil {
				return files, fmt.Errorf("report: %w", err)
			}
			water, err := raster.Resample(b, in.OpenWater.Grid).UpdateMask(in.OpenWater)
			if err != nil {
				return files, fmt.Errorf("report: %w", err)
			}
			path := filepath.Join(dir, fmt.Sprintf("openwater_%s_hist.png", name))
			err = writeBandHistogram(path, "Open water "+name, "Reflectance (DN)", water)
			if errors.Is(err, ErrNoValues) {
				monitoring.Logf("report: no open water for %s, skipping histogram", name)
				continue
			}
			if err != nil {
				return files, err
			}
			files = append(files, path)
		}
	}

	path := filepath.Join(dir, "summary.html")
	if err := WriteSummary(path, in.Summary); err != nil {
		return files, err
	}
	return append(files, path), nil
}

// HistogramTitle labels a histogram with the sample count and range.
func HistogramTitle(title string, s raster.Summary) string {
	return fmt.Sprintf("%s (n=%d, min %.4g, max %.4g, mean %.4g)", title, s.Count, s.Min, s.Max, s.Mean)
}

func writeBandHistogram(path, title, xLabel string, b *raster.Band) error {
	s := raster.Summarize(b)
	if s.Count == 0 {
		return ErrNoValues
	}
	monitoring.Logf("report: %s", HistogramTitle(title, s))
	return WriteHistogram(path, HistogramTitle(title, s), xLabel, b.ValidValues(nil))
}

// WriteHistogram saves a PNG histogram of values.
func WriteHistogram(path, title, xLabel string, values []float64) error {
	if len(values) == 0 {
		return ErrNoValues
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Pixels"

	bins := Bins
	if len(values) < bins {
		bins = len(values)
	}
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return fmt.Errorf("report: histogram %s: %w", title, err)
	}
	p.Add(h)
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

// WriteSummary renders the HTML summary page.
func WriteSummary(path string, s Summary) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.SetPageTitle(s.Title)
	page.AddCharts(deltaChart(s), fallbackChart(s))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("report: render summary: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

func deltaChart(s Summary) *charts.Bar {
	x := make([]string, 0, len(s.Deltas))
	delta := make([]opts.BarData, 0, len(s.Deltas))
	applied := make([]opts.BarData, 0, len(s.Deltas))
	for _, d := range s.Deltas {
		x = append(x, d.Band)
		delta = append(delta, opts.BarData{Value: d.Delta})
		applied = append(applied, opts.BarData{Value: d.Applied})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Brightness deltas",
			Subtitle: fmt.Sprintf("confidence=%.3f tiles=%v", s.Confidence, s.Tiles),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("observed - reference", delta).
		AddSeries("applied", applied, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func fallbackChart(s Summary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Mosaic fallback",
			Subtitle: fmt.Sprintf("scenes=%d", s.SceneCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"fallback pixels", "total pixels"}).
		AddSeries("pixels", []opts.BarData{{Value: s.FallbackPixels}, {Value: s.TotalPixels}},
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}
