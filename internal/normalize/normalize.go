// Package normalize offsets composite brightness so that open deep water
// matches a reference scene.
package normalize

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/marine-composite/internal/monitoring"
	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

// Exclusion removes pixels brighter than Threshold in Band from the open
// water submask.
type Exclusion struct {
	Name      string
	Band      string
	Threshold float64
}

// Config configures Normalizer. Thresholds and references are fixed-point
// reflectance.
type Config struct {
	Exclusions []Exclusion
	// References holds the calibrated open-water percentile per band. Only
	// these bands are adjusted.
	References map[string]float64
	Percentile float64
	// StatsScale is the GSD statistics are computed at.
	StatsScale float64
}

// DefaultConfig returns the Sentinel-2 configuration calibrated against a
// clear open-water reference scene.
func DefaultConfig() Config {
	return Config{
		Exclusions: []Exclusion{
			{Name: "shallow", Band: "B4", Threshold: 220},
			{Name: "medium", Band: "B3", Threshold: 600},
			{Name: "land", Band: "B8", Threshold: 450},
		},
		References: map[string]float64{"B1": 1174, "B2": 753, "B3": 338, "B4": 121},
		Percentile: 0.05,
		StatsScale: 250,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if len(c.References) == 0 {
		return fmt.Errorf("normalisation needs at least one reference band")
	}
	if c.Percentile < 0 || c.Percentile > 1 {
		return fmt.Errorf("percentile must be within [0,1], got %v", c.Percentile)
	}
	if c.StatsScale < 0 {
		return fmt.Errorf("stats scale must be non-negative, got %v", c.StatsScale)
	}
	for _, e := range c.Exclusions {
		if e.Band == "" {
			return fmt.Errorf("exclusion %q has no band", e.Name)
		}
	}
	return nil
}

// Result is the adjusted scene plus the statistics behind the adjustment.
type Result struct {
	Scene *scene.Scene
	// Observed is the open-water percentile per band.
	Observed map[string]float64
	// Deltas is Observed minus the reference, before confidence weighting.
	Deltas map[string]float64
	// Confidence is sqrt(open water pixels / total pixels).
	Confidence      float64
	OpenWaterPixels int
	TotalPixels     int
	// OpenWater is the submask the statistics came from, on the statistics
	// grid.
	OpenWater *raster.Mask
}

// Applied returns the offset subtracted from band.
func (r *Result) Applied(band string) float64 {
	return r.Deltas[band] * r.Confidence
}

// Normalizer applies the open-water brightness adjustment.
type Normalizer struct {
	cfg Config
}

// New validates cfg and returns a Normalizer.
func New(cfg Config) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{cfg: cfg}, nil
}

// Bands returns the adjusted band names in sorted order.
func (n *Normalizer) Bands() []string {
	names := make([]string, 0, len(n.cfg.References))
	for b := range n.cfg.References {
		names = append(names, b)
	}
	sort.Strings(names)
	return names
}

// Normalize returns the composite with (delta × confidence) subtracted from
// every reference band. Statistics are taken inside footprint, or the whole
// grid when footprint is nil. With no open
// water the confidence is zero and the scene is returned unchanged.
func (n *Normalizer) Normalize(s *scene.Scene, footprint *raster.Mask) (*Result, error) {
	names := n.Bands()
	grid := s.Grid()
	stats := grid
	if n.cfg.StatsScale > grid.GSD {
		stats = grid.WithGSD(n.cfg.StatsScale)
	}
	if footprint == nil {
		footprint = raster.FullMask(grid)
	}
	inside := raster.ResampleMask(footprint, stats, raster.MaskAny)

	coarse := func(name string) (*raster.Band, error) {
		b, err := s.Band(name)
		if err != nil {
			return nil, err
		}
		return raster.Resample(b, stats), nil
	}

	open := inside.Clone()
	for _, e := range n.cfg.Exclusions {
		b, err := coarse(e.Band)
		if err != nil {
			return nil, fmt.Errorf("normalise %s: %w", s.ID(), err)
		}
		for i, ex := range b.GreaterThan(e.Threshold).Bits {
			open.Bits[i] = open.Bits[i] && !ex
		}
	}

	res := &Result{Observed: map[string]float64{}, Deltas: map[string]float64{}, OpenWater: open}
	for k, name := range names {
		b, err := coarse(name)
		if err != nil {
			return nil, fmt.Errorf("normalise %s: %w", s.ID(), err)
		}
		if k == 0 {
			res.TotalPixels = len(b.ValidValues(inside))
		}
		values := b.ValidValues(open)
		if k == 0 {
			res.OpenWaterPixels = len(values)
		}
		if q, ok := raster.Quantile(n.cfg.Percentile, values); ok {
			res.Observed[name] = q
			res.Deltas[name] = q - n.cfg.References[name]
		}
	}

	if res.TotalPixels > 0 {
		res.Confidence = math.Sqrt(float64(res.OpenWaterPixels) / float64(res.TotalPixels))
	}
	if res.Confidence == 0 {
		monitoring.Logf("normalise %s: no open water in %d pixels, brightness unchanged", s.ID(), res.TotalPixels)
		res.Scene = s
		return res, nil
	}

	adjusted := make([]*raster.Band, 0, len(names))
	for _, name := range names {
		offset := res.Applied(name)
		b, err := s.Band(name)
		if err != nil {
			return nil, err
		}
		adjusted = append(adjusted, b.Map(name, func(v float64) float64 { return v - offset }))
	}
	res.Scene = s.WithBands(adjusted...)
	return res, nil
}
