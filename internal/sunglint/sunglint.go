// Package sunglint removes surface sun-glint from visible bands and applies a
// flat haze offset over land.
//
// Very high glint beyond the calibrated plateau is under-corrected; that is a
// known accuracy limit, not an error.
package sunglint

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

// Secondary configures the correction of a band used only by shallow
// feature extraction. The correction is the source band, capped at Cap where
// it exceeds CapAbove and replaced by Replacement where it exceeds
// ReplaceAbove.
type Secondary struct {
	Band         string
	SourceBand   string
	CapAbove     float64
	Cap          float64
	ReplaceAbove float64
	Replacement  float64
}

// Config configures Corrector. Values are fixed-point reflectance.
type Config struct {
	// GlintBand is the near-infrared band the glint estimate starts from.
	GlintBand string
	// ShallowBand, when set, tempers the estimate in very shallow water:
	// glint = G - clamp((G - S) - ShallowOffset, 0, ShallowClamp).
	ShallowBand   string
	ShallowOffset float64
	ShallowClamp  float64
	// LandThreshold classifies pixels whose GlintBand exceeds it as land.
	// Nil disables land handling.
	LandThreshold *float64
	// LandOffset replaces the glint estimate over land.
	LandOffset float64
	// Weights scale the correction subtracted from each visible band.
	Weights   map[string]float64
	Secondary *Secondary
}

// DefaultConfig returns the Sentinel-2 corrector configuration.
func DefaultConfig() Config {
	land := 600.0
	return Config{
		GlintBand:     "B8",
		ShallowBand:   "B11",
		ShallowOffset: 200,
		ShallowClamp:  10000,
		LandThreshold: &land,
		LandOffset:    280,
		Weights:       map[string]float64{"B1": 0.75, "B2": 0.75, "B3": 0.9, "B4": 1.0},
		Secondary: &Secondary{
			Band: "B5", SourceBand: "B11",
			CapAbove: 800, Cap: 800,
			ReplaceAbove: 1000, Replacement: 600,
		},
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.GlintBand == "" {
		return fmt.Errorf("glint band must be named")
	}
	if len(c.Weights) == 0 {
		return fmt.Errorf("sunglint needs at least one weighted band")
	}
	for b, w := range c.Weights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("weight for %s must be non-negative, got %v", b, w)
		}
	}
	if c.ShallowBand != "" && c.ShallowClamp <= 0 {
		return fmt.Errorf("shallow clamp must be positive, got %v", c.ShallowClamp)
	}
	if s := c.Secondary; s != nil {
		if s.Band == "" || s.SourceBand == "" {
			return fmt.Errorf("secondary correction bands must be named")
		}
		if s.ReplaceAbove < s.CapAbove {
			return fmt.Errorf("secondary replace threshold %v below cap threshold %v", s.ReplaceAbove, s.CapAbove)
		}
	}
	return nil
}

// Corrector applies the glint and haze correction.
type Corrector struct {
	cfg Config
}

// New validates cfg and returns a Corrector.
func New(cfg Config) (*Corrector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Corrector{cfg: cfg}, nil
}

// Glint returns the per-pixel correction before band weighting.
func (c *Corrector) Glint(s *scene.Scene) (*raster.Band, error) {
	g, err := s.Band(c.cfg.GlintBand)
	if err != nil {
		return nil, err
	}
	glint := g.Renamed("glint")
	if c.cfg.ShallowBand != "" {
		sw, err := s.Band(c.cfg.ShallowBand)
		if err != nil {
			return nil, err
		}
		glint, err = raster.Combine("glint", g, sw, func(nir, swir float64) float64 {
			return nir - clamp(nir-swir-c.cfg.ShallowOffset, 0, c.cfg.ShallowClamp)
		})
		if err != nil {
			return nil, err
		}
	}
	if c.cfg.LandThreshold == nil {
		return glint, nil
	}
	// Land is classified on the raw NIR band; the tempered estimate lets
	// bright vegetation pass as water.
	return glint.Where(g.GreaterThan(*c.cfg.LandThreshold), c.cfg.LandOffset)
}

// Correct returns a new scene with the weighted correction subtracted from
// each visible band and, if configured, the secondary band corrected.
// The scene id is preserved.
func (c *Corrector) Correct(s *scene.Scene) (*scene.Scene, error) {
	glint, err := c.Glint(s)
	if err != nil {
		return nil, fmt.Errorf("sunglint %s: %w", s.ID(), err)
	}
	names := make([]string, 0, len(c.cfg.Weights))
	for n := range c.cfg.Weights {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []*raster.Band
	for _, n := range names {
		if !s.Has(n) {
			continue
		}
		b, err := s.Band(n)
		if err != nil {
			return nil, err
		}
		w := c.cfg.Weights[n]
		corrected, err := raster.Combine(n, b, glint, func(v, g float64) float64 { return v - g*w })
		if err != nil {
			return nil, err
		}
		out = append(out, corrected)
	}
	if sec := c.cfg.Secondary; sec != nil && s.Has(sec.Band) {
		b, err := c.secondary(s, sec)
		if err != nil {
			return nil, fmt.Errorf("sunglint %s: %w", s.ID(), err)
		}
		out = append(out, b)
	}
	return s.WithBands(out...), nil
}

func (c *Corrector) secondary(s *scene.Scene, sec *Secondary) (*raster.Band, error) {
	b, err := s.Band(sec.Band)
	if err != nil {
		return nil, err
	}
	src, err := s.Band(sec.SourceBand)
	if err != nil {
		return nil, err
	}
	return raster.Combine(sec.Band, b, src, func(v, corr float64) float64 {
		switch {
		case corr > sec.ReplaceAbove:
			corr = sec.Replacement
		case corr > sec.CapAbove:
			corr = sec.Cap
		}
		return v - corr
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
