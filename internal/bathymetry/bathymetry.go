// Package bathymetry estimates shallow-water depth from a corrected,
// normalised composite using a calibrated log band ratio:
//
//	depth = log(green) / log(blue - offset) × scale + bias
//
// Depths are in metres, negative below sea level. The model is an empirical
// fit valid only over a bounded range; deeper estimates are masked.
package bathymetry

import (
	"fmt"
	"math"

	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

// Model holds versioned calibration constants. Band values are fixed-point
// reflectance.
type Model struct {
	Version   string
	GreenBand string
	BlueBand  string
	Offset    float64
	Scale     float64
	Bias      float64
	// LandBand pixels brighter than LandThreshold are pinned to LandDepth so
	// contours have no holes at the coastline. Empty disables.
	LandBand      string
	LandThreshold float64
	LandDepth     float64
	// MaxDepth masks estimates at or below it. Nil disables the validity mask.
	MaxDepth      *float64
	ErodeRadiusM  float64
	DilateRadiusM float64
	// MinLogArgument is the floor applied to (blue - offset) before the
	// logarithm. It must exceed 1 so the denominator is never zero.
	MinLogArgument float64
}

// DefaultModel returns the Sentinel-2 calibration.
func DefaultModel() Model {
	maxDepth := -12.0
	return Model{
		Version:        "s2-round2",
		GreenBand:      "B3",
		BlueBand:       "B2",
		Offset:         150,
		Scale:          145.1,
		Bias:           -147.6,
		LandBand:       "B8",
		LandThreshold:  1400,
		LandDepth:      1,
		MaxDepth:       &maxDepth,
		ErodeRadiusM:   10,
		DilateRadiusM:  40,
		MinLogArgument: 2,
	}
}

// Validate checks the model is numerically safe.
func (m Model) Validate() error {
	if m.GreenBand == "" || m.BlueBand == "" {
		return fmt.Errorf("depth model bands must be named")
	}
	if m.MinLogArgument <= 1 {
		return fmt.Errorf("min log argument must be greater than 1, got %v", m.MinLogArgument)
	}
	if m.Scale == 0 || math.IsNaN(m.Scale) || math.IsNaN(m.Bias) || math.IsNaN(m.Offset) {
		return fmt.Errorf("depth scale, bias and offset must be finite and scale non-zero")
	}
	if m.ErodeRadiusM < 0 || m.DilateRadiusM < 0 {
		return fmt.Errorf("validity radii must be non-negative")
	}
	return nil
}

// DepthAt applies the log ratio to one pixel. Inputs are clamped so the
// result is always finite.
func (m Model) DepthAt(green, blue float64) float64 {
	g := math.Max(green, 1)
	b := math.Max(blue-m.Offset, m.MinLogArgument)
	return math.Log(g)/math.Log(b)*m.Scale + m.Bias
}

// Params sets the spatial smoothing applied to the raw estimate.
type Params struct {
	FilterRadiusM float64
	Iterations    int
}

// Result is a depth band and the mask of pixels where it is reliable.
type Result struct {
	Depth *raster.Band
	// Valid is the reliability mask; Depth is already invalid outside it.
	Valid *raster.Mask
}

// Estimate derives a depth raster from s.
func Estimate(s *scene.Scene, m Model, p Params) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	green, err := s.Band(m.GreenBand)
	if err != nil {
		return nil, fmt.Errorf("depth %s: %w", s.ID(), err)
	}
	blue, err := s.Band(m.BlueBand)
	if err != nil {
		return nil, fmt.Errorf("depth %s: %w", s.ID(), err)
	}
	depth, err := raster.Combine("depth", green, blue, m.DepthAt)
	if err != nil {
		return nil, err
	}
	if m.LandBand != "" {
		land, err := s.Band(m.LandBand)
		if err != nil {
			return nil, fmt.Errorf("depth %s: %w", s.ID(), err)
		}
		if depth, err = depth.Where(land.GreaterThan(m.LandThreshold), m.LandDepth); err != nil {
			return nil, err
		}
	}
	if p.FilterRadiusM > 0 {
		depth, err = raster.Focal(depth, raster.FocalMean, raster.CircleMetres(p.FilterRadiusM, depth.Grid), p.Iterations)
		if err != nil {
			return nil, err
		}
	}

	valid := depth.ValidMask()
	if m.MaxDepth != nil {
		reliable := depth.GreaterThan(*m.MaxDepth)
		reliable = raster.Erode(reliable, raster.CircleMetres(m.ErodeRadiusM, depth.Grid))
		reliable = raster.Dilate(reliable, raster.CircleMetres(m.DilateRadiusM, depth.Grid))
		if valid, err = raster.And(valid, reliable); err != nil {
			return nil, err
		}
	}
	if depth, err = depth.UpdateMask(valid); err != nil {
		return nil, err
	}
	return &Result{Depth: depth, Valid: valid}, nil
}
