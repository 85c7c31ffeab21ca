// Package cloudmask estimates per-scene exclusion masks covering clouds and
// their shadows.
//
// The probability estimator runs one or more passes over a cloud probability
// band. Each pass thresholds the probability, removes blobs smaller than its
// erosion radius, sweeps the remaining clouds away from the sun to find shadow
// candidates, keeps candidates that are also dark in the near infrared, and
// finally buffers the result. Passes are OR-ed together.
package cloudmask

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
	"github.com/banshee-data/marine-composite/internal/units"
)

// ErrNoCloudProbability is returned when a scene lacks the probability band.
var ErrNoCloudProbability = errors.New("scene has no cloud probability band")

// Estimator produces an exclusion mask (true = excluded) on the scene grid.
type Estimator interface {
	Estimate(s *scene.Scene) (*raster.Mask, error)
}

// Pass holds the tunables of one masking pass. Distances are in metres.
type Pass struct {
	ProbabilityThreshold float64
	ErosionM             float64
	ProjectionM          float64
	BufferM              float64
}

// Config configures ProbabilityEstimator.
type Config struct {
	Passes          []Pass
	ProbabilityBand string
	DarkBand        string
	// DarkThreshold is in fixed-point reflectance; pixels below it may be
	// shadow.
	DarkThreshold float64
	// ApproxKernelPixels is the target kernel radius in working pixels.
	ApproxKernelPixels float64
	ScaleStep          float64
	MinWorkingScale    float64
	// ProjectionScale is the GSD the shadow sweep runs at.
	ProjectionScale float64
}

// DefaultConfig returns the Sentinel-2 two-pass configuration: a low
// confidence pass for small clouds with short shadows and a high confidence
// pass for large clouds with long shadows.
func DefaultConfig() Config {
	return Config{
		Passes: []Pass{
			{ProbabilityThreshold: 35, ErosionM: 0, ProjectionM: 400, BufferM: 150},
			{ProbabilityThreshold: 80, ErosionM: 300, ProjectionM: 1500, BufferM: 300},
		},
		ProbabilityBand:    "probability",
		DarkBand:           "B8",
		DarkThreshold:      1500,
		ApproxKernelPixels: 4,
		ScaleStep:          10,
		MinWorkingScale:    20,
		ProjectionScale:    100,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if len(c.Passes) == 0 {
		return fmt.Errorf("cloud mask needs at least one pass")
	}
	for i, p := range c.Passes {
		if p.ProbabilityThreshold < 0 || p.ProbabilityThreshold > 100 {
			return fmt.Errorf("pass %d probability threshold must be within [0,100], got %v", i, p.ProbabilityThreshold)
		}
		if p.ErosionM < 0 || p.ProjectionM < 0 || p.BufferM < 0 {
			return fmt.Errorf("pass %d distances must be non-negative", i)
		}
	}
	if c.ProbabilityBand == "" || c.DarkBand == "" {
		return fmt.Errorf("cloud mask bands must be named")
	}
	if c.ApproxKernelPixels <= 0 {
		return fmt.Errorf("approx kernel pixels must be positive, got %v", c.ApproxKernelPixels)
	}
	if c.ProjectionScale <= 0 {
		return fmt.Errorf("projection scale must be positive, got %v", c.ProjectionScale)
	}
	return nil
}

// ProbabilityEstimator masks clouds and shadows from a cloud probability band.
type ProbabilityEstimator struct {
	cfg Config
}

// NewProbabilityEstimator validates cfg and returns an estimator.
func NewProbabilityEstimator(cfg Config) (*ProbabilityEstimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ProbabilityEstimator{cfg: cfg}, nil
}

// Estimate returns the union of all pass masks.
func (e *ProbabilityEstimator) Estimate(s *scene.Scene) (*raster.Mask, error) {
	prob, err := s.Band(e.cfg.ProbabilityBand)
	if err != nil {
		if errors.Is(err, scene.ErrMissingBand) {
			return nil, fmt.Errorf("scene %s: %w", s.ID(), ErrNoCloudProbability)
		}
		return nil, err
	}
	nir, err := s.Band(e.cfg.DarkBand)
	if err != nil {
		return nil, err
	}
	dark := darkPixels(nir, e.cfg.DarkThreshold)
	nativeGSD := nativeGSD(s, e.cfg.ProbabilityBand)

	var out *raster.Mask
	for _, p := range e.cfg.Passes {
		m, err := e.pass(s, prob, dark, p, nativeGSD)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = m
			continue
		}
		if out, err = raster.Or(out, m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *ProbabilityEstimator) pass(s *scene.Scene, prob *raster.Band, dark *raster.Mask, p Pass, nativeGSD float64) (*raster.Mask, error) {
	grid := s.Grid()
	cloud := prob.GreaterThan(p.ProbabilityThreshold)

	if p.ErosionM > 0 {
		scale := e.workingScale(p.ErosionM, nativeGSD)
		work := grid.WithGSD(scale)
		k := raster.CircleMetres(p.ErosionM, work)
		opened := raster.Open(raster.ResampleMask(cloud, work, raster.MaskNearest), k)
		cloud = raster.ResampleMask(opened, grid, raster.MaskNearest)
	}

	// Shadows fall away from the sun. The sweep takes the direction towards
	// the sun counter-clockwise from east.
	sunward := 90 - s.SolarAzimuth()
	proj := grid.WithGSD(math.Max(e.cfg.ProjectionScale, grid.GSD))
	dist := int(math.Round(units.MetresToPixels(p.ProjectionM, proj.GSD)))
	swath := raster.DirectionalSweep(raster.ResampleMask(cloud, proj, raster.MaskAny), sunward, dist)
	shadow, err := raster.And(raster.ResampleMask(swath, grid, raster.MaskNearest), dark)
	if err != nil {
		return nil, err
	}
	combined, err := raster.Or(cloud, shadow)
	if err != nil {
		return nil, err
	}
	if p.BufferM <= 0 {
		return combined, nil
	}
	scale := e.workingScale(p.BufferM, nativeGSD)
	work := grid.WithGSD(scale)
	buffered := raster.Dilate(raster.ResampleMask(combined, work, raster.MaskAny), raster.CircleMetres(p.BufferM, work))
	out := raster.ResampleMask(buffered, grid, raster.MaskNearest)
	// Coarse cells straddle the original; keep every original pixel set.
	return raster.Or(out, combined)
}

// workingScale picks the kernel resolution for a radius, never finer than the
// native resolution of the probability band.
func (e *ProbabilityEstimator) workingScale(radiusM, nativeGSD float64) float64 {
	ws := units.WorkingScale(radiusM, e.cfg.ApproxKernelPixels, e.cfg.ScaleStep, e.cfg.MinWorkingScale)
	return math.Max(ws, nativeGSD)
}

func nativeGSD(s *scene.Scene, band string) float64 {
	if b, err := s.Native(band); err == nil {
		return b.Grid.GSD
	}
	return s.Grid().GSD
}

// darkPixels marks samples below threshold. Invalid samples count as dark so
// shadows are never dropped for lack of data.
func darkPixels(nir *raster.Band, threshold float64) *raster.Mask {
	m := raster.NewMask(nir.Grid)
	for i, v := range nir.Data {
		m.Bits[i] = !nir.IsValid(i) || v < threshold
	}
	return m
}
