// Package composite reduces a collection of corrected scenes to a single
// temporal composite.
//
// Each pixel takes the configured percentile of the cloud-masked stack. Where
// every scene excluded a pixel the unmasked percentile is used instead, so
// persistent false positives such as bright sand cays do not leave holes. The
// result is clipped to the dissolved footprint of the inputs.
package composite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/marine-composite/internal/monitoring"
	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

// ErrNoComposite is returned for an empty collection.
var ErrNoComposite = errors.New("no composite: empty collection")

// MaskBandName is the composite band holding the reduced exclusion masks.
const MaskBandName = "cloudmask"

// compositeNamespace seeds deterministic composite ids.
var compositeNamespace = uuid.MustParse("6f1c8a52-3d0e-4f7b-9a41-2b5e7d9c0e13")

// Config configures Compose.
type Config struct {
	// Percentile in [0,1]; 0.5 is the median.
	Percentile float64
	// Workers bounds concurrent band reductions; zero means one per band.
	Workers int
}

// DefaultConfig returns the median compositor.
func DefaultConfig() Config {
	return Config{Percentile: 0.5}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Percentile < 0 || c.Percentile > 1 {
		return fmt.Errorf("percentile must be within [0,1], got %v", c.Percentile)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// Result is a composite scene with reduction diagnostics.
type Result struct {
	Scene *scene.Scene
	// SceneCount is the number of contributing scenes.
	SceneCount int
	// Masked is false when masking was bypassed for a single scene.
	Masked bool
	// FallbackPixels counts in-footprint pixels excluded by every scene's
	// mask that took an unmasked value. Pixels with no valid sample at all
	// are not counted.
	FallbackPixels int
}

// Compose reduces the collection. masks maps scene id to its exclusion mask
// and is required for every scene when the collection has more than one.
// Output is independent of collection order.
func Compose(ctx context.Context, c *scene.Collection, masks map[string]*raster.Mask, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil || c.Len() == 0 {
		return nil, ErrNoComposite
	}
	c = c.Sorted()
	scenes := c.Scenes()
	grid := c.Grid()

	meta, err := compositeMetadata(c)
	if err != nil {
		return nil, err
	}
	clip := raster.FootprintMask(grid, meta.Footprint)
	names := commonBands(scenes)
	if len(names) == 0 {
		return nil, fmt.Errorf("composite of %d scenes: no common reflectance bands", len(scenes))
	}

	if len(scenes) == 1 {
		monitoring.Logf("composite: single scene %s, masking bypassed", scenes[0].ID())
		bands, err := clipBands(scenes[0], names, clip)
		if err != nil {
			return nil, err
		}
		out, err := scene.New(meta, bands...)
		if err != nil {
			return nil, err
		}
		return &Result{Scene: out, SceneCount: 1}, nil
	}

	stack := make([]*raster.Mask, len(scenes))
	for i, s := range scenes {
		m, ok := masks[s.ID()]
		if !ok {
			return nil, fmt.Errorf("composite: no mask for scene %s", s.ID())
		}
		if !m.Grid.Equal(grid) {
			return nil, fmt.Errorf("composite: mask for scene %s: %w", s.ID(), raster.ErrGridMismatch)
		}
		stack[i] = m
	}

	out := make([]*raster.Band, len(names)+1)
	fallbacks := make([]int, len(names))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for bi, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, n, err := reduceBand(scenes, stack, name, cfg.Percentile, clip)
			if err != nil {
				return err
			}
			out[bi], fallbacks[bi] = b, n
			return nil
		})
	}
	g.Go(func() error {
		out[len(names)] = reduceMasks(stack, cfg.Percentile, clip)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Bands can differ in nodata; report the widest fallback.
	fallback := 0
	for _, n := range fallbacks {
		fallback = max(fallback, n)
	}
	if fallback > 0 {
		monitoring.Logf("composite %s: %d pixels masked in every scene, using unmasked values", meta.ID, fallback)
	}

	res, err := scene.New(meta, out...)
	if err != nil {
		return nil, err
	}
	return &Result{Scene: res, SceneCount: len(scenes), Masked: true, FallbackPixels: fallback}, nil
}

// reduceBand takes the percentile of the masked stack, falling back to the
// unmasked stack where no masked sample exists. It also returns the number of
// pixels that fell back.
func reduceBand(scenes []*scene.Scene, masks []*raster.Mask, name string, p float64, clip *raster.Mask) (*raster.Band, int, error) {
	bands := make([]*raster.Band, len(scenes))
	for i, s := range scenes {
		b, err := s.Band(name)
		if err != nil {
			return nil, 0, err
		}
		bands[i] = b
	}
	grid := bands[0].Grid
	out := &raster.Band{Name: name, Grid: grid, Data: make([]float64, grid.Len()), Valid: make([]bool, grid.Len())}
	masked := make([]float64, 0, len(bands))
	all := make([]float64, 0, len(bands))
	fallback := 0
	for i := range out.Data {
		if !clip.Bits[i] {
			continue
		}
		masked, all = masked[:0], all[:0]
		for k, b := range bands {
			if !b.IsValid(i) {
				continue
			}
			all = append(all, b.Data[i])
			if !masks[k].Bits[i] {
				masked = append(masked, b.Data[i])
			}
		}
		values := masked
		if len(values) == 0 && len(all) > 0 {
			values = all
			fallback++
		}
		if v, ok := percentile(p, values); ok {
			out.Data[i], out.Valid[i] = v, true
		}
	}
	return out, fallback, nil
}

// reduceMasks takes the percentile of the 0/1 exclusion stack.
func reduceMasks(masks []*raster.Mask, p float64, clip *raster.Mask) *raster.Band {
	grid := masks[0].Grid
	out := &raster.Band{Name: MaskBandName, Grid: grid, Data: make([]float64, grid.Len()), Valid: make([]bool, grid.Len())}
	values := make([]float64, len(masks))
	for i := range out.Data {
		if !clip.Bits[i] {
			continue
		}
		for k, m := range masks {
			values[k] = 0
			if m.Bits[i] {
				values[k] = 1
			}
		}
		out.Data[i], out.Valid[i] = percentile(p, values)
	}
	return out
}

func percentile(p float64, values []float64) (float64, bool) {
	if p == 0.5 {
		return raster.Median(values)
	}
	return raster.Quantile(p, values)
}

func clipBands(s *scene.Scene, names []string, clip *raster.Mask) ([]*raster.Band, error) {
	full := clip.Count() == clip.Grid.Len()
	out := make([]*raster.Band, 0, len(names))
	for _, n := range names {
		b, err := s.Band(n)
		if err != nil {
			return nil, err
		}
		if !full {
			if b, err = b.UpdateMask(clip); err != nil {
				return nil, err
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// commonBands returns the reflectance bands carried by every scene, in
// sorted order. Masking metadata bands are not composited.
func commonBands(scenes []*scene.Scene) []string {
	count := make(map[string]int)
	for _, s := range scenes {
		p, _ := scene.ProfileFor(s.Sensor())
		for _, n := range s.BandNames() {
			if !p.IsAuxiliary(n) && n != MaskBandName {
				count[n]++
			}
		}
	}
	var names []string
	for n, k := range count {
		if k == len(scenes) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// compositeMetadata derives the composite identity. The footprint is the
// dissolved union of the inputs; if no scene declares one, the tile extent is
// used.
func compositeMetadata(c *scene.Collection) (scene.Metadata, error) {
	scenes := c.Scenes()
	sensor := scenes[0].Sensor()
	az := 0.0
	for _, s := range scenes {
		if s.Sensor() != sensor {
			return scene.Metadata{}, fmt.Errorf("composite: mixed sensors %s and %s", sensor, s.Sensor())
		}
		az += s.SolarAzimuth()
	}
	ids := c.IDs()
	fp := c.Footprint()
	if len(fp) == 0 {
		fp = orb.MultiPolygon{raster.GridBound(c.Grid()).ToPolygon()}
	}
	id := ids[0]
	if len(ids) > 1 {
		id = "composite-" + uuid.NewSHA1(compositeNamespace, []byte(strings.Join(ids, "\n"))).String()
	}
	return scene.Metadata{
		ID:           id,
		Sensor:       sensor,
		SolarAzimuth: az / float64(len(scenes)),
		Footprint:    fp,
		Grid:         c.Grid(),
	}, nil
}
