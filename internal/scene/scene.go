// Package scene models satellite acquisitions as immutable multi-band
// rasters and groups them into per-tile collections.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"github.com/banshee-data/marine-composite/internal/raster"
)

var (
	// ErrMissingBand is returned when a required band is absent.
	ErrMissingBand = errors.New("missing band")
	// ErrGridMismatch is returned when scenes do not share a grid.
	ErrGridMismatch = raster.ErrGridMismatch
)

// Metadata describes an acquisition.
type Metadata struct {
	ID     string
	Sensor Sensor
	// SolarAzimuth is the mean solar azimuth in degrees clockwise from north.
	SolarAzimuth float64
	// Footprint is the acquisition boundary in the grid's projected metres.
	Footprint orb.MultiPolygon
	Grid      raster.Grid
}

// Scene is an immutable acquisition. Transformations return new scenes.
type Scene struct {
	meta  Metadata
	bands map[string]*raster.Band

	mu        sync.Mutex
	resampled map[string]*raster.Band
}

// New builds a scene. Bands may be stored at any GSD; Band resamples them to
// the scene grid on demand.
func New(meta Metadata, bands ...*raster.Band) (*Scene, error) {
	if meta.ID == "" {
		return nil, errors.New("scene id is required")
	}
	if err := meta.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("scene %s: %w", meta.ID, err)
	}
	s := &Scene{meta: meta, bands: make(map[string]*raster.Band, len(bands))}
	for _, b := range bands {
		if b.Name == "" {
			return nil, fmt.Errorf("scene %s: band without a name", meta.ID)
		}
		if _, dup := s.bands[b.Name]; dup {
			return nil, fmt.Errorf("scene %s: duplicate band %s", meta.ID, b.Name)
		}
		if len(b.Data) != b.Grid.Len() {
			return nil, fmt.Errorf("scene %s: band %s has %d samples for grid %s", meta.ID, b.Name, len(b.Data), b.Grid)
		}
		s.bands[b.Name] = b
	}
	return s, nil
}

// MustNew is New that panics on error, for fixtures.
func MustNew(meta Metadata, bands ...*raster.Band) *Scene {
	s, err := New(meta, bands...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Scene) ID() string                  { return s.meta.ID }
func (s *Scene) Sensor() Sensor              { return s.meta.Sensor }
func (s *Scene) Grid() raster.Grid           { return s.meta.Grid }
func (s *Scene) SolarAzimuth() float64       { return s.meta.SolarAzimuth }
func (s *Scene) Footprint() orb.MultiPolygon { return s.meta.Footprint }
func (s *Scene) Metadata() Metadata          { return s.meta }

// Has reports whether the scene carries the named band.
func (s *Scene) Has(name string) bool {
	_, ok := s.bands[name]
	return ok
}

// BandNames returns the band names in sorted order.
func (s *Scene) BandNames() []string {
	names := make([]string, 0, len(s.bands))
	for n := range s.bands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Native returns a band at its stored resolution.
func (s *Scene) Native(name string) (*raster.Band, error) {
	b, ok := s.bands[name]
	if !ok {
		return nil, fmt.Errorf("scene %s: %w %s", s.meta.ID, ErrMissingBand, name)
	}
	return b, nil
}

// Band returns a band on the scene grid.
func (s *Scene) Band(name string) (*raster.Band, error) {
	b, err := s.Native(name)
	if err != nil {
		return nil, err
	}
	if b.Grid.Equal(s.meta.Grid) {
		return b, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resampled[name]; ok {
		return r, nil
	}
	if s.resampled == nil {
		s.resampled = make(map[string]*raster.Band)
	}
	r := raster.Resample(b, s.meta.Grid)
	s.resampled[name] = r
	return r, nil
}

// Bands returns the named bands on the scene grid.
func (s *Scene) Bands(names ...string) ([]*raster.Band, error) {
	out := make([]*raster.Band, len(names))
	for i, n := range names {
		b, err := s.Band(n)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// WithBands returns a new scene with the given bands added or replaced.
func (s *Scene) WithBands(bands ...*raster.Band) *Scene {
	next := &Scene{meta: s.meta, bands: make(map[string]*raster.Band, len(s.bands)+len(bands))}
	for n, b := range s.bands {
		next.bands[n] = b
	}
	for _, b := range bands {
		next.bands[b.Name] = b
	}
	return next
}

// Without returns a new scene lacking the named bands.
func (s *Scene) Without(names ...string) *Scene {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	next := &Scene{meta: s.meta, bands: make(map[string]*raster.Band, len(s.bands))}
	for n, b := range s.bands {
		if !drop[n] {
			next.bands[n] = b
		}
	}
	return next
}

// WithMetadata returns a new scene sharing band storage with new metadata.
// The grid must be unchanged.
func (s *Scene) WithMetadata(meta Metadata) (*Scene, error) {
	if !meta.Grid.Equal(s.meta.Grid) {
		return nil, fmt.Errorf("scene %s: %w", s.meta.ID, ErrGridMismatch)
	}
	next := s.Without()
	next.meta = meta
	return next, nil
}
