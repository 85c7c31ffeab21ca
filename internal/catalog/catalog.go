// Package catalog loads scenes from an on-disk archive.
//
// Each acquisition lives in its own directory holding a scene.json manifest
// and one 16-bit grayscale TIFF per band:
//
//	<root>/<acquisition>/scene.json
//	<root>/<acquisition>/B2.tif
//	...
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/tiff"

	"github.com/banshee-data/marine-composite/internal/monitoring"
	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
	"github.com/banshee-data/marine-composite/internal/security"
)

// ManifestName is the per-acquisition manifest file.
const ManifestName = "scene.json"

// ErrNotFound is returned for an acquisition id the catalog does not hold.
var ErrNotFound = errors.New("scene not found")

// Catalog supplies scenes by acquisition id.
type Catalog interface {
	Scene(ctx context.Context, id string) (*scene.Scene, error)
}

// GridSpec is the manifest form of raster.Grid.
type GridSpec struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	GSD     float64 `json:"gsd"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// BandFile locates one band. GSD defaults to the scene grid GSD.
type BandFile struct {
	File string  `json:"file"`
	GSD  float64 `json:"gsd,omitempty"`
}

// Manifest describes one acquisition.
type Manifest struct {
	ID           string              `json:"id"`
	Sensor       scene.Sensor        `json:"sensor"`
	SolarAzimuth float64             `json:"solar_azimuth"`
	Grid         GridSpec            `json:"grid"`
	Footprint    *geojson.Geometry   `json:"footprint"`
	Bands        map[string]BandFile `json:"bands"`
	// NoData marks invalid samples. Nil means every sample is valid.
	NoData *float64 `json:"nodata,omitempty"`
}

// Dir is a Catalog over a directory tree. The manifest index is built on
// first use.
type Dir struct {
	root string

	once  sync.Once
	index map[string]string // id -> acquisition directory
	err   error
}

// NewDir returns a catalog rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: filepath.Clean(root)}
}

func (d *Dir) load() error {
	d.once.Do(func() {
		paths, err := filepath.Glob(filepath.Join(d.root, "*", ManifestName))
		if err != nil {
			d.err = err
			return
		}
		d.index = make(map[string]string, len(paths))
		for _, p := range paths {
			m, err := readManifest(p)
			if err != nil {
				d.err = err
				return
			}
			if prev, dup := d.index[m.ID]; dup {
				d.err = fmt.Errorf("catalog: %s appears in %s and %s", m.ID, prev, filepath.Dir(p))
				return
			}
			d.index[m.ID] = filepath.Dir(p)
		}
		monitoring.Logf("catalog: indexed %d scenes under %s", len(d.index), d.root)
	})
	return d.err
}

// IDs lists the acquisition ids in the catalog, sorted.
func (d *Dir) IDs() ([]string, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(d.index))
	for id := range d.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Scene loads one acquisition.
func (d *Dir) Scene(ctx context.Context, id string) (*scene.Scene, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	dir, ok := d.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m, err := readManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	return loadScene(ctx, dir, m)
}

// Collection loads the named scenes into a collection. With no ids every
// scene in the catalog is loaded.
func (d *Dir) Collection(ctx context.Context, ids ...string) (*scene.Collection, error) {
	if len(ids) == 0 {
		var err error
		if ids, err = d.IDs(); err != nil {
			return nil, err
		}
	}
	scenes := make([]*scene.Scene, 0, len(ids))
	for _, id := range ids {
		s, err := d.Scene(ctx, id)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, s)
	}
	return scene.NewCollection(scenes...)
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest %s has no id", path)
	}
	return &m, nil
}

func (g GridSpec) grid() raster.Grid {
	return raster.Grid{OriginX: g.OriginX, OriginY: g.OriginY, GSD: g.GSD, Width: g.Width, Height: g.Height}
}

func footprint(g *geojson.Geometry) (orb.MultiPolygon, error) {
	if g == nil {
		return nil, nil
	}
	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		return orb.MultiPolygon{geom}, nil
	case orb.MultiPolygon:
		return geom, nil
	default:
		return nil, fmt.Errorf("footprint must be a polygon, got %s", g.Type)
	}
}

func loadScene(ctx context.Context, dir string, m *Manifest) (*scene.Scene, error) {
	fp, err := footprint(m.Footprint)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", m.ID, err)
	}
	grid := m.Grid.grid()
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("scene %s: %w", m.ID, err)
	}

	names := make([]string, 0, len(m.Bands))
	for n := range m.Bands {
		names = append(names, n)
	}
	sort.Strings(names)
	bands := make([]*raster.Band, 0, len(names))
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bf := m.Bands[n]
		bg := grid
		if bf.GSD > 0 {
			bg = grid.WithGSD(bf.GSD)
		}
		path := filepath.Join(dir, bf.File)
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return nil, fmt.Errorf("scene %s band %s: %w", m.ID, n, err)
		}
		b, err := ReadBand(path, n, bg, m.NoData)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", m.ID, err)
		}
		bands = append(bands, b)
	}
	return scene.New(scene.Metadata{
		ID:           m.ID,
		Sensor:       m.Sensor,
		SolarAzimuth: m.SolarAzimuth,
		Footprint:    fp,
		Grid:         grid,
	}, bands...)
}

// ReadBand decodes a grayscale TIFF into a band on g. The image size must
// match the grid. Samples equal to nodata are invalid.
func ReadBand(path, name string, g raster.Grid, nodata *float64) (*raster.Band, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("band %s: %w", name, err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("band %s: decode %s: %w", name, path, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != g.Width || bounds.Dy() != g.Height {
		return nil, fmt.Errorf("band %s: image is %dx%d, grid is %dx%d", name, bounds.Dx(), bounds.Dy(), g.Width, g.Height)
	}

	b := raster.NewBand(name, g)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			b.Data[g.Index(col, row)] = sample(img, bounds.Min.X+col, bounds.Min.Y+row)
		}
	}
	if nodata != nil {
		valid := raster.NewMask(g)
		for i, v := range b.Data {
			valid.Bits[i] = v != *nodata
		}
		if b, err = b.UpdateMask(valid); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func sample(img image.Image, x, y int) float64 {
	switch im := img.(type) {
	case *image.Gray16:
		return float64(im.Gray16At(x, y).Y)
	case *image.Gray:
		return float64(im.GrayAt(x, y).Y)
	default:
		r, _, _, _ := img.At(x, y).RGBA()
		return float64(r)
	}
}
