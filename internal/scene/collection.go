package scene

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/marine-composite/internal/raster"
)

// ErrOutsideTile is returned when a scene footprint misses the tile grid.
var ErrOutsideTile = errors.New("scene footprint does not overlap tile")

// ErrDuplicateScene is returned when an acquisition id appears twice.
var ErrDuplicateScene = errors.New("duplicate scene")

// Collection is an ordered set of scenes sharing one grid. Order carries no
// meaning for temporal reduction.
type Collection struct {
	grid   raster.Grid
	scenes []*Scene
}

// NewCollection validates that every scene shares the grid of the first and
// overlaps it, and that acquisition ids are unique. An empty collection is
// allowed; reducers report it.
func NewCollection(scenes ...*Scene) (*Collection, error) {
	c := &Collection{scenes: append([]*Scene(nil), scenes...)}
	if len(scenes) == 0 {
		return c, nil
	}
	c.grid = scenes[0].Grid()
	bound := raster.GridBound(c.grid)
	seen := make(map[string]bool, len(scenes))
	for _, s := range scenes {
		if seen[s.ID()] {
			return nil, fmt.Errorf("scene %s: %w", s.ID(), ErrDuplicateScene)
		}
		seen[s.ID()] = true
		if !s.Grid().Equal(c.grid) {
			return nil, fmt.Errorf("scene %s grid %s: %w", s.ID(), s.Grid(), ErrGridMismatch)
		}
		if len(s.Footprint()) > 0 && !s.Footprint().Bound().Intersects(bound) {
			return nil, fmt.Errorf("scene %s: %w", s.ID(), ErrOutsideTile)
		}
	}
	return c, nil
}

func (c *Collection) Len() int          { return len(c.scenes) }
func (c *Collection) Grid() raster.Grid { return c.grid }

// Scenes returns the members in insertion order.
func (c *Collection) Scenes() []*Scene {
	return append([]*Scene(nil), c.scenes...)
}

// IDs returns the member acquisition ids in sorted order.
func (c *Collection) IDs() []string {
	ids := make([]string, len(c.scenes))
	for i, s := range c.scenes {
		ids[i] = s.ID()
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns a copy of the collection ordered by acquisition id.
func (c *Collection) Sorted() *Collection {
	out := &Collection{grid: c.grid, scenes: c.Scenes()}
	sort.SliceStable(out.scenes, func(i, j int) bool { return out.scenes[i].ID() < out.scenes[j].ID() })
	return out
}

// Footprint returns the dissolved union of member footprints.
func (c *Collection) Footprint() orb.MultiPolygon {
	fps := make([]orb.MultiPolygon, len(c.scenes))
	for i, s := range c.scenes {
		fps[i] = s.Footprint()
	}
	return Dissolve(fps...)
}

// TileIDs returns the distinct tile ids of the members in first-seen order.
func (c *Collection) TileIDs() ([]string, error) {
	var tiles []string
	seen := make(map[string]bool)
	for _, s := range c.scenes {
		p, err := ProfileFor(s.Sensor())
		if err != nil {
			return nil, err
		}
		t, err := p.TileID(s.ID())
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			tiles = append(tiles, t)
		}
	}
	return tiles, nil
}

// Dissolve merges footprints into one multipolygon covering their union.
// Duplicate polygons and polygons strictly inside another are dropped; the
// remainder may overlap, which point containment handles. The output order is
// independent of input order.
func Dissolve(footprints ...orb.MultiPolygon) orb.MultiPolygon {
	var all []orb.Polygon
	for _, mp := range footprints {
		for _, p := range mp {
			if len(p) > 0 && len(p[0]) > 0 {
				all = append(all, p)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return polygonLess(all[i], all[j]) })
	var out orb.MultiPolygon
	for i, p := range all {
		covered := false
		for j, q := range all {
			if i == j {
				continue
			}
			// Keep the first of a set of duplicates.
			if p.Equal(q) {
				if j < i {
					covered = true
					break
				}
				continue
			}
			if polygonInside(p, q) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}

// polygonInside reports whether inner lies in the interior of outer. The
// boundaries must be disjoint, so a concave outer whose notch is crossed by
// an inner edge does not count, and neither does a touching edge.
func polygonInside(inner, outer orb.Polygon) bool {
	for _, pt := range inner[0] {
		if !planar.PolygonContains(outer, pt) {
			return false
		}
	}
	for _, r := range outer {
		for _, pt := range r {
			if planar.RingContains(inner[0], pt) {
				return false
			}
		}
		if ringsIntersect(inner[0], r) {
			return false
		}
	}
	return true
}

func ringsIntersect(a, b orb.Ring) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect reports whether segments pq and rs share any point,
// including touching endpoints and collinear overlap.
func segmentsIntersect(p, q, r, s orb.Point) bool {
	d1 := orient(r, s, p)
	d2 := orient(r, s, q)
	d3 := orient(p, q, r)
	d4 := orient(p, q, s)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(r, s, p)) || (d2 == 0 && onSegment(r, s, q)) ||
		(d3 == 0 && onSegment(p, q, r)) || (d4 == 0 && onSegment(p, q, s))
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment reports whether c, collinear with ab, lies within its bounds.
func onSegment(a, b, c orb.Point) bool {
	return math.Min(a[0], b[0]) <= c[0] && c[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= c[1] && c[1] <= math.Max(a[1], b[1])
}

func polygonLess(a, b orb.Polygon) bool {
	ba, bb := a.Bound(), b.Bound()
	if ba.Min != bb.Min {
		if ba.Min[0] != bb.Min[0] {
			return ba.Min[0] < bb.Min[0]
		}
		return ba.Min[1] < bb.Min[1]
	}
	if ba.Max != bb.Max {
		if ba.Max[0] != bb.Max[0] {
			return ba.Max[0] < bb.Max[0]
		}
		return ba.Max[1] < bb.Max[1]
	}
	return len(a[0]) < len(b[0])
}
