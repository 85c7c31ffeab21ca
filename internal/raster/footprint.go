package raster

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// FootprintMask sets every pixel whose centre lies inside the footprint.
// Footprint coordinates are in the grid's projected metres.
func FootprintMask(g Grid, footprint orb.MultiPolygon) *Mask {
	m := NewMask(g)
	if len(footprint) == 0 {
		return m
	}
	bound := footprint.Bound()
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.Center(col, row)
			p := orb.Point{x, y}
			if !bound.Contains(p) {
				continue
			}
			m.Bits[g.Index(col, row)] = planar.MultiPolygonContains(footprint, p)
		}
	}
	return m
}

// GridBound returns the grid extent as an orb bound.
func GridBound(g Grid) orb.Bound {
	minX, minY, maxX, maxY := g.Extent()
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}
