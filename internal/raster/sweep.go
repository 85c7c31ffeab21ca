package raster

import (
	"math"

	"github.com/banshee-data/marine-composite/internal/units"
)

// DirectionalSweep marks every pixel that has a source pixel within maxDistPx
// pixels in the direction angleDeg (degrees counter-clockwise from east,
// north up). Sources are themselves marked.
//
// For shadow casting, pass the direction towards the sun: a pixel is in a
// candidate shadow if a cloud lies sunward of it.
func DirectionalSweep(src *Mask, angleDeg float64, maxDistPx int) *Mask {
	g := src.Grid
	out := src.Clone()
	if maxDistPx <= 0 {
		return out
	}
	a := units.DegToRad(angleDeg)
	// Walk away from the sun: east is +col, north is -row.
	dx, dy := -math.Cos(a), math.Sin(a)
	major := math.Max(math.Abs(dx), math.Abs(dy))
	// One step advances exactly one pixel on the major axis.
	sx, sy := dx/major, dy/major
	stepLen := 1 / major
	steps := int(math.Floor(float64(maxDistPx) / stepLen))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if !src.Bits[g.Index(col, row)] {
				continue
			}
			for s := 1; s <= steps; s++ {
				c := col + int(math.Round(float64(s)*sx))
				r := row + int(math.Round(float64(s)*sy))
				if !g.InBounds(c, r) {
					break
				}
				out.Bits[g.Index(c, r)] = true
			}
		}
	}
	return out
}
