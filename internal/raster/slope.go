package raster

import (
	"math"

	"github.com/banshee-data/marine-composite/internal/units"
)

// Slope returns the terrain slope in degrees of b treated as a height field
// in units per metre. Gradients use central differences; a missing or
// invalid neighbour is replaced by the centre value.
func Slope(name string, b *Band) *Band {
	g := b.Grid
	out := &Band{Name: name, Grid: g, Data: make([]float64, len(b.Data))}
	if b.Valid != nil {
		out.Valid = append([]bool(nil), b.Valid...)
	}
	at := func(col, row int, fallback float64) float64 {
		if v, ok := b.At(col, row); ok {
			return v
		}
		return fallback
	}
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			i := g.Index(col, row)
			if !b.IsValid(i) {
				continue
			}
			z := b.Data[i]
			dzdx := (at(col+1, row, z) - at(col-1, row, z)) / (2 * g.GSD)
			dzdy := (at(col, row-1, z) - at(col, row+1, z)) / (2 * g.GSD)
			out.Data[i] = units.RadToDeg(math.Atan(math.Hypot(dzdx, dzdy)))
		}
	}
	return out
}
