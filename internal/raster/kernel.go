package raster

import (
	"math"

	"github.com/banshee-data/marine-composite/internal/units"
)

// Offset is a neighbour position relative to the kernel centre.
type Offset struct {
	DX, DY int
}

// Kernel is a set of neighbour offsets including the centre.
type Kernel []Offset

// Circle returns the disc of pixels with dx²+dy² <= r². A radius below one
// pixel yields the centre alone.
func Circle(radiusPx float64) Kernel {
	if radiusPx < 1 {
		return Kernel{{0, 0}}
	}
	r := int(math.Floor(radiusPx))
	r2 := radiusPx * radiusPx
	k := make(Kernel, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if float64(dx*dx+dy*dy) <= r2 {
				k = append(k, Offset{dx, dy})
			}
		}
	}
	return k
}

// CircleMetres returns a disc whose radius is given in metres at the grid's
// pixel size.
func CircleMetres(radiusM float64, g Grid) Kernel {
	return Circle(units.MetresToPixels(radiusM, g.GSD))
}

// Radius returns the largest absolute offset in the kernel.
func (k Kernel) Radius() int {
	r := 0
	for _, o := range k {
		r = max(r, abs(o.DX), abs(o.DY))
	}
	return r
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
