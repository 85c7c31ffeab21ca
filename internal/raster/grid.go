package raster

import (
	"fmt"
	"math"
)

// Grid describes a north-up pixel lattice in projected metres.
// OriginX/OriginY is the top-left corner of the top-left pixel.
type Grid struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	GSD     float64 `json:"gsd"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// Validate checks the grid has a positive size and pixel spacing.
func (g Grid) Validate() error {
	if g.GSD <= 0 {
		return fmt.Errorf("grid gsd must be positive, got %f", g.GSD)
	}
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid size must be positive, got %dx%d", g.Width, g.Height)
	}
	return nil
}

// Len returns the number of pixels.
func (g Grid) Len() int { return g.Width * g.Height }

// Index returns the linear index of (col, row).
func (g Grid) Index(col, row int) int { return row*g.Width + col }

// InBounds reports whether (col, row) lies on the grid.
func (g Grid) InBounds(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Width && row < g.Height
}

// Center returns the projected coordinate of the centre of (col, row).
func (g Grid) Center(col, row int) (x, y float64) {
	return g.OriginX + (float64(col)+0.5)*g.GSD, g.OriginY - (float64(row)+0.5)*g.GSD
}

// Locate returns the pixel containing the projected point (x, y).
// ok is false when the point falls outside the grid.
func (g Grid) Locate(x, y float64) (col, row int, ok bool) {
	col = int(math.Floor((x - g.OriginX) / g.GSD))
	row = int(math.Floor((g.OriginY - y) / g.GSD))
	return col, row, g.InBounds(col, row)
}

// Extent returns the projected bounds (minX, minY, maxX, maxY).
func (g Grid) Extent() (minX, minY, maxX, maxY float64) {
	return g.OriginX, g.OriginY - float64(g.Height)*g.GSD, g.OriginX + float64(g.Width)*g.GSD, g.OriginY
}

// WithGSD returns a grid covering the same extent at a different pixel size.
// The size is rounded up so the new grid never clips the original extent.
func (g Grid) WithGSD(gsd float64) Grid {
	if gsd == g.GSD {
		return g
	}
	return Grid{
		OriginX: g.OriginX,
		OriginY: g.OriginY,
		GSD:     gsd,
		Width:   int(math.Ceil(float64(g.Width) * g.GSD / gsd)),
		Height:  int(math.Ceil(float64(g.Height) * g.GSD / gsd)),
	}
}

// Equal reports whether two grids describe the same lattice.
func (g Grid) Equal(o Grid) bool {
	return g.OriginX == o.OriginX && g.OriginY == o.OriginY && g.GSD == o.GSD &&
		g.Width == o.Width && g.Height == o.Height
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d@%gm(%g,%g)", g.Width, g.Height, g.GSD, g.OriginX, g.OriginY)
}

func checkGrids(a, b Grid) error {
	if !a.Equal(b) {
		return fmt.Errorf("%w: %s vs %s", ErrGridMismatch, a, b)
	}
	return nil
}
