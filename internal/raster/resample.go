package raster

import "math"

// MaskRule selects how a mask is brought to a coarser grid.
type MaskRule int

const (
	// MaskNearest samples the source pixel under the target centre.
	MaskNearest MaskRule = iota
	// MaskAny sets a coarse pixel if any source pixel inside it is set.
	MaskAny
)

// Resample brings b onto target. Finer or equal targets sample the nearest
// source pixel; coarser targets average the valid source pixels whose centres
// fall inside each target pixel.
func Resample(b *Band, target Grid) *Band {
	if b.Grid.Equal(target) {
		return b
	}
	out := &Band{Name: b.Name, Grid: target, Data: make([]float64, target.Len()), Valid: make([]bool, target.Len())}
	if target.GSD <= b.Grid.GSD {
		for row := 0; row < target.Height; row++ {
			for col := 0; col < target.Width; col++ {
				x, y := target.Center(col, row)
				c, r, ok := b.Grid.Locate(x, y)
				if !ok {
					continue
				}
				j := b.Grid.Index(c, r)
				i := target.Index(col, row)
				out.Data[i], out.Valid[i] = b.Data[j], b.IsValid(j)
			}
		}
		return out
	}
	for row := 0; row < target.Height; row++ {
		for col := 0; col < target.Width; col++ {
			i := target.Index(col, row)
			sum, n := 0.0, 0
			forEachSource(b.Grid, target, col, row, func(j int) {
				if b.IsValid(j) {
					sum += b.Data[j]
					n++
				}
			})
			if n > 0 {
				out.Data[i], out.Valid[i] = sum/float64(n), true
			}
		}
	}
	return out
}

// ResampleMask brings m onto target. Finer targets always sample the nearest
// source pixel; rule applies when the target is coarser.
func ResampleMask(m *Mask, target Grid, rule MaskRule) *Mask {
	if m.Grid.Equal(target) {
		return m
	}
	out := NewMask(target)
	coarser := target.GSD > m.Grid.GSD
	for row := 0; row < target.Height; row++ {
		for col := 0; col < target.Width; col++ {
			i := target.Index(col, row)
			if coarser && rule == MaskAny {
				forEachSource(m.Grid, target, col, row, func(j int) {
					out.Bits[i] = out.Bits[i] || m.Bits[j]
				})
				continue
			}
			x, y := target.Center(col, row)
			if c, r, ok := m.Grid.Locate(x, y); ok {
				out.Bits[i] = m.Bits[m.Grid.Index(c, r)]
			}
		}
	}
	return out
}

// forEachSource visits the source pixels whose centres lie inside target
// pixel (col, row).
func forEachSource(src, target Grid, col, row int, fn func(j int)) {
	minX := target.OriginX + float64(col)*target.GSD
	maxY := target.OriginY - float64(row)*target.GSD
	c0 := int(math.Ceil((minX-src.OriginX)/src.GSD - 0.5))
	c1 := int(math.Ceil((minX+target.GSD-src.OriginX)/src.GSD-0.5)) - 1
	r0 := int(math.Ceil((src.OriginY-maxY)/src.GSD - 0.5))
	r1 := int(math.Ceil((src.OriginY-(maxY-target.GSD))/src.GSD-0.5)) - 1
	for r := max(r0, 0); r <= min(r1, src.Height-1); r++ {
		for c := max(c0, 0); c <= min(c1, src.Width-1); c++ {
			fn(src.Index(c, r))
		}
	}
}
