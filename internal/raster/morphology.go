package raster

// Neighbours outside the grid are ignored, so erosion does not eat in from the
// image border and dilation does not grow in from it.

// Erode clears every pixel that has an unset neighbour under the kernel.
func Erode(m *Mask, k Kernel) *Mask {
	g := m.Grid
	out := NewMask(g)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if !m.Bits[g.Index(col, row)] {
				continue
			}
			keep := true
			for _, o := range k {
				c, r := col+o.DX, row+o.DY
				if g.InBounds(c, r) && !m.Bits[g.Index(c, r)] {
					keep = false
					break
				}
			}
			out.Bits[g.Index(col, row)] = keep
		}
	}
	return out
}

// Dilate sets every pixel that has a set neighbour under the kernel.
func Dilate(m *Mask, k Kernel) *Mask {
	g := m.Grid
	out := NewMask(g)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if !m.Bits[g.Index(col, row)] {
				continue
			}
			for _, o := range k {
				c, r := col+o.DX, row+o.DY
				if g.InBounds(c, r) {
					out.Bits[g.Index(c, r)] = true
				}
			}
		}
	}
	return out
}

// Open erodes then dilates with the same kernel, removing blobs the kernel
// does not fit inside.
func Open(m *Mask, k Kernel) *Mask {
	return Dilate(Erode(m, k), k)
}
