package raster

// Components labels the connected regions of set pixels and returns the size
// of each region in pixels. eight selects 8-connectivity instead of 4.
func Components(m *Mask, eight bool) []int {
	g := m.Grid
	seen := make([]bool, len(m.Bits))
	var sizes []int
	stack := make([]int, 0, 64)
	for start, set := range m.Bits {
		if !set || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		n := 0
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n++
			col, row := i%g.Width, i/g.Width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 || (!eight && dx != 0 && dy != 0) {
						continue
					}
					c, r := col+dx, row+dy
					if !g.InBounds(c, r) {
						continue
					}
					j := g.Index(c, r)
					if m.Bits[j] && !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		sizes = append(sizes, n)
	}
	return sizes
}
