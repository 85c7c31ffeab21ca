package raster

// Mask is a boolean raster aligned to a Grid. Masks combine only through
// boolean operators.
type Mask struct {
	Grid Grid
	Bits []bool
}

// NewMask allocates an all-false mask.
func NewMask(g Grid) *Mask {
	return &Mask{Grid: g, Bits: make([]bool, g.Len())}
}

// FullMask allocates an all-true mask.
func FullMask(g Grid) *Mask {
	m := NewMask(g)
	for i := range m.Bits {
		m.Bits[i] = true
	}
	return m
}

// Get returns the bit at (col, row); out of bounds reads as false.
func (m *Mask) Get(col, row int) bool {
	if !m.Grid.InBounds(col, row) {
		return false
	}
	return m.Bits[m.Grid.Index(col, row)]
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	return &Mask{Grid: m.Grid, Bits: append([]bool(nil), m.Bits...)}
}

// Count returns the number of set bits.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Any reports whether at least one bit is set.
func (m *Mask) Any() bool {
	for _, b := range m.Bits {
		if b {
			return true
		}
	}
	return false
}

// Not returns the complement.
func (m *Mask) Not() *Mask {
	out := NewMask(m.Grid)
	for i, b := range m.Bits {
		out.Bits[i] = !b
	}
	return out
}

// Or returns the union of aligned masks.
func Or(first *Mask, rest ...*Mask) (*Mask, error) {
	out := first.Clone()
	for _, m := range rest {
		if err := checkGrids(out.Grid, m.Grid); err != nil {
			return nil, err
		}
		for i, b := range m.Bits {
			out.Bits[i] = out.Bits[i] || b
		}
	}
	return out, nil
}

// And returns the intersection of aligned masks.
func And(first *Mask, rest ...*Mask) (*Mask, error) {
	out := first.Clone()
	for _, m := range rest {
		if err := checkGrids(out.Grid, m.Grid); err != nil {
			return nil, err
		}
		for i, b := range m.Bits {
			out.Bits[i] = out.Bits[i] && b
		}
	}
	return out, nil
}

// Equal reports whether two masks have the same grid and bits.
func (m *Mask) Equal(o *Mask) bool {
	if !m.Grid.Equal(o.Grid) {
		return false
	}
	for i := range m.Bits {
		if m.Bits[i] != o.Bits[i] {
			return false
		}
	}
	return true
}

// ToBand renders the mask as a 0/1 band. Every sample is valid.
func (m *Mask) ToBand(name string) *Band {
	b := NewBand(name, m.Grid)
	for i, v := range m.Bits {
		if v {
			b.Data[i] = 1
		}
	}
	return b
}
