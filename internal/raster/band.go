package raster

import (
	"errors"
	"math"
)

// ErrGridMismatch is returned when two rasters that must be aligned are not.
var ErrGridMismatch = errors.New("raster grids do not match")

// Band is a named 2D grid of samples. Valid marks which samples carry data;
// a nil Valid slice means every sample is valid.
type Band struct {
	Name  string
	Grid  Grid
	Data  []float64
	Valid []bool
}

// NewBand allocates a zero-filled, fully valid band.
func NewBand(name string, g Grid) *Band {
	return &Band{Name: name, Grid: g, Data: make([]float64, g.Len())}
}

// FilledBand allocates a band with every sample set to v.
func FilledBand(name string, g Grid, v float64) *Band {
	b := NewBand(name, g)
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}

// IsValid reports whether sample i carries data.
func (b *Band) IsValid(i int) bool {
	return b.Valid == nil || b.Valid[i]
}

// At returns the sample at (col, row) and whether it is valid.
func (b *Band) At(col, row int) (float64, bool) {
	if !b.Grid.InBounds(col, row) {
		return 0, false
	}
	i := b.Grid.Index(col, row)
	return b.Data[i], b.IsValid(i)
}

// Clone returns a deep copy.
func (b *Band) Clone() *Band {
	out := &Band{Name: b.Name, Grid: b.Grid, Data: append([]float64(nil), b.Data...)}
	if b.Valid != nil {
		out.Valid = append([]bool(nil), b.Valid...)
	}
	return out
}

// Renamed returns a shallow copy sharing sample storage under a new name.
// Bands are treated as immutable so sharing is safe.
func (b *Band) Renamed(name string) *Band {
	return &Band{Name: name, Grid: b.Grid, Data: b.Data, Valid: b.Valid}
}

// ValidCount returns the number of valid samples.
func (b *Band) ValidCount() int {
	if b.Valid == nil {
		return len(b.Data)
	}
	n := 0
	for _, v := range b.Valid {
		if v {
			n++
		}
	}
	return n
}

// ValidMask returns the validity of every sample as a Mask.
func (b *Band) ValidMask() *Mask {
	m := NewMask(b.Grid)
	for i := range m.Bits {
		m.Bits[i] = b.IsValid(i)
	}
	return m
}

// Map applies fn to every valid sample. Invalid samples stay invalid.
func (b *Band) Map(name string, fn func(v float64) float64) *Band {
	out := &Band{Name: name, Grid: b.Grid, Data: make([]float64, len(b.Data))}
	if b.Valid != nil {
		out.Valid = append([]bool(nil), b.Valid...)
	}
	for i, v := range b.Data {
		if b.IsValid(i) {
			out.Data[i] = fn(v)
		}
	}
	return out
}

// Combine applies fn pixel-wise to two aligned bands. A sample is valid only
// where both inputs are valid.
func Combine(name string, a, b *Band, fn func(x, y float64) float64) (*Band, error) {
	if err := checkGrids(a.Grid, b.Grid); err != nil {
		return nil, err
	}
	out := NewBand(name, a.Grid)
	if a.Valid != nil || b.Valid != nil {
		out.Valid = make([]bool, len(out.Data))
	}
	for i := range out.Data {
		ok := a.IsValid(i) && b.IsValid(i)
		if out.Valid != nil {
			out.Valid[i] = ok
		}
		if ok {
			out.Data[i] = fn(a.Data[i], b.Data[i])
		}
	}
	return out, nil
}

// UpdateMask invalidates every sample where keep is false.
func (b *Band) UpdateMask(keep *Mask) (*Band, error) {
	if err := checkGrids(b.Grid, keep.Grid); err != nil {
		return nil, err
	}
	out := &Band{Name: b.Name, Grid: b.Grid, Data: b.Data, Valid: make([]bool, len(b.Data))}
	for i := range out.Valid {
		out.Valid[i] = b.IsValid(i) && keep.Bits[i]
	}
	return out, nil
}

// Where replaces valid samples with v wherever cond is set.
func (b *Band) Where(cond *Mask, v float64) (*Band, error) {
	if err := checkGrids(b.Grid, cond.Grid); err != nil {
		return nil, err
	}
	out := b.Clone()
	for i, c := range cond.Bits {
		if c && out.IsValid(i) {
			out.Data[i] = v
		}
	}
	return out, nil
}

// GreaterThan returns a mask set where the sample is valid and above t.
func (b *Band) GreaterThan(t float64) *Mask {
	m := NewMask(b.Grid)
	for i, v := range b.Data {
		m.Bits[i] = b.IsValid(i) && v > t
	}
	return m
}

// LessThan returns a mask set where the sample is valid and below t.
func (b *Band) LessThan(t float64) *Mask {
	m := NewMask(b.Grid)
	for i, v := range b.Data {
		m.Bits[i] = b.IsValid(i) && v < t
	}
	return m
}

// Finite reports whether every valid sample is a finite number.
func (b *Band) Finite() bool {
	for i, v := range b.Data {
		if b.IsValid(i) && (math.IsNaN(v) || math.IsInf(v, 0)) {
			return false
		}
	}
	return true
}

// ValidValues returns the valid samples selected by sel (nil selects all).
func (b *Band) ValidValues(sel *Mask) []float64 {
	out := make([]float64, 0, len(b.Data))
	for i, v := range b.Data {
		if !b.IsValid(i) {
			continue
		}
		if sel != nil && !sel.Bits[i] {
			continue
		}
		out = append(out, v)
	}
	return out
}
