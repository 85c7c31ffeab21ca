package raster

import (
	"fmt"
	"math"
	"sort"
)

// FocalOp names a neighbourhood reducer.
type FocalOp string

const (
	FocalMean   FocalOp = "mean"
	FocalMedian FocalOp = "median"
	FocalMax    FocalOp = "max"
	FocalMin    FocalOp = "min"
)

// Valid reports whether op is a known reducer.
func (op FocalOp) Valid() bool {
	switch op {
	case FocalMean, FocalMedian, FocalMax, FocalMin:
		return true
	}
	return false
}

// Focal applies op over the kernel neighbourhood of every valid pixel,
// repeating iterations times. Invalid neighbours are skipped and a pixel's
// validity is unchanged by filtering.
func Focal(b *Band, op FocalOp, k Kernel, iterations int) (*Band, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("unknown focal op %q", op)
	}
	if iterations < 1 {
		iterations = 1
	}
	cur := b
	for i := 0; i < iterations; i++ {
		cur = focalOnce(cur, op, k)
	}
	return cur, nil
}

func focalOnce(b *Band, op FocalOp, k Kernel) *Band {
	g := b.Grid
	out := &Band{Name: b.Name, Grid: g, Data: make([]float64, len(b.Data))}
	if b.Valid != nil {
		out.Valid = append([]bool(nil), b.Valid...)
	}
	buf := make([]float64, 0, len(k))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			i := g.Index(col, row)
			if !b.IsValid(i) {
				continue
			}
			buf = buf[:0]
			for _, o := range k {
				c, r := col+o.DX, row+o.DY
				if !g.InBounds(c, r) {
					continue
				}
				j := g.Index(c, r)
				if b.IsValid(j) {
					buf = append(buf, b.Data[j])
				}
			}
			out.Data[i] = reduce(op, buf)
		}
	}
	return out
}

func reduce(op FocalOp, v []float64) float64 {
	switch op {
	case FocalMean:
		s := 0.0
		for _, x := range v {
			s += x
		}
		return s / float64(len(v))
	case FocalMax:
		m := math.Inf(-1)
		for _, x := range v {
			m = math.Max(m, x)
		}
		return m
	case FocalMin:
		m := math.Inf(1)
		for _, x := range v {
			m = math.Min(m, x)
		}
		return m
	default:
		sort.Float64s(v)
		n := len(v)
		if n%2 == 1 {
			return v[n/2]
		}
		return (v[n/2-1] + v[n/2]) / 2
	}
}
