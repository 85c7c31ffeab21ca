package raster

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Quantile returns the empirical p-quantile of values using the
// lower-interpolation rule, so the result is always one of the inputs.
// values is sorted in place. ok is false when values is empty.
func Quantile(p float64, values []float64) (q float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)
	return stat.Quantile(p, stat.Empirical, values, nil), true
}

// Median returns the conventional median: the mean of the two middle values
// for even-length input. values is sorted in place.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2], true
	}
	return (values[n/2-1] + values[n/2]) / 2, true
}

// Summary describes the valid samples of a band.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Summarize returns statistics over the valid samples of b.
func Summarize(b *Band) Summary {
	v := b.ValidValues(nil)
	if len(v) == 0 {
		return Summary{}
	}
	return Summary{
		Count: len(v),
		Min:   floats.Min(v),
		Max:   floats.Max(v),
		Mean:  floats.Sum(v) / float64(len(v)),
	}
}
