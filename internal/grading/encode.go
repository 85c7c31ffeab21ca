package grading

import (
	"fmt"
	"math"
)

// NoData is the encoded value of invalid pixels.
const NoData uint8 = 0

// EncodeValue maps a [0,1] value to 1..255, reserving 0 for no data.
func EncodeValue(x float64) uint8 {
	if math.IsNaN(x) {
		return NoData
	}
	return uint8(math.Round(math.Max(0, math.Min(1, x))*254)) + 1
}

// Encode8 returns one 8-bit plane per product band. Physical products cannot
// be encoded.
func (p *Product) Encode8() ([][]uint8, error) {
	if p.Physical {
		return nil, fmt.Errorf("product %s is physical and has no 8-bit encoding", p.Style)
	}
	planes := make([][]uint8, len(p.Bands))
	for i, b := range p.Bands {
		plane := make([]uint8, len(b.Data))
		for j, v := range b.Data {
			if b.IsValid(j) {
				plane[j] = EncodeValue(v)
			}
		}
		planes[i] = plane
	}
	return planes, nil
}
