package cloudmask

import (
	"fmt"

	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

// QABitmaskEstimator excludes pixels whose quality band has any of Bits set.
// Landsat collection 2 QA_PIXEL bits: 1 dilated cloud, 2 cirrus, 3 cloud,
// 4 cloud shadow.
type QABitmaskEstimator struct {
	Band string
	Bits []uint
}

// DefaultQABitmask returns the Landsat-8 estimator.
func DefaultQABitmask() QABitmaskEstimator {
	return QABitmaskEstimator{Band: "QA_PIXEL", Bits: []uint{1, 2, 3, 4}}
}

// Estimate marks pixels with any configured bit set. Invalid QA samples are
// not excluded.
func (e QABitmaskEstimator) Estimate(s *scene.Scene) (*raster.Mask, error) {
	if len(e.Bits) == 0 {
		return nil, fmt.Errorf("qa estimator needs at least one bit")
	}
	qa, err := s.Band(e.Band)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", s.ID(), err)
	}
	var bits uint64
	for _, b := range e.Bits {
		bits |= 1 << b
	}
	m := raster.NewMask(qa.Grid)
	for i, v := range qa.Data {
		m.Bits[i] = qa.IsValid(i) && uint64(v)&bits != 0
	}
	return m, nil
}
