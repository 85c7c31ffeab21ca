package cloudmask

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

func buildScene(t *testing.T, g raster.Grid, azimuth float64, prob *raster.Band, nir float64) *scene.Scene {
	t.Helper()
	bands := []*raster.Band{raster.FilledBand("B8", g, nir)}
	if prob != nil {
		bands = append(bands, prob)
	}
	s, err := scene.New(scene.Metadata{ID: "test_T55KDA", Sensor: scene.Sentinel2, SolarAzimuth: azimuth, Grid: g}, bands...)
	require.NoError(t, err)
	return s
}

func setBlock(b *raster.Band, c0, r0, c1, r1 int, v float64) {
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			b.Data[b.Grid.Index(c, r)] = v
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Passes, 2)
	assert.Equal(t, Pass{ProbabilityThreshold: 80, ErosionM: 300, ProjectionM: 1500, BufferM: 300}, cfg.Passes[1])
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	cases := map[string]func(*Config){
		"no passes":       func(c *Config) { c.Passes = nil },
		"threshold":       func(c *Config) { c.Passes[0].ProbabilityThreshold = 120 },
		"negative buffer": func(c *Config) { c.Passes[0].BufferM = -1 },
		"dark band":       func(c *Config) { c.DarkBand = "" },
		"kernel pixels":   func(c *Config) { c.ApproxKernelPixels = 0 },
		"projection":      func(c *Config) { c.ProjectionScale = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewProbabilityEstimator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestEstimate_MissingProbability(t *testing.T) {
	t.Parallel()
	g := raster.Grid{GSD: 10, Width: 10, Height: 10}
	e, err := NewProbabilityEstimator(DefaultConfig())
	require.NoError(t, err)
	_, err = e.Estimate(buildScene(t, g, 120, nil, 100))
	assert.ErrorIs(t, err, ErrNoCloudProbability)
}

// Thresholding at 80% with a 300 m erosion leaves no cloud component smaller
// than the erosion kernel.
func TestEstimate_ErosionRemovesSmallClouds(t *testing.T) {
	t.Parallel()
	g := raster.Grid{OriginX: 0, OriginY: 1600, GSD: 10, Width: 160, Height: 160}
	prob := raster.NewBand("probability", g)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.Center(col, row)
			if math.Hypot(x-800, y-800) <= 500 {
				prob.Data[g.Index(col, row)] = 95
			}
		}
	}
	prob.Data[g.Index(5, 5)] = 95
	prob.Data[g.Index(150, 20)] = 95
	setBlock(prob, 10, 140, 14, 144, 95)
	// A pixel just under the threshold is never cloud.
	setBlock(prob, 120, 120, 150, 150, 80)

	cfg := DefaultConfig()
	cfg.Passes = []Pass{{ProbabilityThreshold: 80, ErosionM: 300, ProjectionM: 1500}}
	e, err := NewProbabilityEstimator(cfg)
	require.NoError(t, err)

	// Bright land: no dark pixels, so no shadow is added.
	mask, err := e.Estimate(buildScene(t, g, 120, prob, 3000))
	require.NoError(t, err)

	assert.True(t, mask.Get(80, 80), "large cloud kept")
	assert.False(t, mask.Get(5, 5))
	assert.False(t, mask.Get(150, 20))
	assert.False(t, mask.Get(12, 142))
	assert.False(t, mask.Get(135, 135))

	// Working scale is 80 m, so the kernel is a 3.75 px disc of 45 coarse
	// pixels, each covering 64 native pixels.
	kernelPixels := len(raster.Circle(300.0/80)) * 64
	sizes := raster.Components(mask, false)
	require.NotEmpty(t, sizes)
	for _, n := range sizes {
		assert.GreaterOrEqual(t, n, kernelPixels)
		assert.GreaterOrEqual(t, float64(n)*g.GSD*g.GSD, 0.9*math.Pi*300*300)
	}
}

func TestEstimate_ShadowProjection(t *testing.T) {
	t.Parallel()
	g := raster.Grid{OriginX: 0, OriginY: 400, GSD: 10, Width: 100, Height: 40}
	prob := raster.NewBand("probability", g)
	setBlock(prob, 60, 10, 69, 19, 90)

	cfg := DefaultConfig()
	cfg.Passes = []Pass{{ProbabilityThreshold: 35, ProjectionM: 400}}
	e, err := NewProbabilityEstimator(cfg)
	require.NoError(t, err)

	t.Run("water keeps whole swath", func(t *testing.T) {
		t.Parallel()
		// Sun due east: shadows fall to the west.
		mask, err := e.Estimate(buildScene(t, g, 90, prob, 100))
		require.NoError(t, err)
		assert.True(t, mask.Get(65, 15), "cloud")
		assert.True(t, mask.Get(25, 15), "shadow 350 m west")
		assert.False(t, mask.Get(15, 15), "beyond projection distance")
		assert.False(t, mask.Get(75, 15), "sunward side")
		assert.False(t, mask.Get(65, 30))
	})

	t.Run("bright land drops shadow", func(t *testing.T) {
		t.Parallel()
		mask, err := e.Estimate(buildScene(t, g, 90, prob, 3000))
		require.NoError(t, err)
		assert.True(t, mask.Get(65, 15))
		assert.False(t, mask.Get(25, 15))
		assert.Equal(t, 100, mask.Count())
	})
}

func TestEstimate_BufferAndPassUnion(t *testing.T) {
	t.Parallel()
	g := raster.Grid{OriginX: 0, OriginY: 400, GSD: 10, Width: 40, Height: 40}
	prob := raster.NewBand("probability", g)
	prob.Data[g.Index(20, 20)] = 50
	setBlock(prob, 0, 0, 3, 3, 90)

	cfg := DefaultConfig()
	cfg.Passes = []Pass{
		{ProbabilityThreshold: 35, BufferM: 40},
		{ProbabilityThreshold: 80},
	}
	e, err := NewProbabilityEstimator(cfg)
	require.NoError(t, err)
	mask, err := e.Estimate(buildScene(t, g, 90, prob, 3000))
	require.NoError(t, err)

	assert.True(t, mask.Get(20, 20))
	assert.True(t, mask.Get(22, 20), "buffered neighbour")
	assert.False(t, mask.Get(30, 30))
	assert.True(t, mask.Get(0, 0))
}

func TestQABitmask(t *testing.T) {
	t.Parallel()
	g := raster.Grid{GSD: 30, Width: 5, Height: 1}
	qa := raster.NewBand("QA_PIXEL", g)
	copy(qa.Data, []float64{0, 1 << 1, 1 << 3, 1 << 5, 1<<4 | 1})
	qa.Valid = []bool{true, true, true, true, false}
	s, err := scene.New(scene.Metadata{ID: "LC08_091075_20200101", Sensor: scene.Landsat8, Grid: g}, qa)
	require.NoError(t, err)

	mask, err := DefaultQABitmask().Estimate(s)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, false, false}, mask.Bits)

	_, err = QABitmaskEstimator{Band: "QA_PIXEL"}.Estimate(s)
	assert.Error(t, err)
	_, err = QABitmaskEstimator{Band: "BQA", Bits: []uint{3}}.Estimate(s)
	assert.ErrorIs(t, err, scene.ErrMissingBand)

	var _ Estimator = DefaultQABitmask()
	var _ Estimator = &ProbabilityEstimator{}
}
