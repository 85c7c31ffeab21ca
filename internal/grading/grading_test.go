package grading

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marine-composite/internal/bathymetry"
	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
)

const testTable = `
sensor: sentinel2
styles:
  - name: TrueColour
    kind: contrast
    bands:
      - {band: B4, min: 0.013, max: 0.3, gamma: 2.2}
      - {band: B3, min: 0.025, max: 0.31, gamma: 2.2}
      - {band: B2, min: 0.045, max: 0.33, gamma: 2.2}
  - name: ReefTop
    kind: contrast
    smoothing:
      - {op: mean, radius_m: 10, iterations: 4}
    bands:
      - {band: B4, min: 0.018, max: 0.019, gamma: 1}
  - name: DryReef
    kind: threshold
    polygonize: true
    smoothing:
      - {op: mean, radius_m: 20, iterations: 1}
    threshold: {band: B5, above: 0.031}
    water_mask: {band: B8, below: 1800}
  - name: Land
    kind: threshold
    polygonize: true
    smoothing:
      - {op: max, radius_m: 10, iterations: 1}
    threshold: {band: B8, above: 1600, raw: true}
  - name: Slope
    kind: slope
    working_scale: 30
    smoothing:
      - {op: median, radius_m: 90, iterations: 2}
    bands:
      - {band: B4, min: 0.0003, max: 0.01, gamma: 2}
  - name: Depth
    kind: depth
    physical: true
    depth: {filter_radius_m: 20, iterations: 2}
  - name: Depth5m
    kind: depth_threshold
    polygonize: true
    depth: {filter_radius_m: 10, iterations: 2, above: -5}
`

var grid = raster.Grid{OriginX: 0, OriginY: 120, GSD: 10, Width: 12, Height: 12}

func testScene(t *testing.T) *scene.Scene {
	t.Helper()
	s, err := scene.New(scene.Metadata{ID: "composite", Sensor: scene.Sentinel2, Grid: grid},
		raster.FilledBand("B2", grid, 450),
		raster.FilledBand("B3", grid, 3100),
		raster.FilledBand("B4", grid, 1000),
		raster.FilledBand("B5", grid, 500),
		raster.FilledBand("B8", grid, 100),
	)
	require.NoError(t, err)
	return s
}

func engine(t *testing.T) *Engine {
	t.Helper()
	table, err := ParseTable([]byte(testTable))
	require.NoError(t, err)
	return NewEngine(table)
}

func TestEnhance(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Enhance(0.013, 0.013, 0.3, 2.2))
	assert.Equal(t, 1.0, Enhance(0.3, 0.013, 0.3, 2.2))
	assert.Equal(t, 0.0, Enhance(-5, 0, 1, 2))
	assert.Equal(t, 1.0, Enhance(5, 0, 1, 2))
	assert.InDelta(t, math.Sqrt(0.25), Enhance(0.25, 0, 1, 2), 1e-12)
}

func TestEnhance_BoundsForEveryStyle(t *testing.T) {
	t.Parallel()
	e := engine(t)
	for _, name := range e.Table().Names() {
		st, err := e.Table().Style(name)
		require.NoError(t, err)
		for _, g := range append(append([]BandGrade(nil), st.Bands...), st.PreContrast...) {
			assert.Equal(t, 0.0, Enhance(g.Min, g.Min, g.Max, g.Gamma), "%s %s", name, g.Band)
			assert.Equal(t, 1.0, Enhance(g.Max, g.Min, g.Max, g.Gamma), "%s %s", name, g.Band)
		}
	}
}

func TestParseTable(t *testing.T) {
	t.Parallel()
	table, err := ParseTable([]byte(testTable))
	require.NoError(t, err)
	assert.Equal(t, "sentinel2", table.Sensor)
	assert.Equal(t, []string{"TrueColour", "ReefTop", "DryReef", "Land", "Slope", "Depth", "Depth5m"}, table.Names())

	out, err := table.Marshal()
	require.NoError(t, err)
	again, err := ParseTable(out)
	require.NoError(t, err)
	assert.Equal(t, table.Names(), again.Names())
}

func TestTable_StyleIsCopy(t *testing.T) {
	t.Parallel()
	table, err := ParseTable([]byte(testTable))
	require.NoError(t, err)

	for _, name := range table.Names() {
		want, err := table.Style(name)
		require.NoError(t, err)
		got, err := table.Style(name)
		require.NoError(t, err)

		for i := range got.Bands {
			got.Bands[i].Min = -1
		}
		for i := range got.PreContrast {
			got.PreContrast[i].Gamma = 99
		}
		for i := range got.Smoothing {
			got.Smoothing[i].Iterations = 99
		}
		if got.Threshold != nil {
			got.Threshold.Above = -1
		}
		if got.WaterMask != nil {
			got.WaterMask.Below = -1
		}
		if got.Depth != nil && got.Depth.Above != nil {
			*got.Depth.Above = -1
		}

		again, err := table.Style(name)
		require.NoError(t, err)
		assert.Equal(t, want, again, "style %s changed through a returned copy", name)
	}
}

func TestParseTable_Rejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"empty":          `sensor: x`,
		"unknown field":  "styles:\n  - {name: A, kind: contrast, colour: red, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"unknown kind":   "styles:\n  - {name: A, kind: sepia, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"two bands":      "styles:\n  - {name: A, kind: contrast, bands: [{band: B2, min: 0, max: 1, gamma: 1}, {band: B3, min: 0, max: 1, gamma: 1}]}",
		"min above max":  "styles:\n  - {name: A, kind: contrast, bands: [{band: B2, min: 1, max: 1, gamma: 1}]}",
		"zero gamma":     "styles:\n  - {name: A, kind: contrast, bands: [{band: B2, min: 0, max: 1, gamma: 0}]}",
		"duplicate":      "styles:\n  - {name: A, kind: contrast, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}\n  - {name: A, kind: contrast, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"bad op":         "styles:\n  - {name: A, kind: contrast, smoothing: [{op: mode, radius_m: 10, iterations: 1}], bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"no iterations":  "styles:\n  - {name: A, kind: contrast, smoothing: [{op: mean, radius_m: 10}], bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"physical":       "styles:\n  - {name: A, kind: contrast, physical: true, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"depth unflag":   "styles:\n  - {name: A, kind: depth, depth: {filter_radius_m: 20, iterations: 1}}",
		"polygonize":     "styles:\n  - {name: A, kind: contrast, polygonize: true, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"no threshold":   "styles:\n  - {name: A, kind: threshold}",
		"depth no level": "styles:\n  - {name: A, kind: depth_threshold, depth: {filter_radius_m: 20, iterations: 1}}",
		"pre contrast":   "styles:\n  - {name: A, kind: contrast, pre_contrast: [{band: B2, min: 0, max: 1, gamma: 1}], bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
		"no name":        "styles:\n  - {kind: contrast, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTable([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestGrade_UnknownStyle(t *testing.T) {
	t.Parallel()
	_, err := engine(t).Grade(testScene(t), "Sepia", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStyle))
}

func TestGrade_Contrast(t *testing.T) {
	t.Parallel()
	p, err := engine(t).Grade(testScene(t), "TrueColour", nil)
	require.NoError(t, err)
	require.Len(t, p.Bands, 3)
	assert.Equal(t, []string{"B4", "B3", "B2"}, []string{p.Bands[0].Name, p.Bands[1].Name, p.Bands[2].Name})
	assert.InDelta(t, Enhance(0.1, 0.013, 0.3, 2.2), p.Bands[0].Data[0], 1e-12)
	assert.Equal(t, 1.0, p.Bands[1].Data[0], "clamped at max")
	assert.Equal(t, 0.0, p.Bands[2].Data[0], "clamped at min")
	assert.False(t, p.Physical)

	planes, err := p.Encode8()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), planes[1][0])
	assert.Equal(t, uint8(1), planes[2][0])
}

func TestGrade_SmoothedContrast(t *testing.T) {
	t.Parallel()
	s := testScene(t)
	b4, _ := s.Band("B4")
	noisy := b4.Clone()
	noisy.Data[grid.Index(6, 6)] = 5000
	p, err := engine(t).Grade(s.WithBands(noisy), "ReefTop", nil)
	require.NoError(t, err)
	require.Len(t, p.Bands, 1)
	assert.Equal(t, 1.0, p.Bands[0].Data[0])
	assert.Equal(t, grid, p.Grid())
}

func TestGrade_ThresholdWithWaterMask(t *testing.T) {
	t.Parallel()
	s := testScene(t)
	b5 := raster.FilledBand("B5", grid, 100)
	for row := 0; row < 6; row++ {
		for col := 0; col < 12; col++ {
			b5.Data[grid.Index(col, row)] = 600
		}
	}
	b8 := raster.FilledBand("B8", grid, 100)
	for row := 0; row < 12; row++ {
		b8.Data[grid.Index(11, row)] = 4000
	}
	p, err := engine(t).Grade(s.WithBands(b5, b8), "DryReef", nil)
	require.NoError(t, err)
	out := p.Bands[0]
	assert.True(t, p.Polygonize)
	assert.Equal(t, 1.0, out.Data[grid.Index(3, 1)])
	assert.Equal(t, 0.0, out.Data[grid.Index(3, 10)])
	assert.False(t, out.IsValid(grid.Index(11, 1)), "land is masked")

	planes, err := p.Encode8()
	require.NoError(t, err)
	assert.Equal(t, NoData, planes[0][grid.Index(11, 1)])
	assert.Equal(t, uint8(255), planes[0][grid.Index(3, 1)])
	assert.Equal(t, uint8(1), planes[0][grid.Index(3, 10)])
}

func TestGrade_RawThreshold(t *testing.T) {
	t.Parallel()
	s := testScene(t)
	b8 := raster.FilledBand("B8", grid, 100)
	b8.Data[grid.Index(5, 5)] = 2000
	p, err := engine(t).Grade(s.WithBands(b8), "Land", nil)
	require.NoError(t, err)
	// The 10 m focal max spreads the single land pixel to its 4 neighbours.
	assert.Equal(t, 5, p.Bands[0].GreaterThan(0.5).Count())
}

func TestGrade_SlopeFlat(t *testing.T) {
	t.Parallel()
	p, err := engine(t).Grade(testScene(t), "Slope", nil)
	require.NoError(t, err)
	assert.Equal(t, 30.0, p.Grid().GSD)
	assert.Equal(t, 4, p.Grid().Width)
	for _, v := range p.Bands[0].Data {
		assert.Equal(t, 0.0, v)
	}
}

func TestGrade_Depth(t *testing.T) {
	t.Parallel()
	depth := raster.FilledBand("depth", grid, -7)
	depth.Data[0] = -3
	calls := 0
	src := func(p bathymetry.Params) (*bathymetry.Result, error) {
		calls++
		return &bathymetry.Result{Depth: depth, Valid: raster.FullMask(grid)}, nil
	}
	e := engine(t)

	p, err := e.Grade(testScene(t), "Depth", src)
	require.NoError(t, err)
	assert.True(t, p.Physical)
	assert.Equal(t, -7.0, p.Bands[0].Data[1])
	_, err = p.Encode8()
	assert.Error(t, err)

	p, err = e.Grade(testScene(t), "Depth5m", src)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Bands[0].Data[0])
	assert.Equal(t, 0.0, p.Bands[0].Data[1])
	assert.Equal(t, 2, calls)

	_, err = e.Grade(testScene(t), "Depth", nil)
	assert.Error(t, err)
}

func TestGrade_MissingBand(t *testing.T) {
	t.Parallel()
	s := scene.MustNew(scene.Metadata{ID: "c", Grid: grid}, raster.FilledBand("B2", grid, 1))
	_, err := engine(t).Grade(s, "TrueColour", nil)
	assert.ErrorIs(t, err, scene.ErrMissingBand)
}

func TestEncodeValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint8(1), EncodeValue(0))
	assert.Equal(t, uint8(1), EncodeValue(-3))
	assert.Equal(t, uint8(128), EncodeValue(0.5))
	assert.Equal(t, uint8(255), EncodeValue(1))
	assert.Equal(t, uint8(255), EncodeValue(7))
	assert.Equal(t, NoData, EncodeValue(math.NaN()))
}
