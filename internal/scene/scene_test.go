package scene

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marine-composite/internal/raster"
)

var tileGrid = raster.Grid{OriginX: 0, OriginY: 40, GSD: 10, Width: 4, Height: 4}

func square(minX, minY, maxX, maxY float64) orb.MultiPolygon {
	return orb.MultiPolygon{{orb.Ring{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}}
}

func fixture(t *testing.T, id string, fp orb.MultiPolygon) *Scene {
	t.Helper()
	s, err := New(Metadata{ID: id, Sensor: Sentinel2, SolarAzimuth: 135, Footprint: fp, Grid: tileGrid},
		raster.FilledBand("B2", tileGrid, 500),
		raster.FilledBand("B11", tileGrid.WithGSD(20), 200),
	)
	require.NoError(t, err)
	return s
}

func TestScene_BandResamplesToGrid(t *testing.T) {
	t.Parallel()
	s := fixture(t, "COPERNICUS/S2/20200101_20200101_T55KDA", square(0, 0, 40, 40))

	native, err := s.Native("B11")
	require.NoError(t, err)
	assert.Equal(t, 2, native.Grid.Width)

	b, err := s.Band("B11")
	require.NoError(t, err)
	assert.True(t, b.Grid.Equal(tileGrid))
	assert.Equal(t, 200.0, b.Data[15])

	again, err := s.Band("B11")
	require.NoError(t, err)
	assert.Same(t, b, again)
}

func TestScene_MissingBand(t *testing.T) {
	t.Parallel()
	s := fixture(t, "x_T01ABC", nil)
	_, err := s.Band("B8")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingBand))
	assert.Contains(t, err.Error(), "B8")
}

func TestScene_New_Rejects(t *testing.T) {
	t.Parallel()
	_, err := New(Metadata{Grid: tileGrid})
	assert.Error(t, err)
	_, err = New(Metadata{ID: "a", Grid: tileGrid}, raster.NewBand("B2", tileGrid), raster.NewBand("B2", tileGrid))
	assert.Error(t, err)
	bad := raster.NewBand("B3", tileGrid)
	bad.Data = bad.Data[:3]
	_, err = New(Metadata{ID: "a", Grid: tileGrid}, bad)
	assert.Error(t, err)
}

func TestScene_WithBandsIsImmutable(t *testing.T) {
	t.Parallel()
	s := fixture(t, "x_T01ABC", nil)
	next := s.WithBands(raster.FilledBand("B2", tileGrid, 1), raster.FilledBand("B3", tileGrid, 2))
	orig, _ := s.Band("B2")
	assert.Equal(t, 500.0, orig.Data[0])
	assert.False(t, s.Has("B3"))
	assert.True(t, next.Has("B3"))
	assert.Equal(t, s.ID(), next.ID())
	assert.Equal(t, []string{"B2"}, next.Without("B11", "B3").BandNames())
}

func TestProfile_TileID(t *testing.T) {
	t.Parallel()
	s2, err := ProfileFor(Sentinel2)
	require.NoError(t, err)
	l8, err := ProfileFor(Landsat8)
	require.NoError(t, err)

	cases := []struct {
		name    string
		profile Profile
		id      string
		want    string
		wantErr bool
	}{
		{"s2", s2, "COPERNICUS/S2/20200914T003709_20200914T003706_T55KDA", "55KDA", false},
		{"s2 no tile", s2, "COPERNICUS/S2/20200914", "", true},
		{"s2 trailing", s2, "foo_T", "", true},
		{"l8", l8, "LANDSAT/LC08/C02/T1_TOA/LC08_091075_20200101", "091075", false},
		{"l8 bad pathrow", l8, "LANDSAT/LC08/C02/T1_TOA/LC08_91075_20200101", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.profile.TileID(tc.id)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = ProfileFor("modis")
	assert.Error(t, err)
	assert.Equal(t, []Sensor{Landsat8, Sentinel2}, Sensors())
	assert.True(t, s2.IsAuxiliary("probability"))
	assert.False(t, s2.IsAuxiliary("B2"))
	assert.True(t, l8.IsAuxiliary("QA_PIXEL"))
}

func TestCollection_Validation(t *testing.T) {
	t.Parallel()
	a := fixture(t, "a_T55KDA", square(0, 0, 40, 40))
	other := raster.Grid{OriginX: 0, OriginY: 40, GSD: 20, Width: 2, Height: 2}
	b := MustNew(Metadata{ID: "b_T55KDA", Sensor: Sentinel2, Grid: other})
	_, err := NewCollection(a, b)
	assert.ErrorIs(t, err, ErrGridMismatch)

	far := fixture(t, "c_T55KDA", square(1000, 1000, 2000, 2000))
	_, err = NewCollection(a, far)
	assert.ErrorIs(t, err, ErrOutsideTile)

	_, err = NewCollection(a, fixture(t, "a_T55KDA", square(0, 0, 20, 20)))
	assert.ErrorIs(t, err, ErrDuplicateScene)

	empty, err := NewCollection()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestCollection_TileIDsAndFootprint(t *testing.T) {
	t.Parallel()
	a := fixture(t, "x_T55KDA", square(0, 0, 20, 40))
	b := fixture(t, "y_T55KDB", square(20, 0, 40, 40))
	inner := fixture(t, "z_T55KDA", square(5, 5, 15, 15))
	c, err := NewCollection(a, b, inner)
	require.NoError(t, err)

	tiles, err := c.TileIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"55KDA", "55KDB"}, tiles)
	assert.Equal(t, []string{"x_T55KDA", "y_T55KDB", "z_T55KDA"}, c.IDs())

	fp := c.Footprint()
	assert.Len(t, fp, 2)
	assert.Equal(t, 16, raster.FootprintMask(c.Grid(), fp).Count())
}

func TestDissolve_PermutationInvariant(t *testing.T) {
	t.Parallel()
	a, b, c := square(0, 0, 20, 20), square(10, 10, 30, 30), square(0, 0, 20, 20)
	want := Dissolve(a, b, c)
	assert.Len(t, want, 2)
	assert.Equal(t, want, Dissolve(c, b, a))
	assert.Equal(t, want, Dissolve(b, a, c))
	assert.Empty(t, Dissolve())
}

func TestDissolve_ConcaveFootprint(t *testing.T) {
	t.Parallel()
	// An L with its notch at the top right, and a pentagon whose vertices all
	// sit inside the L while its diagonal edge cuts across the notch.
	l := orb.MultiPolygon{{orb.Ring{{0, 0}, {30, 0}, {30, 10}, {10, 10}, {10, 30}, {0, 30}, {0, 0}}}}
	pent := orb.MultiPolygon{{orb.Ring{{2, 2}, {29, 2}, {29, 9}, {9, 29}, {2, 29}, {2, 2}}}}
	notch := orb.Point{15, 15}
	require.True(t, planar.MultiPolygonContains(pent, notch))
	require.False(t, planar.MultiPolygonContains(l, notch))

	for _, fp := range []orb.MultiPolygon{Dissolve(l, pent), Dissolve(pent, l)} {
		assert.Len(t, fp, 2)
		assert.True(t, planar.MultiPolygonContains(fp, notch), "notch lost from union")
	}

	// Strict nesting still collapses, as does a polygon touching the outer edge.
	assert.Len(t, Dissolve(l, square(2, 2, 8, 8)), 1)
	assert.Len(t, Dissolve(square(0, 0, 30, 30), square(0, 0, 10, 10)), 2)
}
