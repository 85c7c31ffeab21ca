package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marine-composite/internal/grading"
	"github.com/banshee-data/marine-composite/internal/scene"
)

func TestDefaultStyles(t *testing.T) {
	t.Parallel()
	s2, err := DefaultStyles(scene.Sentinel2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"TrueColour", "DeepMarine", "DeepFalse", "DeepFalsePreview", "Shallow",
		"ReefTop", "B3ReefBoundary", "B2ReefBoundary",
		"DryReef", "Breaking", "Land",
		"Slope", "SlopeLinearDepth",
		"Depth", "Depth5m", "Depth10m", "Depth20m",
	}, s2.Names())

	l8, err := DefaultStyles(scene.Landsat8)
	require.NoError(t, err)
	assert.Equal(t, "landsat8", l8.Sensor)
	assert.Contains(t, l8.Names(), "Depth20m")

	depth, err := l8.Style("Depth")
	require.NoError(t, err)
	assert.True(t, depth.Physical)
	assert.Equal(t, 30.0, depth.Depth.FilterRadiusM)
}

func TestDefaultStyles_EnhanceBounds(t *testing.T) {
	t.Parallel()
	for _, sensor := range scene.Sensors() {
		table, err := DefaultStyles(sensor)
		require.NoError(t, err)
		for _, name := range table.Names() {
			st, err := table.Style(name)
			require.NoError(t, err)
			grades := append(append([]grading.BandGrade(nil), st.Bands...), st.PreContrast...)
			for _, g := range grades {
				assert.Equal(t, 0.0, grading.Enhance(g.Min, g.Min, g.Max, g.Gamma), "%s %s %s", sensor, name, g.Band)
				assert.Equal(t, 1.0, grading.Enhance(g.Max, g.Min, g.Max, g.Gamma), "%s %s %s", sensor, name, g.Band)
			}
		}
	}
}

func TestDefaultStyles_ThresholdsPolygonize(t *testing.T) {
	t.Parallel()
	table, err := DefaultStyles(scene.Sentinel2)
	require.NoError(t, err)
	for _, name := range table.Names() {
		st, _ := table.Style(name)
		isThreshold := st.Kind == grading.KindThreshold || st.Kind == grading.KindDepthThreshold
		assert.Equal(t, isThreshold, st.Polygonize, name)
	}
}

func TestLoadStyles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "styles.yml")
	doc := `
sensor: sentinel2
styles:
  - name: Grey
    kind: contrast
    bands:
      - {band: B3, min: 0, max: 0.2, gamma: 1}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	table, err := LoadStyles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Grey"}, table.Names())

	_, err = table.Style("TrueColour")
	assert.True(t, errors.Is(err, ErrUnknownStyle))
}

func TestLoadStyles_Rejects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name, doc string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(doc), 0644))
		return p
	}

	_, err := LoadStyles(write("styles.json", "{}"))
	assert.Error(t, err, "extension")

	_, err = LoadStyles(write("bad.yaml", "sensor: sentinel2\nstyles:\n  - {name: A, kind: contrast, bands: [{band: B2, min: 1, max: 0, gamma: 1}]}\n"))
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = LoadStyles(write("sensor.yaml", "sensor: spot7\nstyles:\n  - {name: A, kind: contrast, bands: [{band: B2, min: 0, max: 1, gamma: 1}]}\n"))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoad(t *testing.T) {
	t.Parallel()
	cal, styles, err := Load(scene.Landsat8, "", "")
	require.NoError(t, err)
	assert.Equal(t, scene.Landsat8, cal.GetSensor())
	assert.Equal(t, "landsat8", styles.Sensor)

	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sensor": "sentinel2", "version": "x"}`), 0644))
	_, _, err = Load(scene.Landsat8, path, "")
	assert.True(t, errors.Is(err, ErrInvalidConfig), "sensor mismatch")
}
