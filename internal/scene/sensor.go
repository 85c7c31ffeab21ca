package scene

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Sensor identifies the band semantics of a scene.
type Sensor string

const (
	Sentinel2 Sensor = "sentinel2"
	Landsat8  Sensor = "landsat8"
)

// Profile describes the bands a sensor provides.
type Profile struct {
	Sensor Sensor
	// GSD is the nominal scene grid spacing in metres.
	GSD float64
	// Bands maps band name to native ground sample distance.
	Bands map[string]float64
	// Reflective lists the reflectance bands carried into composites, in
	// canonical order.
	Reflective []string
	// ProbabilityBand holds per-pixel cloud probability in percent, if any.
	ProbabilityBand string
	// QABand holds per-pixel quality bits, if any.
	QABand string
}

var profiles = map[Sensor]Profile{
	Sentinel2: {
		Sensor: Sentinel2,
		GSD:    10,
		Bands: map[string]float64{
			"B1": 60, "B2": 10, "B3": 10, "B4": 10, "B5": 20,
			"B8": 10, "B11": 20, "B12": 20, "probability": 10,
		},
		Reflective:      []string{"B1", "B2", "B3", "B4", "B5", "B8", "B11", "B12"},
		ProbabilityBand: "probability",
	},
	Landsat8: {
		Sensor: Landsat8,
		GSD:    30,
		Bands: map[string]float64{
			"B1": 30, "B2": 30, "B3": 30, "B4": 30, "B5": 30,
			"B6": 30, "B7": 30, "QA_PIXEL": 30,
		},
		Reflective: []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7"},
		QABand:     "QA_PIXEL",
	},
}

// ProfileFor returns the profile of a known sensor.
func ProfileFor(s Sensor) (Profile, error) {
	p, ok := profiles[s]
	if !ok {
		return Profile{}, fmt.Errorf("unknown sensor %q", s)
	}
	return p, nil
}

// Sensors lists the known sensors in name order.
func Sensors() []Sensor {
	out := make([]Sensor, 0, len(profiles))
	for s := range profiles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsAuxiliary reports whether the band carries masking metadata rather than
// reflectance.
func (p Profile) IsAuxiliary(band string) bool {
	return band != "" && (band == p.ProbabilityBand || band == p.QABand)
}

// TileID extracts the grid tile from an acquisition id.
//
// Sentinel-2 ids end in "_T<tile>"; Landsat-8 ids end in
// "LC08_<pathrow>_<date>".
func (p Profile) TileID(acquisitionID string) (string, error) {
	switch p.Sensor {
	case Sentinel2:
		i := strings.LastIndex(acquisitionID, "_T")
		if i < 0 || i+2 >= len(acquisitionID) {
			return "", fmt.Errorf("no tile in sentinel2 id %q", acquisitionID)
		}
		return acquisitionID[i+2:], nil
	case Landsat8:
		parts := strings.Split(path.Base(acquisitionID), "_")
		if len(parts) < 3 || len(parts[1]) != 6 || strings.Trim(parts[1], "0123456789") != "" {
			return "", fmt.Errorf("no path/row in landsat8 id %q", acquisitionID)
		}
		return parts[1], nil
	}
	return "", fmt.Errorf("unknown sensor %q", p.Sensor)
}
