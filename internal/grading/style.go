package grading

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/marine-composite/internal/raster"
)

// ErrUnknownStyle is returned when a style name is not in the table.
var ErrUnknownStyle = errors.New("unknown colour grade style")

// Kind selects how a style turns bands into output.
type Kind string

const (
	// KindContrast enhances 1 or 3 bands into a visual image.
	KindContrast Kind = "contrast"
	// KindThreshold produces a 0/1 raster from one smoothed band.
	KindThreshold Kind = "threshold"
	// KindSlope enhances the brightness slope of 1 or 3 smoothed bands.
	KindSlope Kind = "slope"
	// KindDepth outputs the depth estimate in metres.
	KindDepth Kind = "depth"
	// KindDepthThreshold produces a 0/1 raster where depth is above a level.
	KindDepthThreshold Kind = "depth_threshold"
)

// BandGrade is the per-band (min, max, gamma) contrast stretch in
// reflectance units.
type BandGrade struct {
	Band  string  `yaml:"band"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Gamma float64 `yaml:"gamma"`
}

// FilterStep is one focal filter pass.
type FilterStep struct {
	Op         raster.FocalOp `yaml:"op"`
	RadiusM    float64        `yaml:"radius_m"`
	Iterations int            `yaml:"iterations"`
}

// Threshold marks pixels of Band above Above. Raw compares fixed-point
// values instead of reflectance.
type Threshold struct {
	Band  string  `yaml:"band"`
	Above float64 `yaml:"above"`
	Raw   bool    `yaml:"raw"`
}

// WaterMask restricts output to pixels where Band (fixed-point) is below
// Below.
type WaterMask struct {
	Band  string  `yaml:"band"`
	Below float64 `yaml:"below"`
}

// Depth selects the depth estimate smoothing and, for threshold styles,
// the level compared against.
type Depth struct {
	FilterRadiusM float64  `yaml:"filter_radius_m"`
	Iterations    int      `yaml:"iterations"`
	Above         *float64 `yaml:"above,omitempty"`
}

// Style is an immutable colour grade definition.
type Style struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`
	// Bands are graded in output order (red, green, blue).
	Bands []BandGrade `yaml:"bands,omitempty"`
	// PreContrast, for slope styles, stretches each band before the slope
	// is taken. It matches Bands by position.
	PreContrast []BandGrade `yaml:"pre_contrast,omitempty"`
	Smoothing   []FilterStep `yaml:"smoothing,omitempty"`
	// WorkingScale, when set, resamples inputs to this GSD first.
	WorkingScale float64    `yaml:"working_scale,omitempty"`
	Threshold    *Threshold `yaml:"threshold,omitempty"`
	WaterMask    *WaterMask `yaml:"water_mask,omitempty"`
	Depth        *Depth     `yaml:"depth,omitempty"`
	// Physical output is in native units and never clamped or encoded.
	Physical bool `yaml:"physical,omitempty"`
	// Polygonize marks 0/1 outputs intended for vectorisation.
	Polygonize bool `yaml:"polygonize,omitempty"`
}

// Validate checks every field the engine relies on.
func (s Style) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("style has no name")
	}
	fail := func(format string, v ...interface{}) error {
		return fmt.Errorf("style %s: %s", s.Name, fmt.Sprintf(format, v...))
	}
	for i, f := range s.Smoothing {
		if !f.Op.Valid() {
			return fail("smoothing %d: unknown op %q", i, f.Op)
		}
		if f.RadiusM <= 0 {
			return fail("smoothing %d: radius must be positive, got %v", i, f.RadiusM)
		}
		if f.Iterations < 1 {
			return fail("smoothing %d: iterations must be at least 1, got %d", i, f.Iterations)
		}
	}
	if s.WorkingScale < 0 {
		return fail("working scale must be non-negative, got %v", s.WorkingScale)
	}
	if s.Physical != (s.Kind == KindDepth) {
		return fail("only depth styles are physical")
	}
	if s.Polygonize && s.Kind != KindThreshold && s.Kind != KindDepthThreshold {
		return fail("only threshold styles can be polygonized")
	}

	switch s.Kind {
	case KindContrast, KindSlope:
		if n := len(s.Bands); n != 1 && n != 3 {
			return fail("needs 1 or 3 bands, got %d", n)
		}
		if err := validateGrades(s.Bands); err != nil {
			return fail("%v", err)
		}
		if len(s.PreContrast) > 0 {
			if s.Kind != KindSlope || len(s.PreContrast) != len(s.Bands) {
				return fail("pre-contrast must match the bands of a slope style")
			}
			if err := validateGrades(s.PreContrast); err != nil {
				return fail("pre-contrast: %v", err)
			}
			for i := range s.Bands {
				if s.PreContrast[i].Band != s.Bands[i].Band {
					return fail("pre-contrast band %s does not match %s", s.PreContrast[i].Band, s.Bands[i].Band)
				}
			}
		}
	case KindThreshold:
		if s.Threshold == nil || s.Threshold.Band == "" {
			return fail("threshold style needs a threshold band")
		}
	case KindDepth, KindDepthThreshold:
		if s.Depth == nil {
			return fail("depth style needs depth parameters")
		}
		if s.Depth.FilterRadiusM < 0 || s.Depth.Iterations < 0 {
			return fail("depth filter must be non-negative")
		}
		if (s.Kind == KindDepthThreshold) != (s.Depth.Above != nil) {
			return fail("depth level is required for, and only for, depth thresholds")
		}
	default:
		return fail("unknown kind %q", s.Kind)
	}
	if s.WaterMask != nil && s.WaterMask.Band == "" {
		return fail("water mask needs a band")
	}
	return nil
}

func validateGrades(grades []BandGrade) error {
	for _, g := range grades {
		if g.Band == "" {
			return fmt.Errorf("band grade without a band")
		}
		if !(g.Max > g.Min) {
			return fmt.Errorf("band %s: max %v must exceed min %v", g.Band, g.Max, g.Min)
		}
		if !(g.Gamma > 0) {
			return fmt.Errorf("band %s: gamma must be positive, got %v", g.Band, g.Gamma)
		}
	}
	return nil
}

// clone returns a deep copy of s.
func (s Style) clone() Style {
	out := s
	out.Bands = append([]BandGrade(nil), s.Bands...)
	out.PreContrast = append([]BandGrade(nil), s.PreContrast...)
	out.Smoothing = append([]FilterStep(nil), s.Smoothing...)
	if s.Threshold != nil {
		th := *s.Threshold
		out.Threshold = &th
	}
	if s.WaterMask != nil {
		wm := *s.WaterMask
		out.WaterMask = &wm
	}
	if s.Depth != nil {
		d := *s.Depth
		if d.Above != nil {
			above := *d.Above
			d.Above = &above
		}
		out.Depth = &d
	}
	return out
}

// Table is a validated, closed set of styles for one sensor.
type Table struct {
	Sensor string
	styles map[string]Style
	order  []string
}

type tableFile struct {
	Sensor string  `yaml:"sensor"`
	Styles []Style `yaml:"styles"`
}

// ParseTable decodes and validates a YAML style table. Unknown fields are
// rejected.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse style table: %w", err)
	}
	return NewTable(f.Sensor, f.Styles...)
}

// NewTable validates styles and builds a table.
func NewTable(sensor string, styles ...Style) (*Table, error) {
	if len(styles) == 0 {
		return nil, fmt.Errorf("style table for %q is empty", sensor)
	}
	t := &Table{Sensor: sensor, styles: make(map[string]Style, len(styles))}
	for _, s := range styles {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.styles[s.Name]; dup {
			return nil, fmt.Errorf("duplicate style %s", s.Name)
		}
		t.styles[s.Name] = s.clone()
		t.order = append(t.order, s.Name)
	}
	return t, nil
}

// Style looks up a style by name. The result is a copy; changing it does not
// affect the table.
func (t *Table) Style(name string) (Style, error) {
	s, ok := t.styles[name]
	if !ok {
		return Style{}, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
	}
	return s.clone(), nil
}

// Names lists the styles in declaration order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Marshal encodes the table back to YAML.
func (t *Table) Marshal() ([]byte, error) {
	f := tableFile{Sensor: t.Sensor}
	for _, n := range t.order {
		f.Styles = append(f.Styles, t.styles[n])
	}
	return yaml.Marshal(f)
}
