package config

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/marine-composite/internal/bathymetry"
	"github.com/banshee-data/marine-composite/internal/cloudmask"
	"github.com/banshee-data/marine-composite/internal/composite"
	"github.com/banshee-data/marine-composite/internal/grading"
	"github.com/banshee-data/marine-composite/internal/normalize"
	"github.com/banshee-data/marine-composite/internal/scene"
	"github.com/banshee-data/marine-composite/internal/sunglint"
)

//go:embed defaults/*.json defaults/*.yaml
var defaultFiles embed.FS

// ErrInvalidConfig is returned when calibration or style values are unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrUnknownStyle is returned when a requested style is not in the table.
var ErrUnknownStyle = grading.ErrUnknownStyle

// Cloud mask methods.
const (
	MethodProbability = "probability"
	MethodQABitmask   = "qa_bitmask"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Calibration is the versioned per-sensor calibration file. Pointer leaves
// left unset fall back to the Sentinel-2 constants through the Get* methods.
type Calibration struct {
	Version       *string               `json:"version,omitempty"`
	Sensor        *string               `json:"sensor,omitempty"`
	CloudMask     *CloudMaskSection     `json:"cloud_mask,omitempty"`
	Sunglint      *SunglintSection      `json:"sunglint,omitempty"`
	Normalisation *NormalisationSection `json:"normalisation,omitempty"`
	Depth         *DepthSection         `json:"depth,omitempty"`
	Composite     *CompositeSection     `json:"composite,omitempty"`
}

// PassSection is one cloud mask pass. Distances are metres.
type PassSection struct {
	ProbabilityThreshold float64 `json:"probability_threshold"`
	ErosionM             float64 `json:"erosion_m"`
	ProjectionM          float64 `json:"projection_m"`
	BufferM              float64 `json:"buffer_m"`
}

// CloudMaskSection selects and tunes the cloud mask estimator.
type CloudMaskSection struct {
	Method          *string       `json:"method,omitempty"` // "probability" or "qa_bitmask"
	Passes          []PassSection `json:"passes,omitempty"`
	ProbabilityBand *string       `json:"probability_band,omitempty"`
	DarkBand        *string       `json:"dark_band,omitempty"`
	DarkThreshold   *float64      `json:"dark_threshold,omitempty"`
	ProjectionScale *float64      `json:"projection_scale,omitempty"`

	QABand *string `json:"qa_band,omitempty"`
	QABits []uint  `json:"qa_bits,omitempty"`
}

// SecondarySection configures the secondary band correction.
type SecondarySection struct {
	Band         string  `json:"band"`
	SourceBand   string  `json:"source_band"`
	CapAbove     float64 `json:"cap_above"`
	Cap          float64 `json:"cap"`
	ReplaceAbove float64 `json:"replace_above"`
	Replacement  float64 `json:"replacement"`
}

// SunglintSection tunes the glint corrector. LandThreshold and Secondary are
// optional: nil disables them rather than falling back to a default.
type SunglintSection struct {
	Enabled       *bool              `json:"enabled,omitempty"`
	GlintBand     *string            `json:"glint_band,omitempty"`
	ShallowBand   *string            `json:"shallow_band,omitempty"`
	ShallowOffset *float64           `json:"shallow_offset,omitempty"`
	ShallowClamp  *float64           `json:"shallow_clamp,omitempty"`
	LandThreshold *float64           `json:"land_threshold,omitempty"`
	LandOffset    *float64           `json:"land_offset,omitempty"`
	Weights       map[string]float64 `json:"weights,omitempty"`
	Secondary     *SecondarySection  `json:"secondary,omitempty"`
}

// ExclusionSection removes bright pixels from the open water submask.
type ExclusionSection struct {
	Name      string  `json:"name"`
	Band      string  `json:"band"`
	Threshold float64 `json:"threshold"`
}

// NormalisationSection tunes the brightness normaliser.
type NormalisationSection struct {
	Enabled    *bool              `json:"enabled,omitempty"`
	Percentile *float64           `json:"percentile,omitempty"`
	StatsScale *float64           `json:"stats_scale,omitempty"`
	Exclusions []ExclusionSection `json:"exclusions,omitempty"`
	References map[string]float64 `json:"references,omitempty"`
}

// DepthSection holds the depth model constants. MaxDepth is optional: nil
// leaves every finite estimate valid.
type DepthSection struct {
	GreenBand      *string  `json:"green_band,omitempty"`
	BlueBand       *string  `json:"blue_band,omitempty"`
	Offset         *float64 `json:"offset,omitempty"`
	Scale          *float64 `json:"scale,omitempty"`
	Bias           *float64 `json:"bias,omitempty"`
	LandBand       *string  `json:"land_band,omitempty"`
	LandThreshold  *float64 `json:"land_threshold,omitempty"`
	LandDepth      *float64 `json:"land_depth,omitempty"`
	MaxDepth       *float64 `json:"max_depth,omitempty"`
	ErodeRadiusM   *float64 `json:"erode_radius_m,omitempty"`
	DilateRadiusM  *float64 `json:"dilate_radius_m,omitempty"`
	MinLogArgument *float64 `json:"min_log_argument,omitempty"`
}

// CompositeSection tunes the temporal reducer.
type CompositeSection struct {
	Percentile *float64 `json:"percentile,omitempty"`
	Workers    *int     `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyCalibration returns a Calibration with all fields set to nil.
func EmptyCalibration() *Calibration {
	return &Calibration{}
}

// DefaultCalibration returns a fresh copy of the embedded calibration for
// sensor.
func DefaultCalibration(sensor scene.Sensor) (*Calibration, error) {
	if _, err := scene.ProfileFor(sensor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	data, err := defaultFiles.ReadFile("defaults/calibration." + string(sensor) + ".json")
	if err != nil {
		return nil, fmt.Errorf("no default calibration for %s: %w", sensor, err)
	}
	cfg := EmptyCalibration()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse default calibration: %w", err)
	}
	return cfg, nil
}

// MustDefaultCalibration is DefaultCalibration for test setup. It panics on
// error.
func MustDefaultCalibration(sensor scene.Sensor) *Calibration {
	cfg, err := DefaultCalibration(sensor)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadCalibration loads a calibration file. The file must name its sensor;
// fields it omits keep the embedded defaults for that sensor, so partial
// files are safe.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := readConfigFile(path, ".json")
	if err != nil {
		return nil, err
	}

	var head struct {
		Sensor string `json:"sensor"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse calibration JSON: %w", err)
	}
	if head.Sensor == "" {
		return nil, fmt.Errorf("%w: calibration %s does not name a sensor", ErrInvalidConfig, path)
	}
	cfg, err := DefaultCalibration(scene.Sensor(head.Sensor))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse calibration JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string, exts ...string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	known := false
	for _, e := range exts {
		known = known || ext == e
	}
	if !known {
		return nil, fmt.Errorf("config file must have %v extension, got %q", exts, ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Validate checks the calibration can build every stage configuration.
func (c *Calibration) Validate() error {
	if c.GetVersion() == "" {
		return fmt.Errorf("%w: calibration version must be set", ErrInvalidConfig)
	}
	if _, err := scene.ProfileFor(c.GetSensor()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.CloudMaskEstimator(); err != nil {
		return fmt.Errorf("%w: cloud_mask: %v", ErrInvalidConfig, err)
	}
	if sg, ok := c.SunglintConfig(); ok {
		if err := sg.Validate(); err != nil {
			return fmt.Errorf("%w: sunglint: %v", ErrInvalidConfig, err)
		}
	}
	if n, ok := c.NormalizeConfig(); ok {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("%w: normalisation: %v", ErrInvalidConfig, err)
		}
	}
	if err := c.DepthModel().Validate(); err != nil {
		return fmt.Errorf("%w: depth: %v", ErrInvalidConfig, err)
	}
	if err := c.CompositeConfig().Validate(); err != nil {
		return fmt.Errorf("%w: composite: %v", ErrInvalidConfig, err)
	}
	return nil
}

// GetVersion returns the calibration version label.
func (c *Calibration) GetVersion() string {
	if c.Version == nil {
		return ""
	}
	return *c.Version
}

// GetSensor returns the sensor the calibration applies to.
func (c *Calibration) GetSensor() scene.Sensor {
	if c.Sensor == nil {
		return scene.Sentinel2 // default
	}
	return scene.Sensor(*c.Sensor)
}

// GetMethod returns the cloud mask method.
func (s *CloudMaskSection) GetMethod() string {
	if s == nil || s.Method == nil {
		return MethodProbability // default
	}
	return *s.Method
}

// CloudMaskEstimator builds the configured estimator.
func (c *Calibration) CloudMaskEstimator() (cloudmask.Estimator, error) {
	s := c.CloudMask
	switch m := s.GetMethod(); m {
	case MethodProbability:
		e, err := cloudmask.NewProbabilityEstimator(c.CloudMaskConfig())
		if err != nil {
			return nil, err
		}
		return e, nil
	case MethodQABitmask:
		e := cloudmask.DefaultQABitmask()
		if s.QABand != nil {
			e.Band = *s.QABand
		}
		if len(s.QABits) > 0 {
			e.Bits = append([]uint(nil), s.QABits...)
		}
		for _, b := range e.Bits {
			if b > 63 {
				return nil, fmt.Errorf("qa bit %d out of range", b)
			}
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown method %q", m)
	}
}

// CloudMaskConfig returns the probability estimator configuration.
func (c *Calibration) CloudMaskConfig() cloudmask.Config {
	cfg := cloudmask.DefaultConfig()
	s := c.CloudMask
	if s == nil {
		return cfg
	}
	if len(s.Passes) > 0 {
		cfg.Passes = make([]cloudmask.Pass, len(s.Passes))
		for i, p := range s.Passes {
			cfg.Passes[i] = cloudmask.Pass(p)
		}
	}
	if s.ProbabilityBand != nil {
		cfg.ProbabilityBand = *s.ProbabilityBand
	}
	if s.DarkBand != nil {
		cfg.DarkBand = *s.DarkBand
	}
	if s.DarkThreshold != nil {
		cfg.DarkThreshold = *s.DarkThreshold
	}
	if s.ProjectionScale != nil {
		cfg.ProjectionScale = *s.ProjectionScale
	}
	return cfg
}

// GetEnabled returns whether sunglint correction runs.
func (s *SunglintSection) GetEnabled() bool {
	if s == nil || s.Enabled == nil {
		return true // default
	}
	return *s.Enabled
}

// SunglintConfig returns the corrector configuration and whether the
// correction is enabled.
func (c *Calibration) SunglintConfig() (sunglint.Config, bool) {
	cfg := sunglint.DefaultConfig()
	s := c.Sunglint
	if s == nil {
		return cfg, true
	}
	if s.GlintBand != nil {
		cfg.GlintBand = *s.GlintBand
	}
	if s.ShallowBand != nil {
		cfg.ShallowBand = *s.ShallowBand
	}
	if s.ShallowOffset != nil {
		cfg.ShallowOffset = *s.ShallowOffset
	}
	if s.ShallowClamp != nil {
		cfg.ShallowClamp = *s.ShallowClamp
	}
	cfg.LandThreshold = s.LandThreshold
	if s.LandOffset != nil {
		cfg.LandOffset = *s.LandOffset
	}
	if len(s.Weights) > 0 {
		cfg.Weights = make(map[string]float64, len(s.Weights))
		for k, v := range s.Weights {
			cfg.Weights[k] = v
		}
	}
	cfg.Secondary = nil
	if sec := s.Secondary; sec != nil {
		cfg.Secondary = &sunglint.Secondary{
			Band: sec.Band, SourceBand: sec.SourceBand,
			CapAbove: sec.CapAbove, Cap: sec.Cap,
			ReplaceAbove: sec.ReplaceAbove, Replacement: sec.Replacement,
		}
	}
	return cfg, s.GetEnabled()
}

// GetEnabled returns whether brightness normalisation runs.
func (s *NormalisationSection) GetEnabled() bool {
	if s == nil || s.Enabled == nil {
		return true // default
	}
	return *s.Enabled
}

// NormalizeConfig returns the normaliser configuration and whether
// normalisation is enabled for this sensor.
func (c *Calibration) NormalizeConfig() (normalize.Config, bool) {
	cfg := normalize.DefaultConfig()
	s := c.Normalisation
	if s == nil {
		return cfg, true
	}
	if s.Percentile != nil {
		cfg.Percentile = *s.Percentile
	}
	if s.StatsScale != nil {
		cfg.StatsScale = *s.StatsScale
	}
	if len(s.Exclusions) > 0 {
		cfg.Exclusions = make([]normalize.Exclusion, len(s.Exclusions))
		for i, e := range s.Exclusions {
			cfg.Exclusions[i] = normalize.Exclusion(e)
		}
	}
	if len(s.References) > 0 {
		cfg.References = make(map[string]float64, len(s.References))
		for k, v := range s.References {
			cfg.References[k] = v
		}
	}
	return cfg, s.GetEnabled()
}

// DepthModel returns the depth model, labelled with the calibration version.
func (c *Calibration) DepthModel() bathymetry.Model {
	m := bathymetry.DefaultModel()
	m.Version = c.GetVersion()
	s := c.Depth
	if s == nil {
		return m
	}
	setString(&m.GreenBand, s.GreenBand)
	setString(&m.BlueBand, s.BlueBand)
	setString(&m.LandBand, s.LandBand)
	setFloat(&m.Offset, s.Offset)
	setFloat(&m.Scale, s.Scale)
	setFloat(&m.Bias, s.Bias)
	setFloat(&m.LandThreshold, s.LandThreshold)
	setFloat(&m.LandDepth, s.LandDepth)
	setFloat(&m.ErodeRadiusM, s.ErodeRadiusM)
	setFloat(&m.DilateRadiusM, s.DilateRadiusM)
	setFloat(&m.MinLogArgument, s.MinLogArgument)
	m.MaxDepth = nil
	if s.MaxDepth != nil {
		m.MaxDepth = ptrFloat64(*s.MaxDepth)
	}
	return m
}

// CompositeConfig returns the compositor configuration.
func (c *Calibration) CompositeConfig() composite.Config {
	cfg := composite.DefaultConfig()
	if s := c.Composite; s != nil {
		setFloat(&cfg.Percentile, s.Percentile)
		if s.Workers != nil {
			cfg.Workers = *s.Workers
		}
	}
	return cfg
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
