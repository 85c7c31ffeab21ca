package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/marine-composite/internal/cloudmask"
	"github.com/banshee-data/marine-composite/internal/scene"
)

func TestDefaultCalibrationSentinel2(t *testing.T) {
	cfg, err := DefaultCalibration(scene.Sentinel2)
	if err != nil {
		t.Fatalf("DefaultCalibration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("embedded sentinel2 calibration invalid: %v", err)
	}
	if cfg.GetVersion() != "s2-round2" {
		t.Errorf("GetVersion() = %q, want s2-round2", cfg.GetVersion())
	}

	est, err := cfg.CloudMaskEstimator()
	if err != nil {
		t.Fatalf("CloudMaskEstimator: %v", err)
	}
	if _, ok := est.(*cloudmask.ProbabilityEstimator); !ok {
		t.Errorf("Expected probability estimator, got %T", est)
	}
	cm := cfg.CloudMaskConfig()
	if len(cm.Passes) != 2 || cm.Passes[1].ProjectionM != 1500 {
		t.Errorf("Unexpected passes %+v", cm.Passes)
	}

	sg, enabled := cfg.SunglintConfig()
	if !enabled {
		t.Error("Expected sunglint enabled")
	}
	if sg.LandThreshold == nil || *sg.LandThreshold != 600 {
		t.Errorf("Expected land threshold 600, got %v", sg.LandThreshold)
	}
	if sg.Secondary == nil || sg.Secondary.Replacement != 600 {
		t.Errorf("Expected secondary replacement 600, got %+v", sg.Secondary)
	}
	if sg.Weights["B3"] != 0.9 {
		t.Errorf("Expected B3 weight 0.9, got %v", sg.Weights["B3"])
	}

	n, enabled := cfg.NormalizeConfig()
	if !enabled {
		t.Error("Expected normalisation enabled")
	}
	if n.References["B1"] != 1174 || len(n.Exclusions) != 3 {
		t.Errorf("Unexpected normalisation config %+v", n)
	}

	m := cfg.DepthModel()
	if m.Offset != 150 || m.Scale != 145.1 || m.Bias != -147.6 {
		t.Errorf("Unexpected depth constants %+v", m)
	}
	if m.MaxDepth == nil || *m.MaxDepth != -12 {
		t.Errorf("Expected max depth -12, got %v", m.MaxDepth)
	}
	if m.Version != "s2-round2" {
		t.Errorf("Expected model version from calibration, got %q", m.Version)
	}

	if cfg.CompositeConfig().Percentile != 0.5 {
		t.Errorf("Expected median composite, got %v", cfg.CompositeConfig().Percentile)
	}
}

func TestDefaultCalibrationLandsat8(t *testing.T) {
	cfg := MustDefaultCalibration(scene.Landsat8)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("embedded landsat8 calibration invalid: %v", err)
	}

	est, err := cfg.CloudMaskEstimator()
	if err != nil {
		t.Fatalf("CloudMaskEstimator: %v", err)
	}
	qa, ok := est.(cloudmask.QABitmaskEstimator)
	if !ok {
		t.Fatalf("Expected QA estimator, got %T", est)
	}
	if qa.Band != "QA_PIXEL" || len(qa.Bits) != 4 {
		t.Errorf("Unexpected QA estimator %+v", qa)
	}

	sg, _ := cfg.SunglintConfig()
	if sg.GlintBand != "B6" || sg.ShallowBand != "" {
		t.Errorf("Expected plain B6 glint, got %q/%q", sg.GlintBand, sg.ShallowBand)
	}
	if sg.LandThreshold != nil || sg.Secondary != nil {
		t.Error("Expected no land or secondary handling for landsat8")
	}

	if _, enabled := cfg.NormalizeConfig(); enabled {
		t.Error("Expected normalisation disabled for landsat8")
	}

	m := cfg.DepthModel()
	if m.Offset != -250 || m.Scale != 173.01 || m.Bias != -163.39 {
		t.Errorf("Unexpected depth constants %+v", m)
	}
	if m.LandBand != "" || m.MaxDepth != nil {
		t.Errorf("Expected no land pinning or depth mask, got %q %v", m.LandBand, m.MaxDepth)
	}
}

func TestDefaultCalibrationUnknownSensor(t *testing.T) {
	_, err := DefaultCalibration("spot7")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadCalibrationPartial(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "calibration.json")
	partialJSON := `{
  "version": "s2-round3",
  "sensor": "sentinel2",
  "depth": {"scale": 150, "max_depth": null},
  "sunglint": {"enabled": false}
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadCalibration(configPath)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	m := cfg.DepthModel()
	if m.Scale != 150 {
		t.Errorf("Expected overridden scale 150, got %v", m.Scale)
	}
	if m.Offset != 150 || m.Bias != -147.6 {
		t.Errorf("Expected unspecified depth constants to keep defaults, got %+v", m)
	}
	if m.MaxDepth != nil {
		t.Errorf("Expected null max_depth to disable the mask, got %v", *m.MaxDepth)
	}
	if m.Version != "s2-round3" {
		t.Errorf("Expected version s2-round3, got %q", m.Version)
	}
	sg, enabled := cfg.SunglintConfig()
	if enabled {
		t.Error("Expected sunglint disabled")
	}
	if sg.GlintBand != "B8" {
		t.Errorf("Expected default glint band, got %q", sg.GlintBand)
	}
	if len(cfg.CloudMaskConfig().Passes) != 2 {
		t.Error("Expected cloud mask passes from defaults")
	}
}

func TestLoadCalibrationRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"no sensor", `{"version": "x"}`},
		{"unknown sensor", `{"version": "x", "sensor": "spot7"}`},
		{"bad json", `{"version": `},
		{"wrong type", `{"sensor": "sentinel2", "composite": {"percentile": "median"}}`},
		{"empty version", `{"sensor": "sentinel2", "version": ""}`},
		{"percentile", `{"sensor": "sentinel2", "composite": {"percentile": 1.5}}`},
		{"log floor", `{"sensor": "sentinel2", "depth": {"min_log_argument": 1}}`},
		{"method", `{"sensor": "sentinel2", "cloud_mask": {"method": "neural"}}`},
		{"probability", `{"sensor": "sentinel2", "cloud_mask": {"passes": [{"probability_threshold": 120}]}}`},
		{"qa bit", `{"sensor": "landsat8", "cloud_mask": {"qa_bits": [64]}}`},
		{"weights", `{"sensor": "sentinel2", "sunglint": {"weights": {"B2": -1}}}`},
		{"references", `{"sensor": "sentinel2", "normalisation": {"percentile": -0.1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "calibration.json")
			if err := os.WriteFile(configPath, []byte(tt.json), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			if _, err := LoadCalibration(configPath); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadCalibrationValidationIsInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "calibration.json")
	if err := os.WriteFile(configPath, []byte(`{"sensor": "sentinel2", "composite": {"percentile": 2}}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	_, err := LoadCalibration(configPath)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadCalibrationMissing(t *testing.T) {
	if _, err := LoadCalibration("/nonexistent/path/to/calibration.json"); err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadCalibrationRejectsNonJSON(t *testing.T) {
	if _, err := LoadCalibration("/some/path/calibration.yaml"); err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadCalibrationRejectsLargeFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "large.json")
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}
	if _, err := LoadCalibration(configPath); err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyCalibration()
	if cfg.GetSensor() != scene.Sentinel2 {
		t.Errorf("Expected default sensor sentinel2, got %q", cfg.GetSensor())
	}
	if cfg.CloudMask.GetMethod() != MethodProbability {
		t.Errorf("Expected default method probability, got %q", cfg.CloudMask.GetMethod())
	}
	if !cfg.Sunglint.GetEnabled() || !cfg.Normalisation.GetEnabled() {
		t.Error("Expected corrections enabled by default")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected an unversioned calibration to be rejected")
	}

	cfg.Version = ptrString("adhoc")
	cfg.Normalisation = &NormalisationSection{Enabled: ptrBool(false)}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
	if _, enabled := cfg.NormalizeConfig(); enabled {
		t.Error("Expected normalisation disabled")
	}
	if cfg.DepthModel().MaxDepth == nil {
		t.Error("Expected default depth mask when the depth section is absent")
	}
}
