package config

import (
	"fmt"

	"github.com/banshee-data/marine-composite/internal/grading"
	"github.com/banshee-data/marine-composite/internal/scene"
)

// DefaultStyles returns the embedded style table for sensor.
func DefaultStyles(sensor scene.Sensor) (*grading.Table, error) {
	if _, err := scene.ProfileFor(sensor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	data, err := defaultFiles.ReadFile("defaults/styles." + string(sensor) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no default styles for %s: %w", sensor, err)
	}
	t, err := grading.ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return t, nil
}

// LoadStyles loads and validates a style table file. Every style is checked
// here so a bad table fails before any raster work.
func LoadStyles(path string) (*grading.Table, error) {
	data, err := readConfigFile(path, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}
	t, err := grading.ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if _, err := scene.ProfileFor(scene.Sensor(t.Sensor)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return t, nil
}

// Load returns the calibration and style table for sensor, reading either
// from the given paths or, when a path is empty, from the embedded defaults.
// The two must agree on the sensor.
func Load(sensor scene.Sensor, calibrationPath, stylesPath string) (*Calibration, *grading.Table, error) {
	var (
		cal *Calibration
		err error
	)
	if calibrationPath != "" {
		cal, err = LoadCalibration(calibrationPath)
	} else {
		cal, err = DefaultCalibration(sensor)
	}
	if err != nil {
		return nil, nil, err
	}
	if cal.GetSensor() != sensor {
		return nil, nil, fmt.Errorf("%w: calibration is for %s, scenes are %s", ErrInvalidConfig, cal.GetSensor(), sensor)
	}

	var styles *grading.Table
	if stylesPath != "" {
		styles, err = LoadStyles(stylesPath)
	} else {
		styles, err = DefaultStyles(sensor)
	}
	if err != nil {
		return nil, nil, err
	}
	if scene.Sensor(styles.Sensor) != sensor {
		return nil, nil, fmt.Errorf("%w: style table is for %s, scenes are %s", ErrInvalidConfig, styles.Sensor, sensor)
	}
	return cal, styles, nil
}
