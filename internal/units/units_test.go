package units

import (
	"math"
	"testing"
)

func TestToReflectance(t *testing.T) {
	tests := []struct {
		name string
		dn   float64
		want float64
	}{
		{"zero", 0, 0},
		{"full scale", 10000, 1},
		{"deep water blue", 753, 0.0753},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToReflectance(tt.dn)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("ToReflectance(%f) = %f, want %f", tt.dn, got, tt.want)
			}
		})
	}
}

func TestMetresToPixels(t *testing.T) {
	if got := MetresToPixels(300, 10); got != 30 {
		t.Errorf("MetresToPixels(300, 10) = %f, want 30", got)
	}
	if got := MetresToPixels(300, 0); got != 0 {
		t.Errorf("MetresToPixels with zero gsd = %f, want 0", got)
	}
}

func TestWorkingScale(t *testing.T) {
	tests := []struct {
		name   string
		radius float64
		want   float64
	}{
		// 300/4/10 = 7.5 rounds half away from zero to 8.
		{"large erosion", 300, 80},
		{"buffer 150 m", 150, 40},
		{"small buffer clamps to floor", 40, 20},
		{"zero radius uses floor", 0, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WorkingScale(tt.radius, 4, 10, 20); got != tt.want {
				t.Errorf("WorkingScale(%f) = %f, want %f", tt.radius, got, tt.want)
			}
		})
	}
}

func TestAngles(t *testing.T) {
	if got := RadToDeg(DegToRad(90)); math.Abs(got-90) > 1e-12 {
		t.Errorf("round trip 90 deg = %f", got)
	}
}
