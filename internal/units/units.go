// Package units provides shared constants and conversions for reflectance
// and ground distances.
package units

import "math"

// Reflectance constants. Scene bands are stored as fixed-point integers where
// ReflectanceScale corresponds to a reflectance of 1.0.
const (
	ReflectanceScale = 10000.0
	NoData           = 0
)

// ToReflectance converts a fixed-point sample to reflectance (0-1 nominal).
func ToReflectance(dn float64) float64 {
	return dn / ReflectanceScale
}

// MetresToPixels converts a ground distance to a (fractional) pixel count
// at the given ground sample distance.
func MetresToPixels(metres, gsd float64) float64 {
	if gsd <= 0 {
		return 0
	}
	return metres / gsd
}

// WorkingScale picks a processing resolution for a kernel of the given
// ground radius so that the kernel spans roughly approxPixels pixels.
// The result is rounded to a multiple of step and never finer than floor.
// A radius of zero returns floor.
func WorkingScale(radiusM, approxPixels, step, floor float64) float64 {
	if step <= 0 {
		step = 1
	}
	if radiusM <= 0 || approxPixels <= 0 {
		return math.Max(floor, step)
	}
	scale := math.Round(radiusM/approxPixels/step) * step
	return math.Max(scale, math.Max(floor, step))
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
