// Package units converts raw sensor distances (centimeters) into rounded
// distance and depth values in metric or imperial units.
package units

import (
	"math"

	"github.com/chewxy/math32"
)

// CMToInch is the centimeter to inch factor used by the conversions.
const CMToInch = 0.394

// Round rounds v to precision decimal digits, half away from zero.
// A negative precision is treated as zero.
func Round(v float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// DistanceMetric returns the distance from the sensor to an object in cm.
func DistanceMetric(raw float64, precision int) float64 {
	return Round(raw, precision)
}

// DistanceImperial returns the distance from the sensor to an object in inches.
func DistanceImperial(raw float64, precision int) float64 {
	return Round(raw*CMToInch, precision)
}

// DepthMetric returns the depth of a liquid in cm. holeDepth is the distance,
// in cm, from the sensor to the bottom of the hole.
func DepthMetric(raw, holeDepth float64, precision int) float64 {
	return Round(holeDepth-raw, precision)
}

// DepthImperial returns the depth of a liquid in inches. holeDepth is the
// distance, in inches, from the sensor to the bottom of the hole.
func DepthImperial(raw, holeDepth float64, precision int) float64 {
	return Round(holeDepth-raw*CMToInch, precision)
}

// Round32 is Round for float32 values, used for display coordinates.
func Round32(v float32, precision int) float32 {
	if precision < 0 {
		precision = 0
	}
	p := math32.Pow(10, float32(precision))
	return math32.Round(v*p) / p
}
