package common

import (
	"math"
)

// ParabolicOffset returns the abscissa of the vertex of the parabola through
// (-1, y1), (0, y2), (1, y3), relative to the middle point.
// The adjustment is limited to one sample either side.
func ParabolicOffset(y1, y2, y3 float64) float64 {
	denom := y1 - 2*y2 + y3
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}
	return Clamp(0.5*(y1-y3)/denom, -1, 1)
}

// ParabolicPeak returns the interpolated vertex offset and its height.
func ParabolicPeak(y1, y2, y3 float64) (offset, value float64) {
	offset = ParabolicOffset(y1, y2, y3)
	return offset, y2 - 0.25*(y1-y3)*offset
}

// LogParabolicOffset interpolates on log magnitudes (Gaussian peak model),
// which fits windowed spectral peaks more closely than a plain parabola.
// Falls back to ParabolicOffset when any magnitude is not positive.
func LogParabolicOffset(y1, y2, y3 float64) float64 {
	if y1 <= 0 || y2 <= 0 || y3 <= 0 {
		return ParabolicOffset(y1, y2, y3)
	}
	return ParabolicOffset(math.Log(y1), math.Log(y2), math.Log(y3))
}

// InterpolateAt refines an index into data with ParabolicOffset. Edge indices
// are returned unchanged.
func InterpolateAt(data []float64, idx int) float64 {
	if idx <= 0 || idx >= len(data)-1 {
		return float64(idx)
	}
	return float64(idx) + ParabolicOffset(data[idx-1], data[idx], data[idx+1])
}
