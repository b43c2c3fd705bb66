package common

import (
	"math"
	"strconv"
)

// Cents returns the interval from ref to f in cents (positive when f is higher).
func Cents(f, ref float64) float64 {
	return 1200 * math.Log2(f/ref)
}

// AddCents shifts frequency by the given number of cents.
func AddCents(frequency, cents float64) float64 {
	return frequency * math.Pow(2, cents/1200)
}

// WithinCents reports whether f lies within tol cents of target.
func WithinCents(f, target, tol float64) bool {
	if f <= 0 || target <= 0 {
		return false
	}
	return math.Abs(Cents(f, target)) <= tol
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the nearest equal-tempered note (A4 = 440 Hz) and the
// deviation from it in cents, e.g. ("A4", -3.2).
func NoteName(frequency float64) (string, float64) {
	if frequency <= 0 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return "", 0
	}
	midi := 69 + 12*math.Log2(frequency/440)
	nearest := math.Round(midi)
	n := int(nearest)
	octave := int(math.Floor(nearest/12)) - 1
	idx := ((n % 12) + 12) % 12
	return noteNames[idx] + strconv.Itoa(octave), (midi - nearest) * 100
}
