// Package filters holds streaming filters applied to audio before framing.
package filters

import "math"

// DCBlocker is a one-pole DC blocking high-pass filter
//
//	y[n] = x[n] - x[n-1] + R·y[n-1]
//
// It carries state between calls, so one instance must see one continuous
// stream. Not safe for concurrent use.
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/DC_Blocker.html
type DCBlocker struct {
	pole float64
	x1   float64
	y1   float64
}

// NewDCBlocker creates a blocker with the given -3 dB cutoff. The pole is
// R = 1 - 2π·fc/fs, clamped to (0, 1).
func NewDCBlocker(sampleRate int, cutoffHz float64) *DCBlocker {
	pole := 0.995
	if sampleRate > 0 && cutoffHz > 0 {
		pole = min(max(1-2*math.Pi*cutoffHz/float64(sampleRate), 0.001), 0.999)
	}
	return &DCBlocker{pole: pole}
}

// Pole returns R
func (dc *DCBlocker) Pole() float64 {
	return dc.pole
}

// Cutoff returns the approximate -3 dB frequency at sampleRate
func (dc *DCBlocker) Cutoff(sampleRate int) float64 {
	return (1 - dc.pole) * float64(sampleRate) / (2 * math.Pi)
}

// ProcessInPlace filters buf, overwriting it
func (dc *DCBlocker) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		y := x - dc.x1 + dc.pole*dc.y1
		dc.x1 = x
		dc.y1 = y
		buf[i] = y
	}
}

// Reset clears the filter state before a discontinuous segment
func (dc *DCBlocker) Reset() {
	dc.x1 = 0
	dc.y1 = 0
}
