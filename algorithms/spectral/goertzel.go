package spectral

import (
	"fmt"
	"math"
)

// Goertzel evaluates a single DFT term with a second-order recurrence.
//
// The analyzer is stateful: Power reflects every sample processed since the
// last Reset. The target frequency need not fall on an integer bin; the
// returned power then equals |X(f)|^2 of the DTFT sampled at f over the
// processed block.
type Goertzel struct {
	frequency  float64
	sampleRate float64
	coeff      float64
	s0, s1     float64
}

// NewGoertzel creates a new Goertzel analyzer for the target frequency.
// frequency must be between 0 and sampleRate/2.
func NewGoertzel(frequency, sampleRate float64) (*Goertzel, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("goertzel: sample rate must be > 0: %v", sampleRate)
	}
	if frequency < 0 || frequency > sampleRate/2 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return nil, fmt.Errorf("goertzel: frequency must be between 0 and sampleRate/2: %v", frequency)
	}

	return &Goertzel{
		frequency:  frequency,
		sampleRate: sampleRate,
		coeff:      2 * math.Cos(2*math.Pi*frequency/sampleRate),
	}, nil
}

// Reset clears the internal state
func (g *Goertzel) Reset() {
	g.s0 = 0
	g.s1 = 0
}

// ProcessBlock updates the internal state with a block of samples
func (g *Goertzel) ProcessBlock(input []float64) {
	s0, s1 := g.s0, g.s1
	coeff := g.coeff
	for _, x := range input {
		s := x + coeff*s0 - s1
		s1 = s0
		s0 = s
	}
	g.s0, g.s1 = s0, s1
}

// Power returns the squared magnitude of the frequency component. Rounding
// can push the closed form slightly below zero; such values are reported as 0.
func (g *Goertzel) Power() float64 {
	p := g.s0*g.s0 + g.s1*g.s1 - g.coeff*g.s0*g.s1
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return p
}

// Frequency returns the target frequency
func (g *Goertzel) Frequency() float64 { return g.frequency }

// EnergyAt returns the Goertzel power of frame at targetHz. It is never
// negative and is exactly 0 for an all-zero frame.
func EnergyAt(frame []float64, sampleRate int, targetHz float64) (float64, error) {
	g, err := NewGoertzel(targetHz, float64(sampleRate))
	if err != nil {
		return 0, err
	}
	g.ProcessBlock(frame)
	return g.Power(), nil
}

// BandPeakEnergy sweeps Goertzel probes spaced spacingHz apart over
// [lowHz, highHz] (both ends included) and returns the largest power found.
// The band is clipped to Nyquist.
func BandPeakEnergy(frame []float64, sampleRate int, lowHz, highHz, spacingHz float64) (float64, error) {
	nyquist := float64(sampleRate) / 2
	if sampleRate <= 0 {
		return 0, fmt.Errorf("goertzel: sample rate must be > 0: %d", sampleRate)
	}
	if spacingHz <= 0 || math.IsNaN(spacingHz) {
		return 0, fmt.Errorf("goertzel: probe spacing must be > 0: %v", spacingHz)
	}
	highHz = math.Min(highHz, nyquist)
	if lowHz < 0 || lowHz > highHz {
		return 0, fmt.Errorf("goertzel: invalid band [%v, %v]", lowHz, highHz)
	}

	peak := 0.0
	g := &Goertzel{sampleRate: float64(sampleRate)}
	for f := lowHz; ; f += spacingHz {
		if f > highHz {
			f = highHz
		}
		g.frequency = f
		g.coeff = 2 * math.Cos(2*math.Pi*f/g.sampleRate)
		g.Reset()
		g.ProcessBlock(frame)
		peak = math.Max(peak, g.Power())
		if f >= highHz {
			break
		}
	}
	return peak, nil
}
