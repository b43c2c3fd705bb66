package spectral

import (
	"math"
)

// SpectralFlatness computes spectral flatness (Wiener entropy): the ratio of
// the geometric to the arithmetic mean of a magnitude spectrum
type SpectralFlatness struct {
	minThreshold float64 // Minimum value to avoid log(0)
}

// NewSpectralFlatness creates a new spectral flatness calculator
func NewSpectralFlatness() *SpectralFlatness {
	return &SpectralFlatness{
		minThreshold: 1e-10,
	}
}

// Compute calculates spectral flatness for a single magnitude spectrum.
// Tonal content sits near 0, white noise approaches 1.
// Bins at or below the threshold are left out of the geometric mean.
func (sf *SpectralFlatness) Compute(magnitudeSpectrum []float64) float64 {
	if len(magnitudeSpectrum) == 0 {
		return 0.0
	}

	logSum := 0.0
	validCount := 0
	for _, magnitude := range magnitudeSpectrum {
		if magnitude > sf.minThreshold {
			logSum += math.Log(magnitude)
			validCount++
		}
	}
	if validCount == 0 {
		return 0.0
	}
	geometricMean := math.Exp(logSum / float64(validCount))

	arithmeticMean := 0.0
	for _, magnitude := range magnitudeSpectrum {
		arithmeticMean += magnitude
	}
	arithmeticMean /= float64(len(magnitudeSpectrum))

	if arithmeticMean <= sf.minThreshold {
		return 0.0
	}

	return math.Min(geometricMean/arithmeticMean, 1.0)
}

// ComputeBandLimited calculates spectral flatness over bins [startBin, endBin]
func (sf *SpectralFlatness) ComputeBandLimited(magnitudeSpectrum []float64, startBin, endBin int) float64 {
	if startBin < 0 || endBin >= len(magnitudeSpectrum) || startBin >= endBin {
		return 0.0
	}
	return sf.Compute(magnitudeSpectrum[startBin : endBin+1])
}

// IsNoise reports whether the flatness exceeds threshold
func (sf *SpectralFlatness) IsNoise(flatness, threshold float64) bool {
	return flatness > threshold
}
