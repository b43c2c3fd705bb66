package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"github.com/RyanBlaney/sonido-pitch/algorithms/windowing"
	"github.com/mjibson/go-dsp/fft"
)

// Spectrum is a one-sided magnitude spectrum (bins 0..Size/2)
type Spectrum struct {
	Magnitudes []float64
	Size       int // FFT length after zero padding
	SampleRate int
}

// BinWidth returns the frequency spacing of adjacent bins in Hz
func (s Spectrum) BinWidth() float64 {
	return float64(s.SampleRate) / float64(s.Size)
}

// Frequency converts a (possibly fractional) bin index to Hz
func (s Spectrum) Frequency(bin float64) float64 {
	return bin * s.BinWidth()
}

// BinRange returns the inclusive bin range covering [lowHz, highHz],
// trimmed so that every bin in it has two neighbours.
func (s Spectrum) BinRange(lowHz, highHz float64) (int, int) {
	lo := int(math.Ceil(lowHz / s.BinWidth()))
	hi := int(math.Floor(highHz / s.BinWidth()))
	lo = max(lo, 1)
	hi = min(hi, len(s.Magnitudes)-2)
	return lo, hi
}

// FFTSize returns the transform length for n samples: the next power of two
// at or above max(n, minSize), times padFactor.
func FFTSize(n, minSize, padFactor int) int {
	padFactor = max(padFactor, 1)
	return common.NextPowerOfTwo(max(n, minSize)) * common.NextPowerOfTwo(padFactor)
}

// MagnitudeSpectrum windows samples, zero-pads them to size and returns the
// one-sided magnitude spectrum. samples is not modified.
//
// size must be a power of two no smaller than len(samples); anything else is
// a programming error and panics.
func MagnitudeSpectrum(samples []float64, sampleRate, size int, win windowing.Type) Spectrum {
	if size < len(samples) || !common.IsPowerOfTwo(size) {
		panic(fmt.Sprintf("spectral: invalid FFT size %d for %d samples", size, len(samples)))
	}

	padded := make([]float64, size)
	copy(padded, samples)
	windowing.ApplyInPlace(win, padded[:len(samples)])

	coeffs := fft.FFTReal(padded)
	mags := make([]float64, size/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(coeffs[i])
	}

	return Spectrum{
		Magnitudes: mags,
		Size:       size,
		SampleRate: sampleRate,
	}
}
