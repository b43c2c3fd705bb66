package harmonic

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
)

// SpectralPeak represents a detected spectral peak
type SpectralPeak struct {
	Frequency float64 // Peak frequency in Hz (interpolated)
	Magnitude float64 // Peak magnitude (interpolated)
	BinIndex  int     // Original FFT bin index
	Harmonic  int     // Harmonic number of an accepted lower peak, 0 when fundamental
}

// SpectralPeaks finds and prunes peaks in a magnitude spectrum
type SpectralPeaks struct {
	minPeakHeight float64
	maxPeaks      int
}

// NewSpectralPeaks creates a new spectral peaks analyzer. A non-positive
// maxPeaks disables the limit.
func NewSpectralPeaks(minPeakHeight float64, maxPeaks int) *SpectralPeaks {
	return &SpectralPeaks{
		minPeakHeight: minPeakHeight,
		maxPeaks:      maxPeaks,
	}
}

// DetectPeaks returns the strict local maxima of magnitudeSpectrum within
// bins [startBin, endBin] that reach the minimum height. Locations are
// refined with log-parabolic interpolation. The result is sorted by
// magnitude (descending) and limited to maxPeaks.
func (sp *SpectralPeaks) DetectPeaks(magnitudeSpectrum []float64, binWidth float64, startBin, endBin int) []SpectralPeak {
	startBin = max(startBin, 1)
	endBin = min(endBin, len(magnitudeSpectrum)-2)

	var peaks []SpectralPeak
	for i := startBin; i <= endBin; i++ {
		y1, y2, y3 := magnitudeSpectrum[i-1], magnitudeSpectrum[i], magnitudeSpectrum[i+1]
		if y2 <= y1 || y2 <= y3 || y2 < sp.minPeakHeight {
			continue
		}

		offset := common.LogParabolicOffset(y1, y2, y3)
		magnitude := y2
		if y1 > 0 && y3 > 0 {
			// height of the fitted Gaussian
			_, logPeak := common.ParabolicPeak(math.Log(y1), math.Log(y2), math.Log(y3))
			magnitude = math.Exp(logPeak)
		}

		peaks = append(peaks, SpectralPeak{
			Frequency: (float64(i) + offset) * binWidth,
			Magnitude: magnitude,
			BinIndex:  i,
		})
	}

	SortByMagnitude(peaks)
	if sp.maxPeaks > 0 && len(peaks) > sp.maxPeaks {
		peaks = peaks[:sp.maxPeaks]
	}
	return peaks
}

// SortByMagnitude sorts peaks by magnitude, strongest first; ties go to the
// lower frequency so the order is deterministic
func SortByMagnitude(peaks []SpectralPeak) {
	sort.SliceStable(peaks, func(i, j int) bool {
		if peaks[i].Magnitude != peaks[j].Magnitude {
			return peaks[i].Magnitude > peaks[j].Magnitude
		}
		return peaks[i].Frequency < peaks[j].Frequency
	})
}

// SortByFrequency sorts peaks in ascending frequency
func SortByFrequency(peaks []SpectralPeak) {
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].Frequency < peaks[j].Frequency
	})
}

// HarmonicOf returns k in [2, maxHarmonic] such that f lies within tolCents
// of k*fundamental, or 0 if there is none.
func HarmonicOf(f, fundamental float64, maxHarmonic int, tolCents float64) int {
	if fundamental <= 0 || f <= fundamental {
		return 0
	}
	for k := 2; k <= maxHarmonic; k++ {
		if common.WithinCents(f, float64(k)*fundamental, tolCents) {
			return k
		}
	}
	return 0
}

// FilterHarmonics walks peaks in ascending frequency and drops every peak
// that is a harmonic of an already accepted lower one. The input order is not
// preserved; the result is sorted by frequency.
func FilterHarmonics(peaks []SpectralPeak, maxHarmonic int, tolCents float64) []SpectralPeak {
	sorted := make([]SpectralPeak, len(peaks))
	copy(sorted, peaks)
	SortByFrequency(sorted)

	accepted := make([]SpectralPeak, 0, len(sorted))
	for _, candidate := range sorted {
		isHarmonic := false
		for _, fundamental := range accepted {
			if HarmonicOf(candidate.Frequency, fundamental.Frequency, maxHarmonic, tolCents) > 0 {
				isHarmonic = true
				break
			}
		}
		if !isHarmonic {
			accepted = append(accepted, candidate)
		}
	}
	return accepted
}

// MergeClose folds peaks lying within proximityCents of a lower accepted
// peak into that peak: the lower frequency survives and keeps the larger
// magnitude. Input must be sorted by frequency.
func MergeClose(peaks []SpectralPeak, proximityCents float64) []SpectralPeak {
	merged := make([]SpectralPeak, 0, len(peaks))
	for _, p := range peaks {
		if n := len(merged); n > 0 && common.Cents(p.Frequency, merged[n-1].Frequency) < proximityCents {
			merged[n-1].Magnitude = math.Max(merged[n-1].Magnitude, p.Magnitude)
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// Frequencies extracts the peak frequencies in slice order
func Frequencies(peaks []SpectralPeak) []float64 {
	out := make([]float64, len(peaks))
	for i, p := range peaks {
		out[i] = p.Frequency
	}
	return out
}
