package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"github.com/RyanBlaney/sonido-pitch/algorithms/spectral"
)

// FFTRequiredSamples returns the minimum frame length DetectFFT accepts: one
// period of the lowest frequency
func FFTRequiredSamples(sampleRate int, cfg DetectorConfig) int {
	return int(math.Ceil(float64(sampleRate) / cfg.MinFrequency))
}

// DetectFFT picks the strongest spectral peak within the frequency bounds.
//
// When the bin at half the peak frequency holds at least SubharmonicRatio of
// the peak's magnitude the lower one is reported instead, which corrects
// octave errors on signals with a weak fundamental. Confidence measures how
// far the peak stands above the surrounding spectrum: 1 - floor/peak.
func DetectFFT(frame Frame, cfg DetectorConfig) (PitchDetectionResult, error) {
	if err := validateFrame(frame, cfg); err != nil {
		return noPitch(), err
	}
	if need := FFTRequiredSamples(frame.SampleRate, cfg); len(frame.Samples) < need {
		return noPitch(), errInsufficient("FFT", need, frame, cfg)
	}
	if isSilent(frame, cfg) {
		return noPitch(), nil
	}

	size := spectral.FFTSize(len(frame.Samples), cfg.FFT.MinSize, 1)
	spec := spectral.MagnitudeSpectrum(frame.Samples, frame.SampleRate, size, cfg.FFT.Window)
	mags := spec.Magnitudes

	lo, hi := spec.BinRange(cfg.MinFrequency, cfg.MaxFrequency)
	if lo > hi {
		return noPitch(), nil
	}

	peak := lo + common.MaxIndex(mags[lo:hi+1])
	if mags[peak] <= 0 {
		return noPitch(), nil
	}
	peak = correctSubharmonic(mags, peak, lo, cfg.FFT.SubharmonicRatio)

	offset := common.LogParabolicOffset(mags[peak-1], mags[peak], mags[peak+1])
	return PitchDetectionResult{
		Pitch:      spec.Frequency(float64(peak) + offset),
		Confidence: peakProminence(mags, peak, cfg.FFT.ProminenceRadius, cfg.FFT.GuardBins),
	}, nil
}

// correctSubharmonic returns the local maximum near peak/2 when it is strong
// enough and not below loBin; otherwise peak
func correctSubharmonic(mags []float64, peak, loBin int, ratio float64) int {
	if ratio <= 0 {
		return peak
	}

	half := int(math.Round(float64(peak) / 2))
	best := -1
	for b := half - 1; b <= half+1; b++ {
		if b < loBin || b < 1 || b >= len(mags)-1 {
			continue
		}
		if mags[b] >= mags[b-1] && mags[b] >= mags[b+1] && (best < 0 || mags[b] > mags[best]) {
			best = b
		}
	}
	if best >= 0 && mags[best] >= ratio*mags[peak] {
		return best
	}
	return peak
}

// peakProminence compares the peak with the mean magnitude of bins within
// radius of it, leaving out guard bins either side (the peak's own main lobe)
func peakProminence(mags []float64, peak, radius, guard int) float64 {
	sum := 0.0
	count := 0
	for b := peak - radius; b <= peak+radius; b++ {
		if b < 0 || b >= len(mags) || abs(b-peak) <= guard {
			continue
		}
		sum += mags[b]
		count++
	}
	if count == 0 || mags[peak] <= 0 {
		return 0
	}
	return common.Clamp(1-(sum/float64(count))/mags[peak], 0, 1)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
