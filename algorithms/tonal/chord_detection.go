package tonal

import (
	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"github.com/RyanBlaney/sonido-pitch/algorithms/harmonic"
	"github.com/RyanBlaney/sonido-pitch/algorithms/spectral"
	"gonum.org/v1/gonum/floats"
)

// SpectralChordDetector is the built-in ChordDetector
type SpectralChordDetector struct{}

// DetectChord implements ChordDetector
func (SpectralChordDetector) DetectChord(frame Frame, cfg DetectorConfig) (ChordDetectionResult, error) {
	return DetectChord(frame, cfg)
}

// ChordRequiredSamples returns the minimum frame length DetectChord accepts
func ChordRequiredSamples(sampleRate int, cfg DetectorConfig) int {
	return FFTRequiredSamples(sampleRate, cfg)
}

// DetectChord finds up to Chord.MaxPitches simultaneous fundamentals.
//
// Pipeline: windowed, zero-padded magnitude spectrum; spectral-flatness noise
// gate; peak picking above max(PeakThreshold, NoiseFloorFactor * median);
// harmonic rejection against lower accepted peaks; folding of peaks closer
// than ProximityCents into the lower one; strongest MaxPitches kept.
// Confidence is the mean normalised magnitude of the reported peaks.
//
// A note an exact octave (or other small integer multiple) above another
// reported note is indistinguishable from its harmonic and is dropped.
func DetectChord(frame Frame, cfg DetectorConfig) (ChordDetectionResult, error) {
	if err := validateFrame(frame, cfg); err != nil {
		return emptyChord(), err
	}
	if need := ChordRequiredSamples(frame.SampleRate, cfg); len(frame.Samples) < need {
		return emptyChord(), errInsufficient("chord", need, frame, cfg)
	}
	if isSilent(frame, cfg) {
		return emptyChord(), nil
	}

	p := cfg.Chord
	size := spectral.FFTSize(len(frame.Samples), 0, p.ZeroPadding)
	spec := spectral.MagnitudeSpectrum(frame.Samples, frame.SampleRate, size, p.Window)

	lo, hi := spec.BinRange(cfg.MinFrequency, cfg.MaxFrequency)
	if lo >= hi {
		return emptyChord(), nil
	}
	band := spec.Magnitudes[lo : hi+1]

	sf := spectral.NewSpectralFlatness()
	if sf.IsNoise(sf.ComputeBandLimited(spec.Magnitudes, lo, hi), p.FlatnessThreshold) {
		return emptyChord(), nil
	}

	peakMag := floats.Max(band)
	if peakMag <= 0 {
		return emptyChord(), nil
	}
	normalized := make([]float64, len(spec.Magnitudes))
	floats.ScaleTo(normalized, 1/peakMag, spec.Magnitudes)

	floor := max(p.PeakThreshold, p.NoiseFloorFactor*common.Median(normalized[lo:hi+1]))
	peaks := harmonic.NewSpectralPeaks(floor, p.MaxCandidates).DetectPeaks(normalized, spec.BinWidth(), lo, hi)
	if len(peaks) == 0 {
		return emptyChord(), nil
	}

	peaks = harmonic.FilterHarmonics(peaks, p.MaxHarmonic, p.HarmonicToleranceCents)
	peaks = harmonic.MergeClose(peaks, p.ProximityCents)

	harmonic.SortByMagnitude(peaks)
	if limit := min(p.MaxPitches, MaxChordPitches); len(peaks) > limit {
		peaks = peaks[:limit]
	}
	harmonic.SortByFrequency(peaks)

	pitches := make([]float64, 0, len(peaks))
	total := 0.0
	for _, pk := range peaks {
		if n := len(pitches); n > 0 && pitches[n-1] == pk.Frequency {
			continue
		}
		pitches = append(pitches, pk.Frequency)
		total += min(pk.Magnitude, 1)
	}
	if len(pitches) == 0 {
		return emptyChord(), nil
	}

	return ChordDetectionResult{
		Pitches:    pitches,
		Confidence: common.Clamp(total/float64(len(pitches)), 0, 1),
	}, nil
}
