package tonal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-pitch/algorithms/windowing"
)

// Algorithm selects the detector applied to each frame
type Algorithm int

const (
	AlgorithmYin Algorithm = iota
	AlgorithmMpm
	AlgorithmFFT
	AlgorithmHybrid
	AlgorithmChord
)

var algorithmNames = [...]string{
	AlgorithmYin:    "YIN",
	AlgorithmMpm:    "MPM",
	AlgorithmFFT:    "FFT",
	AlgorithmHybrid: "HYBRID",
	AlgorithmChord:  "CHORD",
}

func (a Algorithm) String() string {
	if a >= 0 && int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Valid reports whether a is one of the defined algorithms
func (a Algorithm) Valid() bool {
	return a >= 0 && int(a) < len(algorithmNames)
}

// ParseAlgorithm parses an algorithm name such as "yin" or "HYBRID"
func ParseAlgorithm(s string) (Algorithm, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range algorithmNames {
		if n == name {
			return Algorithm(i), nil
		}
	}
	return AlgorithmYin, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidInput, s)
}

// MarshalText implements encoding.TextMarshaler
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrInvalidInput, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// YinParams tunes the YIN detector
type YinParams struct {
	Threshold      float64 `yaml:"threshold" json:"threshold"`               // CMNDF dip threshold
	LagMarginCents float64 `yaml:"lag_margin_cents" json:"lag_margin_cents"` // search margin beyond the frequency bounds
}

// MpmParams tunes the McLeod pitch method
type MpmParams struct {
	KeyMaximumRatio float64 `yaml:"key_maximum_ratio" json:"key_maximum_ratio"` // k in "first key maximum >= k * global max"
	LagMargin       float64 `yaml:"lag_margin" json:"lag_margin"`               // fractional widening of the lag range
}

// FFTParams tunes the spectral peak pitch detector
type FFTParams struct {
	MinSize          int            `yaml:"min_size" json:"min_size"`
	Window           windowing.Type `yaml:"window" json:"window"`
	SubharmonicRatio float64        `yaml:"subharmonic_ratio" json:"subharmonic_ratio"` // 0 disables octave correction
	ProminenceRadius int            `yaml:"prominence_radius" json:"prominence_radius"` // bins either side used for the noise floor
	GuardBins        int            `yaml:"guard_bins" json:"guard_bins"`               // bins either side excluded from the floor
}

// HybridParams controls Goertzel band routing. Energies are normalised to a
// ReferenceBlockSize-sample block so thresholds do not depend on the probe
// length: a full-scale sine inside a band scores about ReferenceBlockSize/4.
type HybridParams struct {
	LowBandHz          float64 `yaml:"low_band_hz" json:"low_band_hz"`
	HighBandHz         float64 `yaml:"high_band_hz" json:"high_band_hz"`
	LowThreshold       float64 `yaml:"low_threshold" json:"low_threshold"`
	HighThreshold      float64 `yaml:"high_threshold" json:"high_threshold"`
	ProbeBlockSize     int     `yaml:"probe_block_size" json:"probe_block_size"`
	ProbeSpacingBins   float64 `yaml:"probe_spacing_bins" json:"probe_spacing_bins"`
	ReferenceBlockSize int     `yaml:"reference_block_size" json:"reference_block_size"`
}

// ChordParams tunes the polyphonic detector
type ChordParams struct {
	Window                 windowing.Type `yaml:"window" json:"window"`
	ZeroPadding            int            `yaml:"zero_padding" json:"zero_padding"`
	FlatnessThreshold      float64        `yaml:"flatness_threshold" json:"flatness_threshold"`
	PeakThreshold          float64        `yaml:"peak_threshold" json:"peak_threshold"`
	NoiseFloorFactor       float64        `yaml:"noise_floor_factor" json:"noise_floor_factor"`
	MaxCandidates          int            `yaml:"max_candidates" json:"max_candidates"`
	MaxHarmonic            int            `yaml:"max_harmonic" json:"max_harmonic"`
	HarmonicToleranceCents float64        `yaml:"harmonic_tolerance_cents" json:"harmonic_tolerance_cents"`
	ProximityCents         float64        `yaml:"proximity_cents" json:"proximity_cents"`
	MaxPitches             int            `yaml:"max_pitches" json:"max_pitches"`
}

// MaxChordPitches bounds ChordParams.MaxPitches
const MaxChordPitches = 4

// DetectorConfig is an immutable snapshot of every tunable. Detectors take it
// by value and never retain it.
type DetectorConfig struct {
	Algorithm                Algorithm `yaml:"algorithm" json:"algorithm"`
	ConfidenceThreshold      float64   `yaml:"confidence_threshold" json:"confidence_threshold"`
	ChordConfidenceThreshold float64   `yaml:"chord_confidence_threshold" json:"chord_confidence_threshold"`
	MinFrequency             float64   `yaml:"min_frequency" json:"min_frequency"`
	MaxFrequency             float64   `yaml:"max_frequency" json:"max_frequency"`
	SilenceThreshold         float64   `yaml:"silence_threshold" json:"silence_threshold"` // RMS at or below which a frame is silent

	Yin    YinParams    `yaml:"yin" json:"yin"`
	Mpm    MpmParams    `yaml:"mpm" json:"mpm"`
	FFT    FFTParams    `yaml:"fft" json:"fft"`
	Hybrid HybridParams `yaml:"hybrid" json:"hybrid"`
	Chord  ChordParams  `yaml:"chord" json:"chord"`
}

// Defaults
const (
	DefaultMinFrequency             = 80.0
	DefaultMaxFrequency             = 4835.0
	DefaultConfidenceThreshold      = 0.7
	DefaultChordConfidenceThreshold = 0.5
	DefaultSilenceThreshold         = 1e-4

	DefaultYinThreshold      = 0.15
	DefaultYinLagMarginCents = 25.0

	DefaultMpmKeyMaximumRatio = 0.8
	DefaultMpmLagMargin       = 0.1

	DefaultFFTMinSize          = 2048
	DefaultFFTSubharmonicRatio = 0.7
	DefaultFFTProminenceRadius = 20
	DefaultFFTGuardBins        = 3

	DefaultHybridLowBandHz          = 275.0
	DefaultHybridHighBandHz         = 900.0
	DefaultHybridLowThreshold       = 750.0
	DefaultHybridHighThreshold      = 400.0
	DefaultHybridProbeBlockSize     = 1024
	DefaultHybridProbeSpacingBins   = 0.25
	DefaultHybridReferenceBlockSize = 4096

	DefaultChordZeroPadding            = 2
	DefaultChordFlatnessThreshold      = 0.4
	DefaultChordPeakThreshold          = 0.05
	DefaultChordNoiseFloorFactor       = 4.0
	DefaultChordMaxCandidates          = 12
	DefaultChordMaxHarmonic            = 6
	DefaultChordHarmonicToleranceCents = 50.0
	DefaultChordProximityCents         = 70.0
)

// DefaultConfig returns the default detector configuration
func DefaultConfig() DetectorConfig {
	return DetectorConfig{
		Algorithm:                AlgorithmYin,
		ConfidenceThreshold:      DefaultConfidenceThreshold,
		ChordConfidenceThreshold: DefaultChordConfidenceThreshold,
		MinFrequency:             DefaultMinFrequency,
		MaxFrequency:             DefaultMaxFrequency,
		SilenceThreshold:         DefaultSilenceThreshold,
		Yin: YinParams{
			Threshold:      DefaultYinThreshold,
			LagMarginCents: DefaultYinLagMarginCents,
		},
		Mpm: MpmParams{
			KeyMaximumRatio: DefaultMpmKeyMaximumRatio,
			LagMargin:       DefaultMpmLagMargin,
		},
		FFT: FFTParams{
			MinSize:          DefaultFFTMinSize,
			Window:           windowing.Hann,
			SubharmonicRatio: DefaultFFTSubharmonicRatio,
			ProminenceRadius: DefaultFFTProminenceRadius,
			GuardBins:        DefaultFFTGuardBins,
		},
		Hybrid: HybridParams{
			LowBandHz:          DefaultHybridLowBandHz,
			HighBandHz:         DefaultHybridHighBandHz,
			LowThreshold:       DefaultHybridLowThreshold,
			HighThreshold:      DefaultHybridHighThreshold,
			ProbeBlockSize:     DefaultHybridProbeBlockSize,
			ProbeSpacingBins:   DefaultHybridProbeSpacingBins,
			ReferenceBlockSize: DefaultHybridReferenceBlockSize,
		},
		Chord: ChordParams{
			Window:                 windowing.Hann,
			ZeroPadding:            DefaultChordZeroPadding,
			FlatnessThreshold:      DefaultChordFlatnessThreshold,
			PeakThreshold:          DefaultChordPeakThreshold,
			NoiseFloorFactor:       DefaultChordNoiseFloorFactor,
			MaxCandidates:          DefaultChordMaxCandidates,
			MaxHarmonic:            DefaultChordMaxHarmonic,
			HarmonicToleranceCents: DefaultChordHarmonicToleranceCents,
			ProximityCents:         DefaultChordProximityCents,
			MaxPitches:             MaxChordPitches,
		},
	}
}

// WithAlgorithm returns a copy of c using algorithm a
func (c DetectorConfig) WithAlgorithm(a Algorithm) DetectorConfig {
	c.Algorithm = a
	return c
}

// Validate reports every out-of-range field at once. Frequency bounds that
// depend on the sample rate are checked per frame.
func (c DetectorConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !c.Algorithm.Valid() {
		add("algorithm: unknown value %d", int(c.Algorithm))
	}
	if c.MinFrequency <= 0 {
		add("min_frequency must be > 0, got %v", c.MinFrequency)
	}
	if c.MaxFrequency <= c.MinFrequency {
		add("max_frequency (%v) must exceed min_frequency (%v)", c.MaxFrequency, c.MinFrequency)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		add("confidence_threshold must be in [0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.ChordConfidenceThreshold < 0 || c.ChordConfidenceThreshold > 1 {
		add("chord_confidence_threshold must be in [0, 1], got %v", c.ChordConfidenceThreshold)
	}
	if c.SilenceThreshold < 0 {
		add("silence_threshold must be >= 0, got %v", c.SilenceThreshold)
	}

	if c.Yin.Threshold <= 0 || c.Yin.Threshold >= 1 {
		add("yin.threshold must be in (0, 1), got %v", c.Yin.Threshold)
	}
	if c.Yin.LagMarginCents < 0 {
		add("yin.lag_margin_cents must be >= 0, got %v", c.Yin.LagMarginCents)
	}
	if c.Mpm.KeyMaximumRatio <= 0 || c.Mpm.KeyMaximumRatio > 1 {
		add("mpm.key_maximum_ratio must be in (0, 1], got %v", c.Mpm.KeyMaximumRatio)
	}
	if c.Mpm.LagMargin < 0 || c.Mpm.LagMargin >= 1 {
		add("mpm.lag_margin must be in [0, 1), got %v", c.Mpm.LagMargin)
	}
	if c.FFT.MinSize < 0 {
		add("fft.min_size must be >= 0, got %d", c.FFT.MinSize)
	}
	if c.FFT.SubharmonicRatio < 0 {
		add("fft.subharmonic_ratio must be >= 0, got %v", c.FFT.SubharmonicRatio)
	}
	if c.FFT.GuardBins < 0 || c.FFT.ProminenceRadius <= c.FFT.GuardBins {
		add("fft.prominence_radius (%d) must exceed fft.guard_bins (%d) >= 0", c.FFT.ProminenceRadius, c.FFT.GuardBins)
	}
	if c.Hybrid.LowBandHz <= 0 || c.Hybrid.HighBandHz <= c.Hybrid.LowBandHz {
		add("hybrid bands must satisfy 0 < low_band_hz (%v) < high_band_hz (%v)", c.Hybrid.LowBandHz, c.Hybrid.HighBandHz)
	}
	if c.Hybrid.LowThreshold < 0 || c.Hybrid.HighThreshold < 0 {
		add("hybrid thresholds must be >= 0")
	}
	if c.Hybrid.ProbeBlockSize <= 0 || c.Hybrid.ReferenceBlockSize <= 0 {
		add("hybrid.probe_block_size and hybrid.reference_block_size must be > 0")
	}
	if c.Hybrid.ProbeSpacingBins <= 0 {
		add("hybrid.probe_spacing_bins must be > 0, got %v", c.Hybrid.ProbeSpacingBins)
	}
	if c.Chord.ZeroPadding < 1 {
		add("chord.zero_padding must be >= 1, got %d", c.Chord.ZeroPadding)
	}
	if c.Chord.FlatnessThreshold <= 0 || c.Chord.FlatnessThreshold > 1 {
		add("chord.flatness_threshold must be in (0, 1], got %v", c.Chord.FlatnessThreshold)
	}
	if c.Chord.PeakThreshold < 0 || c.Chord.PeakThreshold >= 1 {
		add("chord.peak_threshold must be in [0, 1), got %v", c.Chord.PeakThreshold)
	}
	if c.Chord.NoiseFloorFactor < 0 {
		add("chord.noise_floor_factor must be >= 0, got %v", c.Chord.NoiseFloorFactor)
	}
	if c.Chord.MaxCandidates < 1 {
		add("chord.max_candidates must be >= 1, got %d", c.Chord.MaxCandidates)
	}
	if c.Chord.MaxHarmonic < 2 {
		add("chord.max_harmonic must be >= 2, got %d", c.Chord.MaxHarmonic)
	}
	if c.Chord.HarmonicToleranceCents <= 0 || c.Chord.ProximityCents < 0 {
		add("chord cent tolerances must be positive")
	}
	if c.Chord.MaxPitches < 1 || c.Chord.MaxPitches > MaxChordPitches {
		add("chord.max_pitches must be in [1, %d], got %d", MaxChordPitches, c.Chord.MaxPitches)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
}
