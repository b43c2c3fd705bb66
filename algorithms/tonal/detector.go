// Package tonal implements single-pitch and chord detection on fixed-size
// audio frames.
//
// Every detector is a pure function of (Frame, DetectorConfig): no state is
// carried between calls, so any number of goroutines may run detectors
// concurrently on different frames.
//
// References:
//   - de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental frequency estimator for speech and music"
//   - McLeod, P., Wyvill, G. (2005). "A smarter way to find pitch"
//   - Goertzel, G. (1958). "An algorithm for the evaluation of finite trigonometric series"
package tonal

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
)

// NoPitch is the Pitch value reported when no periodic signal was found
const NoPitch = -1.0

var (
	// ErrInvalidInput reports an unusable frame or configuration
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientSamples reports a frame too short for the configured
	// frequency range
	ErrInsufficientSamples = errors.New("insufficient samples")
)

// Frame is one buffer of mono samples, nominally in [-1, 1]. Detectors never
// modify Samples.
type Frame struct {
	Samples    []float64
	SampleRate int
}

// NewFrame creates a frame
func NewFrame(samples []float64, sampleRate int) Frame {
	return Frame{Samples: samples, SampleRate: sampleRate}
}

// RMS returns the root mean square of the frame
func (f Frame) RMS() float64 {
	return common.RMS(f.Samples)
}

// PitchDetectionResult is the outcome of a single-pitch detector
type PitchDetectionResult struct {
	Pitch      float64 `json:"pitch"`      // Hz, or NoPitch
	Confidence float64 `json:"confidence"` // nominally [0, 1]; YIN may fall outside
}

// HasPitch reports whether a pitch was found
func (r PitchDetectionResult) HasPitch() bool {
	return r.Pitch != NoPitch && r.Pitch > 0
}

// Clamped returns r with Confidence limited to [0, 1]
func (r PitchDetectionResult) Clamped() PitchDetectionResult {
	r.Confidence = common.Clamp(r.Confidence, 0, 1)
	return r
}

func noPitch() PitchDetectionResult {
	return PitchDetectionResult{Pitch: NoPitch, Confidence: 0}
}

// ChordDetectionResult is the outcome of the chord detector. Pitches are
// ascending, unique and at most MaxChordPitches long.
type ChordDetectionResult struct {
	Pitches    []float64 `json:"pitches"`
	Confidence float64   `json:"confidence"`
}

// HasPitches reports whether any pitch was found
func (c ChordDetectionResult) HasPitches() bool {
	return len(c.Pitches) > 0
}

// Len returns the number of detected pitches
func (c ChordDetectionResult) Len() int {
	return len(c.Pitches)
}

// ChordFromPitch wraps a single-pitch result as a one-note chord
func ChordFromPitch(r PitchDetectionResult) ChordDetectionResult {
	if !r.HasPitch() {
		return ChordDetectionResult{Pitches: []float64{}, Confidence: 0}
	}
	return ChordDetectionResult{Pitches: []float64{r.Pitch}, Confidence: r.Confidence}
}

func emptyChord() ChordDetectionResult {
	return ChordDetectionResult{Pitches: []float64{}, Confidence: 0}
}

// PitchDetector estimates the fundamental frequency of a frame
type PitchDetector interface {
	DetectPitch(frame Frame, cfg DetectorConfig) (PitchDetectionResult, error)
}

// PitchDetectorFunc adapts a function to PitchDetector
type PitchDetectorFunc func(frame Frame, cfg DetectorConfig) (PitchDetectionResult, error)

// DetectPitch calls f
func (f PitchDetectorFunc) DetectPitch(frame Frame, cfg DetectorConfig) (PitchDetectionResult, error) {
	return f(frame, cfg)
}

// ChordDetector finds simultaneous pitches. Alternative implementations
// (for example a learned model) plug in through this interface.
type ChordDetector interface {
	DetectChord(frame Frame, cfg DetectorConfig) (ChordDetectionResult, error)
}

// ChordDetectorFunc adapts a function to ChordDetector
type ChordDetectorFunc func(frame Frame, cfg DetectorConfig) (ChordDetectionResult, error)

// DetectChord calls f
func (f ChordDetectorFunc) DetectChord(frame Frame, cfg DetectorConfig) (ChordDetectionResult, error) {
	return f(frame, cfg)
}

var (
	_ PitchDetector = PitchDetectorFunc(DetectYin)
	_ ChordDetector = SpectralChordDetector{}
)

// Detectors for each single-pitch algorithm
var (
	Yin    PitchDetector = PitchDetectorFunc(DetectYin)
	Mpm    PitchDetector = PitchDetectorFunc(DetectMpm)
	FFT    PitchDetector = PitchDetectorFunc(DetectFFT)
	Hybrid PitchDetector = PitchDetectorFunc(DetectHybrid)
)

// validateFrame checks the frame, the configuration and the frequency bounds
// against the frame's sample rate
func validateFrame(frame Frame, cfg DetectorConfig) error {
	if len(frame.Samples) == 0 {
		return fmt.Errorf("%w: empty frame", ErrInvalidInput)
	}
	if frame.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be > 0, got %d", ErrInvalidInput, frame.SampleRate)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.MinFrequency <= 0 || math.IsNaN(cfg.MinFrequency) {
		return fmt.Errorf("%w: min frequency must be > 0, got %v", ErrInvalidInput, cfg.MinFrequency)
	}
	if !(cfg.MaxFrequency > cfg.MinFrequency) {
		return fmt.Errorf("%w: max frequency %v must exceed min frequency %v", ErrInvalidInput, cfg.MaxFrequency, cfg.MinFrequency)
	}
	if nyquist := float64(frame.SampleRate) / 2; cfg.MaxFrequency > nyquist {
		return fmt.Errorf("%w: max frequency %v above Nyquist %v", ErrInvalidInput, cfg.MaxFrequency, nyquist)
	}
	if !common.AllFinite(frame.Samples) {
		return fmt.Errorf("%w: frame contains NaN or Inf", ErrInvalidInput)
	}
	return nil
}

func errInsufficient(detector string, need int, frame Frame, cfg DetectorConfig) error {
	return fmt.Errorf("%w: %s needs %d samples for %v Hz at %d Hz, got %d",
		ErrInsufficientSamples, detector, need, cfg.MinFrequency, frame.SampleRate, len(frame.Samples))
}

// isSilent reports whether the frame RMS is at or below the silence threshold
func isSilent(frame Frame, cfg DetectorConfig) bool {
	return frame.RMS() <= cfg.SilenceThreshold
}

// Detection is the dispatcher output: a pitch result for the single-pitch
// algorithms or a chord result for AlgorithmChord.
type Detection struct {
	Algorithm Algorithm            `json:"algorithm"`
	Routed    Algorithm            `json:"routed"` // detector that actually ran; differs from Algorithm only for HYBRID
	Pitch     PitchDetectionResult `json:"pitch"`
	Chord     ChordDetectionResult `json:"chord"`
	RMS       float64              `json:"rms"`
}

// IsChord reports whether the detection carries a chord result
func (d Detection) IsChord() bool {
	return d.Algorithm == AlgorithmChord
}

// Engine dispatches frames to the configured algorithm
type Engine struct {
	chord ChordDetector
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithChordDetector replaces the spectral chord detector
func WithChordDetector(cd ChordDetector) EngineOption {
	return func(e *Engine) {
		if cd != nil {
			e.chord = cd
		}
	}
}

// NewEngine creates an engine using the spectral chord detector unless
// overridden
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{chord: SpectralChordDetector{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Detect runs cfg.Algorithm on frame using the default engine
func Detect(frame Frame, cfg DetectorConfig) (Detection, error) {
	return defaultEngine.Detect(frame, cfg)
}

// EmptyDetection is the detection reported for frame when nothing was found
// or detection failed
func EmptyDetection(frame Frame, cfg DetectorConfig) Detection {
	return Detection{
		Algorithm: cfg.Algorithm,
		Routed:    cfg.Algorithm,
		Pitch:     noPitch(),
		Chord:     emptyChord(),
		RMS:       frame.RMS(),
	}
}

// Detect runs cfg.Algorithm on frame
func (e *Engine) Detect(frame Frame, cfg DetectorConfig) (Detection, error) {
	d := EmptyDetection(frame, cfg)

	var err error
	switch cfg.Algorithm {
	case AlgorithmYin:
		d.Pitch, err = DetectYin(frame, cfg)
	case AlgorithmMpm:
		d.Pitch, err = DetectMpm(frame, cfg)
	case AlgorithmFFT:
		d.Pitch, err = DetectFFT(frame, cfg)
	case AlgorithmHybrid:
		d.Routed, d.Pitch, err = detectHybrid(frame, cfg)
	case AlgorithmChord:
		d.Chord, err = e.chord.DetectChord(frame, cfg)
	default:
		err = fmt.Errorf("%w: unknown algorithm %d", ErrInvalidInput, int(cfg.Algorithm))
	}
	return d, err
}

// RequiredSamples returns the minimum frame length cfg.Algorithm accepts at
// sampleRate. HYBRID needs enough for whichever detector it routes to.
func RequiredSamples(sampleRate int, cfg DetectorConfig) int {
	switch cfg.Algorithm {
	case AlgorithmYin:
		return YinRequiredSamples(sampleRate, cfg)
	case AlgorithmMpm:
		return MpmRequiredSamples(sampleRate, cfg)
	case AlgorithmFFT:
		return FFTRequiredSamples(sampleRate, cfg)
	case AlgorithmChord:
		return ChordRequiredSamples(sampleRate, cfg)
	default:
		return max(
			YinRequiredSamples(sampleRate, cfg),
			MpmRequiredSamples(sampleRate, cfg),
			FFTRequiredSamples(sampleRate, cfg),
		)
	}
}
