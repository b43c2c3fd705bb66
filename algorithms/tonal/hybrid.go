package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-pitch/algorithms/spectral"
	"golang.org/x/sync/errgroup"
)

// FrequencyBandEnergy holds the normalised Goertzel energies used for routing
type FrequencyBandEnergy struct {
	Low  float64 `json:"low"`  // [MinFrequency, Hybrid.LowBandHz]
	High float64 `json:"high"` // [Hybrid.HighBandHz, MaxFrequency]
}

// ProbeBands measures the peak Goertzel energy of each routing band over the
// first Hybrid.ProbeBlockSize samples. Probes are spaced
// Hybrid.ProbeSpacingBins bins apart so no in-band tone falls between them.
// The two bands are probed concurrently.
func ProbeBands(frame Frame, cfg DetectorConfig) (FrequencyBandEnergy, error) {
	var bands FrequencyBandEnergy
	if err := validateFrame(frame, cfg); err != nil {
		return bands, err
	}

	block := frame.Samples[:min(len(frame.Samples), cfg.Hybrid.ProbeBlockSize)]
	blockLen := float64(len(block))
	spacing := cfg.Hybrid.ProbeSpacingBins * float64(frame.SampleRate) / blockLen
	norm := float64(cfg.Hybrid.ReferenceBlockSize) / (blockLen * blockLen)

	probe := func(lowHz, highHz float64, dst *float64) func() error {
		return func() error {
			if lowHz > highHz {
				*dst = 0
				return nil
			}
			e, err := spectral.BandPeakEnergy(block, frame.SampleRate, lowHz, highHz, spacing)
			if err != nil {
				return err
			}
			*dst = e * norm
			return nil
		}
	}

	var g errgroup.Group
	g.Go(probe(cfg.MinFrequency, math.Min(cfg.Hybrid.LowBandHz, cfg.MaxFrequency), &bands.Low))
	g.Go(probe(math.Max(cfg.Hybrid.HighBandHz, cfg.MinFrequency), cfg.MaxFrequency, &bands.High))
	if err := g.Wait(); err != nil {
		return FrequencyBandEnergy{}, err
	}
	return bands, nil
}

// RouteHybrid chooses the detector for frame: YIN when the low band is
// strong, otherwise FFT when the high band is strong, otherwise MPM.
// Energies scale with the square of the signal level, so quiet frames tend
// towards MPM.
func RouteHybrid(frame Frame, cfg DetectorConfig) (Algorithm, FrequencyBandEnergy, error) {
	bands, err := ProbeBands(frame, cfg)
	if err != nil {
		return AlgorithmMpm, bands, err
	}
	switch {
	case bands.Low > cfg.Hybrid.LowThreshold:
		return AlgorithmYin, bands, nil
	case bands.High > cfg.Hybrid.HighThreshold:
		return AlgorithmFFT, bands, nil
	default:
		return AlgorithmMpm, bands, nil
	}
}

// DetectHybrid routes the frame with RouteHybrid and returns the chosen
// detector's result unchanged
func DetectHybrid(frame Frame, cfg DetectorConfig) (PitchDetectionResult, error) {
	_, result, err := detectHybrid(frame, cfg)
	return result, err
}

func detectHybrid(frame Frame, cfg DetectorConfig) (Algorithm, PitchDetectionResult, error) {
	routed, _, err := RouteHybrid(frame, cfg)
	if err != nil {
		return routed, noPitch(), err
	}

	var result PitchDetectionResult
	switch routed {
	case AlgorithmYin:
		result, err = DetectYin(frame, cfg)
	case AlgorithmFFT:
		result, err = DetectFFT(frame, cfg)
	default:
		result, err = DetectMpm(frame, cfg)
	}
	return routed, result, err
}
