package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"gonum.org/v1/gonum/floats"
)

// yinLagRange returns the inclusive lag search range, widened by the
// configured cent margin beyond the frequency bounds
func yinLagRange(sampleRate int, cfg DetectorConfig) (minTau, maxTau int) {
	sr := float64(sampleRate)
	highest := common.AddCents(cfg.MaxFrequency, cfg.Yin.LagMarginCents)
	lowest := common.AddCents(cfg.MinFrequency, -cfg.Yin.LagMarginCents)

	minTau = max(int(math.Floor(sr/highest)), 2)
	maxTau = max(int(math.Ceil(sr/lowest)), minTau)
	return minTau, maxTau
}

// YinRequiredSamples returns the minimum frame length DetectYin accepts
func YinRequiredSamples(sampleRate int, cfg DetectorConfig) int {
	_, maxTau := yinLagRange(sampleRate, cfg)
	return 2 * (maxTau + 2)
}

// DetectYin estimates the fundamental with the YIN algorithm.
//
// Confidence is 1 - CMNDF at the chosen lag and is not clamped: a frame whose
// CMNDF never dips below 1 (nothing periodic within the lag range) yields a
// negative confidence. Callers gate on the value or use Clamped.
func DetectYin(frame Frame, cfg DetectorConfig) (PitchDetectionResult, error) {
	if err := validateFrame(frame, cfg); err != nil {
		return noPitch(), err
	}

	minTau, maxTau := yinLagRange(frame.SampleRate, cfg)
	n := len(frame.Samples)
	if need := 2 * (maxTau + 2); n < need {
		return noPitch(), errInsufficient("YIN", need, frame, cfg)
	}
	if isSilent(frame, cfg) {
		return noPitch(), nil
	}

	// d(τ) is needed one lag past maxTau for the interpolation neighbour
	diff := yinDifference(frame.Samples, n/2, maxTau+1)
	cmndf := cumulativeMeanNormalizedDifference(diff)

	tau := yinAbsoluteThreshold(cmndf, minTau, maxTau, cfg.Yin.Threshold)
	if tau < 0 {
		tau = minTau + floats.MinIdx(cmndf[minTau:maxTau+1])
	}

	period := common.InterpolateAt(cmndf, tau)
	if period <= 0 {
		return noPitch(), nil
	}

	return PitchDetectionResult{
		Pitch:      float64(frame.SampleRate) / period,
		Confidence: 1 - cmndf[tau],
	}, nil
}

// yinDifference computes d(τ) = Σ_{i<window} (x[i] - x[i+τ])² for τ in [0, maxLag]
func yinDifference(x []float64, window, maxLag int) []float64 {
	diff := make([]float64, maxLag+1)
	for tau := 1; tau <= maxLag; tau++ {
		sum := 0.0
		for i := range window {
			delta := x[i] - x[i+tau]
			sum += delta * delta
		}
		diff[tau] = sum
	}
	return diff
}

// cumulativeMeanNormalizedDifference normalises d(τ) by its running mean over
// [1, τ]. CMNDF(0) is 1 by definition; a zero running mean also maps to 1.
func cumulativeMeanNormalizedDifference(diff []float64) []float64 {
	cmndf := make([]float64, len(diff))
	cmndf[0] = 1.0

	runningSum := 0.0
	for tau := 1; tau < len(diff); tau++ {
		runningSum += diff[tau]
		if runningSum <= 0 {
			cmndf[tau] = 1.0
			continue
		}
		cmndf[tau] = diff[tau] * float64(tau) / runningSum
	}
	return cmndf
}

// yinAbsoluteThreshold returns the first lag in [minTau, maxTau] whose CMNDF
// falls below threshold, moved forward to the bottom of that dip, or -1
func yinAbsoluteThreshold(cmndf []float64, minTau, maxTau int, threshold float64) int {
	for tau := minTau; tau <= maxTau; tau++ {
		if cmndf[tau] >= threshold {
			continue
		}
		for tau+1 <= maxTau && cmndf[tau+1] < cmndf[tau] {
			tau++
		}
		return tau
	}
	return -1
}
