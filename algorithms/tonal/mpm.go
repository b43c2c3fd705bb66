package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
)

// mpmLagRange widens the lag range by cfg.Mpm.LagMargin on both sides
func mpmLagRange(sampleRate int, cfg DetectorConfig) (minLag, maxLag int) {
	sr := float64(sampleRate)
	minLag = max(1, int(math.Floor(sr/(cfg.MaxFrequency*(1+cfg.Mpm.LagMargin)))))
	maxLag = max(int(math.Ceil(sr/(cfg.MinFrequency*(1-cfg.Mpm.LagMargin)))), minLag)
	return minLag, maxLag
}

// MpmRequiredSamples returns the minimum frame length DetectMpm accepts
func MpmRequiredSamples(sampleRate int, cfg DetectorConfig) int {
	_, maxLag := mpmLagRange(sampleRate, cfg)
	return 2 * (maxLag + 2)
}

// DetectMpm estimates the fundamental with the McLeod pitch method: the
// first NSDF key maximum reaching KeyMaximumRatio of the highest one wins.
// Confidence is the NSDF value there, which lies in [-1, 1].
func DetectMpm(frame Frame, cfg DetectorConfig) (PitchDetectionResult, error) {
	if err := validateFrame(frame, cfg); err != nil {
		return noPitch(), err
	}

	minLag, maxLag := mpmLagRange(frame.SampleRate, cfg)
	n := len(frame.Samples)
	if need := 2 * (maxLag + 2); n < need {
		return noPitch(), errInsufficient("MPM", need, frame, cfg)
	}
	if isSilent(frame, cfg) {
		return noPitch(), nil
	}

	nsdf := normalizedSquareDifference(frame.Samples, maxLag+1)
	keys := keyMaxima(nsdf, minLag, maxLag)
	if len(keys) == 0 {
		return noPitch(), nil
	}

	best := math.Inf(-1)
	for _, k := range keys {
		best = math.Max(best, nsdf[k])
	}
	if best <= 0 {
		return noPitch(), nil
	}

	chosen := keys[0]
	cutoff := cfg.Mpm.KeyMaximumRatio * best
	for _, k := range keys {
		if nsdf[k] >= cutoff {
			chosen = k
			break
		}
	}

	period := common.InterpolateAt(nsdf, chosen)
	if period <= 0 {
		return noPitch(), nil
	}

	return PitchDetectionResult{
		Pitch:      float64(frame.SampleRate) / period,
		Confidence: nsdf[chosen],
	}, nil
}

// normalizedSquareDifference computes the type-II NSDF
//
//	n(τ) = 2 Σ x[i]x[i+τ] / Σ (x[i]² + x[i+τ]²),  i < len(x) - τ
//
// for τ in [0, maxLag]. The denominator is updated incrementally.
func normalizedSquareDifference(x []float64, maxLag int) []float64 {
	n := len(x)
	nsdf := make([]float64, maxLag+1)

	m := 0.0
	for _, v := range x {
		m += 2 * v * v
	}

	for tau := 0; tau <= maxLag; tau++ {
		if tau > 0 {
			m -= x[n-tau]*x[n-tau] + x[tau-1]*x[tau-1]
		}
		acf := 0.0
		for i := 0; i < n-tau; i++ {
			acf += x[i] * x[i+tau]
		}
		if m > 0 {
			nsdf[tau] = 2 * acf / m
		}
	}
	return nsdf
}

// keyMaxima returns the lag of the highest NSDF value in each positive lobe
// between positive-going zero crossings, skipping the lobe around τ = 0. A
// lobe still open at the end counts only if its maximum is a true local
// maximum. Only lags in [minLag, maxLag] are reported.
func keyMaxima(nsdf []float64, minLag, maxLag int) []int {
	pos := 0
	for pos < len(nsdf) && nsdf[pos] > 0 {
		pos++
	}

	var keys []int
	for pos < len(nsdf) {
		for pos < len(nsdf) && nsdf[pos] <= 0 {
			pos++
		}
		if pos >= len(nsdf) {
			break
		}

		best := pos
		for pos < len(nsdf) && nsdf[pos] > 0 {
			if nsdf[pos] > nsdf[best] {
				best = pos
			}
			pos++
		}

		if best < minLag || best > maxLag {
			continue
		}
		if best == len(nsdf)-1 || nsdf[best] < nsdf[best+1] || (best > 0 && nsdf[best] < nsdf[best-1]) {
			continue
		}
		keys = append(keys, best)
	}
	return keys
}
