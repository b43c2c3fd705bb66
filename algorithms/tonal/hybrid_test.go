package tonal

import (
	"testing"
)

func TestRouteHybrid(t *testing.T) {
	tests := []struct {
		freq float64
		want Algorithm
	}{
		{150, AlgorithmYin},
		{1200, AlgorithmFFT},
		{440, AlgorithmMpm},
		{600, AlgorithmMpm},
	}

	cfg := DefaultConfig().WithAlgorithm(AlgorithmHybrid)
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			frame := sineFrame(tt.freq, 1)
			got, bands, err := RouteHybrid(frame, cfg)
			if err != nil {
				t.Fatalf("RouteHybrid: %v", err)
			}
			if got != tt.want {
				t.Fatalf("%v Hz routed to %s (bands %+v), want %s", tt.freq, got, bands, tt.want)
			}

			direct, err := Detect(frame, cfg.WithAlgorithm(tt.want))
			if err != nil {
				t.Fatalf("direct detect: %v", err)
			}
			routed, err := Detect(frame, cfg)
			if err != nil {
				t.Fatalf("hybrid detect: %v", err)
			}
			if routed.Pitch != direct.Pitch {
				t.Fatalf("hybrid result %+v, direct %s result %+v", routed.Pitch, tt.want, direct.Pitch)
			}
			if routed.Routed != tt.want || routed.Algorithm != AlgorithmHybrid {
				t.Fatalf("detection = %+v", routed)
			}
		})
	}
}

func TestProbeBandsScale(t *testing.T) {
	cfg := DefaultConfig()

	full, err := ProbeBands(sineFrame(150, 1), cfg)
	if err != nil {
		t.Fatalf("ProbeBands: %v", err)
	}
	// a full-scale in-band sine lands near the reference energy of 1024
	if full.Low < 850 || full.Low > 1150 {
		t.Fatalf("low band energy = %v, want about 1024", full.Low)
	}
	if full.High > 5 {
		t.Fatalf("high band energy = %v, want about 0", full.High)
	}

	// energy follows the square of the level, so a quiet low tone goes to MPM
	half, err := ProbeBands(sineFrame(150, 0.5), cfg)
	if err != nil {
		t.Fatalf("ProbeBands: %v", err)
	}
	if ratio := half.Low / full.Low; ratio < 0.24 || ratio > 0.26 {
		t.Fatalf("energy ratio = %v, want 0.25", ratio)
	}
	if alg, _, _ := RouteHybrid(sineFrame(150, 0.5), cfg); alg != AlgorithmMpm {
		t.Fatalf("quiet 150 Hz routed to %s, want MPM", alg)
	}
}

func TestProbeBandsEmptyHighBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFrequency = 800 // below the high band start

	bands, err := ProbeBands(sineFrame(700, 1), cfg)
	if err != nil {
		t.Fatalf("ProbeBands: %v", err)
	}
	if bands.High != 0 {
		t.Fatalf("high band = %v, want 0", bands.High)
	}
}

func BenchmarkRouteHybrid(b *testing.B) {
	frame := sineFrame(440, 1)
	cfg := DefaultConfig()
	for b.Loop() {
		_, _, _ = RouteHybrid(frame, cfg)
	}
}
