package tonal

import (
	"github.com/RyanBlaney/sonido-pitch/internal/testutil"
)

const (
	testSampleRate = 44100
	testFrameSize  = 4096
)

func sineFrame(freq, amplitude float64) Frame {
	return NewFrame(testutil.DeterministicSine(freq, testSampleRate, amplitude, testFrameSize), testSampleRate)
}

func cloneSamples(f Frame) []float64 {
	out := make([]float64, len(f.Samples))
	copy(out, f.Samples)
	return out
}

var singlePitchDetectors = []struct {
	name   string
	detect PitchDetectorFunc
}{
	{"YIN", DetectYin},
	{"MPM", DetectMpm},
	{"FFT", DetectFFT},
}
