package common

import (
	"math"
	"testing"
)

func TestMeanVarianceMedian(t *testing.T) {
	data := []float64{4, 1, 3, 2, 5}
	if got := Mean(data); got != 3 {
		t.Fatalf("Mean = %v, want 3", got)
	}
	if got := Variance(data); math.Abs(got-2.5) > 1e-12 {
		t.Fatalf("Variance = %v, want 2.5", got)
	}
	if got := Median(data); got != 3 {
		t.Fatalf("Median = %v, want 3", got)
	}
	if got := Mean(nil); got != 0 {
		t.Fatalf("Mean(nil) = %v, want 0", got)
	}
}

func TestPercentileDoesNotMutate(t *testing.T) {
	data := []float64{3, 1, 2}
	_ = Percentile(data, 0.9)
	if data[0] != 3 || data[1] != 1 || data[2] != 2 {
		t.Fatalf("input mutated: %v", data)
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		want float64
	}{
		{"empty", nil, 0},
		{"zeros", []float64{0, 0, 0}, 0},
		{"constant", []float64{-2, -2, -2, -2}, 2},
		{"square", []float64{1, -1, 1, -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMS(tt.data); math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("RMS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxIndex(t *testing.T) {
	if got := MaxIndex(nil); got != -1 {
		t.Fatalf("MaxIndex(nil) = %d, want -1", got)
	}
	if got := MaxIndex([]float64{1, 7, 3}); got != 1 {
		t.Fatalf("MaxIndex = %d, want 1", got)
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float64{0, 1, -1}) {
		t.Fatal("finite slice reported non-finite")
	}
	if AllFinite([]float64{0, math.NaN()}) {
		t.Fatal("NaN not detected")
	}
	if AllFinite([]float64{math.Inf(-1)}) {
		t.Fatal("-Inf not detected")
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 1000: 1024, 1024: 1024, 1025: 2048}
	for in, want := range tests {
		if got := NextPowerOfTwo(in); got != want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
		if !IsPowerOfTwo(NextPowerOfTwo(in)) {
			t.Errorf("NextPowerOfTwo(%d) is not a power of two", in)
		}
	}
}
