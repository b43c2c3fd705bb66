package testutil

import (
	"math"
	"testing"
)

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// RequireWithinPercent fails t if got deviates from want by more than pct percent.
func RequireWithinPercent(t *testing.T, got, want, pct float64) {
	t.Helper()
	if want == 0 {
		t.Fatalf("RequireWithinPercent: want must be non-zero")
	}
	if dev := math.Abs(got-want) / math.Abs(want) * 100; dev > pct {
		t.Fatalf("got %v, want %v within %v%% (deviation %.4f%%)", got, want, pct, dev)
	}
}

// RequireNearlyEqual fails t if |got-want| > eps.
func RequireNearlyEqual(t *testing.T, got, want, eps float64) {
	t.Helper()
	if diff := math.Abs(got - want); diff > eps {
		t.Fatalf("got %v, want %v (diff %v > eps %v)", got, want, diff, eps)
	}
}
