// Package windowing provides analysis windows for the spectral detectors.
// Coefficients come from github.com/mjibson/go-dsp/window and are cached per
// (type, size) because detectors request the same window for every frame.
package windowing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mjibson/go-dsp/window"
)

// Type selects a window function
type Type int

const (
	Hann Type = iota
	Hamming
	Blackman
	Bartlett
	FlatTop
	Rectangular
)

var typeNames = map[Type]string{
	Hann:        "hann",
	Hamming:     "hamming",
	Blackman:    "blackman",
	Bartlett:    "bartlett",
	FlatTop:     "flattop",
	Rectangular: "rectangular",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(t))
}

// ParseType parses a window name such as "hann" (case-insensitive)
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return Hann, fmt.Errorf("unknown window type %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	if _, ok := typeNames[t]; !ok {
		return nil, fmt.Errorf("unknown window type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Type) generator() func(int) []float64 {
	switch t {
	case Hamming:
		return window.Hamming
	case Blackman:
		return window.Blackman
	case Bartlett:
		return window.Bartlett
	case FlatTop:
		return window.FlatTop
	case Rectangular:
		return window.Rectangular
	default:
		return window.Hann
	}
}

type cacheKey struct {
	t    Type
	size int
}

var cache sync.Map // cacheKey -> []float64

// Coefficients returns the window of the given size. The returned slice is
// shared and must not be modified.
func Coefficients(t Type, size int) []float64 {
	if size <= 0 {
		return nil
	}
	key := cacheKey{t: t, size: size}
	if c, ok := cache.Load(key); ok {
		return c.([]float64)
	}

	var coeffs []float64
	if size == 1 {
		// go-dsp divides by size-1
		coeffs = []float64{1}
	} else {
		coeffs = t.generator()(size)
	}
	actual, _ := cache.LoadOrStore(key, coeffs)
	return actual.([]float64)
}

// Apply returns a windowed copy of signal; the input is left untouched
func Apply(t Type, signal []float64) []float64 {
	out := make([]float64, len(signal))
	copy(out, signal)
	ApplyInPlace(t, out)
	return out
}

// ApplyInPlace multiplies signal by the window in place
func ApplyInPlace(t Type, signal []float64) {
	coeffs := Coefficients(t, len(signal))
	for i := range signal {
		signal[i] *= coeffs[i]
	}
}
