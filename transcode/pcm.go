// Package transcode turns raw audio bytes into detector frames: fixed-width
// PCM decoding, framing over an io.Reader and an ffmpeg-backed decoder for
// compressed files.
package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrPartialSample is returned when a buffer ends inside a sample
var ErrPartialSample = errors.New("transcode: trailing partial sample")

// Encoding is the sample layout of a raw PCM stream
type Encoding int

const (
	// PCM16BE is signed 16-bit big-endian, the layout of Java-style capture
	// lines
	PCM16BE Encoding = iota
	PCM16LE
	Float32LE
	// Float64LE is what the ffmpeg decoder emits
	Float64LE
)

var encodingNames = [...]string{
	PCM16BE:   "s16be",
	PCM16LE:   "s16le",
	Float32LE: "f32le",
	Float64LE: "f64le",
}

func (e Encoding) String() string {
	if e >= 0 && int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// ParseEncoding accepts the ffmpeg sample format names (s16be, s16le, f32le,
// f64le), case-insensitively
func ParseEncoding(s string) (Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range encodingNames {
		if n == name {
			return Encoding(i), nil
		}
	}
	return PCM16BE, fmt.Errorf("transcode: unknown encoding %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (e Encoding) MarshalText() ([]byte, error) {
	if e < 0 || int(e) >= len(encodingNames) {
		return nil, fmt.Errorf("transcode: unknown encoding %d", int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *Encoding) UnmarshalText(text []byte) error {
	parsed, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// BytesPerSample returns the width of one sample
func (e Encoding) BytesPerSample() int {
	switch e {
	case PCM16BE, PCM16LE:
		return 2
	case Float32LE:
		return 4
	case Float64LE:
		return 8
	default:
		return 0
	}
}

// DecodeInto converts as many whole samples from data as fit in dst and
// returns the count. 16-bit samples are scaled by 1/32768 into [-1, 1).
func DecodeInto(dst []float64, data []byte, enc Encoding) int {
	width := enc.BytesPerSample()
	if width == 0 {
		return 0
	}
	n := min(len(dst), len(data)/width)

	switch enc {
	case PCM16BE:
		for i := range n {
			dst[i] = float64(int16(binary.BigEndian.Uint16(data[2*i:]))) / 32768.0
		}
	case PCM16LE:
		for i := range n {
			dst[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768.0
		}
	case Float32LE:
		for i := range n {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		}
	case Float64LE:
		for i := range n {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	}
	return n
}

// Decode converts a whole buffer. It fails with ErrPartialSample when the
// length is not a multiple of the sample width; the whole samples are still
// returned.
func Decode(data []byte, enc Encoding) ([]float64, error) {
	width := enc.BytesPerSample()
	if width == 0 {
		return nil, fmt.Errorf("transcode: unknown encoding %d", int(enc))
	}

	samples := make([]float64, len(data)/width)
	DecodeInto(samples, data, enc)

	if rem := len(data) % width; rem != 0 {
		return samples, fmt.Errorf("%w: %d of %d bytes", ErrPartialSample, rem, width)
	}
	return samples, nil
}

// EncodePCM16 is the inverse of the 16-bit decoders, clipping to [-1, 1].
// Used to build test fixtures and loopback streams.
func EncodePCM16(samples []float64, bigEndian bool) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := int16(math.Round(max(-1, min(s, 32767.0/32768.0)) * 32768.0))
		if bigEndian {
			binary.BigEndian.PutUint16(out[2*i:], uint16(v))
		} else {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
	}
	return out
}

// downmix averages interleaved channels in place and returns the mono prefix
func downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += samples[i*channels+c]
		}
		samples[i] = sum / float64(channels)
	}
	return samples[:frames]
}
