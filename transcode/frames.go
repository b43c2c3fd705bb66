package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/RyanBlaney/sonido-pitch/algorithms/common"
	"github.com/RyanBlaney/sonido-pitch/algorithms/filters"
	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
)

// FrameReaderConfig describes the byte stream and the frames cut from it
type FrameReaderConfig struct {
	Encoding   Encoding
	SampleRate int
	Channels   int // interleaved channels averaged to mono; 0 means 1
	FrameSize  int
	HopSize    int // 0 means FrameSize (no overlap)

	// DCCutoffHz enables a DC blocking filter with this cutoff; 0 disables it
	DCCutoffHz float64
}

// FrameReader cuts a PCM byte stream into detector frames. Frames may
// overlap or skip samples depending on the hop size. A trailing partial
// frame is dropped.
type FrameReader struct {
	r      io.Reader
	cfg    FrameReaderConfig
	window *common.SlidingWindow
	dc     *filters.DCBlocker

	raw     []byte
	carry   int // bytes of an incomplete sample group at the start of raw
	samples []float64
	ready   [][]float64
	err     error
}

// NewFrameReader creates a reader over r
func NewFrameReader(r io.Reader, cfg FrameReaderConfig) (*FrameReader, error) {
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	width := cfg.Encoding.BytesPerSample()
	switch {
	case width == 0:
		return nil, fmt.Errorf("transcode: unknown encoding %d", int(cfg.Encoding))
	case cfg.SampleRate <= 0:
		return nil, fmt.Errorf("transcode: sample rate must be > 0, got %d", cfg.SampleRate)
	case cfg.Channels < 0:
		return nil, fmt.Errorf("transcode: channels must be > 0, got %d", cfg.Channels)
	case cfg.FrameSize <= 0:
		return nil, fmt.Errorf("transcode: frame size must be > 0, got %d", cfg.FrameSize)
	case cfg.HopSize < 0:
		return nil, fmt.Errorf("transcode: hop size must be >= 0, got %d", cfg.HopSize)
	case cfg.DCCutoffHz < 0 || cfg.DCCutoffHz >= float64(cfg.SampleRate)/2:
		return nil, fmt.Errorf("transcode: dc cutoff must be in [0, %d), got %v", cfg.SampleRate/2, cfg.DCCutoffHz)
	}

	chunk := cfg.FrameSize * cfg.Channels
	fr := &FrameReader{
		r:       r,
		cfg:     cfg,
		window:  common.NewSlidingWindow(cfg.FrameSize, cfg.HopSize),
		raw:     make([]byte, chunk*width),
		samples: make([]float64, chunk),
	}
	if cfg.DCCutoffHz > 0 {
		fr.dc = filters.NewDCBlocker(cfg.SampleRate, cfg.DCCutoffHz)
	}
	return fr, nil
}

// NextFrame returns the next complete frame, or io.EOF once the stream is
// exhausted. The returned samples are owned by the caller.
func (fr *FrameReader) NextFrame(ctx context.Context) (tonal.Frame, error) {
	for len(fr.ready) == 0 {
		if fr.err != nil {
			return tonal.Frame{}, fr.err
		}
		if err := ctx.Err(); err != nil {
			return tonal.Frame{}, err
		}
		fr.fill()
	}

	samples := fr.ready[0]
	fr.ready[0] = nil
	fr.ready = fr.ready[1:]
	return tonal.NewFrame(samples, fr.cfg.SampleRate), nil
}

func (fr *FrameReader) fill() {
	n, err := fr.r.Read(fr.raw[fr.carry:])
	total := fr.carry + n

	group := fr.cfg.Encoding.BytesPerSample() * fr.cfg.Channels
	whole := total / group * group
	if whole > 0 {
		count := DecodeInto(fr.samples, fr.raw[:whole], fr.cfg.Encoding)
		mono := downmix(fr.samples[:count], fr.cfg.Channels)
		if fr.dc != nil {
			fr.dc.ProcessInPlace(mono)
		}
		fr.ready = append(fr.ready, fr.window.AddSamples(mono)...)
	}
	fr.carry = copy(fr.raw, fr.raw[whole:total])

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		fr.err = io.EOF
	default:
		fr.err = fmt.Errorf("transcode: read: %w", err)
	}
}

// Frames is a convenience that reads every frame of r into memory
func Frames(ctx context.Context, r io.Reader, cfg FrameReaderConfig) ([]tonal.Frame, error) {
	fr, err := NewFrameReader(r, cfg)
	if err != nil {
		return nil, err
	}

	var frames []tonal.Frame
	for {
		f, err := fr.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}
