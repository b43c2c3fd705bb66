package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-pitch/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	SampleRate int           `json:"sample_rate" yaml:"sample_rate"`
	FFmpegPath string        `json:"ffmpeg_path" yaml:"ffmpeg_path"` // Path to ffmpeg binary
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`         // Limit for a whole decode, 0 for none
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		SampleRate: 44100,
		FFmpegPath: "ffmpeg", // Assume in PATH
	}
}

// Decoder converts any container/codec ffmpeg understands into a mono f64le
// stream at the configured sample rate
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// SampleRate returns the rate of the decoded stream
func (d *Decoder) SampleRate() int {
	return d.config.SampleRate
}

// ValidateConfig validates the decoder configuration and checks that ffmpeg
// can be found
func (d *Decoder) ValidateConfig() error {
	if d.config.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", d.config.SampleRate)
	}
	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}
	if _, err := exec.LookPath(d.config.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	return nil
}

func (d *Decoder) buildFFmpegArgs(input string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.SampleRate),
		"-f", Float64LE.String(),
		"pipe:1",
	}
}

// Stream is a running ffmpeg decode. Read yields Float64LE samples.
type Stream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	cancel context.CancelFunc
	logger logging.Logger
	eof    bool

	sampleRate int
}

// StreamFile starts decoding filename
func (d *Decoder) StreamFile(ctx context.Context, filename string) (*Stream, error) {
	return d.start(ctx, filename, nil)
}

// StreamReader starts decoding the bytes read from r
func (d *Decoder) StreamReader(ctx context.Context, r io.Reader) (*Stream, error) {
	return d.start(ctx, "pipe:0", r)
}

func (d *Decoder) start(ctx context.Context, input string, stdin io.Reader) (*Stream, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"input":     input,
	})

	var cancel context.CancelFunc
	if d.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s := &Stream{cancel: cancel, logger: logger, sampleRate: d.config.SampleRate}
	s.cmd = exec.CommandContext(ctx, d.config.FFmpegPath, d.buildFFmpegArgs(input)...)
	s.cmd.Stdin = stdin
	s.cmd.Stderr = &s.stderr

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	s.stdout = stdout

	if err := s.cmd.Start(); err != nil {
		cancel()
		logger.Error(err, "Failed to start ffmpeg")
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	logger.Debug("ffmpeg decode started", logging.Fields{
		"output_sample_rate": d.config.SampleRate,
	})
	return s, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		s.eof = true
	}
	return n, err
}

// Close stops ffmpeg if it is still running and reports its exit status. A
// decode that was cut short by Close is not an error.
func (s *Stream) Close() error {
	if !s.eof {
		s.cancel()
		_ = s.cmd.Wait()
		return nil
	}
	defer s.cancel()

	err := s.cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(s.stderr.String())
		s.logger.Error(err, "ffmpeg failed", logging.Fields{"stderr": msg})
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return err
}

// Frames wraps the stream in a FrameReader. The encoding, channel count and
// sample rate of cfg are replaced by those of the decoded stream.
func (s *Stream) Frames(cfg FrameReaderConfig) (*FrameReader, error) {
	cfg.Encoding = Float64LE
	cfg.Channels = 1
	cfg.SampleRate = s.sampleRate
	return NewFrameReader(s, cfg)
}
