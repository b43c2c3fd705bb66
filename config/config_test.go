package config_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/config"
	"github.com/RyanBlaney/sonido-pitch/pipeline"
)

func TestDefaultIsValid(t *testing.T) {
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"negative workers", func(c *config.Config) { c.Pipeline.Workers = -1 }, "pipeline.workers"},
		{"negative queue", func(c *config.Config) { c.Pipeline.QueueSize = -4 }, "pipeline.queue_size"},
		{"negative timeout", func(c *config.Config) { c.Pipeline.FrameTimeout = -time.Second }, "pipeline.frame_timeout"},
		{"unknown overflow", func(c *config.Config) { c.Pipeline.Overflow = pipeline.Overflow(7) }, "pipeline.overflow"},
		{"zero sample rate", func(c *config.Config) { c.Input.SampleRate = 0 }, "input.sample_rate"},
		{"zero frame size", func(c *config.Config) { c.Input.FrameSize = 0 }, "input.frame_size"},
		{"frame too short for YIN", func(c *config.Config) { c.Input.FrameSize = 512 }, "too small"},
		{"max above Nyquist", func(c *config.Config) { c.Input.SampleRate = 8000 }, "Nyquist"},
		{"metrics without path", func(c *config.Config) {
			c.Metrics.Addr = ":9090"
			c.Metrics.Path = ""
		}, "metrics.path"},
		{"bad detector", func(c *config.Config) { c.Detector.ConfidenceThreshold = 2 }, "detector:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Workers = -1
	cfg.Input.HopSize = -1
	cfg.Input.Channels = -2

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"pipeline.workers", "input.hop_size", "input.channels"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestFrameSizeFollowsAlgorithm(t *testing.T) {
	cfg := config.Default()
	cfg.Input.FrameSize = 600

	// 600 samples cover the FFT detector at 80 Hz but not YIN
	cfg.Detector.Algorithm = tonal.AlgorithmFFT
	if err := config.Validate(cfg); err != nil {
		t.Errorf("FFT with 600 samples: %v", err)
	}
	cfg.Detector.Algorithm = tonal.AlgorithmHybrid
	if err := config.Validate(cfg); err == nil {
		t.Error("HYBRID with 600 samples should need the longest detector frame")
	}
}

func TestPipelineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Workers = 3
	cfg.Pipeline.Overflow = pipeline.OverflowDrop

	p, err := pipeline.New(pipeline.StaticConfig(cfg.Detector), pipeline.HandlerFunc(func(context.Context, pipeline.Result) {}), cfg.Pipeline.Options()...)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.Workers() != 3 || p.QueueSize() != 6 {
		t.Errorf("workers=%d queue=%d, want 3 and 6", p.Workers(), p.QueueSize())
	}
}

func TestInputConversions(t *testing.T) {
	in := config.Default().Input
	in.HopSize = 1024
	in.FFmpegPath = "/opt/ffmpeg/bin/ffmpeg"

	fr := in.FrameReaderConfig()
	if fr.FrameSize != in.FrameSize || fr.HopSize != 1024 || fr.SampleRate != in.SampleRate {
		t.Errorf("FrameReaderConfig() = %+v", fr)
	}

	dc := in.DecoderConfig()
	if dc.SampleRate != in.SampleRate || dc.FFmpegPath != in.FFmpegPath {
		t.Errorf("DecoderConfig() = %+v", dc)
	}
}
