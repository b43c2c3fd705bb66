// Package config holds the application configuration: detector settings,
// pipeline sizing, logging and metrics. Configs are loaded from YAML,
// validated as a whole and published through a Store so running pipelines
// pick up detector changes without a restart.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/logging"
	"github.com/RyanBlaney/sonido-pitch/pipeline"
	"github.com/RyanBlaney/sonido-pitch/transcode"
)

// Config is the top-level configuration
type Config struct {
	Detector tonal.DetectorConfig `yaml:"detector" json:"detector"`
	Pipeline PipelineConfig       `yaml:"pipeline" json:"pipeline"`
	Input    InputConfig          `yaml:"input" json:"input"`
	Logging  LoggingConfig        `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig        `yaml:"metrics" json:"metrics"`
}

// PipelineConfig sizes the worker pool and its queue. Changes take effect on
// the next start.
type PipelineConfig struct {
	Workers      int               `yaml:"workers" json:"workers"`       // 0 means one per CPU
	QueueSize    int               `yaml:"queue_size" json:"queue_size"` // 0 means twice the workers
	FrameTimeout time.Duration     `yaml:"frame_timeout" json:"frame_timeout"`
	Overflow     pipeline.Overflow `yaml:"overflow" json:"overflow"`
}

// InputConfig describes how raw audio is cut into frames
type InputConfig struct {
	SampleRate int                `yaml:"sample_rate" json:"sample_rate"`
	Channels   int                `yaml:"channels" json:"channels"`
	FrameSize  int                `yaml:"frame_size" json:"frame_size"`
	HopSize    int                `yaml:"hop_size" json:"hop_size"` // 0 means FrameSize
	Encoding   transcode.Encoding `yaml:"encoding" json:"encoding"` // raw PCM on stdin
	FFmpegPath string             `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	DCCutoffHz float64            `yaml:"dc_cutoff_hz" json:"dc_cutoff_hz"` // 0 disables DC removal
}

type LoggingConfig struct {
	Level logging.Level `yaml:"level" json:"level"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint; empty disables it
	Addr string `yaml:"addr" json:"addr"`
	Path string `yaml:"path" json:"path"`
}

// Default returns a complete, valid configuration
func Default() *Config {
	return &Config{
		Detector: tonal.DefaultConfig(),
		Pipeline: PipelineConfig{
			FrameTimeout: pipeline.DefaultFrameTimeout,
			Overflow:     pipeline.OverflowBlock,
		},
		Input: InputConfig{
			SampleRate: 44100,
			Channels:   1,
			FrameSize:  4096,
			Encoding:   transcode.PCM16LE,
			FFmpegPath: "ffmpeg",
			DCCutoffHz: 10,
		},
		Logging: LoggingConfig{Level: logging.InfoLevel},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// Validate checks the whole configuration and reports every problem found
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := cfg.Detector.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}

	p := cfg.Pipeline
	if p.Workers < 0 {
		add("pipeline.workers must be >= 0, got %d", p.Workers)
	}
	if p.QueueSize < 0 {
		add("pipeline.queue_size must be >= 0, got %d", p.QueueSize)
	}
	if p.FrameTimeout < 0 {
		add("pipeline.frame_timeout must be >= 0, got %v", p.FrameTimeout)
	}
	if !p.Overflow.Valid() {
		add("pipeline.overflow: unknown policy %v", p.Overflow)
	}

	in := cfg.Input
	if in.SampleRate <= 0 {
		add("input.sample_rate must be > 0, got %d", in.SampleRate)
	}
	if in.Channels < 0 {
		add("input.channels must be >= 0, got %d", in.Channels)
	}
	if in.DCCutoffHz < 0 || (in.SampleRate > 0 && in.DCCutoffHz >= float64(in.SampleRate)/2) {
		add("input.dc_cutoff_hz must be in [0, sample_rate/2), got %v", in.DCCutoffHz)
	} else if in.DCCutoffHz >= cfg.Detector.MinFrequency && in.DCCutoffHz > 0 {
		add("input.dc_cutoff_hz %v must be below detector.min_frequency %v", in.DCCutoffHz, cfg.Detector.MinFrequency)
	}
	if in.HopSize < 0 {
		add("input.hop_size must be >= 0, got %d", in.HopSize)
	}
	if in.FrameSize <= 0 {
		add("input.frame_size must be > 0, got %d", in.FrameSize)
	} else if in.SampleRate > 0 && cfg.Detector.MinFrequency > 0 {
		if need := tonal.RequiredSamples(in.SampleRate, cfg.Detector); in.FrameSize < need {
			add("input.frame_size %d too small: %v needs %d samples for %v Hz at %d Hz",
				in.FrameSize, cfg.Detector.Algorithm, need, cfg.Detector.MinFrequency, in.SampleRate)
		}
	}
	if nyquist := float64(in.SampleRate) / 2; in.SampleRate > 0 && cfg.Detector.MaxFrequency > nyquist {
		add("detector.max_frequency %v above Nyquist %v for input.sample_rate %d",
			cfg.Detector.MaxFrequency, nyquist, in.SampleRate)
	}

	if cfg.Metrics.Addr != "" && cfg.Metrics.Path == "" {
		add("metrics.path must be set when metrics.addr is")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// Options returns the pipeline options for p
func (p PipelineConfig) Options() []pipeline.Option {
	workers := p.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return []pipeline.Option{
		pipeline.WithWorkers(workers),
		pipeline.WithQueueSize(p.QueueSize),
		pipeline.WithFrameTimeout(p.FrameTimeout),
		pipeline.WithOverflow(p.Overflow),
	}
}

// FrameReaderConfig returns the framing for raw PCM input
func (in InputConfig) FrameReaderConfig() transcode.FrameReaderConfig {
	return transcode.FrameReaderConfig{
		Encoding:   in.Encoding,
		SampleRate: in.SampleRate,
		Channels:   in.Channels,
		FrameSize:  in.FrameSize,
		HopSize:    in.HopSize,
		DCCutoffHz: in.DCCutoffHz,
	}
}

// DecoderConfig returns the ffmpeg decoder settings for file input
func (in InputConfig) DecoderConfig() *transcode.DecoderConfig {
	cfg := transcode.DefaultDecoderConfig()
	cfg.SampleRate = in.SampleRate
	if in.FFmpegPath != "" {
		cfg.FFmpegPath = in.FFmpegPath
	}
	return cfg
}
