package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/logging"
)

// Environment variables read by ApplyEnv
const (
	EnvLogLevel    = "SONIDO_LOG_LEVEL"
	EnvAlgorithm   = "SONIDO_ALGORITHM"
	EnvWorkers     = "SONIDO_WORKERS"
	EnvMetricsAddr = "SONIDO_METRICS_ADDR"
	EnvFFmpegPath  = "SONIDO_FFMPEG_PATH"
)

// ApplyEnv overrides cfg with any SONIDO_* variables that are set and
// revalidates it
func ApplyEnv(cfg *Config) error {
	var errs []error

	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		level, err := logging.ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLogLevel, err))
		} else {
			cfg.Logging.Level = level
		}
	}
	if v, ok := os.LookupEnv(EnvAlgorithm); ok {
		a, err := tonal.ParseAlgorithm(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvAlgorithm, err))
		} else {
			cfg.Detector.Algorithm = a
		}
	}
	if v, ok := os.LookupEnv(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvWorkers, err))
		} else {
			cfg.Pipeline.Workers = n
		}
	}
	if v, ok := os.LookupEnv(EnvMetricsAddr); ok {
		cfg.Metrics.Addr = v
	}
	if v, ok := os.LookupEnv(EnvFFmpegPath); ok {
		cfg.Input.FFmpegPath = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return Validate(cfg)
}
