// Command sonido-pitch prints the pitch or chord of every frame of an audio
// stream. Input is either raw PCM on stdin or any file ffmpeg can decode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/config"
	"github.com/RyanBlaney/sonido-pitch/internal/observe"
	"github.com/RyanBlaney/sonido-pitch/logging"
	"github.com/RyanBlaney/sonido-pitch/pipeline"
	"github.com/RyanBlaney/sonido-pitch/transcode"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML configuration file (defaults are used when empty)")
	input := flag.String("input", "-", `audio file to decode with ffmpeg, or "-" for raw PCM on stdin`)
	algorithm := flag.String("algorithm", "", "override detector.algorithm (yin, mpm, fft, hybrid, chord)")
	watch := flag.Bool("watch", false, "reload detector settings when the config file changes")
	jsonOut := flag.Bool("json", false, "print one JSON object per frame")
	quiet := flag.Bool("quiet", false, "only print frames with a detected pitch or chord")
	noColor := flag.Bool("no-color", false, "disable colored log output")
	logJSON := flag.Bool("log-json", false, "write logs as JSON to stderr through log/slog")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath, *algorithm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonido-pitch: %v\n", err)
		return 2
	}

	logger := newLogger(*logJSON, os.Stderr, cfg.Logging.Level)
	logging.SetGlobalLogger(logger)
	if *noColor {
		logging.DisableColors()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(cfg)

	metrics, shutdownMetrics, err := startMetrics(ctx, cfg.Metrics, logger)
	if err != nil {
		logger.Error(err, "Failed to start metrics")
		return 1
	}
	defer shutdownMetrics()

	if *watch && *configPath != "" {
		w, err := config.NewWatcher(*configPath, reloader(store, logger, *algorithm))
		if err != nil {
			logger.Error(err, "Failed to watch config", logging.Fields{"path": *configPath})
			return 1
		}
		defer w.Stop()
	}

	src, closeSrc, err := openInput(ctx, *input, cfg.Input)
	if err != nil {
		logger.Error(err, "Failed to open input", logging.Fields{"input": *input})
		return 1
	}
	defer closeSrc()

	hop := cfg.Input.HopSize
	if hop == 0 {
		hop = cfg.Input.FrameSize
	}
	out := &printer{
		w:          os.Stdout,
		json:       *jsonOut,
		hopSeconds: float64(hop) / float64(cfg.Input.SampleRate),
		quiet:      *quiet,
	}

	opts := append(cfg.Pipeline.Options(), pipeline.WithMetrics(metrics), pipeline.WithLogger(logger))
	p, err := pipeline.New(store, out, opts...)
	if err != nil {
		logger.Error(err, "Failed to create pipeline")
		return 1
	}
	if err := p.Start(ctx); err != nil {
		logger.Error(err, "Failed to start pipeline")
		return 1
	}

	logger.Info("Detecting", logging.Fields{
		"version":   version,
		"input":     *input,
		"algorithm": cfg.Detector.Algorithm.String(),
		"workers":   p.Workers(),
	})

	runErr := p.Run(ctx, src)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.Shutdown(sctx); err != nil {
		logger.Warn("Pipeline did not drain", logging.Fields{"error": err.Error()})
	}

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, pipeline.ErrClosed):
		logger.Info("Interrupted")
		return 130
	default:
		logger.Error(runErr, "Input failed")
		return 1
	}
}

func loadConfig(path, algorithm string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := applyOverrides(cfg, algorithm); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides layers the environment and the -algorithm flag over cfg
func applyOverrides(cfg *config.Config, algorithm string) error {
	if err := config.ApplyEnv(cfg); err != nil {
		return err
	}
	if algorithm == "" {
		return nil
	}
	a, err := tonal.ParseAlgorithm(algorithm)
	if err != nil {
		return err
	}
	cfg.Detector.Algorithm = a
	return config.Validate(cfg)
}

// newLogger returns the colored default logger, or a JSON slog logger on
// errOut when jsonLogs is set
func newLogger(jsonLogs bool, errOut io.Writer, level logging.Level) logging.Logger {
	var logger logging.Logger
	if jsonLogs {
		logger = logging.NewSlogLogger(slog.New(slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		logger = logging.NewDefaultLogger()
	}
	logger.SetLevel(level)
	return logger
}

func reloader(store *config.Store, logger logging.Logger, algorithm string) func(old, new *config.Config) {
	return func(_, next *config.Config) {
		if err := applyOverrides(next, algorithm); err != nil {
			logger.Warn("Ignoring reloaded config", logging.Fields{"error": err.Error()})
			return
		}

		d := config.Diff(store.Load(), next)
		if d.LogLevelChanged {
			logger.SetLevel(next.Logging.Level)
		}
		if d.NeedsRestart() {
			logger.Warn("Pipeline, input and metrics changes apply on restart")
		}
		if !d.DetectorChanged && !d.LogLevelChanged {
			return
		}

		// keep the running pipeline's sizing; only detector and logging swap live
		current := *store.Load()
		current.Detector = next.Detector
		current.Logging = next.Logging
		if err := store.Update(&current); err != nil {
			logger.Warn("Ignoring reloaded config", logging.Fields{"error": err.Error()})
			return
		}
		logger.Info("Detector settings updated", logging.Fields{"algorithm": current.Detector.Algorithm.String()})
	}
}

// openInput returns a frame source for input and a function releasing it
func openInput(ctx context.Context, input string, in config.InputConfig) (pipeline.FrameSource, func(), error) {
	if input == "-" {
		fr, err := transcode.NewFrameReader(os.Stdin, in.FrameReaderConfig())
		return fr, func() {}, err
	}

	dec := transcode.NewDecoder(in.DecoderConfig())
	if err := dec.ValidateConfig(); err != nil {
		return nil, nil, err
	}
	stream, err := dec.StreamFile(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	fr, err := stream.Frames(in.FrameReaderConfig())
	if err != nil {
		_ = stream.Close()
		return nil, nil, err
	}
	return fr, func() {
		if err := stream.Close(); err != nil {
			logging.Warn("Decoder exited with an error", logging.Fields{"error": err.Error()})
		}
	}, nil
}

// startMetrics serves Prometheus metrics when cfg.Addr is set. Without an
// address the pipeline records into a no-op provider.
func startMetrics(ctx context.Context, cfg config.MetricsConfig, logger logging.Logger) (*pipeline.Metrics, func(), error) {
	if cfg.Addr == "" {
		return nil, func() {}, nil
	}

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version, Global: true})
	if err != nil {
		return nil, nil, err
	}
	metrics, err := pipeline.NewMetrics(provider.MeterProvider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, provider.Handler())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", logging.Fields{"addr": cfg.Addr, "path": cfg.Path})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Metrics server failed")
		}
	}()

	return metrics, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
		_ = provider.Shutdown(sctx)
	}, nil
}
