package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/algorithms/windowing"
	"github.com/RyanBlaney/sonido-pitch/config"
	"github.com/RyanBlaney/sonido-pitch/logging"
	"github.com/RyanBlaney/sonido-pitch/pipeline"
	"github.com/RyanBlaney/sonido-pitch/transcode"
)

const validYAML = `
detector:
  algorithm: hybrid
  min_frequency: 100
  confidence_threshold: 0.6
  chord:
    window: blackman
pipeline:
  workers: 2
  frame_timeout: 500ms
  overflow: drop
input:
  encoding: s16be
  frame_size: 2048
logging:
  level: debug
metrics:
  addr: ":9464"
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Detector.Algorithm != tonal.AlgorithmHybrid {
		t.Errorf("algorithm = %v", cfg.Detector.Algorithm)
	}
	if cfg.Detector.MinFrequency != 100 || cfg.Detector.ConfidenceThreshold != 0.6 {
		t.Errorf("detector = %+v", cfg.Detector)
	}
	if cfg.Detector.Chord.Window != windowing.Blackman {
		t.Errorf("chord window = %v", cfg.Detector.Chord.Window)
	}
	if cfg.Pipeline.Workers != 2 || cfg.Pipeline.FrameTimeout != 500*time.Millisecond || cfg.Pipeline.Overflow != pipeline.OverflowDrop {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Input.Encoding != transcode.PCM16BE || cfg.Input.FrameSize != 2048 {
		t.Errorf("input = %+v", cfg.Input)
	}
	if cfg.Logging.Level != logging.DebugLevel {
		t.Errorf("level = %v", cfg.Logging.Level)
	}
	if cfg.Metrics.Addr != ":9464" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("pipeline:\n  workers: 4\n"))
	if err != nil {
		t.Fatal(err)
	}

	want := config.Default()
	want.Pipeline.Workers = 4
	if cfg.Detector != want.Detector || cfg.Pipeline != want.Pipeline || cfg.Input != want.Input {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Detector != tonal.DefaultConfig() {
		t.Error("empty document should yield the defaults")
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "pipeline:\n  threads: 4\n"},
		{"unknown algorithm", "detector:\n  algorithm: autocorrelation\n"},
		{"unknown overflow", "pipeline:\n  overflow: spill\n"},
		{"unknown encoding", "input:\n  encoding: mp3\n"},
		{"bad duration", "pipeline:\n  frame_timeout: soon\n"},
		{"invalid values", "detector:\n  min_frequency: 500\n  max_frequency: 400\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.LoadFromReader(strings.NewReader(tt.yaml)); err == nil {
				t.Fatalf("expected error for %q", tt.yaml)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonido.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("workers = %d", cfg.Pipeline.Workers)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestMarshalLoadsBack(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.FrameTimeout = 750 * time.Millisecond
	cfg.Pipeline.Overflow = pipeline.OverflowDrop
	cfg.Detector.Algorithm = tonal.AlgorithmChord

	data, err := config.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "frame_timeout: 750ms") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	back, err := config.LoadFromReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if back.Detector != cfg.Detector || back.Pipeline != cfg.Pipeline {
		t.Errorf("reloaded config differs:\n got %+v\nwant %+v", back, cfg)
	}
}
