package pipeline

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/internal/testutil"
	"github.com/RyanBlaney/sonido-pitch/logging"
	"github.com/RyanBlaney/sonido-pitch/transcode"
)

const (
	testSampleRate = 44100
	testFrameSize  = 4096
)

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) Handle(_ context.Context, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

// bySeq returns the collected results ordered by sequence number
func (c *collector) bySeq() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := slices.Clone(c.results)
	slices.SortFunc(out, func(a, b Result) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out
}

func sineFrame(freq float64) tonal.Frame {
	return tonal.NewFrame(testutil.DeterministicSine(freq, testSampleRate, 0.5, testFrameSize), testSampleRate)
}

func mpmConfig() StaticConfig {
	return StaticConfig(tonal.DefaultConfig().WithAlgorithm(tonal.AlgorithmMpm))
}

func chordConfig() StaticConfig {
	return StaticConfig(tonal.DefaultConfig().WithAlgorithm(tonal.AlgorithmChord))
}

func newTestPipeline(t *testing.T, src ConfigSource, h Handler, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(&logging.NoOpLogger{})}, opts...)
	p, err := New(src, h, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestPipelineProcessesEveryFrame(t *testing.T) {
	c := &collector{}
	p := newTestPipeline(t, mpmConfig(), c, WithWorkers(3), WithQueueSize(4))

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const frames = 10
	for i := range frames {
		seq, err := p.Submit(ctx, sineFrame(440))
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if seq != uint64(i) {
			t.Errorf("Submit %d returned seq %d", i, seq)
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	results := c.bySeq()
	if len(results) != frames {
		t.Fatalf("got %d results, want %d", len(results), frames)
	}
	for i, r := range results {
		if r.Seq != uint64(i) {
			t.Fatalf("result %d has seq %d", i, r.Seq)
		}
		if r.Err != nil {
			t.Errorf("seq %d: %v", r.Seq, r.Err)
			continue
		}
		if r.Status() != StatusPitch {
			t.Errorf("seq %d: status %q, want %q", r.Seq, r.Status(), StatusPitch)
		}
		testutil.RequireWithinPercent(t, r.Detection.Pitch.Pitch, 440, 1)
		if r.Detection.Routed != tonal.AlgorithmMpm {
			t.Errorf("seq %d routed to %v", r.Seq, r.Detection.Routed)
		}
	}
}

func TestPipelineSubmitCopiesSamples(t *testing.T) {
	c := &collector{}
	p := newTestPipeline(t, mpmConfig(), c, WithWorkers(1))

	frame := sineFrame(440)
	ctx := context.Background()
	if _, err := p.Submit(ctx, frame); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// overwrite the caller's buffer before any worker runs
	for i := range frame.Samples {
		frame.Samples[i] = 0
	}

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	results := c.bySeq()
	if len(results) != 1 || !results[0].Detection.Pitch.HasPitch() {
		t.Fatalf("expected the queued copy to keep its pitch, got %+v", results)
	}
}

func TestPipelineGating(t *testing.T) {
	t.Run("pitch", func(t *testing.T) {
		cfg := tonal.DefaultConfig().WithAlgorithm(tonal.AlgorithmMpm)
		cfg.ConfidenceThreshold = 1

		c := &collector{}
		p := newTestPipeline(t, StaticConfig(cfg), c, WithWorkers(1))
		ctx := context.Background()
		if err := p.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Submit(ctx, sineFrame(440)); err != nil {
			t.Fatal(err)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Fatal(err)
		}

		r := c.bySeq()[0]
		if !r.Gated || r.Status() != StatusGated {
			t.Fatalf("expected gated result, got %+v", r)
		}
		if r.Detection.Pitch.Pitch != tonal.NoPitch {
			t.Errorf("gated pitch = %v, want NoPitch", r.Detection.Pitch.Pitch)
		}
		testutil.RequireWithinPercent(t, r.RawPitch.Pitch, 440, 1)
	})

	t.Run("chord", func(t *testing.T) {
		weak := tonal.ChordDetectorFunc(func(tonal.Frame, tonal.DetectorConfig) (tonal.ChordDetectionResult, error) {
			return tonal.ChordDetectionResult{Pitches: []float64{220, 330}, Confidence: 0.2}, nil
		})

		c := &collector{}
		p := newTestPipeline(t, chordConfig(), c, WithWorkers(1), WithChordDetector(weak))
		ctx := context.Background()
		if err := p.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Submit(ctx, sineFrame(220)); err != nil {
			t.Fatal(err)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Fatal(err)
		}

		r := c.bySeq()[0]
		if !r.Gated {
			t.Fatalf("expected gated chord, got %+v", r)
		}
		if r.Detection.Chord.HasPitches() {
			t.Errorf("gated chord kept pitches %v", r.Detection.Chord.Pitches)
		}
		if r.RawChord.Len() != 2 {
			t.Errorf("raw chord = %v, want 2 pitches", r.RawChord.Pitches)
		}
	})

	t.Run("confident chord passes", func(t *testing.T) {
		strong := tonal.ChordDetectorFunc(func(tonal.Frame, tonal.DetectorConfig) (tonal.ChordDetectionResult, error) {
			return tonal.ChordDetectionResult{Pitches: []float64{220}, Confidence: 0.9}, nil
		})

		c := &collector{}
		p := newTestPipeline(t, chordConfig(), c, WithWorkers(1), WithChordDetector(strong))
		ctx := context.Background()
		if err := p.Start(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Submit(ctx, sineFrame(220)); err != nil {
			t.Fatal(err)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Fatal(err)
		}

		if r := c.bySeq()[0]; r.Gated || r.Status() != StatusChord {
			t.Fatalf("expected chord result, got %+v", r)
		}
	})
}

func TestPipelineDropPolicy(t *testing.T) {
	c := &collector{}
	p := newTestPipeline(t, mpmConfig(), c, WithWorkers(1), WithQueueSize(2), WithOverflow(OverflowDrop))

	// workers are not started, so the queue fills up
	ctx := context.Background()
	for i := range 2 {
		if _, err := p.Submit(ctx, sineFrame(440)); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	seq, err := p.Submit(ctx, sineFrame(440))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if seq != 2 {
		t.Errorf("dropped frame seq = %d, want 2", seq)
	}

	if _, err := p.Submit(ctx, sineFrame(440)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(c.bySeq()); n != 0 {
		t.Errorf("Close delivered %d queued frames, want 0", n)
	}
}

func TestPipelineBlockPolicyHonoursContext(t *testing.T) {
	p := newTestPipeline(t, mpmConfig(), &collector{}, WithWorkers(1), WithQueueSize(1))
	defer p.Close()

	if _, err := p.Submit(context.Background(), sineFrame(440)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Submit(ctx, sineFrame(440)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPipelineBlockedSubmitUnblocksOnClose(t *testing.T) {
	p := newTestPipeline(t, mpmConfig(), &collector{}, WithWorkers(1), WithQueueSize(1))

	if _, err := p.Submit(context.Background(), sineFrame(440)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), sineFrame(440))
		errc <- err
	}()

	// give the submitter time to block
	time.Sleep(10 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Submit did not return after Close")
	}
}

func TestPipelineFrameTimeout(t *testing.T) {
	release := make(chan struct{})
	stuck := tonal.ChordDetectorFunc(func(tonal.Frame, tonal.DetectorConfig) (tonal.ChordDetectionResult, error) {
		<-release
		return tonal.ChordDetectionResult{Pitches: []float64{220}, Confidence: 1}, nil
	})

	c := &collector{}
	p := newTestPipeline(t, chordConfig(), c,
		WithWorkers(1),
		WithChordDetector(stuck),
		WithFrameTimeout(20*time.Millisecond),
	)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(ctx, sineFrame(220)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(c.bySeq()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	results := c.bySeq()
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if !errors.Is(r.Err, ErrFrameTimeout) {
		t.Fatalf("expected ErrFrameTimeout, got %v", r.Err)
	}
	if r.Status() != StatusError || r.Detection.Chord.HasPitches() {
		t.Errorf("timed out frame should report an empty chord, got %+v", r)
	}
}

func TestPipelineIsolatesPanics(t *testing.T) {
	var calls int
	var mu sync.Mutex
	flaky := tonal.ChordDetectorFunc(func(tonal.Frame, tonal.DetectorConfig) (tonal.ChordDetectionResult, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("boom")
		}
		return tonal.ChordDetectionResult{Pitches: []float64{220}, Confidence: 1}, nil
	})

	c := &collector{}
	p := newTestPipeline(t, chordConfig(), c, WithWorkers(1), WithChordDetector(flaky))

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := p.Submit(ctx, sineFrame(220)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	results := c.bySeq()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !errors.Is(results[0].Err, ErrDetectorPanic) {
		t.Errorf("first frame: expected ErrDetectorPanic, got %v", results[0].Err)
	}
	if results[1].Err != nil || results[1].Status() != StatusChord {
		t.Errorf("second frame should succeed, got %+v", results[1])
	}
}

func TestPipelineSurvivesHandlerPanic(t *testing.T) {
	var mu sync.Mutex
	var seen []uint64
	h := HandlerFunc(func(_ context.Context, r Result) {
		mu.Lock()
		seen = append(seen, r.Seq)
		mu.Unlock()
		if r.Seq == 0 {
			panic("handler failure")
		}
	})

	p := newTestPipeline(t, mpmConfig(), h, WithWorkers(1))
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if _, err := p.Submit(ctx, sineFrame(440)); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("handler saw %v, want 3 results", seen)
	}
}

func TestPipelineReportsDetectorErrors(t *testing.T) {
	c := &collector{}
	p := newTestPipeline(t, mpmConfig(), c, WithWorkers(1))

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	frames := []tonal.Frame{
		tonal.NewFrame(testutil.DeterministicSine(440, testSampleRate, 0.5, testFrameSize), 0),
		tonal.NewFrame(testutil.DeterministicSine(440, testSampleRate, 0.5, 64), testSampleRate),
	}
	for _, f := range frames {
		if _, err := p.Submit(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	results := c.bySeq()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !errors.Is(results[0].Err, tonal.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, tonal.ErrInsufficientSamples) {
		t.Errorf("expected ErrInsufficientSamples, got %v", results[1].Err)
	}
	for _, r := range results {
		if r.Status() != StatusError || r.Detection.Pitch.Pitch != tonal.NoPitch {
			t.Errorf("seq %d: expected error status with NoPitch, got %+v", r.Seq, r)
		}
	}
}

func TestPipelineLifecycle(t *testing.T) {
	p := newTestPipeline(t, mpmConfig(), &collector{})
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start: expected ErrAlreadyStarted, got %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown after Close: %v", err)
	}

	if _, err := p.Submit(ctx, sineFrame(440)); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close: expected ErrClosed, got %v", err)
	}
	if err := p.Start(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close: expected ErrClosed, got %v", err)
	}
}

func TestPipelineStopsWhenStartContextEnds(t *testing.T) {
	p := newTestPipeline(t, mpmConfig(), &collector{}, WithWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers kept running after the start context ended")
	}
	_ = p.Close()
}

func TestPipelineRunWithFrameReader(t *testing.T) {
	samples := testutil.DeterministicSine(330, testSampleRate, 0.5, 4*testFrameSize)
	data := transcode.EncodePCM16(samples, false)

	fr, err := transcode.NewFrameReader(bytes.NewReader(data), transcode.FrameReaderConfig{
		Encoding:   transcode.PCM16LE,
		SampleRate: testSampleRate,
		FrameSize:  testFrameSize,
	})
	if err != nil {
		t.Fatalf("NewFrameReader: %v", err)
	}

	c := &collector{}
	p := newTestPipeline(t, mpmConfig(), c, WithWorkers(2))
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Run(ctx, fr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	results := c.bySeq()
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("seq %d: %v", r.Seq, r.Err)
		}
		testutil.RequireWithinPercent(t, r.Detection.Pitch.Pitch, 330, 1)
	}
}

func TestShutdownTimesOut(t *testing.T) {
	release := make(chan struct{})
	slow := tonal.ChordDetectorFunc(func(tonal.Frame, tonal.DetectorConfig) (tonal.ChordDetectionResult, error) {
		<-release
		return tonal.ChordDetectionResult{Pitches: []float64{}}, nil
	})

	p := newTestPipeline(t, chordConfig(), &collector{},
		WithWorkers(1),
		WithChordDetector(slow),
		WithFrameTimeout(0),
	)
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(ctx, sineFrame(220)); err != nil {
		t.Fatal(err)
	}

	sctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	// the stuck detection is released only after Shutdown gives up
	time.AfterFunc(100*time.Millisecond, func() { close(release) })
	if err := p.Shutdown(sctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewRejectsBadArguments(t *testing.T) {
	h := HandlerFunc(func(context.Context, Result) {})

	if _, err := New(nil, h); err == nil {
		t.Error("expected error for nil config source")
	}
	if _, err := New(mpmConfig(), nil); err == nil {
		t.Error("expected error for nil handler")
	}
	if _, err := New(mpmConfig(), h, WithOverflow(Overflow(9))); err == nil {
		t.Error("expected error for unknown overflow policy")
	}

	p, err := New(mpmConfig(), h, WithWorkers(3), WithWorkers(-1))
	if err != nil {
		t.Fatal(err)
	}
	if p.Workers() != 3 || p.QueueSize() != 6 {
		t.Errorf("workers=%d queue=%d, want 3 and 6", p.Workers(), p.QueueSize())
	}
}

func TestOverflowText(t *testing.T) {
	tests := []struct {
		in      string
		want    Overflow
		wantErr bool
	}{
		{"block", OverflowBlock, false},
		{"DROP", OverflowDrop, false},
		{"", OverflowBlock, false},
		{"spill", OverflowBlock, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var o Overflow
			err := o.UnmarshalText([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalText(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && o != tt.want {
				t.Errorf("UnmarshalText(%q) = %v, want %v", tt.in, o, tt.want)
			}
		})
	}

	if _, err := Overflow(5).MarshalText(); err == nil {
		t.Error("expected error marshalling unknown policy")
	}
	if got := Overflow(5).String(); got != "Overflow(5)" {
		t.Errorf("String() = %q", got)
	}
}

func BenchmarkPipelineMpm(b *testing.B) {
	p, err := New(mpmConfig(), HandlerFunc(func(context.Context, Result) {}),
		WithLogger(&logging.NoOpLogger{}))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		b.Fatal(err)
	}
	frame := sineFrame(440)

	for b.Loop() {
		if _, err := p.Submit(ctx, frame); err != nil {
			b.Fatal(err)
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		b.Fatal(err)
	}
}
