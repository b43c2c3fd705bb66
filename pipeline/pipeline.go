// Package pipeline runs the pitch engine over a stream of frames: a producer
// feeds a bounded queue drained by a fixed pool of workers, and every result
// is handed to a Handler.
//
// Results carry a monotonically increasing sequence number but may be
// delivered out of order when more than one worker runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-pitch/algorithms/tonal"
	"github.com/RyanBlaney/sonido-pitch/logging"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrClosed is returned by Start, Submit and Run after Close or Shutdown
	ErrClosed = errors.New("pipeline: closed")
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("pipeline: already started")
	// ErrQueueFull is returned by Submit under OverflowDrop when the queue
	// has no room; the frame is counted as dropped
	ErrQueueFull = errors.New("pipeline: queue full")
	// ErrFrameTimeout is reported in Result.Err when a detection outlives the
	// frame timeout
	ErrFrameTimeout = errors.New("pipeline: frame timed out")
	// ErrDetectorPanic is reported in Result.Err when a detector panicked
	ErrDetectorPanic = errors.New("pipeline: detector panicked")
)

// DefaultFrameTimeout bounds how long a worker waits for one detection
const DefaultFrameTimeout = 2 * time.Second

// ConfigSource supplies the detector configuration. It is read once per
// frame, so a source backed by an atomic snapshot can be swapped at runtime.
type ConfigSource interface {
	Detector() tonal.DetectorConfig
}

// StaticConfig is a ConfigSource that never changes
type StaticConfig tonal.DetectorConfig

// Detector implements ConfigSource
func (c StaticConfig) Detector() tonal.DetectorConfig {
	return tonal.DetectorConfig(c)
}

// FrameSource produces frames until it returns io.EOF
type FrameSource interface {
	NextFrame(ctx context.Context) (tonal.Frame, error)
}

// Result is delivered once per accepted frame
type Result struct {
	Seq uint64

	// Detection after confidence gating
	Detection tonal.Detection

	// Gated is set when a pitch or chord was found but fell below the
	// configured confidence threshold and was removed from Detection
	Gated bool

	// Raw detector output before gating
	RawPitch tonal.PitchDetectionResult
	RawChord tonal.ChordDetectionResult

	Duration time.Duration
	Err      error
}

// Status summarises the outcome for logs and metrics
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return StatusError
	case r.Gated:
		return StatusGated
	case r.Detection.IsChord() && r.Detection.Chord.HasPitches():
		return StatusChord
	case !r.Detection.IsChord() && r.Detection.Pitch.HasPitch():
		return StatusPitch
	default:
		return StatusNone
	}
}

// Handler consumes results. It is called from worker goroutines and must be
// safe for concurrent use when more than one worker runs.
type Handler interface {
	Handle(ctx context.Context, r Result)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, r Result)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, r Result) {
	f(ctx, r)
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithWorkers sets the worker count. The default is runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity. The default is twice the worker
// count.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithFrameTimeout bounds the wait for a single detection. Zero waits
// forever.
func WithFrameTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.frameTimeout = d
		}
	}
}

// WithOverflow selects what Submit does when the queue is full
func WithOverflow(o Overflow) Option {
	return func(p *Pipeline) {
		p.overflow = o
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metric instruments
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithChordDetector replaces the chord detector used for CHORD frames
func WithChordDetector(cd tonal.ChordDetector) Option {
	return func(p *Pipeline) {
		p.engine = tonal.NewEngine(tonal.WithChordDetector(cd))
	}
}

type job struct {
	seq   uint64
	frame tonal.Frame
}

// Pipeline is a bounded producer/worker pool around tonal.Engine
type Pipeline struct {
	source  ConfigSource
	handler Handler
	engine  *tonal.Engine

	workers      int
	queueSize    int
	frameTimeout time.Duration
	overflow     Overflow
	logger       logging.Logger
	metrics      *Metrics

	queue chan job
	seq   atomic.Uint64

	// mu orders queue sends against closing the queue
	mu      sync.RWMutex
	started bool
	closed  bool
	group   *errgroup.Group

	done      chan struct{} // closed when the pipeline stops accepting frames
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// New creates a pipeline reading its detector configuration from source and
// delivering results to handler. Call Start to launch the workers.
func New(source ConfigSource, handler Handler, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("pipeline: nil config source")
	}
	if handler == nil {
		return nil, errors.New("pipeline: nil handler")
	}

	p := &Pipeline{
		source:       source,
		handler:      handler,
		engine:       tonal.NewEngine(),
		workers:      runtime.NumCPU(),
		frameTimeout: DefaultFrameTimeout,
		overflow:     OverflowBlock,
		logger:       logging.WithFields(logging.Fields{"component": "pipeline"}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.queueSize == 0 {
		p.queueSize = 2 * p.workers
	}
	if p.metrics == nil {
		p.metrics = noopMetrics()
	}
	if !p.overflow.Valid() {
		return nil, fmt.Errorf("pipeline: unknown overflow policy %d", int(p.overflow))
	}

	p.queue = make(chan job, p.queueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// Workers returns the worker count
func (p *Pipeline) Workers() int { return p.workers }

// QueueSize returns the queue capacity
func (p *Pipeline) QueueSize() int { return p.queueSize }

// Start launches the workers. Cancelling ctx stops them as Close does,
// without waiting.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	context.AfterFunc(ctx, p.cancel)

	g, gctx := errgroup.WithContext(p.ctx)
	for range p.workers {
		g.Go(func() error {
			p.work(gctx)
			return nil
		})
	}
	p.group = g

	p.logger.Info("Pipeline started", logging.Fields{
		"workers":    p.workers,
		"queue_size": p.queueSize,
		"overflow":   p.overflow.String(),
	})
	return nil
}

// Submit enqueues a copy of frame and returns its sequence number. With
// OverflowBlock it waits for room until ctx is done or the pipeline closes;
// with OverflowDrop a full queue fails immediately with ErrQueueFull. A
// dropped frame still consumes a sequence number.
func (p *Pipeline) Submit(ctx context.Context, frame tonal.Frame) (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrClosed
	}

	j := job{
		seq:   p.seq.Add(1) - 1,
		frame: tonal.NewFrame(slices.Clone(frame.Samples), frame.SampleRate),
	}

	if p.overflow == OverflowDrop {
		select {
		case p.queue <- j:
			p.metrics.QueueDepth.Add(ctx, 1)
			return j.seq, nil
		default:
			p.metrics.Dropped.Add(ctx, 1)
			return j.seq, ErrQueueFull
		}
	}

	select {
	case p.queue <- j:
		p.metrics.QueueDepth.Add(ctx, 1)
		return j.seq, nil
	case <-ctx.Done():
		return j.seq, ctx.Err()
	case <-p.done:
		return j.seq, ErrClosed
	}
}

// Run submits every frame from src until it returns io.EOF, ctx is done or
// the pipeline closes. Frames rejected with ErrQueueFull are skipped.
func (p *Pipeline) Run(ctx context.Context, src FrameSource) error {
	for {
		frame, err := src.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := p.Submit(ctx, frame); err != nil && !errors.Is(err, ErrQueueFull) {
			return err
		}
	}
}

// Shutdown stops accepting frames and waits for the queued ones to be
// processed. If ctx ends first the remaining frames are discarded as in
// Close and ctx's error is returned.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.stopAccepting()

	drained := make(chan struct{})
	go func() {
		p.wait()
		close(drained)
	}()

	select {
	case <-drained:
		return p.Close()
	case <-ctx.Done():
		_ = p.Close()
		return ctx.Err()
	}
}

// Close stops accepting frames, signals the workers to stop after their
// current frame, waits for in-flight detections and discards whatever is
// still queued. It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.stopAccepting()
	p.cancel()
	p.wait()

	p.closeOnce.Do(func() {
		discarded := 0
		for range p.queue {
			p.metrics.QueueDepth.Add(context.Background(), -1)
			p.metrics.Dropped.Add(context.Background(), 1)
			discarded++
		}
		p.logger.Info("Pipeline closed", logging.Fields{
			"submitted": p.seq.Load(),
			"discarded": discarded,
		})
	})
	return nil
}

func (p *Pipeline) stopAccepting() {
	p.stopOnce.Do(func() {
		// wake blocked senders before taking the write lock
		close(p.done)

		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
}

func (p *Pipeline) wait() {
	p.mu.RLock()
	g := p.group
	p.mu.RUnlock()

	if g != nil {
		_ = g.Wait()
	}
	p.inflight.Wait()
}

func (p *Pipeline) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.metrics.QueueDepth.Add(context.Background(), -1)

			// cancellation is honoured between frames
			if ctx.Err() != nil {
				p.metrics.Dropped.Add(context.Background(), 1)
				return
			}
			p.process(ctx, j)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, j job) {
	cfg := p.source.Detector()

	start := time.Now()
	d, err := p.detect(j.frame, cfg)
	elapsed := time.Since(start)

	r := gate(j.seq, d, err, cfg)
	r.Duration = elapsed

	p.metrics.recordFrame(ctx, r, elapsed)
	p.logResult(r)
	p.deliver(logging.ContextWithFields(ctx, logging.Fields{"seq": j.seq}), r)
}

type outcome struct {
	d   tonal.Detection
	err error
}

// detect runs the engine in its own goroutine so a stuck or panicking
// detector cannot take the worker down. A timed-out detection keeps running
// and is awaited by Close.
func (p *Pipeline) detect(frame tonal.Frame, cfg tonal.DetectorConfig) (tonal.Detection, error) {
	out := make(chan outcome, 1)

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				out <- outcome{
					d:   tonal.EmptyDetection(frame, cfg),
					err: fmt.Errorf("%w: %v", ErrDetectorPanic, rec),
				}
			}
		}()
		d, err := p.engine.Detect(frame, cfg)
		out <- outcome{d: d, err: err}
	}()

	if p.frameTimeout <= 0 {
		o := <-out
		return o.d, o.err
	}

	timer := time.NewTimer(p.frameTimeout)
	defer timer.Stop()

	select {
	case o := <-out:
		return o.d, o.err
	case <-timer.C:
		return tonal.EmptyDetection(frame, cfg), fmt.Errorf("%w after %v", ErrFrameTimeout, p.frameTimeout)
	}
}

// gate applies the confidence thresholds of cfg to d
func gate(seq uint64, d tonal.Detection, err error, cfg tonal.DetectorConfig) Result {
	r := Result{
		Seq:       seq,
		Detection: d,
		RawPitch:  d.Pitch,
		RawChord:  d.Chord,
		Err:       err,
	}
	if err != nil {
		return r
	}

	if d.IsChord() {
		if d.Chord.HasPitches() && d.Chord.Confidence < cfg.ChordConfidenceThreshold {
			r.Gated = true
			r.Detection.Chord = tonal.ChordDetectionResult{Pitches: []float64{}}
		}
		return r
	}

	if d.Pitch.HasPitch() && d.Pitch.Confidence < cfg.ConfidenceThreshold {
		r.Gated = true
		r.Detection.Pitch = tonal.PitchDetectionResult{Pitch: tonal.NoPitch}
	}
	return r
}

func (p *Pipeline) logResult(r Result) {
	if r.Err == nil {
		return
	}
	fields := logging.Fields{
		"seq":       r.Seq,
		"algorithm": r.Detection.Algorithm.String(),
	}
	switch {
	case errors.Is(r.Err, ErrDetectorPanic), errors.Is(r.Err, ErrFrameTimeout):
		p.logger.Error(r.Err, "Frame failed", fields)
	default:
		fields["error"] = r.Err.Error()
		p.logger.Debug("Frame rejected", fields)
	}
}

func (p *Pipeline) deliver(ctx context.Context, r Result) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error(fmt.Errorf("%v", rec), "Result handler panicked", logging.Fields{"seq": r.Seq})
		}
	}()
	p.handler.Handle(ctx, r)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, tonal.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, tonal.ErrInsufficientSamples):
		return "insufficient_samples"
	case errors.Is(err, ErrFrameTimeout):
		return "timeout"
	case errors.Is(err, ErrDetectorPanic):
		return "panic"
	default:
		return "other"
	}
}
