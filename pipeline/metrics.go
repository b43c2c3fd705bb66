package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for pipeline metrics
const meterName = "github.com/RyanBlaney/sonido-pitch/pipeline"

// Frame outcomes used as the "status" attribute
const (
	StatusPitch = "pitch"
	StatusChord = "chord"
	StatusNone  = "none"
	StatusGated = "gated"
	StatusError = "error"
)

// Metrics holds the pipeline instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// Frames counts processed frames. Attributes: algorithm, routed, status.
	Frames metric.Int64Counter

	// Dropped counts frames rejected by the overflow policy or discarded
	// from the queue on Close.
	Dropped metric.Int64Counter

	// Errors counts failed frames. Attribute: kind.
	Errors metric.Int64Counter

	// DetectDuration tracks detector latency in seconds. Attribute: routed.
	DetectDuration metric.Float64Histogram

	// QueueDepth tracks frames waiting for a worker.
	QueueDepth metric.Int64UpDownCounter
}

// latencyBuckets covers single-frame detector latencies (seconds)
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates the instruments from mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("sonido.pipeline.frames",
		metric.WithDescription("Frames processed by algorithm, routed detector and status."),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64Counter("sonido.pipeline.dropped",
		metric.WithDescription("Frames dropped before detection."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("sonido.pipeline.errors",
		metric.WithDescription("Frames that failed, by error kind."),
	); err != nil {
		return nil, err
	}
	if met.DetectDuration, err = m.Float64Histogram("sonido.pipeline.detect.duration",
		metric.WithDescription("Latency of a single detection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("sonido.pipeline.queue.depth",
		metric.WithDescription("Frames waiting in the queue."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func noopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("pipeline: noop metrics: " + err.Error())
	}
	return m
}

func (m *Metrics) recordFrame(ctx context.Context, r Result, elapsed time.Duration) {
	algorithm := r.Detection.Algorithm.String()
	routed := r.Detection.Routed.String()

	m.DetectDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("routed", routed)))
	m.Frames.Add(ctx, 1, metric.WithAttributes(
		attribute.String("algorithm", algorithm),
		attribute.String("routed", routed),
		attribute.String("status", r.Status()),
	))
	if r.Err != nil {
		m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", errorKind(r.Err))))
	}
}
