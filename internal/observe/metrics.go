// Package observe exports tuner measurements through the OpenTelemetry
// metrics API. A Prometheus bridge built by [NewProvider] serves them on
// /metrics. Tests should build [Metrics] on their own
// [metric.MeterProvider] with a manual reader.
package observe

import (
	"context"
	"time"

	"tuner/internal/audio"
	"tuner/internal/exchange"
	"tuner/internal/pitch"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all tuner metrics.
const meterName = "tuner"

// Metrics holds the instruments recorded by a tuning session. Safe for
// concurrent use.
type Metrics struct {
	meter metric.Meter

	// Frames counts analysed frames. Attribute "status" holds the
	// estimate status name.
	Frames metric.Int64Counter

	// FrameDuration tracks the time to condition, estimate and map a frame.
	FrameDuration metric.Float64Histogram
}

// frameBuckets are histogram bounds in seconds. A 2048-sample frame at
// 44.1 kHz arrives every 46 ms, so anything near that is too slow.
var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.Frames, err = m.Int64Counter("tuner.frames",
		metric.WithDescription("Analysed frames by estimate status."),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("tuner.frame.duration",
		metric.WithDescription("Processing time of one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordFrame counts one analysed frame and its processing time.
func (m *Metrics) RecordFrame(ctx context.Context, status pitch.Status, elapsed time.Duration) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
	m.FrameDuration.Record(ctx, elapsed.Seconds())
}

type observedCounter struct {
	name, desc string
	value      func() uint64
}

func (m *Metrics) observe(counters []observedCounter) error {
	for _, c := range counters {
		value := c.value
		if _, err := m.meter.Int64ObservableCounter(c.name,
			metric.WithDescription(c.desc),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(value()))
				return nil
			}),
		); err != nil {
			return err
		}
	}
	return nil
}

// ObserveExchange exports the frame exchange counters. stats is called
// on every collection.
func (m *Metrics) ObserveExchange(stats func() exchange.Stats) error {
	return m.observe([]observedCounter{
		{"tuner.exchange.published", "Frames published by the capture source.", func() uint64 { return stats().Published }},
		{"tuner.exchange.replaced", "Frames overwritten before analysis.", func() uint64 { return stats().Replaced }},
		{"tuner.exchange.collected", "Frames collected for analysis.", func() uint64 { return stats().Collected }},
	})
}

// ObserveCapture exports the audio source counters.
func (m *Metrics) ObserveCapture(stats func() audio.Stats) error {
	return m.observe([]observedCounter{
		{"tuner.capture.callbacks", "Audio callbacks delivered by the device.", func() uint64 { return stats().Callbacks }},
		{"tuner.capture.input_overflows", "Callbacks flagged with an input overflow.", func() uint64 { return stats().InputOverflows }},
		{"tuner.capture.input_underflows", "Callbacks flagged with an input underflow.", func() uint64 { return stats().InputUnderflows }},
		{"tuner.capture.discarded", "Frames dropped during the startup delay.", func() uint64 { return stats().Discarded }},
	})
}
