package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tuner/internal/audio"
	"tuner/internal/exchange"
	"tuner/internal/pitch"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, not an int64 sum", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, pitch.Pitched, 2*time.Millisecond)
	m.RecordFrame(ctx, pitch.Pitched, 3*time.Millisecond)
	m.RecordFrame(ctx, pitch.NoSignal, time.Millisecond)

	rm := collect(t, reader)

	met := findMetric(rm, "tuner.frames")
	if met == nil {
		t.Fatal("tuner.frames not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("tuner.frames is %T", met.Data)
	}
	byStatus := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value(attribute.Key("status"))
		if !ok {
			t.Fatal("data point without status attribute")
		}
		byStatus[v.AsString()] = dp.Value
	}
	if byStatus["pitched"] != 2 || byStatus["no_signal"] != 1 {
		t.Errorf("frames by status = %v", byStatus)
	}

	hist := findMetric(rm, "tuner.frame.duration")
	if hist == nil {
		t.Fatal("tuner.frame.duration not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data %T", hist.Data)
	}
	if h.DataPoints[0].Count != 3 {
		t.Errorf("histogram count = %d, want 3", h.DataPoints[0].Count)
	}
	if got := h.DataPoints[0].Sum; got < 0.0059 || got > 0.0061 {
		t.Errorf("histogram sum = %v, want 0.006", got)
	}
}

func TestObserveExchange(t *testing.T) {
	m, reader := newTestMetrics(t)
	stats := exchange.Stats{Published: 10, Replaced: 3, Collected: 7}
	if err := m.ObserveExchange(func() exchange.Stats { return stats }); err != nil {
		t.Fatal(err)
	}

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"tuner.exchange.published": 10,
		"tuner.exchange.replaced":  3,
		"tuner.exchange.collected": 7,
	} {
		if got := sumValue(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}

	// Callbacks read fresh values on every collection.
	stats.Collected = 9
	if got := sumValue(t, collect(t, reader), "tuner.exchange.collected"); got != 9 {
		t.Errorf("collected after update = %d, want 9", got)
	}
}

func TestObserveCapture(t *testing.T) {
	m, reader := newTestMetrics(t)
	stats := audio.Stats{Callbacks: 100, InputOverflows: 2, InputUnderflows: 1, Discarded: 4}
	if err := m.ObserveCapture(func() audio.Stats { return stats }); err != nil {
		t.Fatal(err)
	}

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"tuner.capture.callbacks":        100,
		"tuner.capture.input_overflows":  2,
		"tuner.capture.input_underflows": 1,
		"tuner.capture.discarded":        4,
	} {
		if got := sumValue(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestProviderServesPrometheus(t *testing.T) {
	p, err := NewProvider(ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.MeterProvider)
	if err != nil {
		t.Fatal(err)
	}
	m.RecordFrame(context.Background(), pitch.Pitched, time.Millisecond)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	text := string(body)
	for _, want := range []string{"tuner_frames", "tuner_frame_duration", "go_goroutines"} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
