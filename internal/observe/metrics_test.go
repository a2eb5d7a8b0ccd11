package observe

import (
	"context"
	"testing"

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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestFramesProcessed_Counts(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesProcessed.Add(ctx, 270)

	rm := collect(t, reader)
	got := findMetric(rm, "soundswallower.frames.processed")
	if got == nil {
		t.Fatal("frames.processed metric not recorded")
	}
	sum, ok := got.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 270 {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
}

func TestRecordSearchError_TagsKind(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSearchError(ctx, "saturation")

	rm := collect(t, reader)
	got := findMetric(rm, "soundswallower.search.errors")
	if got == nil {
		t.Fatal("search.errors metric not recorded")
	}
	sum, ok := got.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
	kind, ok := sum.DataPoints[0].Attributes.Value("kind")
	if !ok || kind.AsString() != "saturation" {
		t.Fatalf("expected kind=saturation attribute, got %+v", sum.DataPoints[0].Attributes)
	}
}

func TestActiveHMMs_Histogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveHMMs.Record(ctx, 1234)

	rm := collect(t, reader)
	got := findMetric(rm, "soundswallower.search.active_hmms")
	if got == nil {
		t.Fatal("active_hmms metric not recorded")
	}
	hist, ok := got.Data.(metricdata.Histogram[int64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
}
