// Package observe provides application-wide observability primitives for the
// decoder: OpenTelemetry metrics and structured-logging correlation.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so they can still be
// scraped via the standard /metrics endpoint in a host process that embeds
// the decoder behind an HTTP server. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all decoder metrics.
const meterName = "github.com/ReadAlongs/soundswallower-go"

// Metrics holds all OpenTelemetry metric instruments recorded by the
// decoding pipeline. All fields are safe for concurrent use — the
// underlying OTel types handle their own synchronisation.
type Metrics struct {
	// UtteranceDuration tracks wall-clock time spent between start() and
	// end() for one utterance.
	UtteranceDuration metric.Float64Histogram

	// FramesProcessed counts feature frames advanced across process() calls.
	FramesProcessed metric.Int64Counter

	// ActiveHMMs tracks the size of the active-HMM vector at the end of each
	// frame's beam prune (§4.5b).
	ActiveHMMs metric.Int64Histogram

	// BeamNarrowings counts frames where maxhmmpf forced an adaptive beam
	// tightening (§4.5b, §7 resource saturation).
	BeamNarrowings metric.Int64Counter

	// BackpointerTableSize tracks the backpointer table length at end().
	BackpointerTableSize metric.Int64Histogram

	// LatticeNodes counts nodes retained in the word lattice after pruning.
	LatticeNodes metric.Int64Histogram

	// SearchErrors counts recoverable errors surfaced by the search
	// (state errors, resource saturation), by kind.
	SearchErrors metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) suited to
// batch utterance decoding (sub-second to tens of seconds of audio).
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// countBuckets defines histogram bucket boundaries for small integer counts
// (active HMMs, lattice nodes, backpointer entries).
var countBuckets = []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.UtteranceDuration, err = m.Float64Histogram("soundswallower.utterance.duration",
		metric.WithDescription("Wall-clock time from start() to end() for one utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("soundswallower.frames.processed",
		metric.WithDescription("Feature frames advanced by process()."),
	); err != nil {
		return nil, err
	}
	if met.ActiveHMMs, err = m.Int64Histogram("soundswallower.search.active_hmms",
		metric.WithDescription("Active HMM count per frame after beam pruning."),
		metric.WithExplicitBucketBoundaries(countBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BeamNarrowings, err = m.Int64Counter("soundswallower.search.beam_narrowings",
		metric.WithDescription("Frames where maxhmmpf forced an adaptive beam tightening."),
	); err != nil {
		return nil, err
	}
	if met.BackpointerTableSize, err = m.Int64Histogram("soundswallower.search.backpointer_table_size",
		metric.WithDescription("Backpointer table length at end of utterance."),
		metric.WithExplicitBucketBoundaries(countBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LatticeNodes, err = m.Int64Histogram("soundswallower.lattice.nodes",
		metric.WithDescription("Word-lattice node count after co-reachability pruning."),
		metric.WithExplicitBucketBoundaries(countBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchErrors, err = m.Int64Counter("soundswallower.search.errors",
		metric.WithDescription("Recoverable search/decoder errors by kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global no-op provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSearchError is a convenience method that records a search error
// counter increment with its kind.
func (m *Metrics) RecordSearchError(ctx context.Context, kind string) {
	m.SearchErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
