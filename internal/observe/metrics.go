// Package observe provides application-wide observability primitives for
// CallPilot: OpenTelemetry metrics, tracing, and structured logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all CallPilot metrics.
const meterName = "github.com/MrWong99/callpilot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CallDuration tracks the length of finished calls.
	CallDuration metric.Float64Histogram

	// CallsStarted counts call attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	CallsStarted metric.Int64Counter

	// AudioChunksIn counts microphone frames pushed to the backend.
	AudioChunksIn metric.Int64Counter

	// AudioChunksOut counts model audio chunks scheduled for playback.
	AudioChunksOut metric.Int64Counter

	// QueueAdvances counts automatic advances to the next queued contact.
	QueueAdvances metric.Int64Counter

	// SessionErrors counts fatal session errors surfaced mid-call.
	SessionErrors metric.Int64Counter

	// ActiveCalls tracks the number of calls currently in flight.
	ActiveCalls metric.Int64UpDownCounter
}

// callDurationBuckets defines histogram bucket boundaries (in seconds)
// sized for phone-call lengths.
var callDurationBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallDuration, err = m.Float64Histogram("callpilot.call.duration",
		metric.WithDescription("Length of finished calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallsStarted, err = m.Int64Counter("callpilot.calls.started",
		metric.WithDescription("Total call attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksIn, err = m.Int64Counter("callpilot.audio.chunks_in",
		metric.WithDescription("Microphone frames pushed to the backend."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksOut, err = m.Int64Counter("callpilot.audio.chunks_out",
		metric.WithDescription("Model audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.QueueAdvances, err = m.Int64Counter("callpilot.queue.advances",
		metric.WithDescription("Automatic advances to the next queued contact."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("callpilot.session.errors",
		metric.WithDescription("Fatal session errors surfaced mid-call."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("callpilot.active_calls",
		metric.WithDescription("Number of calls currently in flight."),
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
// global provider).
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

// RecordCallStarted records one call attempt with its outcome status.
func (m *Metrics) RecordCallStarted(ctx context.Context, status string) {
	m.CallsStarted.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordCallFinished records the duration of a finished call.
func (m *Metrics) RecordCallFinished(ctx context.Context, seconds float64) {
	m.CallDuration.Record(ctx, seconds)
}
