// Package observe provides the observability primitives for voxtide:
// OpenTelemetry metrics, tracing helpers, structured logging, and HTTP
// middleware for the operational endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// via a Prometheus bridge ([InitProvider]) so they can be scraped from
// /metrics. A package-level default [Metrics] instance ([DefaultMetrics])
// is provided for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxtide metrics.
const meterName = "github.com/voxtide/voxtide"

// Utterance outcomes recorded by [Metrics.RecordUtterance].
const (
	OutcomeOK            = "ok"
	OutcomeMisfire       = "misfire"
	OutcomeNotUnderstood = "not_understood"
)

// Metrics holds all OpenTelemetry metric instruments for the voice
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks utterance transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// ReplyDuration tracks assistant reply generation latency, first
	// chunk to stream end.
	ReplyDuration metric.Float64Histogram

	// SynthesisDuration tracks streamed synthesis latency per turn.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts captured utterances. Use with attribute:
	//   attribute.String("outcome", "ok"|"misfire"|"not_understood")
	Utterances metric.Int64Counter

	// StaleDrops counts results discarded because their generation token
	// was superseded. Use with attribute:
	//   attribute.String("stage", "transcription"|"reply"|"chunk")
	StaleDrops metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActivePlaybackUnits tracks scheduled-but-unfinished playback units.
	ActivePlaybackUnits metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks operational-endpoint request time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("voxtide.transcription.duration",
		metric.WithDescription("Latency of utterance transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReplyDuration, err = m.Float64Histogram("voxtide.reply.duration",
		metric.WithDescription("Latency of assistant reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("voxtide.synthesis.duration",
		metric.WithDescription("Latency of streamed speech synthesis per turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("voxtide.utterances",
		metric.WithDescription("Captured utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StaleDrops, err = m.Int64Counter("voxtide.stale_drops",
		metric.WithDescription("Results discarded because their turn was superseded."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxtide.provider.errors",
		metric.WithDescription("Provider failures by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActivePlaybackUnits, err = m.Int64UpDownCounter("voxtide.playback.active_units",
		metric.WithDescription("Scheduled playback units not yet finished."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxtide.http.request.duration",
		metric.WithDescription("Operational endpoint request latency by method and path."),
		metric.WithUnit("s"),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordUtterance records one captured utterance with its outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordStaleDrop records a result discarded at the given pipeline stage
// because its generation token was no longer current.
func (m *Metrics) RecordStaleDrop(ctx context.Context, stage string) {
	m.StaleDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordStage records a stage latency observation on the given histogram.
func RecordStage(ctx context.Context, h metric.Float64Histogram, start time.Time) {
	h.Record(ctx, time.Since(start).Seconds())
}
