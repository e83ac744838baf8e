package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// testMeter returns a Metrics wired to a manual reader so tests can collect
// recorded data synchronously.
func testMeter(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric names with recorded data.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	m, _ := testMeter(t)
	if m.TranscriptionDuration == nil || m.ReplyDuration == nil || m.SynthesisDuration == nil {
		t.Error("stage histograms missing")
	}
	if m.Utterances == nil || m.StaleDrops == nil || m.ProviderErrors == nil {
		t.Error("counters missing")
	}
	if m.ActivePlaybackUnits == nil || m.HTTPRequestDuration == nil {
		t.Error("gauge or middleware histogram missing")
	}
}

func TestRecordUtterance_ByOutcome(t *testing.T) {
	m, reader := testMeter(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, OutcomeOK)
	m.RecordUtterance(ctx, OutcomeOK)
	m.RecordUtterance(ctx, OutcomeMisfire)

	data, ok := collect(t, reader)["voxtide.utterances"]
	if !ok {
		t.Fatal("voxtide.utterances not recorded")
	}
	sum, ok := data.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", data.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("utterance total: got %d, want 3", total)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("outcome attribute sets: got %d, want 2", len(sum.DataPoints))
	}
}

func TestRecordStaleDrop(t *testing.T) {
	m, reader := testMeter(t)
	m.RecordStaleDrop(context.Background(), "transcription")

	if _, ok := collect(t, reader)["voxtide.stale_drops"]; !ok {
		t.Error("voxtide.stale_drops not recorded")
	}
}

func TestRecordProviderError(t *testing.T) {
	m, reader := testMeter(t)
	m.RecordProviderError(context.Background(), "synth", "service")

	if _, ok := collect(t, reader)["voxtide.provider.errors"]; !ok {
		t.Error("voxtide.provider.errors not recorded")
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := testMeter(t)
	RecordStage(context.Background(), m.TranscriptionDuration, time.Now().Add(-50*time.Millisecond))

	data, ok := collect(t, reader)["voxtide.transcription.duration"]
	if !ok {
		t.Fatal("voxtide.transcription.duration not recorded")
	}
	hist, ok := data.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", data.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Error("expected exactly one observation")
	}
	if hist.DataPoints[0].Sum < 0.04 {
		t.Errorf("latency observation too small: %f", hist.DataPoints[0].Sum)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics must return the same instance")
	}
}
