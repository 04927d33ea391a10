package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMeter returns a Metrics instance backed by a manual reader so tests
// can collect and inspect recorded data points.
func newTestMeter(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordJob(t *testing.T) {
	m, reader := newTestMeter(t)
	ctx := context.Background()

	m.RecordJob(ctx, "llm-generation", "completed", 2*time.Second)
	m.RecordJob(ctx, "llm-generation", "failed", time.Second)
	m.RecordJob(ctx, "audio-transcription", "completed", 500*time.Millisecond)

	rm := collect(t, reader)

	processed := findMetric(rm, "animus.jobs.processed")
	if processed == nil {
		t.Fatal("animus.jobs.processed not found")
	}
	sum, ok := processed.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("jobs.processed data type = %T", processed.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("jobs.processed total = %d, want 3", total)
	}
	if len(sum.DataPoints) != 3 {
		t.Errorf("jobs.processed series = %d, want 3 attribute sets", len(sum.DataPoints))
	}

	duration := findMetric(rm, "animus.job.duration")
	if duration == nil {
		t.Fatal("animus.job.duration not found")
	}
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("job.duration data type = %T", duration.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("job.duration count = %d, want 3", count)
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMeter(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openrouter", "llm", "ok")
	m.RecordProviderRequest(ctx, "openrouter", "llm", "error")
	m.RecordProviderError(ctx, "openrouter", "llm")
	m.RecordDedupHit(ctx)

	rm := collect(t, reader)

	for _, name := range []string{
		"animus.provider.requests",
		"animus.provider.errors",
		"animus.requests.dedup_hits",
	} {
		if findMetric(rm, name) == nil {
			t.Errorf("%s not found after recording", name)
		}
	}
}

func TestActiveJobsGauge(t *testing.T) {
	m, reader := newTestMeter(t)
	ctx := context.Background()

	m.ActiveJobs.Add(ctx, 1)
	m.ActiveJobs.Add(ctx, 1)
	m.ActiveJobs.Add(ctx, -1)

	rm := collect(t, reader)
	active := findMetric(rm, "animus.jobs.active")
	if active == nil {
		t.Fatal("animus.jobs.active not found")
	}
	sum, ok := active.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("jobs.active data type = %T", active.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("jobs.active = %+v, want single point of 1", sum.DataPoints)
	}
}
