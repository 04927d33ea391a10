// Package observe provides application-wide observability primitives for
// Animus: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Animus metrics.
const meterName = "github.com/animus-ai/animus"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// JobDuration tracks per-job processing latency. Use with attribute:
	//   attribute.String("job_type", ...)
	JobDuration metric.Float64Histogram

	// DependencyWait tracks how long generation jobs wait on preprocessing
	// results.
	DependencyWait metric.Float64Histogram

	// MemoryQueryDuration tracks vector similarity query latency.
	MemoryQueryDuration metric.Float64Histogram

	// --- Counters ---

	// JobsProcessed counts finished jobs. Use with attributes:
	//   attribute.String("job_type", ...), attribute.String("status", ...)
	JobsProcessed metric.Int64Counter

	// RequestsAccepted counts accepted generation requests.
	RequestsAccepted metric.Int64Counter

	// DedupHits counts requests short-circuited by the deduplication cache.
	DedupHits metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// StuckJobsFailed counts jobs failed by the stuck-job sweeper.
	StuckJobsFailed metric.Int64Counter

	// MemoryOutboxRecovered counts pending memories recovered by the drain.
	MemoryOutboxRecovered metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks jobs currently being processed, by job_type.
	ActiveJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Generation
// jobs routinely take tens of seconds, so the tail is long.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.JobDuration, err = m.Float64Histogram("animus.job.duration",
		metric.WithDescription("Latency of job processing by job type."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DependencyWait, err = m.Float64Histogram("animus.job.dependency_wait",
		metric.WithDescription("Time generation jobs spend waiting on preprocessing results."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MemoryQueryDuration, err = m.Float64Histogram("animus.memory.query.duration",
		metric.WithDescription("Latency of vector similarity queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.JobsProcessed, err = m.Int64Counter("animus.jobs.processed",
		metric.WithDescription("Total finished jobs by job type and status."),
	); err != nil {
		return nil, err
	}
	if met.RequestsAccepted, err = m.Int64Counter("animus.requests.accepted",
		metric.WithDescription("Total accepted generation requests."),
	); err != nil {
		return nil, err
	}
	if met.DedupHits, err = m.Int64Counter("animus.requests.dedup_hits",
		metric.WithDescription("Requests short-circuited by the deduplication cache."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("animus.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("animus.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.StuckJobsFailed, err = m.Int64Counter("animus.jobs.stuck_failed",
		metric.WithDescription("Jobs failed by the stuck-job sweeper."),
	); err != nil {
		return nil, err
	}
	if met.MemoryOutboxRecovered, err = m.Int64Counter("animus.memory.outbox_recovered",
		metric.WithDescription("Pending memories recovered by the outbox drain."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("animus.jobs.active",
		metric.WithDescription("Jobs currently being processed by job type."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("animus.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// RecordJob records the completion of one job: the processed counter and the
// duration histogram with the standard attribute set.
func (m *Metrics) RecordJob(ctx context.Context, jobType, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("status", status),
	)
	m.JobsProcessed.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("job_type", jobType)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordDedupHit records one deduplicated request.
func (m *Metrics) RecordDedupHit(ctx context.Context) {
	m.DedupHits.Add(ctx, 1)
}
