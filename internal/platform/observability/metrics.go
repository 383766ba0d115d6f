package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds the loader's metric instruments. A nil *Metrics (or one
// created with enabled=false) is safe to use; every recorder degrades to a
// no-op.
type Metrics struct {
	meter metric.Meter

	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheEvictions metric.Int64Counter
	cacheSizeBytes metric.Int64Gauge

	fetchDuration  metric.Float64Histogram
	fetchBytes     metric.Int64Counter
	coalescedLoads metric.Int64Counter

	batchResources metric.Int64Counter
	batchFailures  metric.Int64Counter

	injections metric.Int64Counter

	exporter *prometheus.Exporter
}

// NewMetrics creates the loader metrics backed by a Prometheus exporter.
// When disabled it returns an inert instance.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}
	if err := m.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initInstruments() error {
	var err error

	if m.cacheHits, err = m.meter.Int64Counter(
		"loader.cache.hits",
		metric.WithDescription("Cache hits by resource kind"),
	); err != nil {
		return err
	}
	if m.cacheMisses, err = m.meter.Int64Counter(
		"loader.cache.misses",
		metric.WithDescription("Cache misses by resource kind"),
	); err != nil {
		return err
	}
	if m.cacheEvictions, err = m.meter.Int64Counter(
		"loader.cache.evictions",
		metric.WithDescription("Entries removed under memory pressure"),
	); err != nil {
		return err
	}
	if m.cacheSizeBytes, err = m.meter.Int64Gauge(
		"loader.cache.size_bytes",
		metric.WithDescription("Total bytes resident in the cache"),
		metric.WithUnit("By"),
	); err != nil {
		return err
	}
	if m.fetchDuration, err = m.meter.Float64Histogram(
		"loader.fetch.duration",
		metric.WithDescription("Resource fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}
	if m.fetchBytes, err = m.meter.Int64Counter(
		"loader.fetch.bytes",
		metric.WithDescription("Bytes fetched from the transport"),
		metric.WithUnit("By"),
	); err != nil {
		return err
	}
	if m.coalescedLoads, err = m.meter.Int64Counter(
		"loader.coalesced.loads",
		metric.WithDescription("Loads that joined an existing in-flight fetch"),
	); err != nil {
		return err
	}
	if m.batchResources, err = m.meter.Int64Counter(
		"loader.batch.resources",
		metric.WithDescription("Resources requested through batch loads"),
	); err != nil {
		return err
	}
	if m.batchFailures, err = m.meter.Int64Counter(
		"loader.batch.failures",
		metric.WithDescription("Batch resources that failed to load"),
	); err != nil {
		return err
	}
	if m.injections, err = m.meter.Int64Counter(
		"loader.injections",
		metric.WithDescription("One-shot script/style injections performed"),
	); err != nil {
		return err
	}
	return nil
}

// Handler returns the Prometheus scrape handler, or a 404 handler when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.exporter == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics disabled", http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

func (m *Metrics) RecordCacheHit(ctx context.Context, kind string) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, kind string) {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordEviction(ctx context.Context, kind string) {
	if m == nil || m.cacheEvictions == nil {
		return
	}
	m.cacheEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) SetCacheSize(ctx context.Context, bytes int64) {
	if m == nil || m.cacheSizeBytes == nil {
		return
	}
	m.cacheSizeBytes.Record(ctx, bytes)
}

func (m *Metrics) RecordFetch(ctx context.Context, kind, status string, duration time.Duration, bytes int64) {
	if m == nil || m.fetchDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.fetchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if bytes > 0 {
		m.fetchBytes.Add(ctx, bytes, attrs)
	}
}

func (m *Metrics) RecordCoalesced(ctx context.Context, kind string) {
	if m == nil || m.coalescedLoads == nil {
		return
	}
	m.coalescedLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordBatch(ctx context.Context, resources, failures int) {
	if m == nil || m.batchResources == nil {
		return
	}
	m.batchResources.Add(ctx, int64(resources))
	if failures > 0 {
		m.batchFailures.Add(ctx, int64(failures))
	}
}

func (m *Metrics) RecordInjection(ctx context.Context, kind string) {
	if m == nil || m.injections == nil {
		return
	}
	m.injections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
