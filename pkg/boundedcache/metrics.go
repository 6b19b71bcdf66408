package boundedcache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/sessionlens/sessiond/pkg/boundedcache"

// Metrics holds cache instrumentation. Instrument creation failures are
// logged and the affected instrument is skipped; the cache itself never
// fails because of metrics.
type Metrics struct {
	cacheName string
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	size      metric.Int64Gauge
}

// NewMetrics creates instrumentation for one named cache.
func NewMetrics(cacheName string, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := otel.Meter(instrumentationName)
	m := &Metrics{cacheName: cacheName}
	var err error

	m.hits, err = meter.Int64Counter(
		"sessiond.cache.hits_total",
		metric.WithDescription("Cache lookups served from a live entry, labeled by cache name."),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		logger.Warn("failed to create cache hit counter", zap.Error(err))
	}

	m.misses, err = meter.Int64Counter(
		"sessiond.cache.misses_total",
		metric.WithDescription("Cache lookups that missed or hit an expired entry, labeled by cache name."),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		logger.Warn("failed to create cache miss counter", zap.Error(err))
	}

	m.evictions, err = meter.Int64Counter(
		"sessiond.cache.evictions_total",
		metric.WithDescription("Entries removed by bulk eviction, labeled by cache name."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		logger.Warn("failed to create cache eviction counter", zap.Error(err))
	}

	m.size, err = meter.Int64Gauge(
		"sessiond.cache.entries",
		metric.WithDescription("Current number of live cache entries, labeled by cache name."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		logger.Warn("failed to create cache size gauge", zap.Error(err))
	}

	return m
}

func (m *Metrics) attrs() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("cache", m.cacheName))
}

func (m *Metrics) recordHit() {
	if m.hits != nil {
		m.hits.Add(context.Background(), 1, m.attrs())
	}
}

func (m *Metrics) recordMiss() {
	if m.misses != nil {
		m.misses.Add(context.Background(), 1, m.attrs())
	}
}

func (m *Metrics) recordEvictions(n int) {
	if m.evictions != nil {
		m.evictions.Add(context.Background(), int64(n), m.attrs())
	}
}

func (m *Metrics) setSize(n int) {
	if m.size != nil {
		m.size.Record(context.Background(), int64(n), m.attrs())
	}
}
