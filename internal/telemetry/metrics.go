package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/disciplinary"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Cache metrics
	CacheHitsTotal          metric.Int64Counter
	CacheMissesTotal        metric.Int64Counter
	CacheInvalidationsTotal metric.Int64Counter

	// Store operation metrics
	WritesCommittedTotal metric.Int64Counter
	WriteConflictsTotal  metric.Int64Counter
	QueryDuration        metric.Float64Histogram

	// Derived document metrics
	IndexEntriesWrittenTotal metric.Int64Counter
	SummaryRecomputesTotal   metric.Int64Counter
	SummaryRecomputeErrors   metric.Int64Counter
	PendingSummaryRefreshes  metric.Int64UpDownCounter

	// Lifecycle metrics
	LifecycleTransitionsTotal metric.Int64Counter

	// Bulk metrics
	BulkItemsTotal   metric.Int64Counter
	BulkRetriesTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Cache metrics
	m.CacheHitsTotal, _ = meter.Int64Counter(
		"disciplinary.cache.hits.total",
		metric.WithDescription("Total number of query cache hits"),
		metric.WithUnit("{lookup}"),
	)

	m.CacheMissesTotal, _ = meter.Int64Counter(
		"disciplinary.cache.misses.total",
		metric.WithDescription("Total number of query cache misses, including expired entries"),
		metric.WithUnit("{lookup}"),
	)

	m.CacheInvalidationsTotal, _ = meter.Int64Counter(
		"disciplinary.cache.invalidations.total",
		metric.WithDescription("Total number of cache entries removed by invalidation"),
		metric.WithUnit("{entry}"),
	)

	// Store operation metrics
	m.WritesCommittedTotal, _ = meter.Int64Counter(
		"disciplinary.store.writes.committed.total",
		metric.WithDescription("Total number of document writes committed"),
		metric.WithUnit("{write}"),
	)

	m.WriteConflictsTotal, _ = meter.Int64Counter(
		"disciplinary.store.writes.conflicts.total",
		metric.WithDescription("Total number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	m.QueryDuration, _ = meter.Float64Histogram(
		"disciplinary.store.query.duration",
		metric.WithDescription("Duration of tenant scoped queries"),
		metric.WithUnit("ms"),
	)

	// Derived document metrics
	m.IndexEntriesWrittenTotal, _ = meter.Int64Counter(
		"disciplinary.index.entries.written.total",
		metric.WithDescription("Total number of secondary index entries set or removed"),
		metric.WithUnit("{entry}"),
	)

	m.SummaryRecomputesTotal, _ = meter.Int64Counter(
		"disciplinary.summary.recomputes.total",
		metric.WithDescription("Total number of employee summary recomputations"),
		metric.WithUnit("{summary}"),
	)

	m.SummaryRecomputeErrors, _ = meter.Int64Counter(
		"disciplinary.summary.recompute.errors.total",
		metric.WithDescription("Total number of failed background summary refreshes"),
		metric.WithUnit("{error}"),
	)

	m.PendingSummaryRefreshes, _ = meter.Int64UpDownCounter(
		"disciplinary.summary.refreshes.pending",
		metric.WithDescription("Number of scheduled summary refreshes not yet run"),
		metric.WithUnit("{refresh}"),
	)

	// Lifecycle metrics
	m.LifecycleTransitionsTotal, _ = meter.Int64Counter(
		"disciplinary.lifecycle.transitions.total",
		metric.WithDescription("Total number of archive, restore and delete transitions"),
		metric.WithUnit("{transition}"),
	)

	// Bulk metrics
	m.BulkItemsTotal, _ = meter.Int64Counter(
		"disciplinary.bulk.items.total",
		metric.WithDescription("Total number of bulk items processed"),
		metric.WithUnit("{item}"),
	)

	m.BulkRetriesTotal, _ = meter.Int64Counter(
		"disciplinary.bulk.retries.total",
		metric.WithDescription("Total number of bulk item retries"),
		metric.WithUnit("{retry}"),
	)

	return m
}
