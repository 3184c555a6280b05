package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

// Transfer outcomes used as the outcome label of transfer_operations_total.
const (
	outcomeCommitted = "committed"
	outcomeReplayed  = "replayed"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	transferOps   *prometheus.CounterVec
	allocations   *prometheus.CounterVec
	mirrorCalls   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	outboxReplays *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	transferCommitCount  uint64
	mirrorFailureCount   uint64
	deliveryFailureCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	transferOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_operations_total",
		Help: "Transfer workflow calls by action and outcome",
	}, []string{"action", "outcome"})

	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vacancy_allocations_total",
		Help: "Vacancy allocation attempts by outcome",
	}, []string{"outcome"})

	mirrorCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mirror_calls_total",
		Help: "Ledger mirror calls by operation and status",
	}, []string{"operation", "status"})

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification deliveries by kind and status",
	}, []string{"kind", "status"})

	outboxReplays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outbox_replays_total",
		Help: "Ledger outbox replays by resulting status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		transferOps, allocations, mirrorCalls, deliveries, outboxReplays, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		transferOps:     transferOps,
		allocations:     allocations,
		mirrorCalls:     mirrorCalls,
		deliveries:      deliveries,
		outboxReplays:   outboxReplays,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransfer counts a workflow call.
func (m *MetricsService) RecordTransfer(action models.TransferAction, outcome string) {
	if m == nil {
		return
	}
	m.transferOps.WithLabelValues(string(action), outcome).Inc()
	if outcome == outcomeCommitted {
		atomic.AddUint64(&m.transferCommitCount, 1)
	}
}

// RecordAllocation counts a vacancy allocation attempt.
func (m *MetricsService) RecordAllocation(outcome models.AllocationOutcome) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(string(outcome)).Inc()
}

// RecordMirror counts a ledger mirror call.
func (m *MetricsService) RecordMirror(operation string, status models.MirrorStatus) {
	if m == nil {
		return
	}
	m.mirrorCalls.WithLabelValues(operation, string(status)).Inc()
	if status == models.MirrorFailed || status == models.MirrorTimeout {
		atomic.AddUint64(&m.mirrorFailureCount, 1)
	}
}

// RecordDelivery counts one recipient delivery.
func (m *MetricsService) RecordDelivery(kind models.NotificationKind, status models.DeliveryStatus) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(kind), string(status)).Inc()
	if status == models.DeliveryFailed {
		atomic.AddUint64(&m.deliveryFailureCount, 1)
	}
}

// RecordOutboxReplay counts a reconciler replay.
func (m *MetricsService) RecordOutboxReplay(status models.LedgerOutboxStatus) {
	if m == nil {
		return
	}
	m.outboxReplays.WithLabelValues(string(status)).Inc()
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		TransfersCommitted:       atomic.LoadUint64(&m.transferCommitCount),
		MirrorFailures:           atomic.LoadUint64(&m.mirrorFailureCount),
		DeliveryFailures:         atomic.LoadUint64(&m.deliveryFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
