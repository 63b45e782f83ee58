package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lara-bellatin/awd-final/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// lifecycle engine.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	recalcDuration   prometheus.Observer
	sweepRuns        prometheus.Counter
	sweepNotified    prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
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

	transitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Total enrollment status transitions",
	}, []string{"to"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total notifications created, labeled by triggering event",
	}, []string{"kind"})

	recalcDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifecycle_recalculation_seconds",
		Help:    "Duration of progress and grade recalculations",
		Buckets: prometheus.DefBuckets,
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deadline_sweep_runs_total",
		Help: "Total deadline sweep executions",
	})

	sweepNotified := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deadline_sweep_notifications_total",
		Help: "Total deadline reminders dispatched by the sweep",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionsTotal, notifications, recalcDuration, sweepRuns, sweepNotified, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitionsTotal: transitionsTotal,
		notifications:    notifications,
		recalcDuration:   recalcDuration,
		sweepRuns:        sweepRuns,
		sweepNotified:    sweepNotified,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveTransition counts an enrollment status transition.
func (m *MetricsService) ObserveTransition(to models.EnrollmentStatus) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(to)).Inc()
}

// ObserveNotification counts a dispatched notification by kind.
func (m *MetricsService) ObserveNotification(kind models.NotificationKind) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind)).Inc()
}

// ObserveRecalculation records the duration of a lifecycle recalculation.
func (m *MetricsService) ObserveRecalculation(duration time.Duration) {
	if m == nil || m.recalcDuration == nil {
		return
	}
	m.recalcDuration.Observe(duration.Seconds())
}

// ObserveSweep records a deadline sweep run and how many reminders it sent.
func (m *MetricsService) ObserveSweep(notified int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepNotified.Add(float64(notified))
}

// Requests reports how many HTTP requests have been observed.
func (m *MetricsService) Requests() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.requestCount)
}

// CacheStats reports the running cache hit and miss counts.
func (m *MetricsService) CacheStats() (hits, misses uint64) {
	if m == nil {
		return 0, 0
	}
	return atomic.LoadUint64(&m.cacheHitCount), atomic.LoadUint64(&m.cacheMissCount)
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
}
