package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticket_sync"

// Metrics holds the service's prometheus collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	syncRuns      *prometheus.CounterVec
	syncTickets   *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	syncBusy      prometheus.Counter
	dispatches    *prometheus.CounterVec
	lastSyncStart prometheus.Gauge
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Error responses by route, method and error code",
		}, []string{"path", "method", "code"}),
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Completed sync runs by trigger and result",
		}, []string{"trigger", "result"}),
		syncTickets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "tickets_total",
			Help:      "Tickets handled by sync runs, labeled created, updated or failed",
		}, []string{"outcome"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		syncBusy: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "busy_rejections_total",
			Help:      "Triggers rejected because a run was already in progress",
		}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "tasks_total",
			Help:      "Task envelopes published by topic and result",
		}, []string{"topic", "result"}),
		lastSyncStart: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_start_timestamp_seconds",
			Help:      "Unix time of the most recent sync start",
		}),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordSyncStart marks the beginning of a run.
func (m *Metrics) RecordSyncStart(at time.Time) {
	if m == nil {
		return
	}
	m.lastSyncStart.Set(float64(at.Unix()))
}

// RecordSync records a finished run and its per-ticket counts.
func (m *Metrics) RecordSync(trigger string, success bool, created, updated, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(trigger, result(success)).Inc()
	m.syncTickets.WithLabelValues("created").Add(float64(created))
	m.syncTickets.WithLabelValues("updated").Add(float64(updated))
	m.syncTickets.WithLabelValues("failed").Add(float64(failed))
	m.syncDuration.Observe(duration.Seconds())
}

// RecordSyncBusy counts a trigger rejected by the sync lock.
func (m *Metrics) RecordSyncBusy() {
	if m == nil {
		return
	}
	m.syncBusy.Inc()
}

// RecordDispatch counts one publish attempt.
func (m *Metrics) RecordDispatch(topic string, success bool) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(topic, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
