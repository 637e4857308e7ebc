package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for Outflow
type Metrics struct {
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal prometheus.Counter
	OpensTotal        prometheus.Counter
	ClicksTotal       prometheus.Counter

	ScheduleSize prometheus.Gauge

	DispatchDurationSeconds prometheus.Histogram

	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_emails_sent_total",
			Help: "Total number of campaign emails delivered",
		}),
		EmailsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_emails_failed_total",
			Help: "Total number of delivery attempts that failed",
		}),
		OpensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_opens_total",
			Help: "Total number of open events recorded",
		}),
		ClicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_clicks_total",
			Help: "Total number of click events recorded",
		}),
		ScheduleSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outflow_schedule_entries",
			Help: "Number of pending entries in the dispatch schedule",
		}),
		DispatchDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outflow_dispatch_duration_seconds",
			Help:    "Time spent dispatching a single email",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outflow_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outflow_http_request_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.OpensTotal,
		m.ClicksTotal,
		m.ScheduleSize,
		m.DispatchDurationSeconds,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) EmailSent()     { m.EmailsSentTotal.Inc() }
func (m *Metrics) EmailFailed()   { m.EmailsFailedTotal.Inc() }
func (m *Metrics) OpenRecorded()  { m.OpensTotal.Inc() }
func (m *Metrics) ClickRecorded() { m.ClicksTotal.Inc() }

func (m *Metrics) SetScheduleSize(n int) {
	m.ScheduleSize.Set(float64(n))
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	m.DispatchDurationSeconds.Observe(d.Seconds())
}

// ObserveHTTP records one API request
func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(method, path).Observe(d.Seconds())
}
