package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reasons used as label values on the rejected-requests counter
const (
	ReasonQueueFull   = "queue_full"
	ReasonCircuitOpen = "circuit_open"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Job metrics
	JobsReceived     prometheus.Counter
	JobsProcessed    prometheus.Counter
	JobsFailed       prometheus.Counter
	JobsRejected     *prometheus.CounterVec
	DownstreamErrors prometheus.Counter
	CallDuration     *prometheus.HistogramVec

	// Pool gauges
	QueueDepth    prometheus.Gauge
	ActiveWorkers prometheus.Gauge
	CircuitOpen   prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	registry *prometheus.Registry
}

// New creates a metrics collector registered against its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		startTime: time.Now(),
		registry:  registry,

		JobsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_received_total",
			Help: "Jobs received at the submission gate",
		}),
		JobsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Jobs that reached a successful terminal state",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Jobs that reached a failed terminal state",
		}),
		JobsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rejected_requests_total",
			Help: "Submissions rejected at admission, by reason",
		}, []string{"reason"}),
		DownstreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "downstream_errors_total",
			Help: "Individual downstream call failures, including timeouts",
		}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "downstream_call_duration_seconds",
			Help:    "Downstream call duration in seconds, by outcome",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "job_queue_depth",
			Help: "Current depth of the task queue",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worker_occupied",
			Help: "Number of workers currently processing a task",
		}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "circuit_open",
			Help: "Circuit breaker open (0/1)",
		}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path"}),

		Uptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "uptime_seconds",
			Help: "Service uptime in seconds",
		}),
	}

	return m
}

// Registry returns the backing registry for exposition handlers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint handler for this collector's registry
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.TickUptime()
		inner.ServeHTTP(w, r)
	})
}

// TickUptime refreshes the uptime gauge; called from the metrics endpoint
func (m *Metrics) TickUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDownstreamCall records one downstream call's duration and outcome
func (m *Metrics) RecordDownstreamCall(outcome string, duration time.Duration) {
	m.CallDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncRejected increments the rejection counter for the given reason
func (m *Metrics) IncRejected(reason string) {
	m.JobsRejected.WithLabelValues(reason).Inc()
}

// SetQueueDepth sets the queue depth gauge
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// SetActiveWorkers sets the occupied-workers gauge
func (m *Metrics) SetActiveWorkers(n int) {
	m.ActiveWorkers.Set(float64(n))
}

// SetCircuitOpen sets the circuit-open indicator
func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
	} else {
		m.CircuitOpen.Set(0)
	}
}
