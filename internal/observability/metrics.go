package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	realtimeConnections   prometheus.Gauge
	realtimeEventsTotal   *prometheus.CounterVec
	broadcastsTotal       *prometheus.CounterVec
	lifecycleTransitions  *prometheus.CounterVec
	mailDeliveriesTotal   *prometheus.CounterVec
	courseOperationsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhand_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vhand_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhand_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vhand_realtime_connections",
			Help: "Number of websocket clients currently connected.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhand_realtime_events_total",
			Help: "Inbound realtime events by name and outcome.",
		}, []string{"event", "outcome"})

		broadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhand_broadcasts_total",
			Help: "Broadcast notifications fanned out to connected clients.",
		}, []string{"event", "origin"})

		lifecycleTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhand_request_transitions_total",
			Help: "Assistance and hall pass request state transitions.",
		}, []string{"kind", "transition"})

		mailDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhand_mail_deliveries_total",
			Help: "Outbound emails by provider and status.",
		}, []string{"provider", "status"})

		courseOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhand_course_operations_total",
			Help: "Course registry operations by name and outcome.",
		}, []string{"operation", "outcome"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			realtimeConnections,
			realtimeEventsTotal,
			broadcastsTotal,
			lifecycleTransitions,
			mailDeliveriesTotal,
			courseOperationsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// RealtimeConnections exposes the gauge of connected websocket clients.
func RealtimeConnections() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnections
}

// RealtimeEvents exposes the counter of inbound realtime events.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// Broadcasts exposes the counter of broadcast fan-outs.
func Broadcasts() *prometheus.CounterVec {
	RegisterMetrics()
	return broadcastsTotal
}

// LifecycleTransitions exposes the counter of request state changes.
func LifecycleTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return lifecycleTransitions
}

// MailDeliveries exposes the counter of outbound emails.
func MailDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return mailDeliveriesTotal
}

// CourseOperations exposes the counter of course registry operations.
func CourseOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return courseOperationsTotal
}
