package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// layer and the reservation decision flow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	proposalTotal   *prometheus.CounterVec
	sweepChanged    prometheus.Counter
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

	proposalTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_proposals_total",
		Help: "Booking proposals by decision and rejection reason",
	}, []string{"decision", "reason"})

	sweepChanged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_sweep_transitions_total",
		Help: "Schedule lifecycle transitions applied by the sweep",
	})

	registry.MustRegister(requestDuration, requestTotal, proposalTotal, sweepChanged)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		proposalTotal:   proposalTotal,
		sweepChanged:    sweepChanged,
	}
}

// Handler exposes the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records one request sample.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveProposal records a booking decision.
func (m *MetricsService) ObserveProposal(accepted bool, reason string) {
	if accepted {
		m.proposalTotal.WithLabelValues("accepted", "").Inc()
		return
	}
	m.proposalTotal.WithLabelValues("rejected", reason).Inc()
}

// ObserveSweep records how many schedules the sweep transitioned.
func (m *MetricsService) ObserveSweep(changed int) {
	if changed > 0 {
		m.sweepChanged.Add(float64(changed))
	}
}
