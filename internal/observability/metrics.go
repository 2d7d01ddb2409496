package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by operation and delivery counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics exposes Prometheus collectors for the workflow. A nil *Metrics is a valid no-op.
type Metrics struct {
	requests          *prometheus.CounterVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	rateLimit         *prometheus.CounterVec
	notifications     *prometheus.CounterVec

	registerOnce sync.Once
}

// NewMetrics creates collectors and registers them with registry. A nil registry
// leaves the collectors unregistered, which is what tests usually want.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.register(registry)
	return m
}

func (m *Metrics) register(registry prometheus.Registerer) {
	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.requests = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketflow_http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		}, []string{"route", "method", "status"})

		m.operations = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketflow_operations_total",
			Help: "Workflow operations by name and outcome code",
		}, []string{"operation", "outcome"})

		m.operationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticketflow_operation_duration_seconds",
			Help:    "Workflow operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"})

		m.rateLimit = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketflow_rate_limit_decisions_total",
			Help: "Rate limiter decisions by policy kind",
		}, []string{"kind", "decision"})

		m.notifications = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketflow_notifications_total",
			Help: "Lifecycle event deliveries by sink and outcome",
		}, []string{"sink", "outcome"})
	})
}

// RecordRequest increments counters for HTTP requests.
func (m *Metrics) RecordRequest(route, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// RecordOperation records one workflow operation. outcome is OutcomeOK or an error code.
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRateLimit records an allow or deny decision.
func (m *Metrics) RecordRateLimit(kind string, allowed bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.rateLimit.WithLabelValues(kind, decision).Inc()
}

// RecordNotification records one event delivery attempt.
func (m *Metrics) RecordNotification(sink string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.notifications.WithLabelValues(sink, outcome).Inc()
}
