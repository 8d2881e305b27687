package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Решения по заявкам: direct, pending, executed, failed, rejected, cancelled
	Approvals *prometheus.CounterVec

	// Latency повтора одобренного действия
	ExecutionDuration *prometheus.HistogramVec

	EventsPublished  *prometheus.CounterVec
	ConsumerMessages *prometheus.CounterVec

	// Saturation: живые push-сессии на узле
	PushSessions prometheus.Gauge

	// Состояние Circuit Breaker исполнителя (0 - closed, 1 - half-open, 2 - open)
	BreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern: без регистратора метрики пишутся в локальный, никуда не подключенный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Approvals: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_approvals_total",
			Help: "Approval pipeline outcomes by request type.",
		}, []string{"request_type", "outcome"}),

		ExecutionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockgate_execution_duration_seconds",
			Help:    "Latency of approved action replays.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"request_type", "status"}),

		EventsPublished: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_events_published_total",
			Help: "Domain events published to the bus.",
		}, []string{"routing_key", "result"}),

		ConsumerMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_consumer_messages_total",
			Help: "Messages handled by bus consumers.",
		}, []string{"routing_key", "result"}), // ok, retry, dead, dropped

		PushSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "stockgate_push_sessions",
			Help: "Currently connected push sessions.",
		}),

		BreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "stockgate_breaker_state",
			Help: "Executor circuit breaker state per target.",
		}, []string{"target"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "stockgate_audit_buffer_utilization",
			Help: "Current number of transitions in audit buffer.",
		}),
	}
}
