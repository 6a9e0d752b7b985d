package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/service"
	"github.com/notifyhub/notification-queue/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsEnqueued *prometheus.CounterVec
	NotificationsDequeued *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationsFailed   *prometheus.CounterVec
	DeliveryLatency       *prometheus.HistogramVec
	ReminderPasses        *prometheus.CounterVec
	ReminderRecipients    prometheus.Counter
	QueuePending          prometheus.Gauge
	QueueLeased           prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer.
// A custom registry keeps tests isolated from the global default.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notification jobs enqueued.",
		}, []string{"kind"}),

		NotificationsDequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dequeued_total",
			Help: "Total number of notification jobs leased by a consumer.",
		}, []string{"kind"}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total number of notifications accepted by the sender.",
		}, []string{"kind"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notifications whose delivery attempt failed.",
		}, []string{"kind"}),

		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_delivery_seconds",
			Help:    "Latency from lease to sender acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		ReminderPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_pass_total",
			Help: "Reminder passes by result (completed, contended, failed).",
		}, []string{"result"}),

		ReminderRecipients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_recipients_total",
			Help: "Total number of event reminder jobs enqueued.",
		}),

		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_pending",
			Help: "Unprocessed jobs not currently leased.",
		}),
		QueueLeased: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_leased",
			Help: "Unprocessed jobs currently held under a lease.",
		}),
	}

	reg.MustRegister(
		m.NotificationsEnqueued,
		m.NotificationsDequeued,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.DeliveryLatency,
		m.ReminderPasses,
		m.ReminderRecipients,
		m.QueuePending,
		m.QueueLeased,
	)

	return m
}

// ServiceHooks returns the callbacks expected by service.Hooks.
func (m *Metrics) ServiceHooks() service.Hooks {
	return service.Hooks{
		OnEnqueued: func(kind domain.Kind, count int) {
			m.NotificationsEnqueued.WithLabelValues(string(kind)).Add(float64(count))
		},
		OnDequeued: func(kind domain.Kind) {
			m.NotificationsDequeued.WithLabelValues(string(kind)).Inc()
		},
		OnReminderPass: func(result string, recipients int) {
			m.ReminderPasses.WithLabelValues(result).Inc()
			m.ReminderRecipients.Add(float64(recipients))
		},
	}
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so worker.go stays import-free.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnSent: func(kind domain.Kind, latency time.Duration) {
			m.NotificationsSent.WithLabelValues(string(kind)).Inc()
			m.DeliveryLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
		},
		OnFailed: func(kind domain.Kind) {
			m.NotificationsFailed.WithLabelValues(string(kind)).Inc()
		},
	}
}

// ObserveStats sets the queue gauges from a stats snapshot.
func (m *Metrics) ObserveStats(s *domain.QueueStats) {
	m.QueuePending.Set(float64(s.Pending))
	m.QueueLeased.Set(float64(s.Leased))
}
