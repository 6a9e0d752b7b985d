package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/metrics"
	"github.com/notifyhub/notification-queue/internal/service"
)

func TestMetrics_ServiceHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hooks := m.ServiceHooks()

	hooks.OnEnqueued(domain.KindGroupWelcome, 3)
	hooks.OnDequeued(domain.KindGroupWelcome)
	hooks.OnReminderPass(service.PassCompleted, 4)
	hooks.OnReminderPass(service.PassContended, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsEnqueued.WithLabelValues("group-welcome")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDequeued.WithLabelValues("group-welcome")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReminderPasses.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReminderPasses.WithLabelValues("contended")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ReminderRecipients))
}

func TestMetrics_WorkerHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hooks := m.WorkerHooks()

	hooks.OnSent(domain.KindEventReminder, 20*time.Millisecond)
	hooks.OnFailed(domain.KindEventReminder)
	hooks.OnFailed(domain.KindEventReminder)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("event-reminder")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsFailed.WithLabelValues("event-reminder")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DeliveryLatency))
}

func TestMetrics_ObserveStats(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.ObserveStats(&domain.QueueStats{Pending: 7, Leased: 2, Processed: 40})

	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueuePending))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueLeased))
}
