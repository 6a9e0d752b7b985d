package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/notifyhub/notification-queue/internal/domain"
)

// NotificationRepository defines all persistence operations for the delivery queue.
// The pgx implementation is in pg_notification_repo.go.
// Tests use a hand-written mock (mock_repo.go).
type NotificationRepository interface {
	// Enqueue stores template data and attachments by fingerprint and creates
	// one notification per recipient id, all in one transaction.
	Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.EnqueueResult, error)

	// DequeueNext leases the oldest eligible notification for lease, skipping
	// rows held by concurrent callers. Returns nil, nil when nothing is eligible.
	DequeueNext(ctx context.Context, lease time.Duration) (*domain.LeasedNotification, error)

	MarkProcessed(ctx context.Context, id string, errMsg *string) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetAttachment(ctx context.Context, id string) (*domain.Attachment, error)
	Stats(ctx context.Context) (*domain.QueueStats, error)
}

// ReminderPayloadFunc builds the template payload for an event reminder.
type ReminderPayloadFunc func(c *domain.ReminderCandidate) (json.RawMessage, error)

// ReminderRepository evaluates upcoming events for reminders.
type ReminderRepository interface {
	// EvaluateNextEvent locks the earliest qualifying event starting in
	// (now, now+lookahead] whose id is not in exclude, and in one transaction
	// enqueues its reminder (when it has recipients) and stamps its markers.
	//
	// It returns nil, nil when no event qualifies. When the evaluation of a
	// selected event fails, the returned outcome carries that event's id
	// alongside the error so callers can skip it.
	EvaluateNextEvent(
		ctx context.Context,
		now time.Time,
		lookahead time.Duration,
		exclude []string,
		build ReminderPayloadFunc,
	) (*domain.ReminderOutcome, error)
}
