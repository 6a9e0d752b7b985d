package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/queue"
	"github.com/notifyhub/notification-queue/internal/repository"
)

// Hooks carries metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnEnqueued     func(kind domain.Kind, count int)
	OnDequeued     func(kind domain.Kind)
	OnReminderPass func(result string, recipients int)
}

func (h Hooks) withDefaults() Hooks {
	if h.OnEnqueued == nil {
		h.OnEnqueued = func(domain.Kind, int) {}
	}
	if h.OnDequeued == nil {
		h.OnDequeued = func(domain.Kind) {}
	}
	if h.OnReminderPass == nil {
		h.OnReminderPass = func(string, int) {}
	}
	return h
}

// NotificationService coordinates the repository and the wake-up notifier.
// HTTP handlers and delivery workers depend on this service, not on the repository.
type NotificationService struct {
	repo   repository.NotificationRepository
	q      *queue.Notifier
	lease  time.Duration
	hooks  Hooks
	logger *zap.Logger
}

func NewNotificationService(
	repo repository.NotificationRepository,
	q *queue.Notifier,
	lease time.Duration,
	hooks Hooks,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{repo: repo, q: q, lease: lease, hooks: hooks.withDefaults(), logger: logger}
}

// Enqueue validates and atomically materialises one job per recipient.
// Repeated recipient ids produce repeated jobs. An empty recipient list
// is valid and creates nothing.
func (s *NotificationService) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res, err := s.repo.Enqueue(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", req.Kind, err)
	}

	if n := len(res.NotificationIDs); n > 0 {
		s.hooks.OnEnqueued(req.Kind, n)
		s.q.Notify(n)
		s.logger.Debug("notifications enqueued",
			zap.String("kind", string(req.Kind)),
			zap.Int("count", n),
			zap.Int("attachments", len(res.AttachmentIDs)),
		)
	}
	return res, nil
}

// DequeueNext leases the oldest eligible job. Returns nil, nil when the
// queue has nothing eligible.
func (s *NotificationService) DequeueNext(ctx context.Context) (*domain.LeasedNotification, error) {
	n, err := s.repo.DequeueNext(ctx, s.lease)
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if n != nil {
		s.hooks.OnDequeued(n.Kind)
	}
	return n, nil
}

// MarkProcessed records that delivery was attempted. A non-empty
// deliveryErr is stored with the job.
func (s *NotificationService) MarkProcessed(ctx context.Context, id, deliveryErr string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	var errMsg *string
	if deliveryErr != "" {
		errMsg = &deliveryErr
	}
	return s.repo.MarkProcessed(ctx, id, errMsg)
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *NotificationService) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetAttachment(ctx, id)
}

func (s *NotificationService) Stats(ctx context.Context) (*domain.QueueStats, error) {
	return s.repo.Stats(ctx)
}
