package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/provider"
	"github.com/notifyhub/notification-queue/internal/queue"
	"github.com/notifyhub/notification-queue/internal/ratelimiter"
)

// Queue is the delivery side of the notification service.
type Queue interface {
	DequeueNext(ctx context.Context) (*domain.LeasedNotification, error)
	GetAttachment(ctx context.Context, id string) (*domain.Attachment, error)
	MarkProcessed(ctx context.Context, id, deliveryErr string) error
}

// Worker is a single goroutine that leases jobs from the queue, applies
// per-kind rate limiting, renders and sends them, and marks them processed.
// Every attempted job is marked processed; a failed send stores the error
// on the job instead of retrying.
type Worker struct {
	id       int
	queue    Queue
	wake     *queue.Notifier
	renderer *provider.Renderer
	sender   provider.Sender
	limiter  *ratelimiter.KindLimiters
	idleWait time.Duration
	logger   *zap.Logger

	// Hooks for metrics, injected by the pool so the worker stays metrics-agnostic.
	onSent   func(kind domain.Kind, latency time.Duration)
	onFailed func(kind domain.Kind)
}

// NewWorker constructs a worker. onSent and onFailed are optional (nil = no-op).
func NewWorker(
	id int,
	q Queue,
	wake *queue.Notifier,
	renderer *provider.Renderer,
	sender provider.Sender,
	limiter *ratelimiter.KindLimiters,
	idleWait time.Duration,
	logger *zap.Logger,
	onSent func(domain.Kind, time.Duration),
	onFailed func(domain.Kind),
) *Worker {
	if onSent == nil {
		onSent = func(domain.Kind, time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func(domain.Kind) {}
	}
	return &Worker{
		id: id, queue: q, wake: wake, renderer: renderer, sender: sender,
		limiter: limiter, idleWait: idleWait, logger: logger,
		onSent: onSent, onFailed: onFailed,
	}
}

// Run blocks until ctx is cancelled, delivering one job per iteration and
// sleeping on the notifier when the queue has nothing eligible.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("delivery worker started", zap.Int("id", w.id))
	for {
		if ctx.Err() != nil {
			w.logger.Info("delivery worker stopping", zap.Int("id", w.id))
			return
		}

		n, err := w.queue.DequeueNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("dequeue failed", zap.Error(err))
			}
			w.wake.Wait(ctx, w.idleWait)
			continue
		}
		if n == nil {
			w.wake.Wait(ctx, w.idleWait)
			continue
		}

		w.process(ctx, n)
	}
}

func (w *Worker) process(ctx context.Context, n *domain.LeasedNotification) {
	start := time.Now()
	log := w.logger.With(
		zap.String("notification_id", n.ID),
		zap.String("kind", string(n.Kind)),
	)

	// Rate limiting and sending must finish while the lease is held; past it
	// another consumer may lease the same job.
	leaseCtx, cancelLease := context.WithDeadline(ctx, n.LeaseExpiresAt)
	defer cancelLease()

	if err := w.limiter.Wait(leaseCtx, n.Kind); err != nil {
		// Shutdown, or no token before the lease lapses. The job stays
		// unprocessed and is leased again once its lease expires.
		if ctx.Err() == nil {
			log.Debug("rate limit wait exceeds lease, leaving job for redelivery")
		}
		return
	}

	resp, sendErr := w.deliver(leaseCtx, n)
	elapsed := time.Since(start)

	var errMsg string
	if sendErr != nil {
		errMsg = sendErr.Error()
		log.Warn("delivery failed", zap.Error(sendErr))
		w.onFailed(n.Kind)
	}

	// Marking uses a fresh context so a shutdown mid-send still records the attempt.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.queue.MarkProcessed(markCtx, n.ID, errMsg); err != nil {
		log.Error("failed to mark as processed", zap.Error(err))
		return
	}

	if sendErr == nil {
		w.onSent(n.Kind, elapsed)
		log.Info("notification sent", zap.String("provider_msg_id", resp.MessageID), zap.Duration("latency", elapsed))
	}
}

func (w *Worker) deliver(ctx context.Context, n *domain.LeasedNotification) (*provider.SendResponse, error) {
	subject, body, err := w.renderer.Render(n.Kind, n.TemplateData)
	if err != nil {
		return nil, err
	}

	attachments := make([]*domain.Attachment, 0, len(n.AttachmentIDs))
	for _, id := range n.AttachmentIDs {
		a, err := w.queue.GetAttachment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load attachment %s: %w", id, err)
		}
		attachments = append(attachments, a)
	}

	return w.sender.Send(ctx, &provider.Message{
		NotificationID: n.ID,
		Kind:           n.Kind,
		To:             n.RecipientEmail,
		Subject:        subject,
		HTMLBody:       body,
		Attachments:    attachments,
	})
}
