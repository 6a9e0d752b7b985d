package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/lock"
	"github.com/notifyhub/notification-queue/internal/queue"
	"github.com/notifyhub/notification-queue/internal/repository"
)

const (
	// ReminderLookahead is how far ahead of an event's start its reminder
	// becomes due.
	ReminderLookahead = 24 * time.Hour

	// ReminderLockKey names the lock that keeps reminder passes from overlapping.
	ReminderLockKey = "notification:reminder-pass"
)

// Reminder pass results reported to Hooks.OnReminderPass.
const (
	PassCompleted = "completed"
	PassContended = "contended"
	PassFailed    = "failed"
)

// ReminderService discovers upcoming events and enqueues one reminder batch
// per event per distinct start time.
type ReminderService struct {
	repo   repository.ReminderRepository
	locker lock.Locker
	q      *queue.Notifier
	hooks  Hooks
	logger *zap.Logger
}

func NewReminderService(
	repo repository.ReminderRepository,
	locker lock.Locker,
	q *queue.Notifier,
	hooks Hooks,
	logger *zap.Logger,
) *ReminderService {
	return &ReminderService{repo: repo, locker: locker, q: q, hooks: hooks.withDefaults(), logger: logger}
}

// RunReminderPass evaluates every qualifying event once and returns the
// number of recipients notified. It returns 0 without scanning when another
// pass holds the lock.
//
// Each event is its own transaction: a failure is logged and the event is
// skipped for the rest of the pass; it stays eligible for the next one.
func (s *ReminderService) RunReminderPass(ctx context.Context, baseURL string) (int, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return 0, err
	}

	release, ok, err := s.locker.TryAcquire(ctx, ReminderLockKey)
	if err != nil {
		s.hooks.OnReminderPass(PassFailed, 0)
		return 0, fmt.Errorf("acquire reminder lock: %w", err)
	}
	if !ok {
		s.hooks.OnReminderPass(PassContended, 0)
		s.logger.Debug("reminder pass already running elsewhere")
		return 0, nil
	}
	defer release()

	build := func(c *domain.ReminderCandidate) (json.RawMessage, error) {
		return BuildReminderPayload(base, c)
	}

	var (
		now     = time.Now().UTC()
		total   int
		events  int
		exclude []string
	)
	for {
		if err := ctx.Err(); err != nil {
			s.hooks.OnReminderPass(PassFailed, total)
			return total, err
		}

		out, err := s.repo.EvaluateNextEvent(ctx, now, ReminderLookahead, exclude, build)
		if err != nil {
			if out == nil {
				s.hooks.OnReminderPass(PassFailed, total)
				return total, fmt.Errorf("reminder scan: %w", err)
			}
			s.logger.Error("reminder evaluation failed",
				zap.String("event_id", out.EventID),
				zap.Time("starts_at", out.StartsAt),
				zap.Error(err),
			)
			exclude = append(exclude, out.EventID)
			continue
		}
		if out == nil {
			break
		}

		events++
		total += out.Recipients
		if out.Recipients > 0 {
			s.hooks.OnEnqueued(domain.KindEventReminder, out.Recipients)
			s.q.Notify(out.Recipients)
		}
		s.logger.Debug("event reminder evaluated",
			zap.String("event_id", out.EventID),
			zap.Int("recipients", out.Recipients),
		)
	}

	s.hooks.OnReminderPass(PassCompleted, total)
	if events > 0 || len(exclude) > 0 {
		s.logger.Info("reminder pass finished",
			zap.Int("events", events),
			zap.Int("failed_events", len(exclude)),
			zap.Int("recipients", total),
		)
	}
	return total, nil
}
