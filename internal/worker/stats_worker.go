package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/domain"
)

// StatsSource reports queue counts.
type StatsSource interface {
	Stats(ctx context.Context) (*domain.QueueStats, error)
}

// StatsWorker samples queue counts on an interval and hands them to a
// callback, typically the queue depth gauges. Counts come from the database
// so every replica reports the same shared queue.
type StatsWorker struct {
	src      StatsSource
	report   func(*domain.QueueStats)
	interval time.Duration
	logger   *zap.Logger
}

func NewStatsWorker(
	src StatsSource,
	report func(*domain.QueueStats),
	interval time.Duration,
	logger *zap.Logger,
) *StatsWorker {
	return &StatsWorker{src: src, report: report, interval: interval, logger: logger}
}

// Run samples once immediately, then every interval until ctx is cancelled.
func (sw *StatsWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("stats worker started", zap.Duration("interval", sw.interval))
	sw.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("stats worker stopping")
			return
		case <-ticker.C:
			sw.poll(ctx)
		}
	}
}

func (sw *StatsWorker) poll(ctx context.Context) {
	stats, err := sw.src.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			sw.logger.Warn("queue stats poll error", zap.Error(err))
		}
		return
	}
	sw.report(stats)
}
