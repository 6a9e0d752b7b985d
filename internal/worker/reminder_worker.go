package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReminderRunner runs one reminder pass.
type ReminderRunner interface {
	RunReminderPass(ctx context.Context, baseURL string) (int, error)
}

// ReminderWorker triggers a reminder pass every interval. Overlap with
// passes started elsewhere (other replicas, the HTTP trigger) is resolved
// by the pass lock, not here.
type ReminderWorker struct {
	runner   ReminderRunner
	baseURL  string
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewReminderWorker(
	runner ReminderRunner,
	baseURL string,
	interval time.Duration,
	logger *zap.Logger,
) *ReminderWorker {
	return &ReminderWorker{runner: runner, baseURL: baseURL, interval: interval, timeout: interval, logger: logger}
}

// Run ticks every interval and runs a pass. Stops cleanly when ctx is cancelled.
func (rw *ReminderWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reminder worker started", zap.Duration("interval", rw.interval))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reminder worker stopping")
			return
		case <-ticker.C:
			rw.poll(ctx)
		}
	}
}

func (rw *ReminderWorker) poll(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, rw.timeout)
	defer cancel()

	n, err := rw.runner.RunReminderPass(passCtx, rw.baseURL)
	if err != nil {
		rw.logger.Error("reminder pass error", zap.Error(err))
		return
	}
	if n > 0 {
		rw.logger.Info("event reminders enqueued", zap.Int("recipients", n))
	}
}
