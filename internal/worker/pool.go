package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/provider"
	"github.com/notifyhub/notification-queue/internal/queue"
	"github.com/notifyhub/notification-queue/internal/ratelimiter"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnSent   func(kind domain.Kind, latency time.Duration)
	OnFailed func(kind domain.Kind)
}

// PoolConfig sizes the pool and its idle behaviour.
type PoolConfig struct {
	Workers  int
	IdleWait time.Duration
}

// Pool manages the lifecycle of all delivery workers.
// Workers share the notifier; the database's skip-locked lease keeps them
// from picking the same job.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

func NewPool(
	cfg PoolConfig,
	q Queue,
	wake *queue.Notifier,
	renderer *provider.Renderer,
	sender provider.Sender,
	limiter *ratelimiter.KindLimiters,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, cfg.Workers)
	for i := range workers {
		workers[i] = NewWorker(
			i, q, wake, renderer, sender, limiter,
			cfg.IdleWait,
			logger.With(zap.Int("worker_id", i)),
			hooks.OnSent,
			hooks.OnFailed,
		)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
