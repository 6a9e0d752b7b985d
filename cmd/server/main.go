package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/api"
	"github.com/notifyhub/notification-queue/internal/config"
	"github.com/notifyhub/notification-queue/internal/db"
	"github.com/notifyhub/notification-queue/internal/lock"
	"github.com/notifyhub/notification-queue/internal/logging"
	"github.com/notifyhub/notification-queue/internal/metrics"
	"github.com/notifyhub/notification-queue/internal/provider"
	"github.com/notifyhub/notification-queue/internal/queue"
	"github.com/notifyhub/notification-queue/internal/ratelimiter"
	"github.com/notifyhub/notification-queue/internal/repository"
	"github.com/notifyhub/notification-queue/internal/service"
	"github.com/notifyhub/notification-queue/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- reminder pass lock ----
	var locker lock.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := lock.NewRedisClient(ctx, lock.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close() //nolint:errcheck
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, logger)
	case config.LockLocal:
		locker = lock.NewLocalLocker()
	default:
		locker = lock.NewPgAdvisoryLocker(pool, logger)
	}
	logger.Info("reminder lock configured", zap.String("backend", cfg.LockBackend))

	// ---- sender ----
	var sender provider.Sender
	switch cfg.Sender {
	case config.SenderWebhook:
		sender = provider.NewWebhookProvider(cfg.ProviderBaseURL, cfg.ProviderTimeout)
	case config.SenderSES:
		sender, err = provider.NewSESSender(ctx, cfg.SESRegion, cfg.SESFrom, logger)
		if err != nil {
			logger.Fatal("failed to configure SES", zap.Error(err))
		}
	default:
		sender = provider.NewLogSender(logger)
	}

	renderer, err := provider.NewRenderer()
	if err != nil {
		logger.Fatal("failed to parse templates", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	wake := queue.New(cfg.DeliveryWorkers * 16)
	notifications := repository.NewPgNotificationRepository(pool)
	reminders := repository.NewPgReminderRepository(pool)
	limiter := ratelimiter.New(cfg.RateLimit)

	svc := service.NewNotificationService(notifications, wake, cfg.LeaseTimeout, m.ServiceHooks(), logger)
	reminderSvc := service.NewReminderService(reminders, locker, wake, m.ServiceHooks(), logger)

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	deliveryPool := worker.NewPool(
		worker.PoolConfig{Workers: cfg.DeliveryWorkers, IdleWait: cfg.DeliveryIdleWait},
		svc, wake, renderer, sender, limiter, logger, m.WorkerHooks(),
	)
	deliveryPool.Start(workerCtx)

	// Tickers are tracked so shutdown waits for an in-flight pass before
	// the pool is closed.
	var tickers worker.Group
	if cfg.ReminderEnabled {
		tickers.Go(workerCtx, worker.NewReminderWorker(reminderSvc, cfg.ReminderBaseURL, cfg.ReminderInterval, logger))
	}
	tickers.Go(workerCtx, worker.NewStatsWorker(svc, m.ObserveStats, cfg.StatsInterval, logger))

	// ---- HTTP server ----
	router := api.NewRouter(svc, reminderSvc, pool, cfg.ReminderBaseURL, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all workers to stop leasing new jobs.
	cancelWorkers()

	// 3. Wait for in-flight deliveries to be marked and for the tickers to
	// finish their current pass.
	deliveryPool.Wait()
	tickers.Wait()

	logger.Info("server stopped cleanly")
}
