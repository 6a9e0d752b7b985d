package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/api/handler"
	apimw "github.com/notifyhub/notification-queue/internal/api/middleware"
	"github.com/notifyhub/notification-queue/internal/service"
)

// maxBodyBytes bounds enqueue bodies, which carry base64 attachments.
const maxBodyBytes = 10 << 20

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.NotificationService,
	reminders handler.ReminderRunner,
	db handler.Pinger,
	defaultBaseURL string,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(maxBodyBytes))
	r.Use(apimw.RequestID)
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(svc, logger)
	rh := handler.NewReminderHandler(reminders, defaultBaseURL, logger)
	sh := handler.NewStatsHandler(svc)
	hh := handler.NewHealthHandler(db)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// /dequeue must be registered before /{id} routes of the same method.
		r.Post("/notifications", nh.Enqueue)
		r.Post("/notifications/dequeue", nh.Dequeue)
		r.Post("/notifications/{id}/processed", nh.MarkProcessed)
		r.Get("/notifications/{id}", nh.GetByID)
		r.Get("/attachments/{id}", nh.GetAttachment)

		r.Post("/reminders/run", rh.Run)
		r.Get("/stats", sh.GetStats)
	})

	return r
}
