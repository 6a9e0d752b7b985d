package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/notification-queue/internal/api/middleware"
	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/service"
)

// NotificationHandler exposes the queue operations over HTTP.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Enqueue handles POST /api/v1/notifications
//
// @Summary     Enqueue one notification per recipient
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       body  body      domain.EnqueueRequest  true  "Fan-out payload"
// @Success     201   {object}  domain.EnqueueResult
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/notifications [post]
func (h *NotificationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("request_id", apimw.GetRequestID(r.Context())),
			zap.String("kind", string(req.Kind)),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// Dequeue handles POST /api/v1/notifications/dequeue
//
// @Summary  Lease the oldest eligible notification
// @Tags     notifications
// @Produce  json
// @Success  200  {object}  domain.LeasedNotification
// @Success  204  "Nothing eligible"
// @Router   /api/v1/notifications/dequeue [post]
func (h *NotificationHandler) Dequeue(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DequeueNext(r.Context())
	if err != nil {
		h.logger.Error("dequeue failed", zap.Error(err))
		mapError(w, err)
		return
	}
	if n == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

type markProcessedRequest struct {
	Error string `json:"error,omitempty"`
}

// MarkProcessed handles POST /api/v1/notifications/{id}/processed
//
// @Summary  Record a delivery attempt
// @Tags     notifications
// @Accept   json
// @Param    id    path  string                true   "Notification UUID"
// @Param    body  body  markProcessedRequest  false  "Delivery error, if any"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/notifications/{id}/processed [post]
func (h *NotificationHandler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	var req markProcessedRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.svc.MarkProcessed(r.Context(), chi.URLParam(r, "id"), req.Error); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetByID handles GET /api/v1/notifications/{id}
//
// @Summary  Get a notification by ID
// @Tags     notifications
// @Produce  json
// @Param    id   path      string  true  "Notification UUID"
// @Success  200  {object}  domain.Notification
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/notifications/{id} [get]
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// GetAttachment handles GET /api/v1/attachments/{id}
//
// @Summary  Download attachment bytes
// @Tags     attachments
// @Param    id   path  string  true  "Attachment UUID"
// @Success  200
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/attachments/{id} [get]
func (h *NotificationHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAttachment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}
