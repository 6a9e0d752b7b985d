package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notification-queue/internal/api/middleware"
)

// ReminderRunner runs one reminder pass.
type ReminderRunner interface {
	RunReminderPass(ctx context.Context, baseURL string) (int, error)
}

// ReminderHandler lets operators trigger a reminder pass on demand.
type ReminderHandler struct {
	runner         ReminderRunner
	defaultBaseURL string
	logger         *zap.Logger
}

func NewReminderHandler(runner ReminderRunner, defaultBaseURL string, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{runner: runner, defaultBaseURL: defaultBaseURL, logger: logger}
}

type runRemindersRequest struct {
	BaseURL string `json:"base_url,omitempty"`
}

// Run handles POST /api/v1/reminders/run
//
// @Summary  Run a reminder pass now
// @Tags     reminders
// @Accept   json
// @Produce  json
// @Param    body  body      runRemindersRequest  false  "Link base URL override"
// @Success  200   {object}  map[string]int
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/reminders/run [post]
func (h *ReminderHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRemindersRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = h.defaultBaseURL
	}

	n, err := h.runner.RunReminderPass(r.Context(), baseURL)
	if err != nil {
		h.logger.Warn("reminder pass failed",
			zap.String("request_id", apimw.GetRequestID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"recipients": n})
}
