package handler

import (
	"context"
	"net/http"

	"github.com/notifyhub/notification-queue/internal/domain"
)

// StatsSource reports queue counts.
type StatsSource interface {
	Stats(ctx context.Context) (*domain.QueueStats, error)
}

// StatsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics and are separate from this endpoint.
type StatsHandler struct {
	src StatsSource
}

func NewStatsHandler(src StatsSource) *StatsHandler {
	return &StatsHandler{src: src}
}

// GetStats handles GET /api/v1/stats
//
// @Summary  Queue counts by state
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  domain.QueueStats
// @Router   /api/v1/stats [get]
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.src.Stats(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
