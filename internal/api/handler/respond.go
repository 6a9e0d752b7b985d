package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/notifyhub/notification-queue/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyProcessed):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInvalidTemplateData),
		errors.Is(err, domain.ErrInvalidAttachment),
		errors.Is(err, domain.ErrInvalidRecipient),
		errors.Is(err, domain.ErrUnknownRecipient),
		errors.Is(err, domain.ErrInvalidBaseURL):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeOptional decodes a JSON body, treating an empty body as zero value.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
