package handlers

import (
	"net/http"
	"strconv"

	"cutline/internal/httpkit"
	"cutline/internal/models"
	"cutline/internal/pkg/errors"
)

type eventsResponse struct {
	JobID  string               `json:"jobId"`
	Events []models.RenderEvent `json:"events"`
}

// RenderEvents lists the journaled webhook deliveries for a job.
func (h *Handler) RenderEvents(w http.ResponseWriter, r *http.Request) error {
	if h.journal == nil {
		return errors.Unavailable("journal")
	}
	id, err := jobIDParam(r)
	if err != nil {
		return err
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return errors.ValidationField("limit", "limit must be a positive integer").WithField("value", raw)
		}
		limit = v
	}

	events, err := h.journal.ListByJob(r.Context(), id, limit)
	if err != nil {
		return errors.Wrap(err, "handlers.events", "failed to read journal")
	}
	httpkit.WriteJSON(w, http.StatusOK, eventsResponse{JobID: id, Events: events})
	return nil
}
