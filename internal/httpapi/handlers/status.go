package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cutline/internal/httpkit"
	"cutline/internal/pkg/errors"
)

func jobIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "jobId"))
	if id == "" {
		return "", errors.ValidationField("jobId", "jobId is required")
	}
	return id, nil
}

// RenderStatus returns the current record for a job. A job this replica has
// not heard of is looked up at the render worker when fallback is enabled;
// that answer is returned as-is and not stored.
func (h *Handler) RenderStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := jobIDParam(r)
	if err != nil {
		return err
	}

	if rec, ok := h.tracker.Status(id); ok {
		httpkit.WriteJSON(w, http.StatusOK, rec)
		return nil
	}

	if !h.fallback || h.gateway == nil {
		return errors.NotFound("job", id)
	}

	rec, err := h.gateway.Status(r.Context(), id)
	if err != nil {
		return err
	}
	h.log.FromContext(r.Context()).WithJobID(id).Debug("status served from render worker", "status", string(rec.Status))
	httpkit.WriteJSON(w, http.StatusOK, rec)
	return nil
}
