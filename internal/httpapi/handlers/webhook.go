package handlers

import (
	"math"
	"net/http"

	"cutline/internal/httpkit"
	"cutline/internal/jobs"
	"cutline/internal/models"
)

// webhookPayload is the render worker's status callback. Progress arrives as
// a JSON number and may carry a fraction.
type webhookPayload struct {
	JobID    string      `json:"jobId"`
	Status   jobs.Status `json:"status"`
	Progress *float64    `json:"progress"`
	Message  string      `json:"message"`
	VideoURL string      `json:"videoUrl"`
	Error    string      `json:"error"`
}

func (p webhookPayload) update() jobs.Update {
	u := jobs.Update{
		JobID:    p.JobID,
		Status:   p.Status,
		Message:  p.Message,
		VideoURL: p.VideoURL,
		Error:    p.Error,
	}
	if p.Progress != nil {
		v := int(math.Round(*p.Progress))
		u.Progress = &v
	}
	return u
}

type webhookResponse struct {
	Success bool `json:"success"`
	Applied bool `json:"applied"`
}

// RenderComplete ingests a status callback from the render worker.
func (h *Handler) RenderComplete(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var p webhookPayload
	if err := httpkit.DecodeJSONLenient(r, &p); err != nil {
		return err
	}
	u := p.update()

	log := h.log.FromContext(ctx).WithJobID(u.JobID)
	log.Info("webhook received", "status", string(u.Status))

	res, err := h.tracker.Ingest(u)
	if err != nil {
		return err
	}
	u.JobID = res.Record.ID

	if res.Applied && h.relay != nil {
		if err := h.relay.Publish(ctx, u); err != nil {
			log.Warn("relay publish failed", "error", err.Error())
		}
	}

	if h.journal != nil {
		ev := &models.RenderEvent{
			JobID:    u.JobID,
			Status:   string(u.Status),
			Progress: u.Progress,
			Message:  u.Message,
			VideoURL: u.VideoURL,
			Error:    u.Error,
			Applied:  res.Applied,
			Origin:   h.instance,
		}
		if err := h.journal.Append(ctx, ev); err != nil {
			log.Warn("journal append failed", "error", err.Error())
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, webhookResponse{Success: true, Applied: res.Applied})
	return nil
}
