package handlers

import (
	"net/http"

	"cutline/internal/push"
)

// RenderStream serves a job's records as server-sent events until the job
// finishes or the consumer leaves.
func (h *Handler) RenderStream(w http.ResponseWriter, r *http.Request) error {
	id, err := jobIDParam(r)
	if err != nil {
		return err
	}
	log := h.log.FromContext(r.Context()).WithJobID(id)

	opts := h.stream
	opts.Log = log
	stream := push.New(w, h.tracker.Subscribe(id), opts)

	log.Info("stream opened", "subscribers", h.tracker.Subscribers(id))
	outcome := stream.Serve(r.Context())
	log.Debug("stream closed", "outcome", string(outcome), "events", stream.Events())
	return nil
}
