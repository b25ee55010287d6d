package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cutline/internal/captions"
	"cutline/internal/gateway"
	"cutline/internal/httpkit"
	"cutline/internal/pkg/errors"
	"cutline/internal/ports"
)

const captionURLTTL = 24 * time.Hour

type renderResponse struct {
	Success     bool   `json:"success"`
	JobID       string `json:"jobId"`
	Message     string `json:"message"`
	StatusURL   string `json:"statusUrl"`
	StreamURL   string `json:"streamUrl"`
	CaptionsURL string `json:"captionsUrl,omitempty"`
}

// SubmitRender forwards a render request to the render worker and returns
// the job id it minted.
func (h *Handler) SubmitRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if h.gateway == nil {
		return errors.Unavailable("render worker")
	}

	var req gateway.RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	sub, err := h.gateway.Submit(ctx, req)
	if err != nil {
		return err
	}

	escaped := url.PathEscape(sub.JobID)
	resp := renderResponse{
		Success:   true,
		JobID:     sub.JobID,
		Message:   "Render job submitted successfully",
		StatusURL: "/api/render/status/" + escaped,
		StreamURL: "/api/render/stream/" + escaped,
	}
	if h.sp != nil {
		resp.CaptionsURL = h.storeSidecar(ctx, sub.JobID, req.Captions)
	}

	httpkit.WriteJSON(w, http.StatusOK, resp)
	return nil
}

// storeSidecar writes the job's captions as WebVTT and returns a URL for it,
// or "" when the upload failed.
func (h *Handler) storeSidecar(ctx context.Context, jobID string, list []captions.Caption) string {
	log := h.log.FromContext(ctx).WithJobID(jobID)
	body := captions.ToVTT(list)

	out, err := h.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   captions.SidecarKey(jobID, captions.FormatVTT),
		ContentType: captions.FormatVTT.ContentType(),
		Reader:      strings.NewReader(body),
		Size:        int64(len(body)),
	})
	if err != nil {
		log.Warn("caption sidecar upload failed", "provider", h.sp.Provider(), "error", err.Error())
		return ""
	}

	signed, err := h.sp.GetSignedURL(ctx, out.ObjectKey, captionURLTTL)
	if err == nil && signed.URL != "" {
		return signed.URL
	}
	return "/api/captions/files/" + out.ObjectKey
}
