package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cutline/internal/captions"
	"cutline/internal/httpkit"
	"cutline/internal/pkg/errors"
	"cutline/internal/ports"
)

type exportRequest struct {
	Captions []captions.Caption `json:"captions"`
	Filename string             `json:"filename,omitempty"`
}

// ExportCaptions renders the posted captions as an SRT or WebVTT download.
func (h *Handler) ExportCaptions(w http.ResponseWriter, r *http.Request) error {
	format, err := captions.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return err
	}

	var req exportRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := captions.Validate(req.Captions); err != nil {
		return err
	}

	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = "captions"
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, captions.Render(req.Captions, format))
	return nil
}

// CaptionFile streams a stored caption sidecar.
func (h *Handler) CaptionFile(w http.ResponseWriter, r *http.Request) error {
	if h.sp == nil {
		return errors.Unavailable("storage")
	}
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" {
		return errors.ValidationField("key", "object key is required")
	}

	rc, contentType, size, err := h.sp.GetObject(r.Context(), key)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return errors.NotFound("caption file", key)
		}
		return errors.Wrap(err, "handlers.captionFile", "failed to read caption file").WithField("provider", h.sp.Provider())
	}
	defer rc.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}
