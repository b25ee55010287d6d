// Package gateway talks to the render worker: it submits render requests and
// reads job status the worker still knows about.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cutline/internal/captions"
	"cutline/internal/jobs"
	"cutline/internal/pkg/errors"
	"cutline/internal/pkg/logger"
)

const serviceName = "render-worker"

// RenderRequest is the body forwarded to the worker's render endpoint.
type RenderRequest struct {
	VideoURL string             `json:"videoUrl"`
	Captions []captions.Caption `json:"captions"`
	Style    captions.Style     `json:"style"`
}

// Validate mirrors the checks the worker would otherwise fail on.
func (r RenderRequest) Validate() error {
	if r.VideoURL == "" {
		return errors.ValidationField("videoUrl", "videoUrl is required")
	}
	if !r.Style.Valid() {
		return errors.ValidationField("style", "style must be bottom-centered, top-bar or karaoke").
			WithField("value", string(r.Style))
	}
	return captions.Validate(r.Captions)
}

// Submission is the worker's answer to a render request. The job id is minted
// by the worker.
type Submission struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Client is the render worker contract used by the API.
type Client interface {
	Submit(ctx context.Context, req RenderRequest) (Submission, error)
	Status(ctx context.Context, jobID string) (jobs.Record, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPClient(baseURL string, log *logger.Logger) *HTTPClient {
	if log == nil {
		log = logger.NewDefault()
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.WithComponent("gateway"),
	}
}

// Submit posts req to /api/render.
func (c *HTTPClient) Submit(ctx context.Context, req RenderRequest) (Submission, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Submission{}, errors.Wrap(err, "gateway.submit", "encode render request")
	}

	var out Submission
	if err := c.do(ctx, http.MethodPost, "/api/render", bytes.NewReader(body), &out); err != nil {
		return Submission{}, err
	}
	if out.JobID == "" {
		return Submission{}, errors.Upstream(serviceName, nil).WithField("reason", "response carried no jobId")
	}
	c.log.WithJobID(out.JobID).Info("render job submitted", "captions", len(req.Captions), "style", string(req.Style))
	return out, nil
}

// Status reads /api/status/{jobID}. A 404 from the worker is reported as
// errors.CodeNotFound.
func (c *HTTPClient) Status(ctx context.Context, jobID string) (jobs.Record, error) {
	var rec jobs.Record
	if err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(jobID), nil, &rec); err != nil {
		if errors.IsNotFound(err) {
			return jobs.Record{}, errors.NotFound("job", jobID)
		}
		return jobs.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = jobID
	}
	if !rec.Status.Valid() {
		return jobs.Record{}, errors.Upstream(serviceName, nil).
			WithField("reason", "unknown status").
			WithField("status", string(rec.Status))
	}
	return rec, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "gateway.request", "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Timeout("render worker request")
		}
		return errors.Upstream(serviceName, err).WithField("path", path)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return errors.New(errors.CodeNotFound, "not found at render worker").WithField("path", path)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&eb)
		msg := eb.Error
		if msg == "" {
			msg = fmt.Sprintf("render worker http %d", res.StatusCode)
		}
		e := errors.Upstream(serviceName, nil).WithField("status", res.StatusCode)
		e.Message = msg
		return e
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Upstream(serviceName, err).WithField("reason", "malformed response")
	}
	return nil
}
