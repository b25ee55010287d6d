// Package client is a Go consumer of the cutline API. It can poll a job's
// status, follow its event stream, and fall back from one to the other.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cutline/internal/captions"
	"cutline/internal/gateway"
	"cutline/internal/jobs"
	"cutline/internal/pkg/errors"
	"cutline/internal/pkg/logger"
)

const (
	// DefaultPollInterval is the pull cadence used when push is unavailable.
	DefaultPollInterval = 3 * time.Second
	// DefaultRequestTimeout bounds every non-streaming call.
	DefaultRequestTimeout = 15 * time.Second
)

// ErrStreamEnded is returned by Stream when the server closed the stream
// before the job reached a terminal status.
var ErrStreamEnded = errors.New(errors.CodeUnavailable, "event stream ended before the job finished")

type Client struct {
	baseURL        string
	http           *http.Client
	log            *logger.Logger
	pollInterval   time.Duration
	requestTimeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(log *logger.Logger) Option { return func(c *Client) { c.log = log } }

func WithPollInterval(d time.Duration) Option { return func(c *Client) { c.pollInterval = d } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		pollInterval:   DefaultPollInterval,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDefault()
	}
	c.log = c.log.WithComponent("client")
	return c
}

// Status fetches the current record. An unknown job yields errors.CodeNotFound.
func (c *Client) Status(ctx context.Context, jobID string) (jobs.Record, error) {
	var rec jobs.Record
	err := c.call(ctx, http.MethodGet, "/api/render/status/"+url.PathEscape(jobID), nil, &rec)
	return rec, err
}

// Notify posts a status update as the render worker would.
func (c *Client) Notify(ctx context.Context, u jobs.Update) (bool, error) {
	var out struct {
		Applied bool `json:"applied"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/render-complete", u, &out); err != nil {
		return false, err
	}
	return out.Applied, nil
}

// SubmitResult is the API's answer to a render submission.
type SubmitResult struct {
	JobID       string `json:"jobId"`
	Message     string `json:"message"`
	StatusURL   string `json:"statusUrl"`
	StreamURL   string `json:"streamUrl"`
	CaptionsURL string `json:"captionsUrl,omitempty"`
}

func (c *Client) Submit(ctx context.Context, req gateway.RenderRequest) (SubmitResult, error) {
	var out SubmitResult
	err := c.call(ctx, http.MethodPost, "/api/render", req, &out)
	return out, err
}

// Export renders captions server-side and returns the subtitle text.
func (c *Client) Export(ctx context.Context, list []captions.Caption, f captions.Format) (string, error) {
	var buf bytes.Buffer
	body := map[string]any{"captions": list}
	if err := c.callRaw(ctx, http.MethodPost, "/api/captions/export?format="+string(f), body, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Poll fetches the record every poll interval until it is terminal or ctx
// is done. fn sees every distinct record. A job not yet known to the server
// is polled again.
func (c *Client) Poll(ctx context.Context, jobID string, fn func(jobs.Record)) (jobs.Record, error) {
	return c.poll(ctx, jobID, nil, fn)
}

// poll is Poll resuming after from, which fn has already seen.
func (c *Client) poll(ctx context.Context, jobID string, from *jobs.Record, fn func(jobs.Record)) (jobs.Record, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var last jobs.Record
	seen := false
	if from != nil {
		last, seen = *from, true
	}
	for {
		rec, err := c.Status(ctx, jobID)
		switch {
		case err == nil:
			if !seen || rec != last {
				seen = true
				last = rec
				if fn != nil {
					fn(rec)
				}
			}
			if rec.Terminal() {
				return rec, nil
			}
		case errors.IsNotFound(err):
			c.log.WithJobID(jobID).Debug("job not known yet")
		case ctx.Err() != nil:
			return last, ctx.Err()
		default:
			c.log.WithJobID(jobID).Warn("status poll failed", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stream follows the job's event stream, calling fn for each record, and
// returns the terminal record. Heartbeat comments are skipped.
func (c *Client) Stream(ctx context.Context, jobID string, fn func(jobs.Record)) (jobs.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/render/stream/"+url.PathEscape(jobID), nil)
	if err != nil {
		return jobs.Record{}, errors.Wrap(err, "client.stream", "build request")
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.http.Do(req)
	if err != nil {
		return jobs.Record{}, errors.WrapWithCode(err, errors.CodeUnavailable, "client.stream", "connect to event stream")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return jobs.Record{}, decodeError(res)
	}

	var last jobs.Record
	err = readEvents(res.Body, func(data []byte) error {
		var rec jobs.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return errors.Wrap(err, "client.stream", "malformed event")
		}
		last = rec
		if fn != nil {
			fn(rec)
		}
		return nil
	})
	if last.Terminal() {
		return last, nil
	}
	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	if err != nil {
		return last, errors.WrapWithCode(err, errors.CodeUnavailable, "client.stream", "event stream broke")
	}
	return last, ErrStreamEnded
}

// Watch follows the job with Stream and switches to Poll if the stream
// cannot be opened or drops before the job finishes. The last streamed
// record is not handed to fn a second time.
func (c *Client) Watch(ctx context.Context, jobID string, fn func(jobs.Record)) (jobs.Record, error) {
	rec, err := c.Stream(ctx, jobID, fn)
	if err == nil || ctx.Err() != nil {
		return rec, err
	}
	c.log.WithJobID(jobID).Warn("push delivery unavailable, polling", "error", err.Error())

	var from *jobs.Record
	if rec.ID != "" {
		from = &rec
	}
	return c.poll(ctx, jobID, from, fn)
}

// readEvents parses a text/event-stream body and hands each event's data to
// fn. Comment lines and non-data fields are ignored.
func readEvents(r io.Reader, fn func(data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var data []byte
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if len(data) > 0 {
				if err := fn(data); err != nil {
					return err
				}
				data = data[:0]
			}
		case line[0] == ':':
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, v...)
		}
	}
	return sc.Err()
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var buf bytes.Buffer
	if err := c.callRaw(ctx, method, path, in, &buf); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return errors.Wrap(err, "client.decode", "malformed response")
	}
	return nil
}

func (c *Client) callRaw(ctx context.Context, method, path string, in any, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "client.encode", "encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "client.request", "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "client.request", fmt.Sprintf("%s %s failed", method, path))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeError(res)
	}
	if _, err := io.Copy(out, res.Body); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "client.read", "read response")
	}
	return nil
}

// decodeError turns the API's error envelope back into a coded error.
func decodeError(res *http.Response) error {
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&env)

	code := errors.Code(env.Error.Code)
	if code == "" {
		code = errors.CodeInternal
		if res.StatusCode == http.StatusNotFound {
			code = errors.CodeNotFound
		}
	}
	msg := env.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("http %d", res.StatusCode)
	}
	e := errors.New(code, msg)
	for k, v := range env.Error.Details {
		e.WithField(k, v)
	}
	return e.WithField("http_status", res.StatusCode)
}
