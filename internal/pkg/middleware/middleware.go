// Package middleware provides the HTTP middleware and error plumbing of the
// cutline API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"cutline/internal/pkg/errors"
	"cutline/internal/pkg/logger"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// responseWriter records what the handler sent. It passes Flush through and
// exposes Unwrap so event streams keep working behind it.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	size        int
	flushes     int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) Flush() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.flushes++
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestID reuses the caller's X-Request-ID or mints one, and stores it in
// the request context for logger.FromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), requestID)))
	})
}

// Logging logs one line per finished request. Streamed responses also
// report how many times they were flushed.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)
			reqLog := log.FromContext(r.Context())

			reqLog.Debug("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)

			next.ServeHTTP(wrapped, r)

			logFn := reqLog.Info
			switch {
			case wrapped.status >= 500:
				logFn = reqLog.Error
			case wrapped.status >= 400:
				logFn = reqLog.Warn
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"size", wrapped.size,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if wrapped.flushes > 0 {
				args = append(args, "flushes", wrapped.flushes)
			}
			logFn("request completed", args...)
		})
	}
}

// Recovery turns a handler panic into a logged 500.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.FromContext(r.Context()).Error("panic recovered",
						"panic", rec,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
					)
					WriteErrorResponse(w, errors.CodeInternal, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the request context and answers 504 when the deadline
// passed before anything was written. Event streams must not be mounted
// behind it.
func Timeout(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if ctx.Err() == context.DeadlineExceeded && !wrapped.wroteHeader {
				WriteErrorResponse(w, errors.CodeTimeout, "request timeout", nil)
			}
		})
	}
}

// ErrorHandlerFunc is a handler that reports failure by returning an error.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WrapHandler adapts fn to http.HandlerFunc, sending returned errors
// through HandleError.
func WrapHandler(log *logger.Logger, fn ErrorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleError(w, r, log, err)
		}
	}
}

// HandleError logs err (warn for 4xx, error with stack for 5xx) and writes
// the JSON error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := errors.GetCode(err)
	status := code.HTTPStatus()
	fields := errors.GetFields(err)

	logFields := []any{
		"error", err.Error(),
		"code", string(code),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	}
	for k, v := range fields {
		logFields = append(logFields, k, v)
	}

	message := err.Error()
	var coded *errors.Error
	if errors.As(err, &coded) {
		if coded.Message != "" {
			message = coded.Message
		}
		if status >= 500 && len(coded.Stack) > 0 {
			logFields = append(logFields, "stack", coded.StackTrace())
		}
	}

	reqLog := log.FromContext(r.Context())
	if status >= 500 {
		reqLog.Error("request failed", logFields...)
	} else {
		reqLog.Warn("request error", logFields...)
	}

	WriteErrorResponse(w, code, message, fields)
}

// ErrorEnvelope is the JSON body of every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func WriteErrorResponse(w http.ResponseWriter, code errors.Code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Error: ErrorBody{
		Code:    string(code),
		Message: message,
		Details: details,
	}})
}
