// Package logger wraps log/slog with the attributes cutline logs by:
// service, component, request id and job id.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type contextKey string

// RequestIDKey carries the request id set by the RequestID middleware.
const RequestIDKey contextKey = "request_id"

// Logger is a slog.Logger with cutline's derivation helpers.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is json (default) or text.
	Format string
	// Output defaults to os.Stdout.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	return Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
		ServiceName: getEnv("SERVICE_NAME", "cutline"),
	}
}

// New builds a Logger. Unknown levels fall back to info; use ParseLevel to
// reject them up front.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	if cfg.ServiceName != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}

	return &Logger{Logger: slog.New(handler)}
}

func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// An empty level is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(slog.String("request_id", requestID))
}

func (l *Logger) WithJobID(jobID string) *Logger {
	return l.with(slog.String("job_id", jobID))
}

// WithComponent tags records with the emitting component, e.g. "jobs.registry".
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(slog.String("component", component))
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// FromContext attaches the request id carried by ctx, if any.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		return l.WithRequestID(reqID)
	}
	return l
}

// LogError logs err at error level with the caller's file and line.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, "source", slog.GroupValue(
			slog.String("file", file),
			slog.Int("line", line),
		))
	}
	args = append(args, "error", err.Error())
	l.FromContext(ctx).Error(msg, args...)
}

// LogFatal logs and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

// ContextWithRequestID stores the request id read by FromContext.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
