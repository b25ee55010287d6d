package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cutline/internal/httpapi/handlers"
	"cutline/internal/httpkit"
	"cutline/internal/pkg/logger"
	"cutline/internal/pkg/middleware"
)

// DefaultRequestTimeout bounds every route except the event stream.
const DefaultRequestTimeout = 30 * time.Second

type Deps struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
	RequestTimeout time.Duration
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- STREAM (no request timeout) ----
	r.Get("/api/render/stream/{jobId}", wrap(h.RenderStream))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		// ---- HEALTH ----
		r.Get("/health", h.Health)

		// ---- RENDER ----
		r.Post("/api/render-complete", wrap(h.RenderComplete))
		r.Post("/api/render", wrap(h.SubmitRender))
		r.Get("/api/render/status/{jobId}", wrap(h.RenderStatus))
		r.Get("/api/render/{jobId}/events", wrap(h.RenderEvents))

		// ---- CAPTIONS ----
		r.Post("/api/captions/export", wrap(h.ExportCaptions))
		r.Get("/api/captions/files/*", wrap(h.CaptionFile))
	})

	return r
}
