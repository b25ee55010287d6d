package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSOptions configures the CORS middleware. Empty method and header lists
// default to what browser consumers of the job API send: GET/POST plus the
// EventSource reconnection header.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// CORS answers preflight requests with 204 and decorates responses for
// allowed origins. "*" allows every origin, still echoing it back.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	if len(opt.AllowedMethods) == 0 {
		opt.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opt.AllowedHeaders) == 0 {
		opt.AllowedHeaders = []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID"}
	}
	if opt.MaxAgeSeconds == 0 {
		opt.MaxAgeSeconds = 600
	}

	fixed := map[string]string{
		"Access-Control-Allow-Methods": strings.Join(opt.AllowedMethods, ", "),
		"Access-Control-Allow-Headers": strings.Join(opt.AllowedHeaders, ", "),
		"Access-Control-Max-Age":       strconv.Itoa(opt.MaxAgeSeconds),
	}
	if len(opt.ExposedHeaders) > 0 {
		fixed["Access-Control-Expose-Headers"] = strings.Join(opt.ExposedHeaders, ", ")
	}
	if opt.AllowCredentials {
		fixed["Access-Control-Allow-Credentials"] = "true"
	}

	origins := make(map[string]bool)
	for _, o := range opt.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	anyOrigin := origins["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (anyOrigin || origins[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				for k, v := range fixed {
					h.Set(k, v)
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
