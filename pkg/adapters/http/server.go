package http

import (
	"bytes"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/go-chi/chi/v5"
)

// Server serves a directory of HTML fixtures for driving the engine
// against a real origin.
type Server struct {
	pages   fs.FS
	metrics http.Handler
	logger  *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithServerLogger sets the request logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a fixture server over pages.
func NewServer(pages fs.FS, opts ...ServerOption) *Server {
	s := &Server{
		pages:  pages,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the HTTP handler.
//
// A path resolves to "<path>.html" or "<path>/index.html". Static assets
// are served as-is. Missing pages answer 404 with 404.html when present,
// and with an empty body otherwise.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/*", s.servePage)
	return r
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(path.Clean(r.URL.Path), "/")
	if path.Ext(name) != "" {
		if data, err := fs.ReadFile(s.pages, name); err == nil {
			http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
			return
		}
		http.NotFound(w, r)
		return
	}

	for _, candidate := range pageCandidates(name) {
		data, err := fs.ReadFile(s.pages, candidate)
		if err != nil {
			continue
		}
		writeHTML(w, http.StatusOK, data)
		return
	}

	data, _ := fs.ReadFile(s.pages, "404.html")
	writeHTML(w, http.StatusNotFound, data)
}

func pageCandidates(name string) []string {
	if name == "" || name == "." {
		return []string{"index.html"}
	}
	return []string{name + ".html", path.Join(name, "index.html")}
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Served", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
