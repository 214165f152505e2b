package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/internal/runtime"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/aretw0/pageflow/pkg/ports"
	"golang.org/x/net/html"
)

// Router routes navigation states by fetching their href as an HTML document.
type Router struct {
	fetcher ports.Fetcher
	base    *domain.Location
	reject  int
	logger  *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBase resolves relative state locations against base.
func WithBase(base domain.Location) RouterOption {
	return func(r *Router) {
		b := base.Clone()
		r.base = &b
	}
}

// WithRejectStatus sets the status from which responses fail the run.
// Defaults to 500, so error pages below it are still rendered.
func WithRejectStatus(code int) RouterOption {
	return func(r *Router) {
		r.reject = code
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter creates a Router fetching through f.
func NewRouter(f ports.Fetcher, opts ...RouterOption) *Router {
	r := &Router{
		fetcher: f,
		reject:  http.StatusInternalServerError,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route fetches and parses the document of st.
func (r *Router) Route(ctx context.Context, st *runtime.State) (*html.Node, error) {
	href, err := r.resolve(st)
	if err != nil {
		return nil, err
	}
	resp, err := r.fetcher.Fetch(ctx, href, r.reject, "text/html")
	if err != nil {
		return nil, err
	}
	if resp.Status >= http.StatusBadRequest && len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, fmt.Errorf("%w: %s answered %d with an empty body", domain.ErrUnusableDocument, resp.URL, resp.Status)
	}
	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnusableDocument, err)
	}
	r.logger.Debug("Routed", "href", resp.URL, "status", resp.Status)
	return doc, nil
}

// Func adapts the Router to the engine's routing hook.
func (r *Router) Func() runtime.Router {
	return r.Route
}

func (r *Router) resolve(st *runtime.State) (string, error) {
	// Fragments never reach the server.
	loc := st.Location.WithoutHash()
	if loc.Hostname != "" || r.base == nil {
		return location.Format(loc), nil
	}
	abs, err := location.Parse(location.Format(loc), r.base)
	if err != nil {
		return "", err
	}
	return location.Format(abs), nil
}
