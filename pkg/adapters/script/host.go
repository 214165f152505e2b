// Package script executes page scripts in an embedded JavaScript runtime.
//
// Scripts see a global "page" object bound to the engine:
//
//	page.on(stage, fn)   registers fn for stage; it runs right away when
//	                     the latest state already passed stage
//	page.off(stage, fn)  removes a registration made with page.on
//	page.finish(fn)      defers fn until the current stage's listeners ran
//	log(...)             writes a line to the host output
//
// Registrations live as long as the script element that made them stays in
// the live document, so a head script kept across navigations keeps firing.
//
// Listeners receive the state as an object with href, pathname, query,
// hash, stage, data and error fields plus fail(msg) and recover() methods.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/pageflow/internal/chain"
	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/internal/merge"
	"github.com/aretw0/pageflow/internal/runtime"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/aretw0/pageflow/pkg/ports"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// ErrDetached is returned when a script registers listeners before the
// host is attached to an engine.
var ErrDetached = errors.New("script host is not attached")

// Registry is the part of the engine scripts register listeners with.
type Registry interface {
	Latest() *runtime.State
	Document() *html.Node
	AddEmitter(em *chain.Emitter[*runtime.State])
}

// Host runs scripts and their listeners on a single goja runtime.
// It implements ports.ResourceLoader.
type Host struct {
	mu  sync.Mutex // serializes access to vm
	vm  *goja.Runtime
	ctx context.Context

	registry Registry
	emitter  *chain.Emitter[*runtime.State]
	owner    *html.Node // script element being executed
	fetcher  ports.Fetcher
	base     *domain.Location
	out      io.Writer
	logger   *slog.Logger

	cacheMu sync.Mutex
	cache   map[string][]byte

	bindings []*binding
}

type binding struct {
	stage    domain.Stage
	fn       goja.Value
	owner    *html.Node
	listener *listener
}

// heldKey marks contexts whose goroutine already holds the runtime.
type heldKey struct{}

// Option configures a Host.
type Option func(*Host)

// WithFetcher sets the fetcher used for remote scripts and stylesheets.
func WithFetcher(f ports.Fetcher) Option {
	return func(h *Host) {
		h.fetcher = f
	}
}

// WithBase resolves relative resource URLs against base.
func WithBase(base domain.Location) Option {
	return func(h *Host) {
		b := base.Clone()
		h.base = &b
	}
}

// WithOutput sets where log() writes.
func WithOutput(w io.Writer) Option {
	return func(h *Host) {
		h.out = w
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// New creates a Host. Attach must be called before scripts register listeners.
func New(opts ...Option) *Host {
	h := &Host{
		vm:      goja.New(),
		ctx:     context.Background(),
		out:     io.Discard,
		logger:  logging.NewNop(),
		cache:   make(map[string][]byte),
		emitter: chain.NewEmitter[*runtime.State](),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.install()
	return h
}

// Attach binds the host to the registry scripts register listeners with.
func (h *Host) Attach(r Registry) {
	h.mu.Lock()
	h.registry = r
	h.mu.Unlock()
	r.AddEmitter(h.emitter)
}

// Eval runs src outside of any merge. Its registrations are not tied to a
// script element.
func (h *Host) Eval(ctx context.Context, name, src string) error {
	return h.run(ctx, name, src, nil)
}

func (h *Host) run(ctx context.Context, name, src string, owner *html.Node) error {
	_, release := h.enter(ctx)
	defer release()
	prev := h.owner
	h.owner = owner
	defer func() { h.owner = prev }()

	h.prune()
	if _, err := h.vm.RunScript(name, src); err != nil {
		return fmt.Errorf("script %s: %w", name, err)
	}
	return nil
}

var _ ports.ResourceLoader = (*Host)(nil)

// Preload fetches a remote script or stylesheet into the cache.
func (h *Host) Preload(ctx context.Context, res ports.Resource) error {
	if !res.Remote() {
		return nil
	}
	_, err := h.source(ctx, res.URL)
	return err
}

// Load executes a script. Imports are not supported.
func (h *Host) Load(ctx context.Context, res ports.Resource) error {
	if res.Kind != ports.ResourceScript {
		return fmt.Errorf("cannot load %s resources", res.Kind)
	}
	name, src := "inline", res.Inline
	if res.URL != "" {
		name = res.URL
		body, err := h.source(ctx, res.URL)
		if err != nil {
			return err
		}
		src = string(body)
	}
	return h.run(ctx, name, src, res.Node)
}

// WaitStylesheet resolves once the stylesheet body could be fetched.
func (h *Host) WaitStylesheet(ctx context.Context, node *html.Node) error {
	href, ok := merge.Attr(node, "href")
	if !ok || href == "" {
		return nil
	}
	_, err := h.source(ctx, href)
	return err
}

// SupportsImports reports false: the runtime has no module loader.
func (h *Host) SupportsImports() bool {
	return false
}

func (h *Host) source(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		return decodeDataURL(ref)
	}
	url, err := h.resolve(ref)
	if err != nil {
		return nil, err
	}

	h.cacheMu.Lock()
	body, ok := h.cache[url]
	h.cacheMu.Unlock()
	if ok {
		return body, nil
	}
	if h.fetcher == nil {
		return nil, fmt.Errorf("fetch %s: no fetcher configured", url)
	}
	resp, err := h.fetcher.Fetch(ctx, url, 400, "")
	if err != nil {
		return nil, err
	}

	h.cacheMu.Lock()
	h.cache[url] = resp.Body
	h.cacheMu.Unlock()
	return resp.Body, nil
}

func (h *Host) resolve(ref string) (string, error) {
	if h.base == nil {
		return ref, nil
	}
	loc, err := location.Parse(ref, h.base)
	if err != nil {
		return "", err
	}
	return location.Format(loc), nil
}

// enter acquires the runtime for ctx unless ctx already holds it, which
// happens when a script registration replays a listener synchronously.
func (h *Host) enter(ctx context.Context) (context.Context, func()) {
	if held, _ := ctx.Value(heldKey{}).(*Host); held == h {
		prev := h.ctx
		h.ctx = ctx
		return ctx, func() { h.ctx = prev }
	}
	h.mu.Lock()
	ctx = context.WithValue(ctx, heldKey{}, h)
	prev := h.ctx
	h.ctx = ctx
	return ctx, func() {
		h.ctx = prev
		h.mu.Unlock()
	}
}
