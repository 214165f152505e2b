package pageflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/internal/merge"
	"github.com/aretw0/pageflow/internal/runtime"
	"github.com/aretw0/pageflow/internal/tracker"
	"github.com/aretw0/pageflow/pkg/adapters/memory"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/history"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/aretw0/pageflow/pkg/ports"
	"golang.org/x/net/html"
)

type (
	// State is one navigation state.
	State = runtime.State
	// Listener reacts to a stage of a state.
	Listener = runtime.Listener
	// ListenerFunc adapts a function to Listener.
	ListenerFunc = runtime.ListenerFunc
	// Router produces the document of a state.
	Router = runtime.Router
	// RunOption configures a single navigation.
	RunOption = runtime.RunOption
	// RunError reports the stage a navigation failed in.
	RunError = runtime.RunError
	// Vary forces stages to rerun for an otherwise unchanged location.
	Vary = runtime.Vary
	// Stage names a lifecycle stage.
	Stage = domain.Stage
	// Entry is a persisted history entry.
	Entry = domain.Entry
	// Component declares event bindings tied to a state's lifetime.
	Component = tracker.Component
	// Binding is one event subscription of a Component.
	Binding = tracker.Binding
	// EventTarget is anything bindings attach to.
	EventTarget = tracker.EventTarget
	// Event is delivered to bound handlers.
	Event = tracker.Event
	// Handler reacts to an Event.
	Handler = tracker.Handler
)

const (
	StageInit  = domain.StageInit
	StageReady = domain.StageReady
	StageBuild = domain.StageBuild
	StagePatch = domain.StagePatch
	StageSetup = domain.StageSetup
	StageHash  = domain.StageHash
	StageError = domain.StageError
	StageClose = domain.StageClose
)

const (
	VaryNone  = runtime.VaryNone
	VaryHash  = runtime.VaryHash
	VaryPatch = runtime.VaryPatch
	VaryBuild = runtime.VaryBuild
	VaryAll   = runtime.VaryAll
)

// WithVary forces the stages selected by v to rerun.
func WithVary(v Vary) RunOption {
	return runtime.WithVary(v)
}

// Controller drives a live document through navigations and keeps a
// history store in sync with them.
type Controller struct {
	engine  *runtime.Engine
	history *history.Adapter
	store   ports.HistoryStore
	logger  *slog.Logger
}

type options struct {
	engine  []runtime.EngineOption
	history []history.Option
	store   ports.HistoryStore
	nav     ports.Navigator
	logger  *slog.Logger
}

// Option configures a Controller.
type Option func(*options)

// WithRouter sets the function producing the document of each state.
func WithRouter(r Router) Option {
	return func(o *options) {
		o.engine = append(o.engine, runtime.WithRouter(r))
	}
}

// WithWaiter sets the readiness barriers.
func WithWaiter(w ports.Waiter) Option {
	return func(o *options) {
		o.engine = append(o.engine, runtime.WithWaiter(w))
	}
}

// WithResourceLoader sets the loader used to materialize merged resources.
func WithResourceLoader(l ports.ResourceLoader) Option {
	return func(o *options) {
		o.engine = append(o.engine, runtime.WithResourceLoader(l))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(o *options) {
		o.engine = append(o.engine, runtime.WithLifecycleHooks(h))
	}
}

// WithDocumentReferrer sets the referrer of the first navigation.
func WithDocumentReferrer(href string) Option {
	return func(o *options) {
		o.engine = append(o.engine, runtime.WithDocumentReferrer(href))
	}
}

// WithHistoryStore sets where navigations are persisted.
// Defaults to an in-memory history.
func WithHistoryStore(s ports.HistoryStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithNavigator sets the target of cross-origin and fallback navigations.
func WithNavigator(n ports.Navigator) Option {
	return func(o *options) {
		o.nav = n
	}
}

// WithFallbackDelay sets the pause before a failed navigation falls back.
func WithFallbackDelay(d time.Duration) Option {
	return func(o *options) {
		o.history = append(o.history, history.WithFallbackDelay(d))
	}
}

// WithLogger sets a structured logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a Controller for the live document doc.
func New(doc *html.Node, opts ...Option) *Controller {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = memory.NewHistory()
	}
	if o.nav == nil {
		o.nav = memory.NewNavigator()
	}

	engine := runtime.NewEngine(doc, append(o.engine, runtime.WithLogger(o.logger))...)
	adapter := history.New(engine, o.store, o.nav, append(o.history, history.WithLogger(o.logger))...)
	return &Controller{
		engine:  engine,
		history: adapter,
		store:   o.store,
		logger:  o.logger,
	}
}

// Parse parses an HTML document.
func Parse(src string) (*html.Node, error) {
	return merge.ParseString(src)
}

// Engine exposes the underlying engine.
func (c *Controller) Engine() *runtime.Engine {
	return c.engine
}

// History exposes the history adapter.
func (c *Controller) History() *history.Adapter {
	return c.history
}

// Current returns the state that owns the UI.
func (c *Controller) Current() *State {
	return c.engine.Current()
}

// Start runs the first navigation for the location the document was
// loaded from and records it when the store is empty.
func (c *Controller) Start(ctx context.Context, href string, data any) (*State, error) {
	loc, err := location.Parse(href, nil)
	if err != nil {
		return nil, err
	}
	st, err := c.engine.Run(ctx, runtime.NewState(loc, data))
	if err != nil {
		return st, err
	}
	if err := c.history.SaveIfEmpty(ctx); err != nil {
		return st, fmt.Errorf("start: %w", err)
	}
	return st, nil
}

// Push navigates to href and appends it to the history.
func (c *Controller) Push(ctx context.Context, href string, data any, opts ...RunOption) (*State, error) {
	return c.history.Push(ctx, href, data, opts...)
}

// Replace navigates to href and overwrites the current history entry.
func (c *Controller) Replace(ctx context.Context, href string, data any, opts ...RunOption) (*State, error) {
	return c.history.Replace(ctx, href, data, opts...)
}

// Listen replays popped history entries until ctx ends or pops closes.
func (c *Controller) Listen(ctx context.Context, pops <-chan Entry) error {
	return c.history.Listen(ctx, pops)
}

// On registers l for stage on the latest state.
func (c *Controller) On(ctx context.Context, stage Stage, l Listener) error {
	return c.engine.On(ctx, stage, l)
}

// Off removes a registration made with On.
func (c *Controller) Off(stage Stage, l Listener) error {
	return c.engine.Off(stage, l)
}

// OnEvery registers l for stage on every state.
func (c *Controller) OnEvery(stage Stage, l Listener) {
	c.engine.Globals().Add(stage, l)
}

// Connect ties comp's bindings to the latest state: they are attached
// while it owns the UI and removed on CLOSE.
func (c *Controller) Connect(comp Component) error {
	st := c.engine.Latest()
	if st == nil {
		return domain.ErrNoState
	}
	st.Connect(comp)
	return nil
}
