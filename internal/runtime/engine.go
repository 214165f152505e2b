package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/pageflow/internal/chain"
	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/internal/merge"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/aretw0/pageflow/pkg/ports"
	"go.uber.org/atomic"
	"golang.org/x/net/html"
)

// Router produces the document for st. A nil document keeps the live one.
type Router func(ctx context.Context, st *State) (*html.Node, error)

// Engine drives navigation states through the lifecycle stages against
// one live document.
type Engine struct {
	doc              *html.Node
	router           Router
	waiter           ports.Waiter
	loader           ports.ResourceLoader
	merger           *merge.Merger
	mergeOpts        []merge.Option
	hooks            domain.LifecycleHooks
	logger           *slog.Logger
	globals          *chain.Emitter[*State]
	queue            *Serializer
	gate             *UIGate
	documentReferrer string
	// runs counts completed document phases; a UI phase is stale once
	// another document phase completed after its own.
	runs *atomic.Uint64

	mu       sync.Mutex
	current  *State
	latest   *State
	emitters []*chain.Emitter[*State]
}

// NewEngine creates an engine owning the live document doc.
func NewEngine(doc *html.Node, opts ...EngineOption) *Engine {
	e := &Engine{
		doc:     doc,
		waiter:  readyWaiter{},
		loader:  nopLoader{},
		logger:  logging.NewNop(),
		globals: chain.NewEmitter[*State](),
		queue:   NewSerializer(),
		runs:    atomic.NewUint64(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	mergeOpts := append([]merge.Option{merge.WithLogger(e.logger)}, e.mergeOpts...)
	e.merger = merge.New(e.loader, mergeOpts...)
	e.gate = NewUIGate(func(ctx context.Context) error {
		return e.waiter.UIReady(ctx, e.doc)
	}, e.queue)
	return e
}

// Document returns the live document.
func (e *Engine) Document() *html.Node {
	return e.doc
}

// Globals returns the listeners fired for every state, after the state's own.
func (e *Engine) Globals() *chain.Emitter[*State] {
	return e.globals
}

// AddEmitter fires the listeners of em for every state, after the state's
// own and before Globals. Page scripts that outlive a single state keep
// their listeners there.
func (e *Engine) AddEmitter(em *chain.Emitter[*State]) {
	e.mu.Lock()
	e.emitters = append(e.emitters, em)
	e.mu.Unlock()
}

// Current returns the state that completed the last UI phase.
func (e *Engine) Current() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Latest returns the state of the most recent run.
func (e *Engine) Latest() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// On registers l for stage on the latest state.
func (e *Engine) On(ctx context.Context, stage domain.Stage, l Listener) error {
	st := e.Latest()
	if st == nil {
		return domain.ErrNoState
	}
	st.Chain(ctx, stage, l)
	return nil
}

// Off removes a registration made with On.
func (e *Engine) Off(stage domain.Stage, l Listener) error {
	st := e.Latest()
	if st == nil {
		return domain.ErrNoState
	}
	st.Unchain(stage, l)
	return nil
}

// Run drives st through the lifecycle. Runs execute one at a time; UI
// phases of runs queued before the UI barrier opens, or overtaken by a
// later document phase, are coalesced and superseded runs return
// domain.ErrSuperseded.
// Listeners must not wait on a Run from their own goroutine: the run
// they belong to holds the queue until they return.
func (e *Engine) Run(ctx context.Context, st *State, opts ...RunOption) (*State, error) {
	if st == nil {
		return nil, domain.ErrNoState
	}
	if e.doc == nil {
		return st, domain.ErrNoDocument
	}
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	e.mu.Lock()
	e.latest = st
	e.mu.Unlock()
	st.SetErr(nil)

	var run uint64
	err := e.queue.Enqueue(ctx, func(ctx context.Context) error {
		if err := e.document(ctx, st, cfg); err != nil {
			return err
		}
		run = e.runs.Inc()
		return nil
	})
	if err != nil {
		return st, e.fail(ctx, st, err)
	}

	err = e.gate.Submit(ctx, st.Referrer, func(ctx context.Context, ref *State) error {
		if e.runs.Load() != run {
			return domain.ErrSuperseded
		}
		return e.display(ctx, st, ref, cfg)
	})
	if errors.Is(err, domain.ErrSuperseded) {
		e.logger.Debug("navigation superseded", "href", st.Href())
		return st, err
	}
	if err != nil {
		return st, e.fail(ctx, st, err)
	}
	return st, nil
}

// document runs the stages that build the live document: INIT to PATCH,
// routing and merging included.
func (e *Engine) document(ctx context.Context, st *State, cfg runConfig) error {
	if st.Referrer == nil || st.Referrer == st {
		st.Referrer = e.deriveReferrer(st)
	}
	ref := st.Referrer
	f := compare(st, ref, cfg.vary)

	if f.samePath && ref.Owned() {
		st.inherit(ref)
	} else {
		st.adopt(e.newChains(st))
	}

	if err := e.waiter.DocumentReady(ctx); err != nil {
		return err
	}
	prerendered := merge.IsPrerendered(e.doc)

	if err := e.fire(ctx, st, domain.StageInit); err != nil {
		return err
	}

	if !(f.samePath && prerendered) && e.router != nil {
		doc, err := e.router(ctx, st)
		if err != nil {
			return fmt.Errorf("route %s: %w", st.Href(), err)
		}
		if doc != nil && doc != e.doc {
			if err := e.merge(ctx, st, doc); err != nil {
				return err
			}
			prerendered = merge.IsPrerendered(e.doc)
		}
	}

	if err := e.fire(ctx, st, domain.StageReady); err != nil {
		return err
	}
	if !(prerendered && f.samePath) {
		if err := e.fire(ctx, st, domain.StageBuild); err != nil {
			return err
		}
	}
	if !(prerendered && f.sameQuery) {
		if err := e.fire(ctx, st, domain.StagePatch); err != nil {
			return err
		}
	}
	merge.SetPrerendered(e.doc)
	return nil
}

// display hands the UI over from ref to st: tracker swap, CLOSE on ref,
// SETUP and HASH.
func (e *Engine) display(ctx context.Context, st, ref *State, cfg runConfig) error {
	if ref == nil {
		ref = st.Referrer
	}
	f := compare(st, ref, cfg.vary)
	staged := ref.Stage() != ""

	_, _, tr := st.parts()
	_, _, refTr := ref.parts()
	if !f.samePath || !staged {
		if refTr != nil && refTr != tr {
			refTr.Stop()
		}
		tr.Start()
	}

	if !f.samePath && ref != st && ref.Owned() {
		if err := e.fire(ctx, ref, domain.StageClose); err != nil {
			return err
		}
	}
	if !(f.samePath && f.sameQuery && staged) {
		if err := e.fire(ctx, st, domain.StageSetup); err != nil {
			return err
		}
	}
	if !f.sameHash {
		if err := e.fire(ctx, st, domain.StageHash); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.current = st
	e.mu.Unlock()
	return nil
}

// fire runs the chain of stage for st. It fails on cancellation or when
// a listener recorded an error on st.
func (e *Engine) fire(ctx context.Context, st *State, stage domain.Stage) error {
	chains, em, _ := st.parts()
	if chains == nil {
		st.adopt(e.newChains(st))
		chains, em, _ = st.parts()
	}
	st.setStage(stage)

	ev := &domain.StageEvent{EventBase: e.base(st), Stage: stage}
	if e.hooks.OnStageEnter != nil {
		e.hooks.OnStageEnter(ctx, ev)
	}

	start := time.Now()
	n, err := chains.Run(ctx, stage, st, e.emittersFor(em)...)
	ev.Listeners = n
	ev.Duration = time.Since(start)

	if e.hooks.OnStageLeave != nil {
		e.hooks.OnStageLeave(ctx, ev)
	}
	e.logger.Debug("stage fired", "stage", stage, "href", st.Href(), "listeners", n)

	if err != nil {
		return err
	}
	if stage == domain.StageError {
		return nil
	}
	return st.Err()
}

func (e *Engine) emittersFor(own *chain.Emitter[*State]) []*chain.Emitter[*State] {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*chain.Emitter[*State], 0, len(e.emitters)+2)
	out = append(out, own)
	out = append(out, e.emitters...)
	return append(out, e.globals)
}

func (e *Engine) merge(ctx context.Context, st *State, doc *html.Node) error {
	start := time.Now()
	rep, err := e.merger.Merge(ctx, e.doc, doc)
	if err != nil {
		return fmt.Errorf("merge %s: %w", st.Href(), err)
	}
	if e.hooks.OnMerge != nil {
		e.hooks.OnMerge(ctx, &domain.MergeEvent{
			EventBase:   e.base(st),
			Inserted:    rep.Inserted,
			Substituted: rep.Substituted,
			Deleted:     rep.Deleted,
			Deferred:    rep.Deferred,
			Preloaded:   rep.Preloaded,
			Scripts:     rep.Scripts,
			Duration:    time.Since(start),
		})
	}
	e.logger.Debug("document merged", "href", st.Href(), "scripts", rep.Scripts, "preloaded", rep.Preloaded)
	return nil
}

// fail records err on st and fires ERROR. It returns nil when a listener
// cleared the error.
func (e *Engine) fail(ctx context.Context, st *State, err error) error {
	stage := st.Stage()
	st.SetErr(err)
	e.logger.Error("navigation failed", "href", st.Href(), "stage", stage, "error", err)

	// ERROR listeners run even when ctx is what failed the run.
	ctx = context.WithoutCancel(ctx)
	_ = e.fire(ctx, st, domain.StageError)

	cause := st.Err()
	if e.hooks.OnRunError != nil {
		e.hooks.OnRunError(ctx, &domain.ErrorEvent{
			EventBase: e.base(st),
			Stage:     stage,
			Err:       err,
			Handled:   cause == nil,
		})
	}
	if cause == nil {
		e.logger.Info("navigation failure handled", "href", st.Href(), "stage", stage)
		return nil
	}
	return &RunError{Stage: stage, Href: st.Href(), Cause: cause}
}

// deriveReferrer builds the stand-in referrer of a first run: the document
// referrer when known, otherwise st without its fragment.
func (e *Engine) deriveReferrer(st *State) *State {
	e.mu.Lock()
	href := e.documentReferrer
	e.documentReferrer = ""
	e.mu.Unlock()

	if href != "" {
		loc, err := location.Parse(href, &st.Location)
		if err == nil {
			return NewState(loc, nil)
		}
		e.logger.Warn("ignoring document referrer", "href", href, "error", err)
	}
	return NewState(st.Location.WithoutHash(), nil)
}

func (e *Engine) newChains(st *State) *chain.Chains[*State] {
	return chain.New[*State](
		chain.WithLogger(e.logger.With("state", st.ID)),
		chain.WithErrorHandler(func(ctx context.Context, stage domain.Stage, err error) {
			if e.hooks.OnListenerError != nil {
				e.hooks.OnListenerError(ctx, &domain.ErrorEvent{
					EventBase: e.base(st),
					Stage:     stage,
					Err:       err,
				})
			}
		}),
	)
}

func (e *Engine) base(st *State) domain.EventBase {
	return domain.EventBase{
		Timestamp: time.Now(),
		StateID:   st.ID,
		Href:      st.Href(),
	}
}

// flags are the location comparisons that decide which stages run.
// Each one implies the previous.
type flags struct {
	samePath  bool
	sameQuery bool
	sameHash  bool
}

func compare(st, ref *State, vary Vary) flags {
	var f flags
	f.samePath = location.SamePathname(st.Location, ref.Location)
	f.sameQuery = f.samePath && location.SameQuery(st.Location, ref.Location)
	f.sameHash = f.sameQuery && location.SameHash(st.Location, ref.Location)

	switch vary {
	case VaryBuild:
		f.samePath, f.sameQuery, f.sameHash = false, false, false
	case VaryPatch:
		f.sameQuery, f.sameHash = false, false
	case VaryHash:
		f.sameHash = false
	}
	return f
}

type readyWaiter struct{}

func (readyWaiter) DocumentReady(context.Context) error       { return nil }
func (readyWaiter) UIReady(context.Context, *html.Node) error { return nil }

type nopLoader struct{}

func (nopLoader) Preload(context.Context, ports.Resource) error    { return nil }
func (nopLoader) Load(context.Context, ports.Resource) error       { return nil }
func (nopLoader) WaitStylesheet(context.Context, *html.Node) error { return nil }
func (nopLoader) SupportsImports() bool                            { return false }
