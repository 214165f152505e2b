package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/pageflow/internal/runtime"
	"github.com/aretw0/pageflow/internal/tracker"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func page(t *testing.T, title string, prerendered bool) *html.Node {
	t.Helper()
	attr := ""
	if prerendered {
		attr = ` data-prerender="true"`
	}
	src := fmt.Sprintf(`<html%s><head><title>%s</title></head><body><main>%s</main></body></html>`, attr, title, title)
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func at(t *testing.T, href string, ref *runtime.State) *runtime.State {
	t.Helper()
	loc, err := location.Parse(href, nil)
	require.NoError(t, err)
	st := runtime.NewState(loc, nil)
	st.Referrer = ref
	return st
}

// trace records every stage firing as "stage href".
type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) attach(e *runtime.Engine) {
	for _, stage := range domain.Stages() {
		e.Globals().Add(stage, runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.events = append(tr.events, string(st.Stage())+" "+st.Href())
			return nil
		}))
	}
}

func (tr *trace) take() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := tr.events
	tr.events = nil
	return out
}

type site struct {
	t      *testing.T
	mu     sync.Mutex
	routed []string
	fail   map[string]error
}

func (s *site) route(ctx context.Context, st *runtime.State) (*html.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routed = append(s.routed, st.Href())
	if err := s.fail[st.Pathname]; err != nil {
		return nil, err
	}
	return page(s.t, st.Pathname, false), nil
}

func (s *site) Routed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.routed...)
}

// boot runs a first navigation to href on a prerendered document.
func boot(t *testing.T, href string, opts ...runtime.EngineOption) (*runtime.Engine, *site, *trace, *runtime.State) {
	t.Helper()
	s := &site{t: t, fail: map[string]error{}}
	tr := &trace{}
	opts = append([]runtime.EngineOption{runtime.WithRouter(s.route)}, opts...)
	e := runtime.NewEngine(page(t, href, true), opts...)
	tr.attach(e)

	st, err := e.Run(context.Background(), at(t, href, nil))
	require.NoError(t, err)
	return e, s, tr, st
}

func TestEngine_FirstLoadOnPrerenderedDocument(t *testing.T) {
	e, s, tr, st := boot(t, "/a")

	assert.Equal(t, []string{"init /a", "ready /a", "setup /a"}, tr.take())
	assert.Empty(t, s.Routed())
	assert.Same(t, st, e.Current())
	assert.NotNil(t, st.Referrer)
	assert.NotSame(t, st, st.Referrer)
}

func TestEngine_SameLocationDoesNotRerun(t *testing.T) {
	e, s, tr, a := boot(t, "/a")
	tr.take()

	_, err := e.Run(context.Background(), at(t, "/a", a))
	require.NoError(t, err)

	assert.Equal(t, []string{"init /a", "ready /a"}, tr.take())
	assert.Empty(t, s.Routed())
}

func TestEngine_PathChange(t *testing.T) {
	e, s, tr, a := boot(t, "/a")
	tr.take()

	b, err := e.Run(context.Background(), at(t, "/b", a))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"init /b", "ready /b", "build /b", "patch /b",
		"close /a", "setup /b", "hash /b",
	}, tr.take())
	assert.Equal(t, []string{"/b"}, s.Routed())
	assert.Equal(t, domain.StageClose, a.Stage())
	assert.Same(t, b, e.Current())
	assert.Contains(t, renderBody(e), "/b")
}

func TestEngine_QueryChange(t *testing.T) {
	e, s, tr, a := boot(t, "/a?x=1")
	tr.take()

	_, err := e.Run(context.Background(), at(t, "/a?x=2", a))
	require.NoError(t, err)

	assert.Equal(t, []string{"init /a?x=2", "ready /a?x=2", "patch /a?x=2", "setup /a?x=2", "hash /a?x=2"}, tr.take())
	assert.Empty(t, s.Routed())
}

func TestEngine_HashChange(t *testing.T) {
	e, _, tr, a := boot(t, "/a")
	tr.take()

	_, err := e.Run(context.Background(), at(t, "/a#top", a))
	require.NoError(t, err)
	assert.Equal(t, []string{"init /a#top", "ready /a#top", "hash /a#top"}, tr.take())
}

func TestEngine_VaryBuild(t *testing.T) {
	e, s, tr, a := boot(t, "/a")
	tr.take()

	_, err := e.Run(context.Background(), at(t, "/a", a), runtime.WithVary(runtime.VaryBuild))
	require.NoError(t, err)

	events := tr.take()
	assert.Contains(t, events, "build /a")
	assert.Contains(t, events, "patch /a")
	assert.Contains(t, events, "hash /a")
	assert.Equal(t, []string{"/a"}, s.Routed())
}

func TestEngine_VaryPatch(t *testing.T) {
	e, _, tr, a := boot(t, "/a")
	tr.take()

	_, err := e.Run(context.Background(), at(t, "/a", a), runtime.WithVary(runtime.VaryPatch))
	require.NoError(t, err)
	assert.Equal(t, []string{"init /a", "ready /a", "patch /a", "setup /a", "hash /a"}, tr.take())
}

func TestEngine_LateRegistration(t *testing.T) {
	_, _, _, a := boot(t, "/a")

	var got []*runtime.State
	f := runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error {
		got = append(got, st)
		return nil
	})
	l := &f

	a.Chain(context.Background(), domain.StageSetup, l)
	require.Len(t, got, 1, "setup already fired, listener runs right away")
	assert.Same(t, a, got[0])

	a.Chain(context.Background(), domain.StageSetup, l)
	assert.Len(t, got, 1, "registering twice is a no-op")

	a.Chain(context.Background(), domain.StageHash, l)
	assert.Len(t, got, 1, "hash never fired")
}

func TestEngine_ClosuresAreSeparateListeners(t *testing.T) {
	e, _, _, a := boot(t, "/a")

	var got []string
	for _, name := range []string{"menu", "search", "cart"} {
		require.NoError(t, e.On(context.Background(), domain.StageHash, runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error {
			got = append(got, name)
			return nil
		})))
	}

	b, err := e.Run(context.Background(), at(t, "/a#top", a))
	require.NoError(t, err)
	assert.Equal(t, []string{"menu", "search", "cart"}, got)
	assert.Equal(t, 3, b.Listeners(domain.StageHash))
}

func TestEngine_SamePathInheritsListeners(t *testing.T) {
	e, _, _, a := boot(t, "/a?x=1")

	var patched []string
	a.Chain(context.Background(), domain.StagePatch, runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error {
		patched = append(patched, st.Href())
		return nil
	}))

	b, err := e.Run(context.Background(), at(t, "/a?x=2", a))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a?x=2"}, patched)
	assert.Equal(t, 1, b.Listeners(domain.StagePatch))

	// A new pathname starts with fresh listeners.
	_, err = e.Run(context.Background(), at(t, "/c", b))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a?x=2"}, patched)
}

func TestEngine_FinishRunsBeforeNextStage(t *testing.T) {
	s := &site{t: t, fail: map[string]error{}}
	e := runtime.NewEngine(page(t, "/a", false), runtime.WithRouter(s.route))
	st := at(t, "/a", nil)

	var order []string
	var mu sync.Mutex
	log := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	st.Chain(context.Background(), domain.StageBuild, runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error {
		log("first")
		return st.Finish(ctx, func(ctx context.Context) error {
			log("deferred")
			return nil
		})
	}))
	st.Chain(context.Background(), domain.StageBuild, &named{name: "second", log: log})
	st.Chain(context.Background(), domain.StagePatch, &named{name: "patch", log: log})

	_, err := e.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "deferred", "patch"}, order)

	assert.ErrorIs(t, st.Finish(context.Background(), func(context.Context) error { return nil }), domain.ErrNotFiring)
}

type named struct {
	name string
	log  func(string)
}

func (n *named) Handle(ctx context.Context, st *runtime.State) error {
	n.log(n.name)
	return nil
}

func TestEngine_ListenerFailureIsIsolated(t *testing.T) {
	var listenerErrors int
	e, _, tr, a := boot(t, "/a", runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnListenerError: func(ctx context.Context, ev *domain.ErrorEvent) { listenerErrors++ },
	}))
	tr.take()

	b := at(t, "/b", a)
	b.Chain(context.Background(), domain.StageBuild, runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error {
		return errors.New("broken widget")
	}))

	_, err := e.Run(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 1, listenerErrors)
	assert.Contains(t, tr.take(), "setup /b")
}

func TestEngine_RoutingFailure(t *testing.T) {
	boom := errors.New("status 500")
	e, s, tr, a := boot(t, "/a")
	s.fail["/broken"] = boom
	tr.take()

	_, err := e.Run(context.Background(), at(t, "/broken", a))

	var runErr *runtime.RunError
	require.ErrorAs(t, err, &runErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.StageInit, runErr.Stage)
	assert.Equal(t, []string{"init /broken", "error /broken"}, tr.take())
	assert.Same(t, a, e.Current())
}

func TestEngine_ErrorListenerRecovers(t *testing.T) {
	var handled []bool
	e, s, tr, a := boot(t, "/a", runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnRunError: func(ctx context.Context, ev *domain.ErrorEvent) { handled = append(handled, ev.Handled) },
	}))
	s.fail["/broken"] = errors.New("unreachable")
	tr.take()

	e.Globals().Add(domain.StageError, &recoverer{})

	st, err := e.Run(context.Background(), at(t, "/broken", a))
	require.NoError(t, err)
	assert.NoError(t, st.Err())
	assert.Equal(t, []bool{true}, handled)
}

type recoverer struct{}

func (recoverer) Handle(ctx context.Context, st *runtime.State) error {
	st.ClearError()
	return nil
}

func TestEngine_ListenerCanAbortRun(t *testing.T) {
	e, _, tr, a := boot(t, "/a")
	tr.take()

	abort := errors.New("unsaved changes")
	b := at(t, "/b", a)
	b.Chain(context.Background(), domain.StageReady, runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error {
		st.SetErr(abort)
		return nil
	}))

	_, err := e.Run(context.Background(), b)
	assert.ErrorIs(t, err, abort)
	assert.Equal(t, []string{"init /b", "ready /b", "error /b"}, tr.take())
}

type button struct {
	target *tracker.Target
	clicks int
}

func (b *button) Bindings() []tracker.Binding {
	return []tracker.Binding{{
		Target:  b.target,
		Event:   "click",
		Handler: func(ctx context.Context, ev tracker.Event) { b.clicks++ },
	}}
}

func TestEngine_ConnectedComponentsLiveUntilClose(t *testing.T) {
	target := tracker.NewTarget()
	btn := &button{target: target}

	e, _, _, a := boot(t, "/a")
	a.Connect(btn)
	assert.Equal(t, 1, target.Dispatch(context.Background(), tracker.Event{Type: "click"}))

	_, err := e.Run(context.Background(), at(t, "/a?tab=2", a))
	require.NoError(t, err)
	assert.Equal(t, 1, target.Count("click"), "same pathname keeps the bindings")

	_, err = e.Run(context.Background(), at(t, "/b", e.Current()))
	require.NoError(t, err)
	assert.Zero(t, target.Count("click"))
	assert.Equal(t, 1, btn.clicks)
}

func TestEngine_Hooks(t *testing.T) {
	var entered, left []domain.Stage
	var merges int
	hooks := domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, ev *domain.StageEvent) { entered = append(entered, ev.Stage) },
		OnStageLeave: func(ctx context.Context, ev *domain.StageEvent) { left = append(left, ev.Stage) },
		OnMerge:      func(ctx context.Context, ev *domain.MergeEvent) { merges++ },
	}
	e, _, _, a := boot(t, "/a", runtime.WithLifecycleHooks(hooks))
	_, err := e.Run(context.Background(), at(t, "/b", a))
	require.NoError(t, err)

	assert.Equal(t, entered, left)
	assert.Equal(t, 1, merges)
	assert.Contains(t, entered, domain.StageClose)
}

func TestEngine_Registry(t *testing.T) {
	e := runtime.NewEngine(page(t, "/a", true))
	f := runtime.ListenerFunc(func(ctx context.Context, st *runtime.State) error { return nil })
	l := &f
	assert.ErrorIs(t, e.On(context.Background(), domain.StageSetup, l), domain.ErrNoState)

	st, err := e.Run(context.Background(), at(t, "/a", nil))
	require.NoError(t, err)
	require.NoError(t, e.On(context.Background(), domain.StageBuild, l))
	assert.Equal(t, 1, st.Listeners(domain.StageBuild))
	require.NoError(t, e.Off(domain.StageBuild, l))
	assert.Zero(t, st.Listeners(domain.StageBuild))
}

func TestEngine_DocumentReferrer(t *testing.T) {
	e := runtime.NewEngine(page(t, "/a", true), runtime.WithDocumentReferrer("/from"))
	st, err := e.Run(context.Background(), at(t, "/a", nil))
	require.NoError(t, err)
	assert.Equal(t, "/from", st.Referrer.Href())
}

func TestEngine_NoDocument(t *testing.T) {
	_, err := runtime.NewEngine(nil).Run(context.Background(), at(t, "/", nil))
	assert.ErrorIs(t, err, domain.ErrNoDocument)
}

func TestParseVary(t *testing.T) {
	for in, want := range map[string]runtime.Vary{
		"": runtime.VaryNone, "hash": runtime.VaryHash, "patch": runtime.VaryPatch,
		"build": runtime.VaryBuild, "true": runtime.VaryAll,
	} {
		got, err := runtime.ParseVary(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := runtime.ParseVary("everything")
	var vErr *runtime.VaryError
	assert.ErrorAs(t, err, &vErr)
}

func renderBody(e *runtime.Engine) string {
	var b strings.Builder
	_ = html.Render(&b, e.Document())
	return b.String()
}
