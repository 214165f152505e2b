package history_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/pageflow/internal/runtime"
	"github.com/aretw0/pageflow/pkg/adapters/memory"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/history"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const origin = "http://site.test"

type fixture struct {
	engine  *runtime.Engine
	store   *memory.History
	nav     *memory.Navigator
	waiter  *memory.Waiter
	adapter *history.Adapter
}

func doc(t *testing.T, title string, prerendered bool) *html.Node {
	t.Helper()
	attr := ""
	if prerendered {
		attr = ` data-prerender="true"`
	}
	node, err := html.Parse(strings.NewReader(fmt.Sprintf(`<html%s><head><title>%s</title></head><body>%s</body></html>`, attr, title, title)))
	require.NoError(t, err)
	return node
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewHistory(),
		nav:    memory.NewNavigator(),
		waiter: memory.NewWaiter(),
	}
	f.engine = runtime.NewEngine(doc(t, "/a", true),
		runtime.WithWaiter(f.waiter),
		runtime.WithRouter(func(ctx context.Context, st *runtime.State) (*html.Node, error) {
			if st.Pathname == "/broken" {
				return nil, errors.New("status 502")
			}
			return doc(t, st.Pathname, false), nil
		}),
	)
	f.adapter = history.New(f.engine, f.store, f.nav, history.WithFallbackDelay(0))

	loc, err := location.Parse(origin+"/a", nil)
	require.NoError(t, err)
	_, err = f.engine.Run(context.Background(), runtime.NewState(loc, nil))
	require.NoError(t, err)
	require.NoError(t, f.adapter.SaveIfEmpty(context.Background()))
	return f
}

func TestAdapter_SaveAfterFirstLoad(t *testing.T) {
	f := setup(t)
	entries := f.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.Entry{Href: origin + "/a", Stage: domain.StageSetup}, entries[0])

	require.NoError(t, f.adapter.SaveIfEmpty(context.Background()))
	assert.Len(t, f.store.Entries(), 1)
}

func TestAdapter_Push(t *testing.T) {
	f := setup(t)

	st, err := f.adapter.Push(context.Background(), "/b?tab=news", map[string]any{"from": "menu"})
	require.NoError(t, err)
	assert.Same(t, st, f.engine.Current())

	entries := f.store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, origin+"/b?tab=news", entries[1].Href)
	assert.Equal(t, map[string]any{"from": "menu"}, entries[1].Data)
	assert.Equal(t, domain.StageHash, entries[1].Stage)
	assert.Empty(t, f.nav.Assigned())
}

func TestAdapter_Replace(t *testing.T) {
	f := setup(t)

	_, err := f.adapter.Replace(context.Background(), "/a?x=1", nil)
	require.NoError(t, err)
	entries := f.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, origin+"/a?x=1", entries[0].Href)
}

func TestAdapter_ReplaceStampsTheLeftEntry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.store.Replace(ctx, domain.Entry{Href: origin + "/a"}))

	_, err := f.adapter.Replace(ctx, "/broken", nil)
	require.Error(t, err)

	entries := f.store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.Entry{Href: origin + "/a", Stage: domain.StageSetup}, entries[0])
}

func TestAdapter_CrossOrigin(t *testing.T) {
	f := setup(t)

	st, err := f.adapter.Push(context.Background(), "https://elsewhere.test/x", nil)
	assert.ErrorIs(t, err, domain.ErrCrossOrigin)
	assert.Nil(t, st)
	assert.Equal(t, []string{"https://elsewhere.test/x"}, f.nav.Assigned())
	assert.Len(t, f.store.Entries(), 1)
}

func TestAdapter_FailureFallsBack(t *testing.T) {
	f := setup(t)

	_, err := f.adapter.Push(context.Background(), "/broken", nil)
	var runErr *runtime.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, []string{origin + "/broken"}, f.nav.Assigned())
	assert.Len(t, f.store.Entries(), 1)
}

func TestAdapter_SupersededPushIsNotPersisted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.waiter.Hold()

	errB := make(chan error, 1)
	go func() {
		_, err := f.adapter.Push(ctx, "/b", nil)
		errB <- err
	}()
	require.Eventually(t, func() bool { return f.waiter.Calls() == 2 }, time.Second, time.Millisecond)

	errC := make(chan error, 1)
	go func() {
		_, err := f.adapter.Push(ctx, "/c", nil)
		errC <- err
	}()

	assert.ErrorIs(t, <-errB, domain.ErrSuperseded)
	f.waiter.Release()
	require.NoError(t, <-errC)

	assert.Equal(t, []string{origin + "/a", origin + "/c"}, hrefs(f.store.Entries()))
	assert.Empty(t, f.nav.Assigned())
}

func TestAdapter_PopState(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.adapter.Push(ctx, "/b", nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.adapter.Listen(ctx, f.store.Pops()) }()

	moved, err := f.store.Back(ctx)
	require.NoError(t, err)
	require.True(t, moved)

	require.Eventually(t, func() bool {
		cur := f.engine.Current()
		return cur != nil && cur.Href() == origin+"/a"
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, f.store.Index())
}

func TestAdapter_PopFailureReplaces(t *testing.T) {
	f := setup(t)

	_, err := f.adapter.HandlePop(context.Background(), domain.Entry{Href: origin + "/broken"})
	assert.Error(t, err)
	assert.Equal(t, []string{origin + "/broken"}, f.nav.Replaced())
}

func TestAdapter_PopOnFreshEngineSetsUp(t *testing.T) {
	e := runtime.NewEngine(doc(t, "/a", true))
	var stages []domain.Stage
	for _, stage := range []domain.Stage{domain.StageInit, domain.StageSetup} {
		e.Globals().Add(stage, &recorder{stage: stage, into: &stages})
	}
	a := history.New(e, memory.NewHistory(), memory.NewNavigator())

	st, err := a.HandlePop(context.Background(), domain.Entry{Href: origin + "/a", Stage: domain.StageSetup})
	require.NoError(t, err)
	assert.Equal(t, []domain.Stage{domain.StageInit, domain.StageSetup}, stages)
	assert.Equal(t, domain.StageSetup, st.Stage())
	assert.Empty(t, st.Referrer.Stage(), "the stand-in referrer never ran")
}

type recorder struct {
	stage domain.Stage
	into  *[]domain.Stage
}

func (r *recorder) Handle(context.Context, *runtime.State) error {
	*r.into = append(*r.into, r.stage)
	return nil
}

func TestAdapter_SaveBeforeRun(t *testing.T) {
	e := runtime.NewEngine(doc(t, "/", true))
	a := history.New(e, memory.NewHistory(), memory.NewNavigator())
	assert.ErrorIs(t, a.Save(context.Background()), domain.ErrNoState)
}

func hrefs(entries []domain.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Href
	}
	return out
}
