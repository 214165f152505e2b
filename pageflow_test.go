package pageflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/pageflow"
	"github.com/aretw0/pageflow/pkg/adapters/memory"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

type target struct {
	mu       sync.Mutex
	attached map[string]int
}

func (t *target) Listen(event string, _ bool, _ pageflow.Handler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached[event]++
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.attached[event]--
	}
}

func (t *target) count(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached[event]
}

type menu struct {
	target *target
}

func (m *menu) Bindings() []pageflow.Binding {
	return []pageflow.Binding{
		{Target: m.target, Event: "click", Handler: func(context.Context, pageflow.Event) {}},
	}
}

func controller(t *testing.T, opts ...pageflow.Option) (*pageflow.Controller, *memory.History, *memory.Navigator) {
	t.Helper()
	doc, err := pageflow.Parse(`<html data-prerender="true"><head></head><body>home</body></html>`)
	require.NoError(t, err)
	store := memory.NewHistory()
	nav := memory.NewNavigator()
	router := func(_ context.Context, st *pageflow.State) (*html.Node, error) {
		if st.Pathname == "/down" {
			return nil, errors.New("status 503")
		}
		return pageflow.Parse(`<html><head></head><body>` + st.Pathname + `</body></html>`)
	}
	opts = append([]pageflow.Option{
		pageflow.WithRouter(router),
		pageflow.WithHistoryStore(store),
		pageflow.WithNavigator(nav),
		pageflow.WithFallbackDelay(0),
	}, opts...)
	return pageflow.New(doc, opts...), store, nav
}

func TestController_StartSavesEntry(t *testing.T) {
	ctrl, store, _ := controller(t)

	st, err := ctrl.Start(context.Background(), "http://site.test/", map[string]any{"from": "server"})
	require.NoError(t, err)
	assert.Same(t, st, ctrl.Current())

	entries := store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "http://site.test/", entries[0].Href)
	assert.Equal(t, domain.StageSetup, entries[0].Stage)
}

func TestController_PushReplaceAndPop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl, store, _ := controller(t)
	_, err := ctrl.Start(ctx, "http://site.test/", nil)
	require.NoError(t, err)

	_, err = ctrl.Push(ctx, "/docs", nil)
	require.NoError(t, err)
	_, err = ctrl.Replace(ctx, "/docs?page=2", nil)
	require.NoError(t, err)

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "http://site.test/docs?page=2", entries[1].Href)

	go func() { _ = ctrl.Listen(ctx, store.Pops()) }()
	moved, err := store.Back(ctx)
	require.NoError(t, err)
	require.True(t, moved)

	assert.Eventually(t, func() bool {
		cur := ctrl.Current()
		return cur != nil && cur.Pathname == "/"
	}, time.Second, 5*time.Millisecond)
}

func TestController_FailedPushFallsBack(t *testing.T) {
	ctrl, store, nav := controller(t)
	_, err := ctrl.Start(context.Background(), "http://site.test/", nil)
	require.NoError(t, err)

	_, err = ctrl.Push(context.Background(), "/down", nil)
	var runErr *pageflow.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, pageflow.StageInit, runErr.Stage)
	assert.Equal(t, []string{"http://site.test/down"}, nav.Assigned())
	assert.Len(t, store.Entries(), 1)
}

func TestController_ConnectLivesUntilClose(t *testing.T) {
	ctrl, _, _ := controller(t)
	ctx := context.Background()
	assert.ErrorIs(t, ctrl.Connect(&menu{}), domain.ErrNoState)

	_, err := ctrl.Start(ctx, "http://site.test/", nil)
	require.NoError(t, err)

	tg := &target{attached: map[string]int{}}
	require.NoError(t, ctrl.Connect(&menu{target: tg}))
	assert.Equal(t, 1, tg.count("click"))

	_, err = ctrl.Push(ctx, "/docs#intro", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, tg.count("click"))
}

func TestController_OnAndVary(t *testing.T) {
	ctrl, _, _ := controller(t)
	ctx := context.Background()
	_, err := ctrl.Start(ctx, "http://site.test/", nil)
	require.NoError(t, err)

	var builds, hashes int
	ctrl.OnEvery(pageflow.StageBuild, pageflow.ListenerFunc(func(context.Context, *pageflow.State) error {
		builds++
		return nil
	}))
	require.NoError(t, ctrl.On(ctx, pageflow.StageHash, pageflow.ListenerFunc(func(context.Context, *pageflow.State) error {
		hashes++
		return nil
	})))

	_, err = ctrl.Push(ctx, "/#top", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, builds, "a fragment change keeps the built document")
	assert.Equal(t, 1, hashes, "same-path states share registrations")

	_, err = ctrl.Push(ctx, "/#bottom", nil, pageflow.WithVary(pageflow.VaryBuild))
	require.NoError(t, err)
	assert.Equal(t, 1, builds)
}
