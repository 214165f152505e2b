/*
Package pageflow is a client-side page lifecycle controller: it drives a live
HTML document through navigations without full reloads.

Every navigation creates a State that walks the lifecycle stages

	INIT -> READY -> BUILD -> PATCH -> SETUP -> HASH

plus CLOSE, fired on the outgoing state when the pathname changes, and ERROR,
fired when a run fails. Stages are skipped when the location did not change
enough to need them: a fragment change only fires HASH, a query change
reruns PATCH, SETUP and HASH.

# Concept

Listeners register per stage with On. A listener registered after its stage
already fired for the state runs right away, so code loaded late by a merged
document still sees INIT and READY. Listeners can defer work until every
listener of the stage ran with Finish.

Documents come from a Router. The incoming document is merged into the live
one: unchanged head nodes stay, stylesheets are swapped only once their
replacement is applied, scripts run in document order and the body is
replaced.

Runs are serialized. The UI stages (CLOSE, SETUP, HASH) wait for the
document to be visible; when several navigations queue up behind that
barrier only the latest one reaches the UI, the others end with
domain.ErrSuperseded.

# Usage

	doc, _ := pageflow.Parse(served)
	ctrl := pageflow.New(doc,
		pageflow.WithRouter(router),
		pageflow.WithHistoryStore(store),
	)

	st, err := ctrl.Start(ctx, "https://example.org/", nil)
	...
	_ = ctrl.On(ctx, pageflow.StageSetup, pageflow.ListenerFunc(func(ctx context.Context, st *pageflow.State) error {
		return nil
	}))
	_, err = ctrl.Push(ctx, "/about", nil)

# Adapters

  - pkg/adapters/http: fetcher, HTML router and fixture server.
  - pkg/adapters/script: goja host running page scripts with a page.on API.
  - pkg/adapters/memory: in-memory history, navigator, waiter and loader.
  - internal/adapters/file, internal/adapters/redis: persistent history stores.
  - pkg/observability: Prometheus metrics, logging hooks and trace recording.
*/
package pageflow
