/*
Package ports defines the driven ports (interfaces) for the Pageflow engine.

These interfaces decouple the navigation core from the environment it runs
in, allowing the engine to work against a real browser bridge, a headless
HTTP session or test doubles.

# Key Interfaces

  - Waiter: readiness barriers (document ready, UI visible with stylesheets loaded).
  - ResourceLoader: preloading and materializing scripts, stylesheets and imports during a merge.
  - Fetcher: fetching a URL with status and content-type checks.
  - HistoryStore: persisting navigation entries ({href, data, stage}).
  - Navigator: performing full top-level navigations as a fallback.
*/
package ports
