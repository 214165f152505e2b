package ports

import (
	"context"
	"strings"

	"golang.org/x/net/html"
)

// Waiter provides the readiness barriers consumed by the engine.
type Waiter interface {
	// DocumentReady blocks until the live document can be read.
	DocumentReady(ctx context.Context) error

	// UIReady blocks until the document is visible and its stylesheets are loaded.
	UIReady(ctx context.Context, doc *html.Node) error
}

// ResourceKind classifies the resources a merge has to materialize.
type ResourceKind string

const (
	ResourceScript     ResourceKind = "script"
	ResourceStylesheet ResourceKind = "stylesheet"
	ResourceImport     ResourceKind = "import"
)

// Resource is a script, stylesheet or import taking part in a merge.
type Resource struct {
	Kind ResourceKind
	// URL is the src/href attribute; empty for inline resources.
	URL string
	// Inline is the text content of inline resources.
	Inline string
	// Node is the element in the live document once materialized.
	Node *html.Node
}

// Remote reports whether the resource has to be fetched over the network.
func (r Resource) Remote() bool {
	return r.URL != "" && !strings.HasPrefix(strings.ToLower(r.URL), "data:")
}

// ResourceLoader materializes resources in the environment hosting the document.
type ResourceLoader interface {
	// Preload fetches a remote resource ahead of its execution.
	Preload(ctx context.Context, res Resource) error

	// Load executes or applies a materialized resource and returns once
	// its load or error event would have fired.
	Load(ctx context.Context, res Resource) error

	// WaitStylesheet blocks until the stylesheet node is applied.
	WaitStylesheet(ctx context.Context, node *html.Node) error

	// SupportsImports reports whether import-like links can be executed.
	SupportsImports() bool
}
