package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/pageflow/pkg/ports"
	"golang.org/x/net/html"
)

// Loader implements ports.ResourceLoader without a network. Every
// resource loads after its configured latency; Executed lists what ran.
type Loader struct {
	mu        sync.Mutex
	latency   map[string]time.Duration
	failing   map[string]bool
	imports   bool
	preloaded []string
	executed  []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLatency delays preloading and loading of url.
func WithLatency(url string, d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.latency[url] = d
	}
}

// WithFailure makes url fail to load.
func WithFailure(url string) LoaderOption {
	return func(l *Loader) {
		l.failing[url] = true
	}
}

// WithImports declares support for import links.
func WithImports(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.imports = enabled
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		latency: make(map[string]time.Duration),
		failing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Preload waits for the latency of the resource.
func (l *Loader) Preload(ctx context.Context, res ports.Resource) error {
	l.mu.Lock()
	l.preloaded = append(l.preloaded, res.URL)
	l.mu.Unlock()
	return l.wait(ctx, res.URL)
}

// Load records the resource as executed.
func (l *Loader) Load(ctx context.Context, res ports.Resource) error {
	l.mu.Lock()
	l.executed = append(l.executed, Label(res))
	failing := l.failing[res.URL]
	l.mu.Unlock()
	if failing {
		return fmt.Errorf("load %s: not found", res.URL)
	}
	return nil
}

// WaitStylesheet waits for the latency of the stylesheet href.
func (l *Loader) WaitStylesheet(ctx context.Context, node *html.Node) error {
	for _, a := range node.Attr {
		if a.Key == "href" {
			return l.wait(ctx, a.Val)
		}
	}
	return nil
}

// SupportsImports reports whether import links are executed.
func (l *Loader) SupportsImports() bool {
	return l.imports
}

// Preloaded returns the URLs passed to Preload.
func (l *Loader) Preloaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.preloaded...)
}

// Executed returns the labels of loaded resources in load order.
func (l *Loader) Executed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.executed...)
}

func (l *Loader) wait(ctx context.Context, url string) error {
	l.mu.Lock()
	d := l.latency[url]
	l.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Label names a resource: its URL, or its trimmed inline text.
func Label(res ports.Resource) string {
	if res.URL != "" {
		return res.URL
	}
	return strings.TrimSpace(res.Inline)
}
