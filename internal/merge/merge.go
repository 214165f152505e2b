package merge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/ports"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

// Report summarizes one merge.
type Report struct {
	Inserted    int
	Substituted int
	Deleted     int
	Deferred    int
	Preloaded   int
	Scripts     int
}

// Merger applies incoming documents onto a live one.
type Merger struct {
	loader ports.ResourceLoader
	logger *slog.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger used for resource failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Merger materializing resources through loader.
func New(loader ports.ResourceLoader, opts ...Option) *Merger {
	m := &Merger{
		loader: loader,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// resource is a script or import of the incoming document, neutralized
// until its turn to run.
type resource struct {
	kind  ports.ResourceKind
	node  *html.Node
	url   string
	attrs []html.Attribute
	ready chan struct{}
	err   error
}

func (r *resource) port() ports.Resource {
	res := ports.Resource{Kind: r.kind, URL: r.url, Node: r.node}
	if r.url == "" {
		res.Inline = Text(r.node)
	}
	return res
}

// Merge reconciles live with incoming. The incoming document is consumed:
// its nodes are moved into live.
func (m *Merger) Merge(ctx context.Context, live, incoming *html.Node) (Report, error) {
	var rep Report

	liveRoot, inRoot := Root(live), Root(incoming)
	if liveRoot == nil || inRoot == nil {
		return rep, fmt.Errorf("%w: missing html element", domain.ErrUnusableDocument)
	}

	satisfied := loaded(live)
	resources := neutralize(incoming)

	preloads, pctx := errgroup.WithContext(ctx)
	defer func() { _ = preloads.Wait() }()
	for _, r := range resources {
		if r.url == "" || satisfied[r.url] || !r.port().Remote() {
			close(r.ready)
			continue
		}
		rep.Preloaded++
		preloads.Go(func() error {
			defer close(r.ready)
			r.err = m.loader.Preload(pctx, r.port())
			return nil
		})
	}

	liveRoot.Attr = slices.Clone(inRoot.Attr)

	waits, deferred := m.mergeHead(liveRoot, Head(live), Head(incoming), resources, &rep)
	swapBody(liveRoot, Body(live), Body(incoming))

	if err := m.awaitStylesheets(ctx, waits); err != nil {
		return rep, err
	}
	for _, n := range deferred {
		detach(n)
	}

	for _, r := range resources {
		if !attached(r.node, liveRoot) {
			continue
		}
		select {
		case <-r.ready:
		case <-ctx.Done():
			return rep, ctx.Err()
		}
		if r.err != nil {
			m.logger.Warn("preload failed", "url", r.url, "error", r.err)
		}
		r.node.Attr = r.attrs
		if r.kind == ports.ResourceImport && !m.loader.SupportsImports() {
			continue
		}
		if err := m.loader.Load(ctx, r.port()); err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			m.logger.Warn("resource failed", "kind", r.kind, "url", r.url, "error", err)
		}
		if r.kind == ports.ResourceScript {
			rep.Scripts++
		}
	}

	return rep, nil
}

// mergeHead patches the live head with a keyed edit script. It returns
// the replacement stylesheets to wait for and the old stylesheets to
// remove afterwards.
func (m *Merger) mergeHead(root, liveHead, inHead *html.Node, resources []*resource, rep *Report) (waits, deferred []*html.Node) {
	if inHead == nil {
		return nil, nil
	}
	if liveHead == nil {
		detach(inHead)
		root.InsertBefore(inHead, root.FirstChild)
		rep.Inserted += len(elements(inHead))
		return nil, nil
	}

	orig := make(map[*html.Node][]html.Attribute, len(resources))
	for _, r := range resources {
		orig[r.node] = r.attrs
	}
	// Neutralized nodes are keyed by their original attributes.
	key := func(n *html.Node) string {
		if attrs, ok := orig[n]; ok {
			saved := n.Attr
			n.Attr = attrs
			defer func() { n.Attr = saved }()
		}
		if u := resourceURL(n); u != "" {
			return n.Data + " " + u
		}
		return Render(n)
	}

	old, incoming := elements(liveHead), elements(inHead)
	ops := Diff(old, incoming, key)
	st := Apply[*html.Node](children{parent: liveHead}, old, incoming, ops, func(o, _ *html.Node, _ bool) bool {
		if !isStylesheet(o) {
			return false
		}
		deferred = append(deferred, o)
		return true
	})
	// Old stylesheets stay until every new one has loaded, wherever the
	// new ones landed.
	if len(deferred) > 0 {
		for _, op := range ops {
			if op.Kind == OpKeep || op.New < 0 {
				continue
			}
			if n := incoming[op.New]; isStylesheet(n) {
				waits = append(waits, n)
			}
		}
	}

	rep.Inserted += st.Inserted
	rep.Substituted += st.Substituted
	rep.Deleted += st.Deleted
	rep.Deferred += st.Retained
	return waits, deferred
}

func (m *Merger) awaitStylesheets(ctx context.Context, nodes []*html.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		g.Go(func() error {
			if err := m.loader.WaitStylesheet(gctx, n); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// A stylesheet that failed to load counts as settled.
				m.logger.Warn("stylesheet failed", "url", resourceURL(n), "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func swapBody(root, liveBody, inBody *html.Node) {
	if inBody == nil {
		inBody = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	detach(inBody)
	if liveBody == nil {
		root.AppendChild(inBody)
		return
	}
	root.InsertBefore(inBody, liveBody)
	root.RemoveChild(liveBody)
}

// loaded collects the URLs of scripts, stylesheets and imports already
// present in doc.
func loaded(doc *html.Node) map[string]bool {
	set := make(map[string]bool)
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if u := resourceURL(n); u != "" {
			set[u] = true
		}
	})
	return set
}

// neutralize disables every script and import of doc so that inserting
// it does not run anything, and returns them in document order.
func neutralize(doc *html.Node) []*resource {
	var out []*resource
	walk(doc, func(n *html.Node) {
		var kind ports.ResourceKind
		switch {
		case isScript(n):
			kind = ports.ResourceScript
		case isImport(n):
			kind = ports.ResourceImport
		default:
			return
		}
		r := &resource{
			kind:  kind,
			node:  n,
			url:   resourceURL(n),
			attrs: slices.Clone(n.Attr),
			ready: make(chan struct{}),
		}
		if kind == ports.ResourceScript {
			SetAttr(n, "type", neutralType)
		} else {
			SetAttr(n, "rel", neutralRel)
		}
		out = append(out, r)
	})
	return out
}
