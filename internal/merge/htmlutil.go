package merge

import (
	"bytes"
	"slices"
	"strings"

	"github.com/aretw0/pageflow/pkg/ports"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PrerenderAttr marks a document whose content was already rendered by the server.
const PrerenderAttr = "data-prerender"

const (
	neutralType = "none"
	neutralRel  = "none"
)

// ParseString parses an HTML document.
func ParseString(src string) (*html.Node, error) {
	return html.Parse(strings.NewReader(src))
}

// Scripts lists the scripts of doc in document order.
func Scripts(doc *html.Node) []ports.Resource {
	var out []ports.Resource
	walk(Root(doc), func(n *html.Node) {
		if !isScript(n) {
			return
		}
		res := ports.Resource{Kind: ports.ResourceScript, URL: resourceURL(n), Node: n}
		if res.URL == "" {
			res.Inline = Text(n)
		}
		out = append(out, res)
	})
	return out
}

// Root returns the <html> element of doc.
func Root(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode && doc.DataAtom == atom.Html {
		return doc
	}
	return child(doc, atom.Html)
}

// Head returns the <head> element of doc.
func Head(doc *html.Node) *html.Node {
	return child(Root(doc), atom.Head)
}

// Body returns the <body> element of doc.
func Body(doc *html.Node) *html.Node {
	return child(Root(doc), atom.Body)
}

// IsPrerendered reports whether the root element carries the prerender mark.
func IsPrerendered(doc *html.Node) bool {
	v, ok := Attr(Root(doc), PrerenderAttr)
	return ok && v == "true"
}

// SetPrerendered marks doc as already rendered.
func SetPrerendered(doc *html.Node) {
	if root := Root(doc); root != nil {
		SetAttr(root, PrerenderAttr, "true")
	}
}

// Attr returns the value of the key attribute of n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or adds the key attribute of n.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Render serializes n to HTML.
func Render(n *html.Node) string {
	var b bytes.Buffer
	_ = html.Render(&b, n)
	return b.String()
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(d *html.Node) {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	})
	return b.String()
}

// walk visits n and its descendants in document order.
func walk(n *html.Node, fn func(*html.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func child(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func elements(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func relHas(n *html.Node, token string) bool {
	rel, _ := Attr(n, "rel")
	return slices.Contains(strings.Fields(strings.ToLower(rel)), token)
}

func isScript(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Script
}

func isImport(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Link && relHas(n, "import")
}

func isStylesheet(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return n.DataAtom == atom.Style || (n.DataAtom == atom.Link && relHas(n, "stylesheet"))
}

// resourceURL is the src of scripts and the href of stylesheet or import links.
func resourceURL(n *html.Node) string {
	switch {
	case isScript(n):
		v, _ := Attr(n, "src")
		return v
	case n.DataAtom == atom.Link && (relHas(n, "stylesheet") || relHas(n, "import")):
		v, _ := Attr(n, "href")
		return v
	}
	return ""
}

// attached reports whether n is still part of the tree rooted at root.
func attached(n, root *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// children adapts the child list of an element to a Sequence.
type children struct {
	parent *html.Node
}

func (c children) InsertBefore(node, ref *html.Node) {
	detach(node)
	c.parent.InsertBefore(node, ref)
}

func (c children) Replace(old, node *html.Node) {
	c.InsertBefore(node, old)
	c.Remove(old)
}

func (c children) Remove(node *html.Node) {
	if node.Parent == c.parent {
		c.parent.RemoveChild(node)
	}
}
