// Package location parses, formats and compares navigation locations.
package location

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/aretw0/pageflow/pkg/domain"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Object is the loose interchange shape accepted from callers and
// persisted data. Either Query or Search may carry the query.
type Object struct {
	Protocol string            `json:"protocol,omitempty"`
	Hostname string            `json:"hostname,omitempty"`
	Port     string            `json:"port,omitempty"`
	Pathname string            `json:"pathname"`
	Query    map[string]string `json:"query,omitempty"`
	Search   string            `json:"search,omitempty"`
	Hash     string            `json:"hash,omitempty"`
	Data     any               `json:"data,omitempty"`
}

// Parse parses href, resolving it against base when base is not nil.
func Parse(href string, base *domain.Location) (domain.Location, error) {
	u, err := url.Parse(href)
	if err != nil {
		return domain.Location{}, fmt.Errorf("invalid location %q: %w", href, err)
	}
	if base != nil {
		b, err := url.Parse(Format(*base))
		if err != nil {
			return domain.Location{}, fmt.Errorf("invalid base location: %w", err)
		}
		u = b.ResolveReference(u)
	}
	return FromURL(u), nil
}

// FromURL converts a parsed URL. Default ports are dropped.
func FromURL(u *url.URL) domain.Location {
	loc := domain.Location{
		Protocol: strings.ToLower(u.Scheme),
		Hostname: strings.ToLower(u.Hostname()),
		Port:     u.Port(),
		Pathname: u.EscapedPath(),
		Query:    ParseQuery(u.RawQuery),
		Hash:     u.Fragment,
	}
	if loc.Port != "" && defaultPorts[loc.Protocol] == loc.Port {
		loc.Port = ""
	}
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	return loc
}

// FromObject converts the interchange shape.
func FromObject(o Object) domain.Location {
	loc := domain.Location{
		Protocol: strings.TrimSuffix(o.Protocol, ":"),
		Hostname: o.Hostname,
		Port:     o.Port,
		Pathname: o.Pathname,
		Hash:     strings.TrimPrefix(o.Hash, "#"),
	}
	if o.Search != "" {
		loc.Query = ParseQuery(strings.TrimPrefix(o.Search, "?"))
	} else if len(o.Query) > 0 {
		loc.Query = domain.NewQuery()
		for _, k := range slices.Sorted(maps.Keys(o.Query)) {
			loc.Query.Set(k, o.Query[k])
		}
	}
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	return loc
}

// Format renders a location as an href. Locations without a hostname
// render as origin-relative references.
func Format(l domain.Location) string {
	var b strings.Builder
	if l.Hostname != "" {
		proto := l.Protocol
		if proto == "" {
			proto = "http"
		}
		b.WriteString(proto)
		b.WriteString("://")
		b.WriteString(l.Hostname)
		if l.Port != "" {
			b.WriteString(":")
			b.WriteString(l.Port)
		}
	}
	path := l.Pathname
	if path == "" {
		path = "/"
	}
	b.WriteString(path)
	if q := FormatQuery(l.Query); q != "" {
		b.WriteString("?")
		b.WriteString(q)
	}
	if l.Hash != "" {
		b.WriteString("#")
		b.WriteString(l.Hash)
	}
	return b.String()
}

// ParseQuery parses a raw query string keeping key order.
// Repeated keys collect into a []string.
func ParseQuery(raw string) *domain.Query {
	q := domain.NewQuery()
	if raw == "" {
		return q
	}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		k = unescape(k)
		v = unescape(v)
		prev, ok := q.Get(k)
		if !ok {
			q.Set(k, v)
			continue
		}
		switch p := prev.(type) {
		case []string:
			q.Set(k, append(p, v))
		default:
			q.Set(k, []string{fmt.Sprint(p), v})
		}
	}
	return q
}

// FormatQuery renders a query in key order.
func FormatQuery(q *domain.Query) string {
	if q == nil || q.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, q.Len())
	for pair := q.Oldest(); pair != nil; pair = pair.Next() {
		key := url.QueryEscape(pair.Key)
		switch v := pair.Value.(type) {
		case []string:
			for _, item := range v {
				parts = append(parts, key+"="+url.QueryEscape(item))
			}
		case nil:
			parts = append(parts, key)
		default:
			parts = append(parts, key+"="+url.QueryEscape(fmt.Sprint(v)))
		}
	}
	return strings.Join(parts, "&")
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}
