package domain

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Query is an ordered mapping of query keys. Values are either a string
// or a []string when a key is repeated.
type Query = orderedmap.OrderedMap[string, any]

// NewQuery creates an empty ordered query.
func NewQuery() *Query {
	return orderedmap.New[string, any]()
}

// Location is the structured form of a navigation target.
// Protocol holds the scheme without the trailing colon and Hash holds the
// fragment without the leading '#'.
type Location struct {
	Protocol string `json:"protocol,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Port     string `json:"port,omitempty"`
	Pathname string `json:"pathname"`
	Query    *Query `json:"query,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// Clone returns a copy of the location that shares no query storage.
func (l Location) Clone() Location {
	next := l
	if l.Query != nil {
		next.Query = NewQuery()
		for pair := l.Query.Oldest(); pair != nil; pair = pair.Next() {
			v := pair.Value
			if list, ok := v.([]string); ok {
				v = append([]string(nil), list...)
			}
			next.Query.Set(pair.Key, v)
		}
	}
	return next
}

// WithoutHash returns a copy of the location with the fragment removed.
func (l Location) WithoutHash() Location {
	next := l.Clone()
	next.Hash = ""
	return next
}
