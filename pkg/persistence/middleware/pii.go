package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/ports"
)

// Mask replaces the value of every redacted key.
const Mask = "***"

type piiMiddleware struct {
	next     ports.HistoryStore
	patterns []*regexp.Regexp
}

// CompilePatterns compiles the key patterns used by NewPIIMiddleware.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p, err)
		}
		out[i] = re
	}
	return out, nil
}

// NewPIIMiddleware creates a middleware that masks values of entry data keys
// matching the patterns before they are stored. The caller's entry is left
// untouched.
func NewPIIMiddleware(patterns []*regexp.Regexp) Middleware {
	return func(next ports.HistoryStore) ports.HistoryStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Push(ctx context.Context, entry domain.Entry) error {
	return m.next.Push(ctx, m.mask(entry))
}

func (m *piiMiddleware) Replace(ctx context.Context, entry domain.Entry) error {
	return m.next.Replace(ctx, m.mask(entry))
}

func (m *piiMiddleware) Current(ctx context.Context) (domain.Entry, error) {
	return m.next.Current(ctx)
}

func (m *piiMiddleware) mask(entry domain.Entry) domain.Entry {
	entry.Data = maskValue(entry.Data, m.patterns)
	return entry
}

// maskValue returns a copy of v with matching map keys masked. Values that
// hold no maps are returned as is.
func maskValue(v any, patterns []*regexp.Regexp) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, sub := range t {
			if matchAny(k, patterns) {
				out[k] = Mask
				continue
			}
			out[k] = maskValue(sub, patterns)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, sub := range t {
			out[i] = maskValue(sub, patterns)
		}
		return out
	}
	return v
}

func matchAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
