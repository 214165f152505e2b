package ports

import (
	"context"

	"github.com/aretw0/pageflow/pkg/domain"
)

// HistoryStore defines the browser-history-like persistence of navigation entries.
type HistoryStore interface {
	// Push appends an entry and makes it current, discarding forward entries.
	Push(ctx context.Context, entry domain.Entry) error

	// Replace overwrites the current entry (or pushes when empty).
	Replace(ctx context.Context, entry domain.Entry) error

	// Current returns the current entry.
	// Returns domain.ErrNoEntry if the store is empty.
	Current(ctx context.Context) (domain.Entry, error)
}

// Navigator performs full top-level navigations, leaving the engine.
type Navigator interface {
	Assign(ctx context.Context, href string) error
	Replace(ctx context.Context, href string) error
}
