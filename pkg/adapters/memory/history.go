package memory

import (
	"context"
	"sync"

	"github.com/aretw0/pageflow/pkg/domain"
)

// History implements ports.HistoryStore in memory with back/forward moves.
// Safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	entries []domain.Entry
	index   int
	pops    chan domain.Entry
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		index: -1,
		pops:  make(chan domain.Entry),
	}
}

// Push appends entry after the current one, dropping forward entries.
func (h *History) Push(ctx context.Context, entry domain.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], entry)
	h.index++
	return nil
}

// Replace overwrites the current entry.
func (h *History) Replace(ctx context.Context, entry domain.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 {
		h.entries = append(h.entries[:0], entry)
		h.index = 0
		return nil
	}
	h.entries[h.index] = entry
	return nil
}

// Current returns the current entry.
func (h *History) Current(ctx context.Context) (domain.Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.index < 0 {
		return domain.Entry{}, domain.ErrNoEntry
	}
	return h.entries[h.index], nil
}

// Entries returns a copy of every entry, oldest first.
func (h *History) Entries() []domain.Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.Entry(nil), h.entries...)
}

// Index returns the position of the current entry, -1 when empty.
func (h *History) Index() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index
}

// Pops delivers the entries restored by Back and Forward.
func (h *History) Pops() <-chan domain.Entry {
	return h.pops
}

// Back moves to the previous entry and delivers it on Pops.
// It reports false when there is no previous entry.
func (h *History) Back(ctx context.Context) (bool, error) {
	return h.move(ctx, -1)
}

// Forward moves to the next entry and delivers it on Pops.
func (h *History) Forward(ctx context.Context) (bool, error) {
	return h.move(ctx, 1)
}

func (h *History) move(ctx context.Context, delta int) (bool, error) {
	h.mu.Lock()
	next := h.index + delta
	if next < 0 || next >= len(h.entries) {
		h.mu.Unlock()
		return false, nil
	}
	h.index = next
	entry := h.entries[next]
	h.mu.Unlock()

	select {
	case h.pops <- entry:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}
