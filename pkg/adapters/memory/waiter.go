package memory

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/net/html"
)

// Waiter implements ports.Waiter. The document is always ready; the UI
// barrier is open unless held.
type Waiter struct {
	mu    sync.Mutex
	gate  chan struct{}
	calls *atomic.Int32
}

// NewWaiter creates an open waiter.
func NewWaiter() *Waiter {
	return &Waiter{calls: atomic.NewInt32(0)}
}

// DocumentReady returns right away.
func (w *Waiter) DocumentReady(ctx context.Context) error {
	return ctx.Err()
}

// UIReady blocks while the barrier is held.
func (w *Waiter) UIReady(ctx context.Context, _ *html.Node) error {
	w.calls.Inc()
	w.mu.Lock()
	gate := w.gate
	w.mu.Unlock()
	if gate == nil {
		return ctx.Err()
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hold closes the UI barrier until Release.
func (w *Waiter) Hold() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gate == nil {
		w.gate = make(chan struct{})
	}
}

// Release opens the UI barrier.
func (w *Waiter) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gate != nil {
		close(w.gate)
		w.gate = nil
	}
}

// Calls returns how many times UIReady was entered.
func (w *Waiter) Calls() int {
	return int(w.calls.Load())
}
