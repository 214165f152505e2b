package tracker

import (
	"context"
	"sync"
)

type subscription struct {
	id      uint64
	capture bool
	handler Handler
}

// Target is an in-process EventTarget. Capturing handlers run before
// bubbling ones, each group in attach order.
type Target struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscription
}

// NewTarget creates an empty target.
func NewTarget() *Target {
	return &Target{subs: make(map[string][]subscription)}
}

// Listen attaches h to event.
func (t *Target) Listen(event string, capture bool, h Handler) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs[event] = append(t.subs[event], subscription{id: id, capture: capture, handler: h})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			subs := t.subs[event]
			for i, s := range subs {
				if s.id == id {
					t.subs[event] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Dispatch delivers ev to its handlers and returns how many ran.
func (t *Target) Dispatch(ctx context.Context, ev Event) int {
	t.mu.Lock()
	subs := append([]subscription(nil), t.subs[ev.Type]...)
	t.mu.Unlock()

	n := 0
	for _, capture := range []bool{true, false} {
		for _, s := range subs {
			if s.capture == capture {
				s.handler(ctx, ev)
				n++
			}
		}
	}
	return n
}

// Count returns the number of handlers attached to event.
func (t *Target) Count(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[event])
}
