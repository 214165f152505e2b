// Package tracker records the event bindings made while a navigation state
// owns the document, so they can be attached on setup and removed on close.
package tracker

import (
	"context"
	"sync"
)

// Event is a document event delivered to bound handlers.
type Event struct {
	Type string
	Data any
}

// Handler reacts to an event.
type Handler func(ctx context.Context, ev Event)

// EventTarget is anything handlers can be attached to.
// Listen returns a function that detaches the handler.
type EventTarget interface {
	Listen(event string, capture bool, h Handler) (remove func())
}

// Binding declares one event subscription of a component.
type Binding struct {
	Target  EventTarget
	Event   string
	Handler Handler
	Capture bool
}

// Component declares its bindings explicitly.
// Implementations must be comparable (typically a pointer).
type Component interface {
	Bindings() []Binding
}

type connection struct {
	component Component
	removers  []func()
}

// Tracker owns the connections of one navigation state.
// Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	started bool
	conns   []*connection
}

// New creates a stopped tracker.
func New() *Tracker {
	return &Tracker{}
}

// Connect records the bindings of c, attaching them right away when the
// tracker is started. Connecting the same component twice is a no-op.
func (t *Tracker) Connect(c Component) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, conn := range t.conns {
		if conn.component == c {
			return
		}
	}
	conn := &connection{component: c}
	if t.started {
		conn.attach()
	}
	t.conns = append(t.conns, conn)
}

// Disconnect detaches and forgets c.
func (t *Tracker) Disconnect(c Component) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, conn := range t.conns {
		if conn.component == c {
			conn.detach()
			t.conns = append(t.conns[:i], t.conns[i+1:]...)
			return
		}
	}
}

// Start attaches every recorded binding.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}
	t.started = true
	for _, conn := range t.conns {
		conn.attach()
	}
}

// Stop detaches every binding and forgets the connected components.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, conn := range t.conns {
		conn.detach()
	}
	t.conns = nil
	t.started = false
}

// Absorb moves the components connected to other into t.
func (t *Tracker) Absorb(other *Tracker) {
	if other == nil || other == t {
		return
	}
	other.mu.Lock()
	moved := other.conns
	other.conns = nil
	other.mu.Unlock()

	for _, conn := range moved {
		conn.detach()
		t.Connect(conn.component)
	}
}

// Started reports whether bindings are attached.
func (t *Tracker) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Len returns the number of connected components.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (c *connection) attach() {
	for _, b := range c.component.Bindings() {
		if b.Target == nil || b.Handler == nil {
			continue
		}
		c.removers = append(c.removers, b.Target.Listen(b.Event, b.Capture, b.Handler))
	}
}

func (c *connection) detach() {
	for _, remove := range c.removers {
		remove()
	}
	c.removers = nil
}
