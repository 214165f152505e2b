package chain

import (
	"context"
	"reflect"
	"sync"

	"github.com/aretw0/pageflow/pkg/domain"
)

// Task is deferred work registered through Finish.
type Task func(ctx context.Context) error

// Listener reacts to a stage firing for a target.
type Listener[T any] interface {
	Handle(ctx context.Context, target T) error
}

// ListenerFunc adapts a function to a Listener.
// Function values have no identity: every Add of a ListenerFunc value is a
// new registration and Remove cannot find it. Register a pointer (&fn) to
// make the listener removable and its registration idempotent.
type ListenerFunc[T any] func(ctx context.Context, target T) error

// Handle calls f.
func (f ListenerFunc[T]) Handle(ctx context.Context, target T) error {
	return f(ctx, target)
}

// identity returns the key a listener is registered under. Listeners of a
// non-comparable type have none.
func identity[T any](l Listener[T]) (any, bool) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return nil, false
	}
	return l, true
}

type registration[T any] struct {
	key      any
	keyed    bool
	listener Listener[T]
}

// Emitter holds ordered listener registrations per stage.
// Safe for concurrent use.
type Emitter[T any] struct {
	mu        sync.RWMutex
	listeners map[domain.Stage][]registration[T]
}

// NewEmitter creates an empty emitter.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{
		listeners: make(map[domain.Stage][]registration[T]),
	}
}

// Add registers l for stage. It returns false when l was already registered.
func (e *Emitter[T]) Add(stage domain.Stage, l Listener[T]) bool {
	key, keyed := identity(l)

	e.mu.Lock()
	defer e.mu.Unlock()

	if keyed {
		for _, r := range e.listeners[stage] {
			if r.keyed && r.key == key {
				return false
			}
		}
	}
	e.listeners[stage] = append(e.listeners[stage], registration[T]{key: key, keyed: keyed, listener: l})
	return true
}

// Remove unregisters l for stage. It returns false when l was not registered.
func (e *Emitter[T]) Remove(stage domain.Stage, l Listener[T]) bool {
	key, keyed := identity(l)
	if !keyed {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.listeners[stage]
	for i, r := range regs {
		if r.keyed && r.key == key {
			e.listeners[stage] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// Listeners returns a snapshot of the listeners registered for stage.
func (e *Emitter[T]) Listeners(stage domain.Stage) []Listener[T] {
	e.mu.RLock()
	defer e.mu.RUnlock()

	regs := e.listeners[stage]
	out := make([]Listener[T], len(regs))
	for i, r := range regs {
		out[i] = r.listener
	}
	return out
}

// Len returns the number of listeners registered for stage.
func (e *Emitter[T]) Len(stage domain.Stage) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[stage])
}

// Absorb moves the registrations of other into e, keeping e's order first.
func (e *Emitter[T]) Absorb(other *Emitter[T]) {
	if other == nil || other == e {
		return
	}
	other.mu.Lock()
	moved := other.listeners
	other.listeners = make(map[domain.Stage][]registration[T])
	other.mu.Unlock()

	for _, stage := range domain.Stages() {
		for _, r := range moved[stage] {
			e.Add(stage, r.listener)
		}
	}
}
