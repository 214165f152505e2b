package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/pageflow/pkg/domain"
	"go.uber.org/atomic"
)

// Serializer runs tasks one at a time. Waiting callers are served in
// arrival order.
type Serializer struct {
	slot chan struct{}
}

// NewSerializer creates an idle serializer.
func NewSerializer() *Serializer {
	return &Serializer{slot: make(chan struct{}, 1)}
}

// Enqueue waits for the slot, runs task and releases the slot. It returns
// the task error, or the context error if ctx ends while waiting.
func (s *Serializer) Enqueue(ctx context.Context, task func(context.Context) error) error {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.slot }()
	return task(ctx)
}

// Barrier blocks until the UI may be handed over.
type Barrier func(ctx context.Context) error

// Continuation is the UI phase of a run. It receives the state that owned
// the UI when the burst of runs started. A continuation that finds itself
// stale once it holds the queue returns domain.ErrSuperseded; the referrer
// then passes to the next continuation.
type Continuation func(ctx context.Context, referrer *State) error

type pending struct {
	ctx  context.Context
	fn   Continuation
	done chan error
}

// UIGate coalesces the UI phases of runs arriving before the barrier
// opens: only the latest continuation runs, earlier ones are answered
// with domain.ErrSuperseded. Continuations never overlap.
type UIGate struct {
	barrier Barrier
	queue   *Serializer
	gen     *atomic.Uint64

	mu       sync.Mutex
	latest   *pending
	referrer *State
	carried  *State
	draining bool
}

// NewUIGate creates a gate opening on barrier. Continuations run while
// holding queue, so they never overlap a document phase.
func NewUIGate(barrier Barrier, queue *Serializer) *UIGate {
	return &UIGate{
		barrier: barrier,
		queue:   queue,
		gen:     atomic.NewUint64(0),
	}
}

// Submit queues fn and waits for its outcome. referrer is kept only when
// no other continuation is waiting, so a burst is handed the state that
// owned the UI before it began.
func (g *UIGate) Submit(ctx context.Context, referrer *State, fn Continuation) error {
	p := &pending{ctx: ctx, fn: fn, done: make(chan error, 1)}

	g.mu.Lock()
	switch {
	case g.latest != nil:
		g.latest.done <- domain.ErrSuperseded
	case g.carried != nil:
		g.referrer, g.carried = g.carried, nil
	default:
		g.referrer = referrer
	}
	g.latest = p
	g.gen.Inc()
	start := !g.draining
	g.draining = true
	g.mu.Unlock()

	if start {
		go g.drain()
	}

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
	}

	g.mu.Lock()
	if g.latest == p {
		g.latest = nil
		g.referrer = nil
		g.gen.Inc()
		g.mu.Unlock()
		return ctx.Err()
	}
	g.mu.Unlock()
	// Already superseded or running.
	return <-p.done
}

// Pending reports whether a continuation is waiting for the barrier.
func (g *UIGate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest != nil
}

func (g *UIGate) drain() {
	for {
		g.mu.Lock()
		p := g.latest
		if p == nil {
			g.draining = false
			g.mu.Unlock()
			return
		}
		gen := g.gen.Load()
		g.mu.Unlock()

		err := g.barrier(p.ctx)

		g.mu.Lock()
		if g.gen.Load() != gen {
			// A newer continuation arrived while waiting.
			g.mu.Unlock()
			continue
		}
		ref := g.referrer
		g.latest = nil
		g.referrer = nil
		g.mu.Unlock()

		if err != nil {
			p.done <- err
			continue
		}
		p.done <- g.queue.Enqueue(p.ctx, func(ctx context.Context) error {
			err := p.fn(ctx, ref)
			g.settle(ref, errors.Is(err, domain.ErrSuperseded))
			return err
		})
	}
}

// settle hands ref over to the next continuation when the one that ran
// gave up, and forgets it otherwise.
func (g *UIGate) settle(ref *State, superseded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case !superseded:
		g.carried = nil
	case g.latest != nil:
		g.referrer = ref
	default:
		g.carried = ref
	}
}
