package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/pkg/domain"
	"go.uber.org/atomic"
)

// ErrorHandler receives isolated listener and deferred-task failures.
type ErrorHandler func(ctx context.Context, stage domain.Stage, err error)

// record is the completion bookkeeping of one stage firing.
type record struct {
	count *atomic.Int32

	mu     sync.Mutex
	finals []Task
	open   bool
}

func newRecord() *record {
	return &record{count: atomic.NewInt32(0), open: true}
}

type firing struct {
	stage  domain.Stage
	record *record
}

type firingKey struct{}

// Chains keeps the per-stage records of one navigation state.
type Chains[T any] struct {
	mu      sync.Mutex
	records map[domain.Stage]*record

	logger  *slog.Logger
	onError ErrorHandler
}

// Option configures Chains.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	onError ErrorHandler
}

// WithLogger sets the logger used to report isolated failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithErrorHandler sets a callback for isolated failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) {
		c.onError = h
	}
}

// New creates empty chains.
func New[T any](opts ...Option) *Chains[T] {
	cfg := config{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Chains[T]{
		records: make(map[domain.Stage]*record),
		logger:  cfg.logger,
		onError: cfg.onError,
	}
}

// Fired reports whether stage has fired at least once.
func (c *Chains[T]) Fired(stage domain.Stage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[stage]
	return ok
}

// Count returns how many listeners ran during the last firing of stage.
func (c *Chains[T]) Count(stage domain.Stage) int {
	c.mu.Lock()
	r, ok := c.records[stage]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	return int(r.count.Load())
}

// Run fires stage: listeners of every emitter run serially in order, then
// the deferred work they registered. It returns the number of listeners
// invoked. Only context cancellation is reported as an error.
func (c *Chains[T]) Run(ctx context.Context, stage domain.Stage, target T, emitters ...*Emitter[T]) (int, error) {
	r := newRecord()
	c.mu.Lock()
	c.records[stage] = r
	c.mu.Unlock()

	fctx := context.WithValue(ctx, firingKey{}, &firing{stage: stage, record: r})

	for _, em := range emitters {
		if em == nil {
			continue
		}
		for _, l := range em.Listeners(stage) {
			if err := ctx.Err(); err != nil {
				r.close()
				return int(r.count.Load()), err
			}
			r.count.Inc()
			c.invoke(fctx, stage, target, l)
		}
	}

	if err := c.drain(fctx, stage, r); err != nil {
		return int(r.count.Load()), err
	}
	return int(r.count.Load()), nil
}

// Replay invokes l right away when stage already fired, together with the
// work it defers. It returns false when stage has not fired yet.
func (c *Chains[T]) Replay(ctx context.Context, stage domain.Stage, target T, l Listener[T]) bool {
	c.mu.Lock()
	last, ok := c.records[stage]
	c.mu.Unlock()
	if !ok {
		return false
	}
	last.count.Inc()

	r := newRecord()
	fctx := context.WithValue(ctx, firingKey{}, &firing{stage: stage, record: r})
	c.invoke(fctx, stage, target, l)
	_ = c.drain(fctx, stage, r)
	return true
}

// Finish defers task until the listeners of the stage firing carried by
// ctx have completed. It fails with domain.ErrNotFiring outside a listener.
func Finish(ctx context.Context, task Task) error {
	f, ok := ctx.Value(firingKey{}).(*firing)
	if !ok || f == nil {
		return domain.ErrNotFiring
	}
	f.record.mu.Lock()
	defer f.record.mu.Unlock()
	if !f.record.open {
		return domain.ErrNotFiring
	}
	f.record.finals = append(f.record.finals, task)
	return nil
}

// FiringStage returns the stage whose listener is running with ctx.
func FiringStage(ctx context.Context) (domain.Stage, bool) {
	f, ok := ctx.Value(firingKey{}).(*firing)
	if !ok || f == nil {
		return "", false
	}
	return f.stage, true
}

// drain runs deferred tasks in registration order, including tasks that
// deferred tasks register themselves.
func (c *Chains[T]) drain(ctx context.Context, stage domain.Stage, r *record) error {
	for {
		r.mu.Lock()
		if len(r.finals) == 0 {
			r.open = false
			r.mu.Unlock()
			return nil
		}
		task := r.finals[0]
		r.finals = r.finals[1:]
		r.mu.Unlock()

		if err := ctx.Err(); err != nil {
			r.close()
			return err
		}
		c.report(ctx, stage, c.safely(func() error { return task(ctx) }))
	}
}

func (c *Chains[T]) invoke(ctx context.Context, stage domain.Stage, target T, l Listener[T]) {
	c.report(ctx, stage, c.safely(func() error { return l.Handle(ctx, target) }))
}

func (c *Chains[T]) safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	return fn()
}

func (c *Chains[T]) report(ctx context.Context, stage domain.Stage, err error) {
	if err == nil {
		return
	}
	c.logger.Error("stage listener failed", "stage", stage, "err", err)
	if c.onError != nil {
		c.onError(ctx, stage, err)
	}
}

func (r *record) close() {
	r.mu.Lock()
	r.open = false
	r.finals = nil
	r.mu.Unlock()
}
