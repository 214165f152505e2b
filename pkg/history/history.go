// Package history connects the navigation engine to a browser-history-like
// store: pushes and replaces run the engine and persist the outcome, popped
// entries are replayed, and failed navigations fall back to a full load.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/internal/runtime"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/aretw0/pageflow/pkg/ports"
)

// DefaultFallbackDelay is the pause before a failed navigation is handed
// to the Navigator.
const DefaultFallbackDelay = 300 * time.Millisecond

// Runner runs navigation states.
type Runner interface {
	Run(ctx context.Context, st *runtime.State, opts ...runtime.RunOption) (*runtime.State, error)
	Current() *runtime.State
	Latest() *runtime.State
}

// Adapter persists engine outcomes into a HistoryStore.
type Adapter struct {
	runner Runner
	store  ports.HistoryStore
	nav    ports.Navigator
	logger *slog.Logger
	delay  time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithFallbackDelay sets the pause before falling back to a full navigation.
func WithFallbackDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.delay = d
	}
}

// New creates an adapter.
func New(runner Runner, store ports.HistoryStore, nav ports.Navigator, opts ...Option) *Adapter {
	a := &Adapter{
		runner: runner,
		store:  store,
		nav:    nav,
		logger: logging.NewNop(),
		delay:  DefaultFallbackDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Push navigates to href and appends the result to history.
// A cross-origin href is handed to the Navigator and reported with
// domain.ErrCrossOrigin.
func (a *Adapter) Push(ctx context.Context, href string, data any, opts ...runtime.RunOption) (*runtime.State, error) {
	a.stamp(ctx)
	return a.navigate(ctx, href, data, a.store.Push, opts)
}

// Replace navigates to href and overwrites the current history entry.
// The entry is stamped first so that it keeps its last stage when the
// navigation fails or is superseded.
func (a *Adapter) Replace(ctx context.Context, href string, data any, opts ...runtime.RunOption) (*runtime.State, error) {
	a.stamp(ctx)
	return a.navigate(ctx, href, data, a.store.Replace, opts)
}

// Save persists the current state without running it. It is a no-op
// before the first run.
func (a *Adapter) Save(ctx context.Context) error {
	st := a.runner.Current()
	if st == nil {
		st = a.runner.Latest()
	}
	if st == nil {
		return domain.ErrNoState
	}
	if err := a.store.Replace(ctx, st.Entry()); err != nil {
		return fmt.Errorf("save history entry: %w", err)
	}
	return nil
}

// SaveIfEmpty saves the current state when the store holds no entry yet.
func (a *Adapter) SaveIfEmpty(ctx context.Context) error {
	_, err := a.store.Current(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNoEntry) {
		return fmt.Errorf("read history entry: %w", err)
	}
	return a.Save(ctx)
}

// HandlePop replays an entry restored by a back/forward move.
// On failure the restored href is loaded through Navigator.Replace.
//
// The entry's stage is not seeded into the referrer. The referrer is the
// latest live state, whose own stage decides what is staged, or on a
// first run the stand-in the engine derives. A stand-in claiming the
// entry's stage would skip SETUP and leave the tracker stopped although
// this engine never ran the page logic.
func (a *Adapter) HandlePop(ctx context.Context, entry domain.Entry) (*runtime.State, error) {
	ref := a.runner.Latest()
	var base *domain.Location
	if ref != nil {
		base = &ref.Location
	}
	loc, err := location.Parse(entry.Href, base)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("restoring history entry", "href", entry.Href, "stage", entry.Stage)

	st := runtime.NewState(loc, entry.Data)
	st.Referrer = ref
	if _, err := a.runner.Run(ctx, st); err != nil {
		if !errors.Is(err, domain.ErrSuperseded) {
			a.fallback(ctx, a.nav.Replace, st.Href(), err)
		}
		return st, err
	}
	if err := a.store.Replace(ctx, st.Entry()); err != nil {
		return st, fmt.Errorf("update history entry: %w", err)
	}
	return st, nil
}

// Listen replays popped entries until ctx ends or pops is closed.
func (a *Adapter) Listen(ctx context.Context, pops <-chan domain.Entry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-pops:
			if !ok {
				return nil
			}
			if _, err := a.HandlePop(ctx, entry); err != nil && !errors.Is(err, domain.ErrSuperseded) {
				a.logger.Warn("popstate navigation failed", "href", entry.Href, "error", err)
			}
		}
	}
}

type persistFunc func(context.Context, domain.Entry) error

type leaveFunc func(context.Context, string) error

func (a *Adapter) navigate(ctx context.Context, href string, data any, persist persistFunc, opts []runtime.RunOption) (*runtime.State, error) {
	ref := a.runner.Latest()
	var base *domain.Location
	if ref != nil {
		base = &ref.Location
	}
	loc, err := location.Parse(href, base)
	if err != nil {
		return nil, err
	}
	target := location.Format(loc)

	if ref != nil && !location.SameOrigin(loc, ref.Location) {
		a.logger.Info("leaving origin", "href", target)
		if err := a.nav.Assign(ctx, target); err != nil {
			return nil, fmt.Errorf("assign %s: %w", target, err)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrCrossOrigin, target)
	}

	st := runtime.NewState(loc, data)
	st.Referrer = ref
	if _, err := a.runner.Run(ctx, st, opts...); err != nil {
		if !errors.Is(err, domain.ErrSuperseded) {
			a.fallback(ctx, a.nav.Assign, target, err)
		}
		return st, err
	}
	if err := persist(ctx, st.Entry()); err != nil {
		return st, fmt.Errorf("persist history entry: %w", err)
	}
	return st, nil
}

// stamp records the stage reached by the current state on its entry.
func (a *Adapter) stamp(ctx context.Context) {
	cur := a.runner.Current()
	if cur == nil {
		return
	}
	entry, err := a.store.Current(ctx)
	if err != nil || entry.Href != cur.Href() {
		return
	}
	entry.Stage = cur.Stage()
	if err := a.store.Replace(ctx, entry); err != nil {
		a.logger.Warn("cannot stamp history entry", "href", entry.Href, "error", err)
	}
}

// fallback hands href to leave after the fallback delay.
func (a *Adapter) fallback(ctx context.Context, leave leaveFunc, href string, cause error) {
	a.logger.Warn("navigation failed, falling back to a full load", "href", href, "error", cause)
	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}
	if err := leave(context.WithoutCancel(ctx), href); err != nil {
		a.logger.Error("fallback navigation failed", "href", href, "error", err)
	}
}
