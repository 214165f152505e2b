package runtime

import (
	"context"
	"sync"

	"github.com/aretw0/pageflow/internal/chain"
	"github.com/aretw0/pageflow/internal/tracker"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/location"
	"github.com/google/uuid"
)

// Listener reacts to a stage of a navigation state.
type Listener = chain.Listener[*State]

// ListenerFunc adapts a function to a Listener.
type ListenerFunc = chain.ListenerFunc[*State]

// State is one navigation attempt: a location plus the lifecycle bookkeeping
// of the page logic attached to it.
type State struct {
	domain.Location

	ID       string
	Referrer *State
	Data     any

	mu      sync.Mutex
	stage   domain.Stage
	err     error
	chains  *chain.Chains[*State]
	emitter *chain.Emitter[*State]
	tracker *tracker.Tracker
}

// NewState creates a state for loc carrying data.
func NewState(loc domain.Location, data any) *State {
	return &State{
		Location: loc.Clone(),
		ID:       uuid.NewString(),
		Data:     data,
	}
}

// Href returns the formatted location.
func (s *State) Href() string {
	return location.Format(s.Location)
}

// Entry returns the history entry describing s.
func (s *State) Entry() domain.Entry {
	return domain.Entry{Href: s.Href(), Data: s.Data, Stage: s.Stage()}
}

// Stage returns the last stage fired for s.
func (s *State) Stage() domain.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *State) setStage(stage domain.Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// Err returns the error raised by the current run, if any.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetErr records err as the failure of the current run.
func (s *State) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// ClearError swallows the failure of the current run. ERROR listeners call
// it once they have handled the error.
func (s *State) ClearError() {
	s.SetErr(nil)
}

// Owned reports whether a document phase adopted s. A same-path successor
// inherits the page logic of an owned referrer, including one superseded
// before SETUP.
func (s *State) Owned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chains != nil
}

// Chain registers l for stage. When stage already fired for s, l runs
// right away with s, exactly once, together with the work it defers.
// Registering the same listener twice is a no-op.
func (s *State) Chain(ctx context.Context, stage domain.Stage, l Listener) {
	s.mu.Lock()
	if s.emitter == nil {
		s.emitter = chain.NewEmitter[*State]()
	}
	em, chains := s.emitter, s.chains
	s.mu.Unlock()

	if !em.Add(stage, l) || chains == nil {
		return
	}
	chains.Replay(ctx, stage, s, l)
}

// Replay runs l right away, with the work it defers, when stage already
// fired for s. Nothing is registered. It reports whether l ran.
func (s *State) Replay(ctx context.Context, stage domain.Stage, l Listener) bool {
	s.mu.Lock()
	chains := s.chains
	s.mu.Unlock()
	return chains != nil && chains.Replay(ctx, stage, s, l)
}

// Unchain removes a registration made with Chain. Removing an unknown
// listener is a no-op.
func (s *State) Unchain(stage domain.Stage, l Listener) {
	s.mu.Lock()
	em := s.emitter
	s.mu.Unlock()
	if em != nil {
		em.Remove(stage, l)
	}
}

// Listeners returns how many listeners are registered for stage.
func (s *State) Listeners(stage domain.Stage) int {
	s.mu.Lock()
	em := s.emitter
	s.mu.Unlock()
	if em == nil {
		return 0
	}
	return em.Len(stage)
}

// Finish defers task until every listener of the stage firing carried by
// ctx has completed. It fails with domain.ErrNotFiring outside a listener.
func (s *State) Finish(ctx context.Context, task chain.Task) error {
	return chain.Finish(ctx, task)
}

// Fired reports whether stage fired for s.
func (s *State) Fired(stage domain.Stage) bool {
	s.mu.Lock()
	chains := s.chains
	s.mu.Unlock()
	return chains != nil && chains.Fired(stage)
}

// Count returns how many listeners ran during the last firing of stage.
func (s *State) Count(stage domain.Stage) int {
	s.mu.Lock()
	chains := s.chains
	s.mu.Unlock()
	if chains == nil {
		return 0
	}
	return chains.Count(stage)
}

// Connect attaches the bindings of c for the setup..close lifetime of s.
func (s *State) Connect(c tracker.Component) {
	s.tracking().Connect(c)
}

// Disconnect removes the bindings of c.
func (s *State) Disconnect(c tracker.Component) {
	s.tracking().Disconnect(c)
}

func (s *State) tracking() *tracker.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		s.tracker = tracker.New()
	}
	return s.tracker
}

// adopt gives s its own chains, emitter and tracker, keeping whatever was
// registered before the run started.
func (s *State) adopt(chains *chain.Chains[*State]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chains == nil {
		s.chains = chains
	}
	if s.emitter == nil {
		s.emitter = chain.NewEmitter[*State]()
	}
	if s.tracker == nil {
		s.tracker = tracker.New()
	}
}

// inherit makes s continue the page logic of ref: same chains, emitter and
// tracker. Registrations made on s beforehand move over to ref's emitter.
func (s *State) inherit(ref *State) {
	ref.mu.Lock()
	chains, em, tr := ref.chains, ref.emitter, ref.tracker
	ref.mu.Unlock()

	s.mu.Lock()
	ownEm, ownTr := s.emitter, s.tracker
	s.chains, s.emitter, s.tracker = chains, em, tr
	s.mu.Unlock()

	em.Absorb(ownEm)
	tr.Absorb(ownTr)
}

// parts returns the chains, emitter and tracker of s.
func (s *State) parts() (*chain.Chains[*State], *chain.Emitter[*State], *tracker.Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chains, s.emitter, s.tracker
}
