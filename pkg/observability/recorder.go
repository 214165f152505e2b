package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/pageflow/pkg/domain"
)

// EventKind names the kind of a recorded event.
type EventKind string

const (
	KindStage         EventKind = "stage"
	KindMerge         EventKind = "merge"
	KindListenerError EventKind = "listener_error"
	KindRunError      EventKind = "run_error"
)

// Event is one entry of a recorded trace.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	StateID   string        `json:"state_id"`
	Href      string        `json:"href"`
	Stage     domain.Stage  `json:"stage,omitempty"`
	Listeners int           `json:"listeners,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}

// Recorder keeps the events of an engine in arrival order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Hooks records stage completions, merges and failures.
func (r *Recorder) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageLeave: func(_ context.Context, e *domain.StageEvent) {
			r.add(Event{
				Kind:      KindStage,
				Timestamp: e.Timestamp,
				StateID:   e.StateID,
				Href:      e.Href,
				Stage:     e.Stage,
				Listeners: e.Listeners,
				Duration:  e.Duration,
			})
		},
		OnMerge: func(_ context.Context, e *domain.MergeEvent) {
			r.add(Event{
				Kind:      KindMerge,
				Timestamp: e.Timestamp,
				StateID:   e.StateID,
				Href:      e.Href,
				Duration:  e.Duration,
				Detail:    mergeDetail(e),
			})
		},
		OnListenerError: func(_ context.Context, e *domain.ErrorEvent) {
			r.add(errorEvent(KindListenerError, e))
		},
		OnRunError: func(_ context.Context, e *domain.ErrorEvent) {
			r.add(errorEvent(KindRunError, e))
		},
	}
}

func errorEvent(kind EventKind, e *domain.ErrorEvent) Event {
	ev := Event{
		Kind:      kind,
		Timestamp: e.Timestamp,
		StateID:   e.StateID,
		Href:      e.Href,
		Stage:     e.Stage,
	}
	if e.Err != nil {
		ev.Detail = e.Err.Error()
	}
	return ev
}

func mergeDetail(e *domain.MergeEvent) string {
	return fmt.Sprintf("+%d ~%d -%d scripts %d", e.Inserted, e.Substituted, e.Deleted, e.Scripts)
}
