package domain

import (
	"context"
	"time"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	StateID   string    `json:"state_id"`
	Href      string    `json:"href"`
}

// StageEvent describes one stage firing for one navigation state.
type StageEvent struct {
	EventBase
	Stage     Stage         `json:"stage"`
	Listeners int           `json:"listeners,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// ErrorEvent describes a failed run or a failed listener.
type ErrorEvent struct {
	EventBase
	Stage   Stage `json:"stage"`
	Err     error `json:"-"`
	Handled bool  `json:"handled,omitempty"`
}

// MergeEvent summarizes one document merge.
type MergeEvent struct {
	EventBase
	Inserted    int           `json:"inserted"`
	Substituted int           `json:"substituted"`
	Deleted     int           `json:"deleted"`
	Deferred    int           `json:"deferred"`
	Preloaded   int           `json:"preloaded"`
	Scripts     int           `json:"scripts"`
	Duration    time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStageEnter    func(context.Context, *StageEvent)
	OnStageLeave    func(context.Context, *StageEvent)
	OnListenerError func(context.Context, *ErrorEvent)
	OnRunError      func(context.Context, *ErrorEvent)
	OnMerge         func(context.Context, *MergeEvent)
}
