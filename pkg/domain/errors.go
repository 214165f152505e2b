package domain

import "errors"

// ErrSuperseded is returned by a run whose UI phase was replaced by a more
// recent run before the UI barrier opened.
var ErrSuperseded = errors.New("navigation superseded")

// ErrNotFiring is returned when deferred work is registered outside of an
// active stage listener.
var ErrNotFiring = errors.New("no stage is firing")

// ErrNoEntry is returned by a history store that holds no entry yet.
var ErrNoEntry = errors.New("history entry not found")

// ErrCrossOrigin is reported when a navigation leaves the current origin.
var ErrCrossOrigin = errors.New("cross-origin navigation")

// ErrUnusableDocument is returned when a routed response cannot be used as a document.
var ErrUnusableDocument = errors.New("unusable document")

// ErrNoState is returned when a stage registration arrives before any navigation state exists.
var ErrNoState = errors.New("no navigation state")

// ErrNoDocument is returned when the engine has no live document to work on.
var ErrNoDocument = errors.New("no live document")
