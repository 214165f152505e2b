package domain

import "fmt"

// Stage names one phase of the navigation lifecycle.
type Stage string

const (
	StageInit  Stage = "init"  // Location known, document ready
	StageReady Stage = "ready" // Document routed and merged
	StageBuild Stage = "build" // Content for a new pathname
	StagePatch Stage = "patch" // Content for a new query
	StageSetup Stage = "setup" // UI wiring once the document is visible
	StageHash  Stage = "hash"  // Fragment handling
	StageError Stage = "error" // Reachable from any stage
	StageClose Stage = "close" // Fired on the outgoing state
)

// order lists the stages a single run advances through.
var order = []Stage{StageInit, StageReady, StageBuild, StagePatch, StageSetup, StageHash}

// Stages returns every stage, ordered ones first.
func Stages() []Stage {
	all := make([]Stage, 0, len(order)+2)
	all = append(all, order...)
	return append(all, StageError, StageClose)
}

// Index returns the position of the stage in the run sequence,
// or -1 for stages outside of it (error, close, empty).
func (s Stage) Index() int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.Index() >= 0 || s == StageError || s == StageClose
}

// Before reports whether s comes strictly before other in the run sequence.
func (s Stage) Before(other Stage) bool {
	i, j := s.Index(), other.Index()
	return i >= 0 && j >= 0 && i < j
}

func (s Stage) String() string {
	return string(s)
}

// ParseStage parses a persisted stage name. The empty string is accepted
// and means "no stage reached".
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if name == "" || s.Valid() {
		return s, nil
	}
	return "", fmt.Errorf("unknown stage %q", name)
}
