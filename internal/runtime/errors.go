package runtime

import (
	"fmt"

	"github.com/aretw0/pageflow/pkg/domain"
)

// RunError is returned when a run failed and no ERROR listener cleared
// the failure.
type RunError struct {
	Stage domain.Stage
	Href  string
	Cause error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("navigation to %s failed during %s: %v", e.Href, e.Stage, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// VaryError reports an unknown vary value.
type VaryError struct {
	Value string
}

func (e *VaryError) Error() string {
	return fmt.Sprintf("unknown vary %q (want build, patch, hash or true)", e.Value)
}
