package runtime

import (
	"log/slog"

	"github.com/aretw0/pageflow/internal/merge"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/ports"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRouter sets the router producing documents for new locations.
func WithRouter(r Router) EngineOption {
	return func(e *Engine) {
		e.router = r
	}
}

// WithWaiter sets the readiness barriers.
func WithWaiter(w ports.Waiter) EngineOption {
	return func(e *Engine) {
		if w != nil {
			e.waiter = w
		}
	}
}

// WithResourceLoader sets the loader used to materialize merged resources.
func WithResourceLoader(l ports.ResourceLoader) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.loader = l
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDocumentReferrer sets the href the live document was reached from.
// It builds the referrer of the first run.
func WithDocumentReferrer(href string) EngineOption {
	return func(e *Engine) {
		e.documentReferrer = href
	}
}

// WithMergeOptions passes options to the document merger.
func WithMergeOptions(opts ...merge.Option) EngineOption {
	return func(e *Engine) {
		e.mergeOpts = append(e.mergeOpts, opts...)
	}
}

// Vary forces stages to run even when the live document satisfies them.
type Vary uint8

const (
	VaryNone Vary = iota
	// VaryHash re-runs HASH.
	VaryHash
	// VaryPatch re-runs PATCH and HASH.
	VaryPatch
	// VaryBuild re-runs BUILD, PATCH and HASH.
	VaryBuild
)

// VaryAll is the strongest variation.
const VaryAll = VaryBuild

// ParseVary parses "build", "patch", "hash", "true" (same as build) or the
// empty string.
func ParseVary(s string) (Vary, error) {
	switch s {
	case "":
		return VaryNone, nil
	case "hash":
		return VaryHash, nil
	case "patch":
		return VaryPatch, nil
	case "build", "true":
		return VaryBuild, nil
	}
	return VaryNone, &VaryError{Value: s}
}

func (v Vary) String() string {
	switch v {
	case VaryHash:
		return "hash"
	case VaryPatch:
		return "patch"
	case VaryBuild:
		return "build"
	}
	return ""
}

// RunOption configures one run.
type RunOption func(*runConfig)

type runConfig struct {
	vary Vary
}

// WithVary forces stages the live document would otherwise satisfy.
func WithVary(v Vary) RunOption {
	return func(c *runConfig) {
		c.vary = v
	}
}
