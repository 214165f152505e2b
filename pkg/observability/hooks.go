package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/pageflow/pkg/domain"
)

// Combine fans every hook out to each of the given sets, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			for _, s := range sets {
				if s.OnStageEnter != nil {
					s.OnStageEnter(ctx, e)
				}
			}
		},
		OnStageLeave: func(ctx context.Context, e *domain.StageEvent) {
			for _, s := range sets {
				if s.OnStageLeave != nil {
					s.OnStageLeave(ctx, e)
				}
			}
		},
		OnListenerError: func(ctx context.Context, e *domain.ErrorEvent) {
			for _, s := range sets {
				if s.OnListenerError != nil {
					s.OnListenerError(ctx, e)
				}
			}
		},
		OnRunError: func(ctx context.Context, e *domain.ErrorEvent) {
			for _, s := range sets {
				if s.OnRunError != nil {
					s.OnRunError(ctx, e)
				}
			}
		},
		OnMerge: func(ctx context.Context, e *domain.MergeEvent) {
			for _, s := range sets {
				if s.OnMerge != nil {
					s.OnMerge(ctx, e)
				}
			}
		},
	}
}

// LoggingHooks logs every lifecycle event on logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			logger.DebugContext(ctx, "stage_enter", "stage", e.Stage, "href", e.Href, "state_id", e.StateID)
		},
		OnStageLeave: func(ctx context.Context, e *domain.StageEvent) {
			logger.InfoContext(ctx, "stage_leave",
				"stage", e.Stage,
				"href", e.Href,
				"listeners", e.Listeners,
				"duration", e.Duration,
			)
		},
		OnListenerError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.WarnContext(ctx, "listener_error", "stage", e.Stage, "href", e.Href, "err", e.Err)
		},
		OnRunError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.ErrorContext(ctx, "run_error", "stage", e.Stage, "href", e.Href, "handled", e.Handled, "err", e.Err)
		},
		OnMerge: func(ctx context.Context, e *domain.MergeEvent) {
			logger.InfoContext(ctx, "merge",
				"href", e.Href,
				"inserted", e.Inserted,
				"substituted", e.Substituted,
				"deleted", e.Deleted,
				"scripts", e.Scripts,
				"duration", e.Duration,
			)
		},
	}
}
