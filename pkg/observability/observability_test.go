package observability_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/pageflow/internal/logging"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageEvent(stage domain.Stage) *domain.StageEvent {
	return &domain.StageEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), StateID: "s1", Href: "/a"},
		Stage:     stage,
		Listeners: 2,
		Duration:  time.Millisecond,
	}
}

func scrape(t *testing.T, m *observability.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Hooks(t *testing.T) {
	ctx := context.Background()
	m := observability.NewMetrics()
	hooks := m.Hooks()

	hooks.OnStageLeave(ctx, stageEvent(domain.StageInit))
	hooks.OnStageLeave(ctx, stageEvent(domain.StageInit))
	hooks.OnStageLeave(ctx, stageEvent(domain.StageReady))
	hooks.OnListenerError(ctx, &domain.ErrorEvent{Stage: domain.StageBuild, Err: errors.New("boom")})
	hooks.OnRunError(ctx, &domain.ErrorEvent{Stage: domain.StageInit, Err: errors.New("routing"), Handled: true})
	hooks.OnRunError(ctx, &domain.ErrorEvent{Stage: domain.StageInit, Err: context.Canceled})
	hooks.OnMerge(ctx, &domain.MergeEvent{Inserted: 3, Deleted: 1})

	out := scrape(t, m)
	assert.Contains(t, out, `pageflow_stages_total{stage="init"} 2`)
	assert.Contains(t, out, `pageflow_stages_total{stage="ready"} 1`)
	assert.Contains(t, out, `pageflow_listener_errors_total{stage="build"} 1`)
	assert.Contains(t, out, `pageflow_run_errors_total{handled="true",stage="init"} 1`)
	assert.NotContains(t, out, `handled="false"`)
	assert.Contains(t, out, `pageflow_merges_total 1`)
	assert.Contains(t, out, `pageflow_merge_nodes_total{op="inserted"} 3`)
}

func TestCombine_FansOut(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnStageEnter: func(context.Context, *domain.StageEvent) { calls = append(calls, "a") },
	}
	b := domain.LifecycleHooks{
		OnStageEnter: func(context.Context, *domain.StageEvent) { calls = append(calls, "b") },
		OnMerge:      func(context.Context, *domain.MergeEvent) { calls = append(calls, "b-merge") },
	}

	hooks := observability.Combine(a, b)
	hooks.OnStageEnter(context.Background(), stageEvent(domain.StageInit))
	hooks.OnMerge(context.Background(), &domain.MergeEvent{})
	hooks.OnRunError(context.Background(), &domain.ErrorEvent{})

	assert.Equal(t, []string{"a", "b", "b-merge"}, calls)
}

func TestRecorder_KeepsOrder(t *testing.T) {
	ctx := context.Background()
	r := observability.NewRecorder()
	hooks := r.Hooks()

	hooks.OnStageLeave(ctx, stageEvent(domain.StageInit))
	hooks.OnMerge(ctx, &domain.MergeEvent{Inserted: 1, Scripts: 2})
	hooks.OnRunError(ctx, &domain.ErrorEvent{Stage: domain.StageBuild, Err: errors.New("boom")})

	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, observability.KindStage, events[0].Kind)
	assert.Equal(t, domain.StageInit, events[0].Stage)
	assert.Equal(t, "+1 ~0 -0 scripts 2", events[1].Detail)
	assert.Equal(t, observability.KindRunError, events[2].Kind)
	assert.Equal(t, "boom", events[2].Detail)

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := observability.LoggingHooks(logging.NewWithWriter(&buf, slog.LevelDebug))

	hooks.OnStageLeave(context.Background(), stageEvent(domain.StageSetup))
	hooks.OnListenerError(context.Background(), &domain.ErrorEvent{Stage: domain.StageSetup, Err: errors.New("boom")})

	assert.Contains(t, buf.String(), "stage_leave")
	assert.Contains(t, buf.String(), "stage=setup")
	assert.Contains(t, buf.String(), "err=boom")
}

func TestMetrics_WriteText(t *testing.T) {
	m := observability.NewMetrics()
	m.Hooks().OnStageLeave(context.Background(), stageEvent(domain.StageHash))

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), `pageflow_stages_total{stage="hash"} 1`)
}
