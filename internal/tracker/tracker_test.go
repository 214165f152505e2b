package tracker_test

import (
	"context"
	"testing"

	"github.com/aretw0/pageflow/internal/tracker"
	"github.com/stretchr/testify/assert"
)

type widget struct {
	target *tracker.Target
	seen   []string
}

func (w *widget) Bindings() []tracker.Binding {
	return []tracker.Binding{
		{Target: w.target, Event: "click", Handler: func(ctx context.Context, ev tracker.Event) {
			w.seen = append(w.seen, "click")
		}},
		{Target: w.target, Event: "click", Capture: true, Handler: func(ctx context.Context, ev tracker.Event) {
			w.seen = append(w.seen, "capture-click")
		}},
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	target := tracker.NewTarget()
	w := &widget{target: target}
	tr := tracker.New()
	ctx := context.Background()

	tr.Connect(w)
	tr.Connect(w)
	assert.Equal(t, 1, tr.Len())
	assert.Zero(t, target.Count("click"), "bindings wait for start")

	tr.Start()
	assert.True(t, tr.Started())
	assert.Equal(t, 2, target.Dispatch(ctx, tracker.Event{Type: "click"}))
	assert.Equal(t, []string{"capture-click", "click"}, w.seen)

	tr.Stop()
	assert.False(t, tr.Started())
	assert.Zero(t, target.Count("click"))
	assert.Zero(t, tr.Len())
}

func TestTracker_ConnectWhileStarted(t *testing.T) {
	target := tracker.NewTarget()
	tr := tracker.New()
	tr.Start()

	w := &widget{target: target}
	tr.Connect(w)
	assert.Equal(t, 2, target.Count("click"))

	tr.Disconnect(w)
	assert.Zero(t, target.Count("click"))
	assert.Zero(t, tr.Len())
}

func TestTracker_Absorb(t *testing.T) {
	target := tracker.NewTarget()
	w := &widget{target: target}

	pre := tracker.New()
	pre.Connect(w)

	tr := tracker.New()
	tr.Start()
	tr.Absorb(pre)

	assert.Equal(t, 0, pre.Len())
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 2, target.Count("click"))
}
