package chain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/pageflow/internal/chain"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	log []string
}

type named struct {
	name string
}

func (n *named) Handle(ctx context.Context, p *page) error {
	p.log = append(p.log, n.name)
	return nil
}

func TestEmitter_AddIsIdempotent(t *testing.T) {
	em := chain.NewEmitter[*page]()
	f := chain.ListenerFunc[*page](func(ctx context.Context, p *page) error { return nil })
	fn := &f

	assert.True(t, em.Add(domain.StageSetup, fn))
	assert.False(t, em.Add(domain.StageSetup, fn))
	assert.True(t, em.Add(domain.StageBuild, fn), "identity is scoped per stage")
	assert.Equal(t, 1, em.Len(domain.StageSetup))

	assert.True(t, em.Remove(domain.StageSetup, fn))
	assert.False(t, em.Remove(domain.StageSetup, fn))
	assert.Equal(t, 0, em.Len(domain.StageSetup))
}

func TestEmitter_ClosuresAreDistinct(t *testing.T) {
	em := chain.NewEmitter[*page]()
	for _, name := range []string{"menu", "search", "cart"} {
		assert.True(t, em.Add(domain.StageHash, chain.ListenerFunc[*page](func(ctx context.Context, p *page) error {
			p.log = append(p.log, name)
			return nil
		})))
	}
	require.Equal(t, 3, em.Len(domain.StageHash))

	p := &page{}
	n, err := chain.New[*page]().Run(context.Background(), domain.StageHash, p, em)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"menu", "search", "cart"}, p.log)

	same := chain.ListenerFunc[*page](func(ctx context.Context, p *page) error { return nil })
	assert.False(t, em.Remove(domain.StageHash, same), "function values cannot be looked up")
	assert.Equal(t, 3, em.Len(domain.StageHash))
}

func TestEmitter_PointerListenersAreDistinct(t *testing.T) {
	em := chain.NewEmitter[*page]()
	a, b := &named{"a"}, &named{"b"}

	assert.True(t, em.Add(domain.StageInit, a))
	assert.True(t, em.Add(domain.StageInit, b))
	assert.False(t, em.Add(domain.StageInit, a))
	assert.Equal(t, 2, em.Len(domain.StageInit))
}

func TestChains_RunOrderAndFinish(t *testing.T) {
	em := chain.NewEmitter[*page]()
	globals := chain.NewEmitter[*page]()
	c := chain.New[*page]()
	p := &page{}

	em.Add(domain.StageBuild, chain.ListenerFunc[*page](func(ctx context.Context, p *page) error {
		p.log = append(p.log, "first")
		return chain.Finish(ctx, func(ctx context.Context) error {
			p.log = append(p.log, "first-final")
			return nil
		})
	}))
	em.Add(domain.StageBuild, &named{"second"})
	globals.Add(domain.StageBuild, &named{"global"})

	n, err := c.Run(context.Background(), domain.StageBuild, p, em, globals)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"first", "second", "global", "first-final"}, p.log)
	assert.Equal(t, 3, c.Count(domain.StageBuild))
	assert.True(t, c.Fired(domain.StageBuild))
}

func TestChains_ZeroListeners(t *testing.T) {
	c := chain.New[*page]()
	n, err := c.Run(context.Background(), domain.StagePatch, &page{}, chain.NewEmitter[*page]())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, c.Fired(domain.StagePatch))
}

func TestChains_ListenerFailureIsIsolated(t *testing.T) {
	em := chain.NewEmitter[*page]()
	var reported []error
	c := chain.New[*page](chain.WithErrorHandler(func(ctx context.Context, stage domain.Stage, err error) {
		assert.Equal(t, domain.StageSetup, stage)
		reported = append(reported, err)
	}))
	p := &page{}

	em.Add(domain.StageSetup, chain.ListenerFunc[*page](func(ctx context.Context, p *page) error {
		return errors.New("broken widget")
	}))
	em.Add(domain.StageSetup, chain.ListenerFunc[*page](func(ctx context.Context, p *page) error {
		panic("worse widget")
	}))
	em.Add(domain.StageSetup, &named{"survivor"})

	n, err := c.Run(context.Background(), domain.StageSetup, p, em)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"survivor"}, p.log)
	assert.Len(t, reported, 2)
}

func TestChains_Replay(t *testing.T) {
	c := chain.New[*page]()
	p := &page{}
	late := &named{"late"}

	assert.False(t, c.Replay(context.Background(), domain.StageInit, p, late), "nothing fired yet")
	assert.Empty(t, p.log)

	_, err := c.Run(context.Background(), domain.StageInit, p)
	require.NoError(t, err)

	assert.True(t, c.Replay(context.Background(), domain.StageInit, p, late))
	assert.Equal(t, []string{"late"}, p.log)
}

func TestFinish_OutsideListener(t *testing.T) {
	err := chain.Finish(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFiring)
}

func TestChains_CancelledContext(t *testing.T) {
	em := chain.NewEmitter[*page]()
	em.Add(domain.StageReady, &named{"never"})
	c := chain.New[*page]()
	p := &page{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, domain.StageReady, p, em)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.log)
}
