package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/pageflow/internal/adapters/redis"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	ports.RunHistoryStoreContract(t, store)
}

func TestRedisStore_PushDropsForwardEntries(t *testing.T) {
	store, mr := newStore(t, redis.WithName("tab-1"))
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, domain.Entry{Href: "/a"}))
	require.NoError(t, store.Push(ctx, domain.Entry{Href: "/b"}))
	// Simulate a back move by rewinding the cursor.
	require.NoError(t, mr.Set("pageflow:history:tab-1:index", "0"))
	require.NoError(t, store.Push(ctx, domain.Entry{Href: "/c"}))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/a", entries[0].Href)
	assert.Equal(t, "/c", entries[1].Href)
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newStore(t, redis.WithTTL(time.Minute), redis.WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, domain.Entry{Href: "/a"}))
	assert.Equal(t, time.Minute, mr.TTL("test:default:entries"))
	assert.Equal(t, time.Minute, mr.TTL("test:default:index"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrNoEntry)
}
