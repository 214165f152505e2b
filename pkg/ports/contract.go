package ports

import (
	"context"
	"testing"

	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunHistoryStoreContract runs a suite of tests to verify that a HistoryStore
// implementation adheres to the defined interface contract.
// The store must be empty when passed in.
func RunHistoryStoreContract(t *testing.T, store HistoryStore) {
	ctx := context.Background()

	t.Run("Current On Empty Store", func(t *testing.T) {
		_, err := store.Current(ctx)
		assert.ErrorIs(t, err, domain.ErrNoEntry)
	})

	t.Run("Replace On Empty Store Pushes", func(t *testing.T) {
		err := store.Replace(ctx, domain.Entry{Href: "/a", Stage: domain.StageSetup})
		require.NoError(t, err)

		cur, err := store.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/a", cur.Href)
		assert.Equal(t, domain.StageSetup, cur.Stage)
	})

	t.Run("Push Then Current", func(t *testing.T) {
		err := store.Push(ctx, domain.Entry{Href: "/b", Data: map[string]any{"tab": "news"}, Stage: domain.StageHash})
		require.NoError(t, err)

		cur, err := store.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/b", cur.Href)
		assert.Equal(t, domain.StageHash, cur.Stage)
		// Persisted data may come back as generic JSON values.
		data, ok := cur.Data.(map[string]any)
		require.True(t, ok, "data should round-trip as an object, got %T", cur.Data)
		assert.Equal(t, "news", data["tab"])
	})

	t.Run("Replace Overwrites Current", func(t *testing.T) {
		err := store.Replace(ctx, domain.Entry{Href: "/b#top", Stage: domain.StageClose})
		require.NoError(t, err)

		cur, err := store.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/b#top", cur.Href)
		assert.Equal(t, domain.StageClose, cur.Stage)
	})
}
