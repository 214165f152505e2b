package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/pageflow/internal/adapters/file"
	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.HistoryStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunHistoryStoreContract(t, file.New(t.TempDir(), "contract"))
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := file.New(dir, "tab")
	require.NoError(t, first.Push(ctx, domain.Entry{Href: "/a", Stage: domain.StageSetup}))
	require.NoError(t, first.Push(ctx, domain.Entry{Href: "/b", Stage: domain.StageHash}))

	second := file.New(dir, "tab")
	cur, err := second.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/b", cur.Href)

	entries, err := second.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	matches, err := filepath.Glob(filepath.Join(dir, "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files must not be left behind")

	require.NoError(t, second.Clear(ctx))
	_, err = second.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrNoEntry)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))

	_, err := file.New(dir, "bad").Current(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoEntry)
}
