// Package local_test tests the file-backed link cache.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: tempDir})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, local.DefaultFileName), store.Path())
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("FileNameWithSeparator", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: t.TempDir(), FileName: "../escape.json"})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: path})
		assert.Error(t, err)
	})
}

func TestLinkCacheStore(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir, FileName: "cache.json"})
	require.NoError(t, err)

	t.Run("MissingFileIsEmpty", func(t *testing.T) {
		cache, err := store.ReadLinkCache(ctx)
		require.NoError(t, err)
		assert.Empty(t, cache)
	})

	t.Run("WriteReplacesOnlyGivenLabels", func(t *testing.T) {
		require.NoError(t, store.WriteLinkCache(ctx, map[string][]string{"L1": {"a"}, "L2": {"b"}}))
		require.NoError(t, store.WriteLinkCache(ctx, map[string][]string{"L1": {"c"}}))

		cache, err := store.ReadLinkCache(ctx)
		require.NoError(t, err)
		assert.Equal(t, alert.LinkCache{"L1": {"c"}, "L2": {"b"}}, cache)
	})

	t.Run("SurvivesReopen", func(t *testing.T) {
		reopened, err := local.New(local.Config{BaseDir: tempDir, FileName: "cache.json"})
		require.NoError(t, err)
		cache, err := reopened.ReadLinkCache(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, cache["L1"])
	})

	t.Run("NoTempFilesLeft", func(t *testing.T) {
		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "cache.json", entries[0].Name())
	})

	t.Run("CorruptDocument", func(t *testing.T) {
		require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))
		_, err := store.ReadLinkCache(ctx)
		assert.Error(t, err)
	})
}
