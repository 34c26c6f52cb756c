package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	t.Run("inventories files and dirs", func(t *testing.T) {
		root := t.TempDir()
		writeTestFile(t, root, "top.txt", "hello")
		writeTestFile(t, root, "a/b/nested.txt", "world!")
		require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

		result, err := NewScanner(nil).Scan(root)
		require.NoError(t, err)
		require.Empty(t, result.Failures)

		assert.Len(t, result.Entries, 5)

		top := result.Entries["top.txt"]
		require.NotNil(t, top)
		assert.Equal(t, KindFile, top.Kind)
		assert.EqualValues(t, 5, top.Size)
		assert.False(t, top.ModTime.IsZero())

		nested := result.Entries["a/b/nested.txt"]
		require.NotNil(t, nested)
		assert.Equal(t, KindFile, nested.Kind)
		assert.EqualValues(t, 6, nested.Size)

		for _, dir := range []string{"a", "a/b", "empty"} {
			entry := result.Entries[dir]
			require.NotNil(t, entry, dir)
			assert.Equal(t, KindDir, entry.Kind, dir)
		}
	})

	t.Run("paths are normalized", func(t *testing.T) {
		root := t.TempDir()
		writeTestFile(t, root, "a/b/c.txt", "x")

		result, err := NewScanner(nil).Scan(root)
		require.NoError(t, err)
		for rel := range result.Entries {
			assert.NotContains(t, rel, "\\")
			assert.False(t, filepath.IsAbs(rel))
		}
	})

	t.Run("skips symlinks", func(t *testing.T) {
		root := t.TempDir()
		target := writeTestFile(t, root, "real.txt", "content")
		require.NoError(t, os.Symlink(target, filepath.Join(root, "link.txt")))
		require.NoError(t, os.Symlink(root, filepath.Join(root, "loop")))

		result, err := NewScanner(nil).Scan(root)
		require.NoError(t, err)

		assert.Contains(t, result.Entries, "real.txt")
		assert.NotContains(t, result.Entries, "link.txt")
		assert.NotContains(t, result.Entries, "loop")
	})

	t.Run("applies ignore rules", func(t *testing.T) {
		root := t.TempDir()
		writeTestFile(t, root, "kept.txt", "x")
		writeTestFile(t, root, "dropped.tmp", "x")
		writeTestFile(t, root, ".DS_Store", "x")

		result, err := NewScanner(NewIgnoreList(root)).Scan(root)
		require.NoError(t, err)

		assert.Contains(t, result.Entries, "kept.txt")
		assert.NotContains(t, result.Entries, "dropped.tmp")
		assert.NotContains(t, result.Entries, ".DS_Store")
	})

	t.Run("missing root fails", func(t *testing.T) {
		_, err := NewScanner(nil).Scan(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("file root fails", func(t *testing.T) {
		root := t.TempDir()
		path := writeTestFile(t, root, "f.txt", "x")
		_, err := NewScanner(nil).Scan(path)
		assert.Error(t, err)
	})

	t.Run("deep tree", func(t *testing.T) {
		root := t.TempDir()
		deep := root
		for range 64 {
			deep = filepath.Join(deep, "d")
		}
		require.NoError(t, os.MkdirAll(deep, 0o755))
		writeTestFile(t, deep, "leaf.txt", "x")

		result, err := NewScanner(nil).Scan(root)
		require.NoError(t, err)
		assert.Len(t, result.Entries, 65)
	})
}

func TestPathDepth(t *testing.T) {
	assert.Equal(t, 0, pathDepth(""))
	assert.Equal(t, 1, pathDepth("a"))
	assert.Equal(t, 2, pathDepth("a/b"))
	assert.Equal(t, 3, pathDepth("a/b/c.txt"))
}

func TestParentOf(t *testing.T) {
	assert.Equal(t, "", parentOf("a"))
	assert.Equal(t, "a", parentOf("a/b"))
	assert.Equal(t, "a/b", parentOf("a/b/c.txt"))
}
