package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDigest(t *testing.T) {
	t.Run("known value", func(t *testing.T) {
		path := writeTestFile(t, t.TempDir(), "hello.txt", "Hello, World!")

		sum, err := NewDigester().Digest(path)
		require.NoError(t, err)
		// md5 of "Hello, World!"
		assert.Equal(t, "65a8e27d8879283831b664bd8b7f0ad4", sum)
	})

	t.Run("independent of chunk size", func(t *testing.T) {
		path := writeTestFile(t, t.TempDir(), "data.bin", "some content spanning multiple tiny chunks")

		small := newDigesterChunked(7)
		big := newDigesterChunked(1 << 20)

		sumSmall, err := small.Digest(path)
		require.NoError(t, err)
		sumBig, err := big.Digest(path)
		require.NoError(t, err)
		assert.Equal(t, sumSmall, sumBig)
	})

	t.Run("changed content changes digest", func(t *testing.T) {
		dir := t.TempDir()
		path := writeTestFile(t, dir, "f.txt", "AAA")
		d := NewDigester()

		first, err := d.Digest(path)
		require.NoError(t, err)

		// same size, different bytes; bump mtime so the cache cannot be
		// consulted
		require.NoError(t, os.WriteFile(path, []byte("BBB"), 0o644))
		require.NoError(t, os.Chtimes(path, time.Now().Add(time.Hour), time.Now().Add(time.Hour)))

		second, err := d.Digest(path)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("cache keyed by size and mtime", func(t *testing.T) {
		dir := t.TempDir()
		path := writeTestFile(t, dir, "f.txt", "AAA")
		d := NewDigester()

		info, err := os.Stat(path)
		require.NoError(t, err)

		first, err := d.Digest(path)
		require.NoError(t, err)

		// rewrite with identical size and restore the mtime: the cached
		// digest is reused without touching the content
		require.NoError(t, os.WriteFile(path, []byte("BBB"), 0o644))
		require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

		cached, err := d.Digest(path)
		require.NoError(t, err)
		assert.Equal(t, first, cached)

		// the uncached read sees the new bytes
		fresh, err := d.hashFile(path)
		require.NoError(t, err)
		assert.NotEqual(t, first, fresh)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewDigester().Digest(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}
