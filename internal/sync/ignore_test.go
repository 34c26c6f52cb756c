package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnoreList(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		il := NewIgnoreList(t.TempDir())

		assert.True(t, il.ShouldIgnore(".DS_Store"))
		assert.True(t, il.ShouldIgnore("sub/Thumbs.db"))
		assert.True(t, il.ShouldIgnore("notes.tmp"))
		assert.True(t, il.ShouldIgnore(".mirrord/mirrord.lock"))
		assert.True(t, il.ShouldIgnore("doc.pdf"+tempFileMark+".12345"))
		assert.True(t, il.ShouldIgnore(IgnoreFileName))

		assert.False(t, il.ShouldIgnore("doc.pdf"))
		assert.False(t, il.ShouldIgnore("sub/dir/file.txt"))
	})

	t.Run("mirrorignore file", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, IgnoreFileName, "*.log\nbuild/\n")

		il := NewIgnoreList(dir)
		assert.True(t, il.ShouldIgnore("debug.log"))
		assert.True(t, il.ShouldIgnore("build/out.bin"))
		assert.False(t, il.ShouldIgnore("main.go"))
	})

	t.Run("nil list ignores nothing", func(t *testing.T) {
		var il *IgnoreList
		assert.False(t, il.ShouldIgnore(".DS_Store"))
	})
}
