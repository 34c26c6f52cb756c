package sync

import (
	"time"
)

// EntryKind discriminates inventory entries.
type EntryKind string

const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "dir"
)

// PathEntry is one normalized entry of a tree inventory. Path is always
// relative to the scanned root, POSIX-style, with no leading slash and no
// `.`/`..` components.
type PathEntry struct {
	Path    string
	Kind    EntryKind
	Size    int64
	ModTime time.Time
}

func (e *PathEntry) IsDir() bool {
	return e.Kind == KindDir
}

// Inventory is a snapshot of a directory tree keyed by normalized relative
// path. It is built fresh each pass and never mutated afterwards.
type Inventory map[string]*PathEntry
