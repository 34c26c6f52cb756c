package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ScanResult is the inventory of one root plus the sub-paths that could not
// be read. A failed sub-path is excluded from the inventory and surfaces as
// a Failure; only an unreadable root aborts the scan.
type ScanResult struct {
	Root     string
	Entries  Inventory
	Failures []Failure
}

// Scanner enumerates a directory tree into an Inventory. Traversal is
// iterative over an explicit stack, so arbitrarily deep trees cannot
// exhaust the goroutine stack. Symbolic links are always skipped with a
// warning; the same policy applies to source and replica so the diff stays
// consistent.
type Scanner struct {
	ignore *IgnoreList
}

func NewScanner(ignore *IgnoreList) *Scanner {
	return &Scanner{ignore: ignore}
}

// Scan walks root and returns its inventory. Entry order is irrelevant to
// callers; the planner re-sorts by path depth.
func (s *Scanner) Scan(root string) (*ScanResult, error) {
	root = filepath.Clean(root)
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("scan root %q: %w", root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("scan root %q: not a directory", root)
	}

	result := &ScanResult{
		Root:    root,
		Entries: make(Inventory),
	}

	// stack of relative dir paths, "" is the root itself
	stack := []string{""}

	for len(stack) > 0 {
		relDir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		absDir := filepath.Join(root, filepath.FromSlash(relDir))
		dirents, err := os.ReadDir(absDir)
		if err != nil {
			if relDir == "" {
				return nil, fmt.Errorf("scan root %q: %w", root, err)
			}
			slog.Warn("scan: unreadable directory", "path", absDir, "error", err)
			result.Failures = append(result.Failures, Failure{Path: relDir, Kind: ErrKindScan, Err: err})
			// drop the dir entry too: we cannot mirror what we cannot
			// list. The recorded failure keeps the planner from deleting
			// the replica counterpart subtree.
			delete(result.Entries, relDir)
			continue
		}

		for _, dirent := range dirents {
			relPath := joinRel(relDir, dirent.Name())

			if s.ignore.ShouldIgnore(relPath) {
				continue
			}

			if dirent.Type()&fs.ModeSymlink != 0 {
				slog.Warn("scan: skipping symlink", "path", relPath)
				continue
			}

			if dirent.IsDir() {
				result.Entries[relPath] = &PathEntry{
					Path: relPath,
					Kind: KindDir,
				}
				stack = append(stack, relPath)
				continue
			}

			if !dirent.Type().IsRegular() {
				slog.Warn("scan: skipping irregular file", "path", relPath, "mode", dirent.Type())
				continue
			}

			info, err := dirent.Info()
			if err != nil {
				slog.Warn("scan: unreadable file", "path", relPath, "error", err)
				result.Failures = append(result.Failures, Failure{Path: relPath, Kind: ErrKindScan, Err: err})
				continue
			}

			result.Entries[relPath] = &PathEntry{
				Path:    relPath,
				Kind:    KindFile,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}
		}
	}

	return result, nil
}

// Abs maps a normalized relative path back under the scanned root.
func (r *ScanResult) Abs(relPath string) string {
	return filepath.Join(r.Root, filepath.FromSlash(relPath))
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func pathDepth(relPath string) int {
	if relPath == "" {
		return 0
	}
	return strings.Count(relPath, "/") + 1
}

// parentOf returns the normalized parent path, "" for top-level entries.
func parentOf(relPath string) string {
	p := path.Dir(relPath)
	if p == "." {
		return ""
	}
	return p
}
