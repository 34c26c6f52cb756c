package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mirrorbox/mirrord/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the optional per-source exclusion file, gitignore syntax.
const IgnoreFileName = ".mirrorignore"

var defaultIgnoreLines = []string{
	// mirrord's own artifacts: the ignore file itself, the replica metadata
	// dir (lock file lives there) and in-flight temp copies
	IgnoreFileName,
	metadataDirName,
	"*" + tempFileMark + "*",
	// General excludes
	"*.tmp",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList filters paths out of both the source and replica inventories.
// An ignored path is invisible to the engine: it is neither copied to the
// replica nor deleted from it.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList builds an ignore list from the defaults plus the
// .mirrorignore file in baseDir, if present.
func NewIgnoreList(baseDir string) *IgnoreList {
	il := &IgnoreList{baseDir: baseDir}
	il.Load()
	return il
}

func (il *IgnoreList) Load() {
	ignorePath := filepath.Join(il.baseDir, IgnoreFileName)
	ignoreLines := defaultIgnoreLines

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	il.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether the relative path is excluded.
func (il *IgnoreList) ShouldIgnore(relPath string) bool {
	if il == nil || il.ignore == nil {
		return false
	}
	return il.ignore.MatchesPath(utils.NormPath(relPath))
}
