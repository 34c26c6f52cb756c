package sync

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// tempFileMark tags in-flight copy temp files. The default ignore rules
// match it, so a half-written temp is never mistaken for replica content.
const tempFileMark = ".mirrord-tmp"

// copyAttempts is the total number of tries per file: the initial copy plus
// exactly one retry after a copy or verification failure.
const copyAttempts = 2

// Executor applies a Plan against the replica. Directory actions run
// sequentially on the calling goroutine in plan order; file actions fan out
// across a pool bounded by workers. Every action's failure is isolated:
// it lands in the PassResult and the rest of the plan keeps going.
type Executor struct {
	workers  int
	digester *Digester
}

func NewExecutor(workers int, digester *Digester) *Executor {
	return &Executor{
		workers:  workers,
		digester: digester,
	}
}

// Execute runs the plan phase by phase: pre-deletes, directory creates,
// pooled file copies/deletes, directory deletes. The errgroup Wait between
// phases is the barrier that keeps pooled file work strictly between the
// sequential directory phases. Cancellation is honored between actions;
// an in-flight copy finishes or cleans up its temp file.
func (e *Executor) Execute(ctx context.Context, plan *Plan) *PassResult {
	result := &PassResult{Unchanged: plan.Unchanged}

	for _, a := range plan.PreDeletes {
		if ctx.Err() != nil {
			return result
		}
		e.runDelete(a, result)
	}

	for _, a := range plan.Mkdirs {
		if ctx.Err() != nil {
			return result
		}
		e.runMkdir(a, result)
	}

	g := &errgroup.Group{}
	g.SetLimit(e.workers)
	for _, a := range plan.Copies {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.runCopy(a, result)
			return nil
		})
	}
	for _, a := range plan.FileDeletes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.runDelete(a, result)
			return nil
		})
	}
	// barrier: all file operations settle before directories are removed
	g.Wait()

	for _, a := range plan.DirDeletes {
		if ctx.Err() != nil {
			return result
		}
		e.runDelete(a, result)
	}

	return result
}

func (e *Executor) runMkdir(a *Action, result *PassResult) {
	if err := os.MkdirAll(a.DstPath, 0o755); err != nil {
		slog.Warn("mkdir failed", "path", a.RelPath, "error", err)
		result.recordFailure(a.RelPath, ErrKindCopy, err)
		return
	}
	slog.Debug("created dir", "path", a.RelPath)
	result.recordDirCreated()
}

func (e *Executor) runDelete(a *Action, result *PassResult) {
	if err := os.Remove(a.DstPath); err != nil {
		slog.Warn("delete failed", "path", a.RelPath, "error", err)
		result.recordFailure(a.RelPath, ErrKindDelete, err)
		return
	}
	if a.Op == OpDeleteDir {
		slog.Debug("deleted dir", "path", a.RelPath)
		result.recordDirDeleted()
	} else {
		slog.Debug("deleted file", "path", a.RelPath)
		result.recordDeleted()
	}
}

func (e *Executor) runCopy(a *Action, result *PassResult) {
	var (
		written int64
		kind    ErrorKind
		err     error
	)
	for attempt := 1; attempt <= copyAttempts; attempt++ {
		written, kind, err = e.copyVerified(a)
		if err == nil {
			break
		}
		slog.Warn("copy failed", "path", a.RelPath, "attempt", attempt, "kind", kind, "error", err)
	}
	if err != nil {
		result.recordFailure(a.RelPath, kind, err)
		return
	}

	if a.update {
		slog.Debug("updated file", "path", a.RelPath, "bytes", written)
		result.recordUpdated(written)
	} else {
		slog.Debug("copied file", "path", a.RelPath, "bytes", written)
		result.recordCreated(written)
	}
}

// copyVerified streams the source into a temporary sibling of the target,
// hashing the bytes as they pass, then renames it into place and re-hashes
// the final replica file against the source digest. The rename keeps a
// partially written file from ever being the replica's visible state.
func (e *Executor) copyVerified(a *Action) (int64, ErrorKind, error) {
	src, err := os.Open(a.SrcPath)
	if err != nil {
		return 0, ErrKindCopy, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(a.DstPath), filepath.Base(a.DstPath)+tempFileMark+".*")
	if err != nil {
		return 0, ErrKindCopy, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hasher := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		return 0, ErrKindCopy, fmt.Errorf("copy content: %w", err)
	}
	srcSum := fmt.Sprintf("%x", hasher.Sum(nil))

	// durability before visibility
	if err := tmp.Sync(); err != nil {
		return 0, ErrKindCopy, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, ErrKindCopy, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, a.DstPath); err != nil {
		return 0, ErrKindCopy, fmt.Errorf("rename into place: %w", err)
	}
	success = true

	dstSum, err := e.digester.hashFile(a.DstPath)
	if err != nil {
		return 0, ErrKindVerify, fmt.Errorf("re-hash replica: %w", err)
	}
	if dstSum != srcSum {
		return 0, ErrKindVerify, fmt.Errorf("digest mismatch after copy: source %s replica %s", srcSum, dstSum)
	}

	return written, "", nil
}
