package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorbox/mirrord/internal/utils"
)

// metadataDirName holds mirrord's own state inside the replica (lock file).
// It is on the default ignore list, so passes neither mirror nor delete it.
const metadataDirName = ".mirrord"

var (
	ErrPassAlreadyRunning = errors.New("sync pass already running")
	ErrSourceRoot         = errors.New("source root unavailable")
	ErrReplicaRoot        = errors.New("replica root unavailable")
)

// Options configures an Engine. There is no process-wide state: two engines
// with different options can run side by side.
type Options struct {
	SourceDir  string
	ReplicaDir string

	// MaxWorkers bounds the file-operation pool; 0 means the number of CPUs.
	MaxWorkers int

	// Ignore filters both inventories; nil builds the default list from the
	// source root.
	Ignore *IgnoreList
}

// Engine runs one full mirroring pass: scan both roots, diff, execute.
// It keeps no memory of previous passes — every pass rescans from scratch,
// so the replica converges onto the source no matter what happened to it
// in between.
type Engine struct {
	sourceDir  string
	replicaDir string
	scanner    *Scanner
	digester   *Digester
	executor   *Executor
	muPass     sync.Mutex
}

func NewEngine(opts Options) (*Engine, error) {
	sourceDir, err := utils.ResolvePath(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir: %w", err)
	}
	replicaDir, err := utils.ResolvePath(opts.ReplicaDir)
	if err != nil {
		return nil, fmt.Errorf("resolve replica dir: %w", err)
	}
	if sourceDir == replicaDir {
		return nil, fmt.Errorf("source and replica dirs must differ")
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ignore := opts.Ignore
	if ignore == nil {
		ignore = NewIgnoreList(sourceDir)
	}

	digester := NewDigester()

	return &Engine{
		sourceDir:  sourceDir,
		replicaDir: replicaDir,
		scanner:    NewScanner(ignore),
		digester:   digester,
		executor:   NewExecutor(workers, digester),
	}, nil
}

// RunOnce performs a single scan-plan-execute pass and returns its result.
// Only setup problems (missing source root, replica not creatable, a root
// scan failing outright) abort the pass with an error; per-path problems
// are isolated into the result's failures.
//
// A second concurrent call returns ErrPassAlreadyRunning instead of
// blocking; two passes must never execute against the same replica at once.
func (e *Engine) RunOnce(ctx context.Context) (*PassResult, error) {
	if !e.muPass.TryLock() {
		return nil, ErrPassAlreadyRunning
	}
	defer e.muPass.Unlock()

	passID := uuid.NewString()[:8]
	tStart := time.Now()

	if !utils.DirExists(e.sourceDir) {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrSourceRoot, e.sourceDir)
	}
	if err := utils.EnsureDir(e.replicaDir); err != nil {
		return nil, fmt.Errorf("%w: create %q: %v", ErrReplicaRoot, e.replicaDir, err)
	}

	// the two roots are independent reads, scan them in parallel
	var srcScan, dstScan *ScanResult
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if srcScan, err = e.scanner.Scan(e.sourceDir); err != nil {
			return fmt.Errorf("%w: %v", ErrSourceRoot, err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if dstScan, err = e.scanner.Scan(e.replicaDir); err != nil {
			return fmt.Errorf("%w: %v", ErrReplicaRoot, err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	tScan := time.Since(tStart)

	tPlan := time.Now()
	plan := BuildPlan(srcScan, dstScan, e.digestPair)
	planTime := time.Since(tPlan)

	tExec := time.Now()
	result := e.executor.Execute(ctx, plan)
	result.ID = passID
	result.ScanTime = tScan
	result.PlanTime = planTime
	result.ExecTime = time.Since(tExec)
	result.Total = time.Since(tStart)

	for _, f := range srcScan.Failures {
		result.recordFailure(f.Path, f.Kind, f.Err)
	}
	for _, f := range dstScan.Failures {
		result.recordFailure(f.Path, f.Kind, f.Err)
	}

	e.logPass(result)
	return result, nil
}

func (e *Engine) digestPair(srcPath, dstPath string) (string, string, error) {
	srcSum, err := e.digester.Digest(srcPath)
	if err != nil {
		return "", "", err
	}
	dstSum, err := e.digester.Digest(dstPath)
	if err != nil {
		return "", "", err
	}
	return srcSum, dstSum, nil
}

func (e *Engine) logPass(r *PassResult) {
	slog.Info("pass complete",
		"pass", r.ID,
		"created", r.Created,
		"updated", r.Updated,
		"deleted", r.Deleted,
		"unchanged", r.Unchanged,
		"failed", r.Failed,
		"dirsCreated", r.DirsCreated,
		"dirsDeleted", r.DirsDeleted,
		"copied", humanize.Bytes(uint64(r.BytesCopied)),
		"tsScan", r.ScanTime,
		"tsPlan", r.PlanTime,
		"tsExec", r.ExecTime,
		"tsTotal", r.Total,
	)
	for _, f := range r.Failures {
		slog.Error("pass failure", "pass", r.ID, "failure", f)
	}
}
