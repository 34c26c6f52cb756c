package sync

import (
	"log/slog"
	"sync"
	"time"
)

// ErrorKind classifies an isolated per-path failure.
type ErrorKind string

const (
	ErrKindScan   ErrorKind = "scan"
	ErrKindCopy   ErrorKind = "copy"
	ErrKindVerify ErrorKind = "verify"
	ErrKindDelete ErrorKind = "delete"
)

// Failure is one isolated per-path error. Failures never abort a pass; they
// are aggregated here for the caller to surface.
type Failure struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (f Failure) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", f.Path),
		slog.String("kind", string(f.Kind)),
		slog.Any("error", f.Err),
	)
}

// PassResult aggregates the outcome of one scan-plan-execute pass. The
// created/updated/deleted/unchanged counters track files; directory
// operations are counted separately since they carry no content.
//
// Workers record outcomes concurrently, so mutation goes through the
// record* methods.
type PassResult struct {
	ID string

	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Failed    int

	DirsCreated int
	DirsDeleted int

	BytesCopied int64

	Failures []Failure

	ScanTime time.Duration
	PlanTime time.Duration
	ExecTime time.Duration
	Total    time.Duration

	mu sync.Mutex
}

func (r *PassResult) recordCreated(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Created++
	r.BytesCopied += bytes
}

func (r *PassResult) recordUpdated(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updated++
	r.BytesCopied += bytes
}

func (r *PassResult) recordDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted++
}

func (r *PassResult) recordDirCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DirsCreated++
}

func (r *PassResult) recordDirDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DirsDeleted++
}

func (r *PassResult) recordFailure(path string, kind ErrorKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.Failures = append(r.Failures, Failure{Path: path, Kind: kind, Err: err})
}

// HasChanges reports whether the pass mutated the replica at all.
func (r *PassResult) HasChanges() bool {
	return r.Created > 0 ||
		r.Updated > 0 ||
		r.Deleted > 0 ||
		r.DirsCreated > 0 ||
		r.DirsDeleted > 0
}
