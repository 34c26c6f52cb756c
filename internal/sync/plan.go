package sync

import (
	"log/slog"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// OpType tags a planned filesystem mutation.
type OpType string

const (
	OpMkdir      OpType = "mkdir"
	OpCopy       OpType = "copy"
	OpDeleteFile OpType = "delete_file"
	OpDeleteDir  OpType = "delete_dir"
)

// Action is one immutable planned mutation against the replica. SrcPath is
// set for copies only; DstPath is always the absolute replica-side target.
type Action struct {
	Op      OpType
	RelPath string
	SrcPath string
	DstPath string
	Size    int64

	// update marks a copy over an existing replica file, as opposed to a
	// fresh create
	update bool
}

// Plan is the ordered, dependency-safe action set for one pass, grouped into
// execution phases:
//
//  1. PreDeletes — removals forced by a kind change (replica has a file
//     where source has a directory, or vice versa), including everything
//     beneath a replaced directory. Sequential, files before dirs,
//     deepest first.
//  2. Mkdirs — directory creates, shallowest first, so parents always exist
//     before children.
//  3. Copies and FileDeletes — path-disjoint file operations with no mutual
//     ordering needs; the executor pools them.
//  4. DirDeletes — directory removals, deepest first, after their contents
//     are gone.
//
// A replica identical to the source yields an empty plan.
type Plan struct {
	PreDeletes  []*Action
	Mkdirs      []*Action
	Copies      []*Action
	FileDeletes []*Action
	DirDeletes  []*Action

	Unchanged int
}

func (p *Plan) Empty() bool {
	return p.Len() == 0
}

func (p *Plan) Len() int {
	return len(p.PreDeletes) + len(p.Mkdirs) + len(p.Copies) + len(p.FileDeletes) + len(p.DirDeletes)
}

// Actions returns the plan flattened in execution order. Useful for
// inspection and tests; the executor works phase by phase.
func (p *Plan) Actions() []*Action {
	out := make([]*Action, 0, p.Len())
	out = append(out, p.PreDeletes...)
	out = append(out, p.Mkdirs...)
	out = append(out, p.Copies...)
	out = append(out, p.FileDeletes...)
	out = append(out, p.DirDeletes...)
	return out
}

// DigestPairFunc supplies the content digests of a (source, replica) file
// pair on demand. The planner itself does no I/O; the engine injects this
// backed by the Digester and its cache.
type DigestPairFunc func(srcPath, dstPath string) (string, string, error)

// BuildPlan diffs the source inventory against the replica inventory and
// returns the minimal ordered action set that converges the replica onto
// the source. Files matching in size are compared by content digest, so
// same-size edits are still detected; mtime never decides an update.
// Replica paths under a recorded source scan failure are never deleted:
// an unreadable source directory means its contents are unknown, not gone.
func BuildPlan(src, dst *ScanResult, digests DigestPairFunc) *Plan {
	plan := &Plan{}

	// Paths the source scan failed on are unknown, not absent. Their
	// replica counterparts are left alone until a later pass can read
	// the source side again.
	srcFailed := mapset.NewThreadUnsafeSet[string]()
	for _, f := range src.Failures {
		srcFailed.Add(f.Path)
	}
	srcUnknown := func(rel string) bool {
		if srcFailed.Contains(rel) {
			return true
		}
		for p := parentOf(rel); p != ""; p = parentOf(p) {
			if srcFailed.Contains(p) {
				return true
			}
		}
		return false
	}

	allPaths := mapset.NewThreadUnsafeSet[string]()
	for rel := range src.Entries {
		allPaths.Add(rel)
	}
	for rel := range dst.Entries {
		allPaths.Add(rel)
	}

	// replica dirs displaced by a source file; their whole replica subtree
	// must go before anything is copied
	replacedDirs := mapset.NewThreadUnsafeSet[string]()

	var fileDeletes, dirDeletes []*Action

	for rel := range allPaths.Iter() {
		s, inSrc := src.Entries[rel]
		d, inDst := dst.Entries[rel]

		switch {
		case inSrc && !inDst:
			if s.IsDir() {
				plan.Mkdirs = append(plan.Mkdirs, &Action{
					Op:      OpMkdir,
					RelPath: rel,
					DstPath: dst.Abs(rel),
				})
			} else {
				plan.Copies = append(plan.Copies, &Action{
					Op:      OpCopy,
					RelPath: rel,
					SrcPath: src.Abs(rel),
					DstPath: dst.Abs(rel),
					Size:    s.Size,
				})
			}

		case !inSrc && inDst:
			if srcUnknown(rel) {
				slog.Debug("plan: keeping replica path, source scan failed", "path", rel)
				continue
			}
			if d.IsDir() {
				dirDeletes = append(dirDeletes, &Action{
					Op:      OpDeleteDir,
					RelPath: rel,
					DstPath: dst.Abs(rel),
				})
			} else {
				fileDeletes = append(fileDeletes, &Action{
					Op:      OpDeleteFile,
					RelPath: rel,
					DstPath: dst.Abs(rel),
				})
			}

		case s.Kind != d.Kind:
			// delete-then-create
			if d.IsDir() {
				replacedDirs.Add(rel)
				plan.Copies = append(plan.Copies, &Action{
					Op:      OpCopy,
					RelPath: rel,
					SrcPath: src.Abs(rel),
					DstPath: dst.Abs(rel),
					Size:    s.Size,
				})
			} else {
				plan.PreDeletes = append(plan.PreDeletes, &Action{
					Op:      OpDeleteFile,
					RelPath: rel,
					DstPath: dst.Abs(rel),
				})
				plan.Mkdirs = append(plan.Mkdirs, &Action{
					Op:      OpMkdir,
					RelPath: rel,
					DstPath: dst.Abs(rel),
				})
			}

		case s.IsDir():
			// directory present on both sides, nothing to do

		default:
			changed := s.Size != d.Size
			if !changed {
				srcSum, dstSum, err := digests(src.Abs(rel), dst.Abs(rel))
				if err != nil {
					// cannot prove the files equal, recopy; a truly
					// unreadable source surfaces as a copy failure
					slog.Warn("plan: digest failed, scheduling copy", "path", rel, "error", err)
					changed = true
				} else {
					changed = srcSum != dstSum
				}
			}
			if changed {
				plan.Copies = append(plan.Copies, &Action{
					Op:      OpCopy,
					RelPath: rel,
					SrcPath: src.Abs(rel),
					DstPath: dst.Abs(rel),
					Size:    s.Size,
					update:  true,
				})
			} else {
				plan.Unchanged++
			}
		}
	}

	// Deletes living under a replaced directory must run in the pre-delete
	// phase, before the copy that takes the directory's place.
	underReplaced := func(rel string) bool {
		for p := parentOf(rel); p != ""; p = parentOf(p) {
			if replacedDirs.Contains(p) {
				return true
			}
		}
		return false
	}

	var preFiles, preDirs []*Action
	for _, a := range fileDeletes {
		if underReplaced(a.RelPath) {
			preFiles = append(preFiles, a)
		} else {
			plan.FileDeletes = append(plan.FileDeletes, a)
		}
	}
	for _, a := range dirDeletes {
		if underReplaced(a.RelPath) || replacedDirs.Contains(a.RelPath) {
			preDirs = append(preDirs, a)
		} else {
			plan.DirDeletes = append(plan.DirDeletes, a)
		}
	}
	for rel := range replacedDirs.Iter() {
		preDirs = append(preDirs, &Action{
			Op:      OpDeleteDir,
			RelPath: rel,
			DstPath: dst.Abs(rel),
		})
	}

	sortByDepth(preFiles, false)
	sortByDepth(preDirs, false)
	plan.PreDeletes = append(plan.PreDeletes, preFiles...)
	plan.PreDeletes = append(plan.PreDeletes, preDirs...)

	sortByDepth(plan.Mkdirs, true)
	sortByDepth(plan.Copies, true)
	sortByDepth(plan.FileDeletes, false)
	sortByDepth(plan.DirDeletes, false)

	return plan
}

// sortByDepth orders actions by path depth, shallow first when asc, with a
// lexicographic tiebreak so plans come out deterministic.
func sortByDepth(actions []*Action, asc bool) {
	sort.SliceStable(actions, func(i, j int) bool {
		di, dj := pathDepth(actions[i].RelPath), pathDepth(actions[j].RelPath)
		if di != dj {
			if asc {
				return di < dj
			}
			return di > dj
		}
		return actions[i].RelPath < actions[j].RelPath
	})
}
