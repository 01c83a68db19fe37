// Package compare classifies the files of two directory trees.
//
// Both trees are walked with an explicit work stack, so arbitrarily deep
// hierarchies never grow the call stack. Results are produced lazily as an
// iter.Seq2 of relative paths; nothing is collected up front and nothing is
// remembered between walks.
//
// Only regular files take part. Directories are traversed but never compared;
// symlinks, devices and other special entries are skipped and never followed.
package compare

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/paulschiretz/pgl-mirror/pkg/fingerprint"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Phase names used in CycleErrors.
const (
	PhaseCopy   = "copy"
	PhaseDelete = "delete"
)

// Comparator computes copy and delete lists.
type Comparator struct {
	fs      afero.Fs
	fp      *fingerprint.Fingerprinter
	metrics metrics.Metrics
}

// New creates a Comparator. A nil m disables metrics.
func New(fs afero.Fs, fp *fingerprint.Fingerprinter, m metrics.Metrics) *Comparator {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	return &Comparator{fs: fs, fp: fp, metrics: m}
}

// FilesToCopy yields the relative path of every regular source file whose
// replica counterpart is missing or differs in content.
//
// A per-file failure is yielded as (rel, *syncerr.IOError) and the walk
// continues. A source root that is missing or not a directory is yielded
// once as ("", *syncerr.CycleError) and ends the sequence.
func (c *Comparator) FilesToCopy(ctx context.Context, sourceRoot, replicaRoot string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for rel, err := range c.walkFiles(ctx, PhaseCopy, sourceRoot) {
			if err != nil {
				if !yield(rel, err) {
					return
				}
				continue
			}
			differs, err := c.differs(sourceRoot, replicaRoot, rel)
			if err != nil {
				if !yield(rel, err) {
					return
				}
				continue
			}
			if !differs {
				c.metrics.AddFilesUpToDate(1)
				continue
			}
			if !yield(rel, nil) {
				return
			}
		}
	}
}

// FilesToDelete yields the relative path of every regular replica file that
// has no regular file at the same relative path under sourceRoot. Errors are
// yielded as for FilesToCopy.
func (c *Comparator) FilesToDelete(ctx context.Context, replicaRoot, sourceRoot string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		// Deleting against a vanished source would empty the replica.
		if err := c.checkRoot(PhaseDelete, sourceRoot); err != nil {
			yield("", err)
			return
		}
		for rel, err := range c.walkFiles(ctx, PhaseDelete, replicaRoot) {
			if err != nil {
				if !yield(rel, err) {
					return
				}
				continue
			}
			exists, err := util.IsRegularFile(c.fs, filepath.Join(sourceRoot, rel))
			if err != nil {
				if !yield(rel, &syncerr.IOError{Op: "stat", Path: rel, Err: err}) {
					return
				}
				continue
			}
			if exists {
				continue
			}
			if !yield(rel, nil) {
				return
			}
		}
	}
}

// differs reports whether rel must be copied from sourceRoot to replicaRoot.
// Differing sizes settle it without hashing; otherwise both sides are fingerprinted.
func (c *Comparator) differs(sourceRoot, replicaRoot, rel string) (bool, error) {
	srcPath := filepath.Join(sourceRoot, rel)
	dstPath := filepath.Join(replicaRoot, rel)

	dstInfo, err := util.Lstat(c.fs, dstPath)
	if err != nil {
		if util.IsNotExist(err) {
			return true, nil
		}
		return false, &syncerr.IOError{Op: "stat", Path: rel, Err: err}
	}
	if !dstInfo.Mode().IsRegular() {
		return true, nil
	}

	srcInfo, err := util.Lstat(c.fs, srcPath)
	if err != nil {
		// The source file vanished between the directory read and now.
		return false, &syncerr.IOError{Op: "stat", Path: rel, Err: err}
	}
	if srcInfo.Size() != dstInfo.Size() {
		return true, nil
	}

	same, err := c.fp.Equal(srcPath, dstPath)
	if err != nil {
		return false, err
	}
	return !same, nil
}

func (c *Comparator) checkRoot(phase, root string) error {
	info, err := c.fs.Stat(root)
	if err != nil {
		return &syncerr.CycleError{Phase: phase, Err: fmt.Errorf("root %s is not accessible: %w", root, err)}
	}
	if !info.IsDir() {
		return &syncerr.CycleError{Phase: phase, Err: fmt.Errorf("root %s is not a directory", root)}
	}
	return nil
}

// walkFiles yields the relative paths of all regular files below root in
// depth-first order: a directory's files (by name), then its subdirectories
// (by name).
func (c *Comparator) walkFiles(ctx context.Context, phase, root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := c.checkRoot(phase, root); err != nil {
			yield("", err)
			return
		}

		stack := []string{"."}
		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				yield("", &syncerr.CycleError{Phase: phase, Err: err})
				return
			}

			dirRel := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			// afero.ReadDir returns entries sorted by name and does not follow symlinks on the OS filesystem.
			entries, err := afero.ReadDir(c.fs, filepath.Join(root, dirRel))
			if err != nil {
				if dirRel == "." {
					yield("", &syncerr.CycleError{Phase: phase, Err: fmt.Errorf("reading root %s: %w", root, err)})
					return
				}
				if !yield(dirRel, &syncerr.IOError{Op: "walk", Path: dirRel, Err: err}) {
					return
				}
				continue
			}

			var subdirs []string
			for _, entry := range entries {
				rel := filepath.Join(dirRel, entry.Name())
				switch {
				case entry.IsDir():
					subdirs = append(subdirs, rel)
				case entry.Mode().IsRegular():
					if !yield(rel, nil) {
						return
					}
				}
			}
			// Push in reverse so subdirectories are popped in name order.
			for i := len(subdirs) - 1; i >= 0; i-- {
				stack = append(stack, subdirs[i])
			}
		}
	}
}
