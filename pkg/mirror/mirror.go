// Package mirror applies copy and delete actions to the replica tree.
//
// A copy never exposes a half-written destination: content is streamed into a
// temporary file next to the destination, permissions and modification time
// are applied, and the temporary file is renamed over the destination.
// Every file that ends up in the replica has the owner-write bit set, so the
// next cycle can always replace or remove it.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/event"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/pool"
	"github.com/paulschiretz/pgl-mirror/pkg/sharded"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// TempFilePattern names in-flight copies. A leftover temp file has no source
// counterpart and is removed by the next delete phase.
var TempFilePattern = "." + buildinfo.BinaryName + "-*.tmp"

// Options configures an Executor.
type Options struct {
	SourceRoot  string
	ReplicaRoot string
	// Workers is the number of actions applied concurrently within a phase. Values < 1 mean 1.
	Workers int
	DryRun  bool
}

// Executor applies actions for one source/replica pair. It is safe for concurrent use.
type Executor struct {
	fs      afero.Fs
	src     string
	dst     string
	workers int
	dryRun  bool

	sink    event.Sink
	clock   clockwork.Clock
	metrics metrics.Metrics
	chunks  *pool.ChunkPool

	// dirGroup collapses concurrent MkdirAll calls for the same parent directory.
	dirGroup singleflight.Group
	// knownDirs holds the replica directories already ensured during the current copy phase.
	knownDirs *sharded.Set
}

// New creates an Executor. A nil clock uses the real clock; a nil m disables metrics.
func New(fs afero.Fs, opts Options, sink event.Sink, clock clockwork.Clock, m metrics.Metrics) *Executor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		fs:      fs,
		src:     opts.SourceRoot,
		dst:     opts.ReplicaRoot,
		workers: workers,
		dryRun:  opts.DryRun,
		sink:    sink,
		clock:   clock,
		metrics: m,
		chunks:  pool.Default,

		knownDirs: sharded.NewSet(sharded.DefaultShards),
	}
}

// ApplyCopy copies sourceRoot/rel to replicaRoot/rel, creating missing parent
// directories and replacing any existing destination file.
func (e *Executor) ApplyCopy(rel string) error {
	if e.dryRun {
		plog.Info("[DRY RUN] Would copy file", "path", rel)
		return nil
	}
	n, err := e.copyFile(rel)
	if err != nil {
		e.reportError(rel, "Error copying file "+rel, err)
		return &syncerr.IOError{Op: "copy", Path: rel, Err: err}
	}
	e.metrics.AddFilesCopied(1)
	e.metrics.AddBytesCopied(n)
	e.sink.Emit(event.NewCopied(e.clock.Now(), rel))
	return nil
}

// ApplyDelete removes replicaRoot/rel. Parent directories are left in place, even when empty.
func (e *Executor) ApplyDelete(rel string) error {
	if e.dryRun {
		plog.Info("[DRY RUN] Would delete file", "path", rel)
		return nil
	}
	if err := e.fs.Remove(filepath.Join(e.dst, rel)); err != nil {
		e.reportError(rel, "Error deleting file "+rel, err)
		return &syncerr.IOError{Op: "delete", Path: rel, Err: err}
	}
	e.metrics.AddFilesDeleted(1)
	e.sink.Emit(event.NewDeleted(e.clock.Now(), rel))
	return nil
}

func (e *Executor) reportError(rel, msg string, cause error) {
	e.metrics.AddErrors(1)
	e.sink.Emit(event.NewError(e.clock.Now(), rel, msg, cause))
}

// ensureDir creates dir and its parents once, even when many workers ask at the same time.
func (e *Executor) ensureDir(dir string) error {
	if e.knownDirs.Has(dir) {
		return nil
	}
	_, err, _ := e.dirGroup.Do(dir, func() (any, error) {
		if err := e.fs.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			// A replica file where the source now has a directory blocks the path.
			removed, rmErr := e.removeBlockingFile(dir)
			if rmErr != nil {
				return nil, rmErr
			}
			if !removed {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
			if err := e.fs.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
		e.knownDirs.Store(dir)
		return nil, nil
	})
	return err
}

// removeBlockingFile deletes the nearest existing ancestor of dir inside the
// replica when it is not a directory. It reports whether anything was removed.
func (e *Executor) removeBlockingFile(dir string) (bool, error) {
	for p := dir; p != e.dst && p != filepath.Dir(p); p = filepath.Dir(p) {
		info, err := util.Lstat(e.fs, p)
		if err != nil {
			if util.IsNotExist(err) {
				continue
			}
			return false, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			return false, nil
		}
		if err := e.fs.Remove(p); err != nil {
			if util.IsNotExist(err) {
				return true, nil
			}
			return false, fmt.Errorf("failed to remove %s blocking directory %s: %w", p, dir, err)
		}
		e.metrics.AddFilesDeleted(1)
		if rel, err := filepath.Rel(e.dst, p); err == nil {
			e.sink.Emit(event.NewDeleted(e.clock.Now(), rel))
		}
		return true, nil
	}
	return false, nil
}

// copyFile performs the temp-file-and-rename copy and returns the number of bytes written.
func (e *Executor) copyFile(rel string) (int64, error) {
	src := filepath.Join(e.src, rel)
	trg := filepath.Join(e.dst, rel)

	in, err := e.fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file: %w", err)
	}
	if !srcInfo.Mode().IsRegular() {
		return 0, fmt.Errorf("source is not a regular file")
	}

	// 1. Ensure the destination directory exists.
	trgDir := filepath.Dir(trg)
	if err := e.ensureDir(trgDir); err != nil {
		return 0, err
	}

	// 2. Create a temporary file in the destination directory, so the final rename stays on one filesystem.
	out, err := afero.TempFile(e.fs, trgDir, TempFilePattern)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", trgDir, err)
	}
	tempPath := out.Name()
	// If the rename succeeds, tempPath is cleared and this becomes a no-op.
	defer func() {
		if tempPath != "" {
			e.fs.Remove(tempPath)
		}
	}()

	// 3. Copy content chunk by chunk.
	bufPtr := e.chunks.Get()
	defer e.chunks.Put(bufPtr)
	n, err := io.CopyBuffer(out, in, *bufPtr)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to copy content to %s: %w", tempPath, err)
	}

	// 4. Close before touching metadata; closing may update the modification time.
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}

	// 5. Permissions, always keeping the owner-write bit.
	if err := e.fs.Chmod(tempPath, util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
		return 0, fmt.Errorf("failed to set permissions on %s: %w", tempPath, err)
	}

	// 6. Modification time.
	if err := e.fs.Chtimes(tempPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return 0, fmt.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}

	// 7. A directory (or other non-regular entry) in the way cannot be renamed over.
	// Only an empty one goes; anything else stays a per-item failure.
	if info, err := util.Lstat(e.fs, trg); err == nil && !info.Mode().IsRegular() {
		if err := e.fs.Remove(trg); err != nil {
			return 0, fmt.Errorf("failed to remove %s in place of the file: %w", trg, err)
		}
	}

	// 8. Atomically move the temporary file to the final destination.
	if err := e.fs.Rename(tempPath, trg); err != nil {
		return 0, fmt.Errorf("failed to move temporary file into place: %w", err)
	}
	tempPath = ""
	return n, nil
}

// PhaseReport summarises one phase.
type PhaseReport struct {
	Phase   string
	Applied int
	Failed  []error
}

// Err joins all per-item failures, or returns nil when there were none.
func (r PhaseReport) Err() error {
	return errors.Join(r.Failed...)
}

// RunPhase applies apply to every path produced by seq.
//
// Per-item errors, from seq or from apply, are collected in the report and
// never stop the phase. A *syncerr.CycleError from seq, or a cancelled ctx,
// stops producing new work; actions already started are allowed to finish.
// RunPhase returns only after every started action has finished.
func (e *Executor) RunPhase(ctx context.Context, phase string, seq iter.Seq2[string, error], apply func(string) error) (PhaseReport, error) {
	report := PhaseReport{Phase: phase}
	var mu sync.Mutex
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed = append(report.Failed, err)
			return
		}
		report.Applied++
	}

	// Workers never return errors to the group, so one failure cannot cancel its siblings.
	var g errgroup.Group
	g.SetLimit(e.workers)

	var abortErr error
	for rel, err := range seq {
		if err != nil {
			if syncerr.IsCycleError(err) {
				abortErr = err
				break
			}
			e.reportError(rel, itemErrorMessage(err, rel), err)
			record(err)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			abortErr = &syncerr.CycleError{Phase: phase, Err: ctxErr}
			break
		}
		g.Go(func() error {
			record(apply(rel))
			return nil
		})
	}
	g.Wait()
	return report, abortErr
}

// CopyPhase drains a copy list through ApplyCopy.
// Directories remembered from an earlier cycle are forgotten first, since the
// replica may have been changed in between.
func (e *Executor) CopyPhase(ctx context.Context, seq iter.Seq2[string, error]) (PhaseReport, error) {
	e.knownDirs.Reset()
	return e.RunPhase(ctx, "copy", seq, e.ApplyCopy)
}

// DeletePhase drains a delete list through ApplyDelete.
func (e *Executor) DeletePhase(ctx context.Context, seq iter.Seq2[string, error]) (PhaseReport, error) {
	return e.RunPhase(ctx, "delete", seq, e.ApplyDelete)
}

func itemErrorMessage(err error, rel string) string {
	var ioErr *syncerr.IOError
	if errors.As(err, &ioErr) {
		switch ioErr.Op {
		case "walk":
			return "Error reading directory " + rel
		case "fingerprint", "stat":
			return "Error comparing file " + rel
		}
	}
	if rel == "" {
		return "Error"
	}
	return "Error processing " + rel
}
