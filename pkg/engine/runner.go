package engine

// --- ARCHITECTURAL OVERVIEW ---
//
// The Runner drives the mirror as a simple state machine:
//
//   Idle -> CopyPhase -> DeletePhase -> Idle (sleep) -> CopyPhase -> ...
//
// 1. CopyPhase: the comparator lazily yields every source file whose replica
//    counterpart is missing or differs, and the executor copies it.
// 2. DeletePhase: the comparator yields every replica file without a source
//    counterpart, and the executor deletes it. It only starts after every copy
//    of the cycle has finished.
// 3. Idle: the runner sleeps for the configured interval. A change signal from
//    the optional watcher ends the sleep early. Cancelling the context is the
//    only way out of the loop.
//
// Per-file failures are reported by the executor and never end a cycle. A
// CycleError (a root vanished, the context was cancelled) aborts the current
// cycle; the loop logs it and carries on with the next one.

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-mirror/pkg/event"
	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/mirror"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// Comparator produces the per-cycle copy and delete lists.
type Comparator interface {
	FilesToCopy(ctx context.Context, sourceRoot, replicaRoot string) iter.Seq2[string, error]
	FilesToDelete(ctx context.Context, replicaRoot, sourceRoot string) iter.Seq2[string, error]
}

// Executor applies the lists produced by a Comparator.
type Executor interface {
	CopyPhase(ctx context.Context, seq iter.Seq2[string, error]) (mirror.PhaseReport, error)
	DeletePhase(ctx context.Context, seq iter.Seq2[string, error]) (mirror.PhaseReport, error)
}

// HookRunner runs the commands of a hook stage.
type HookRunner interface {
	Run(ctx context.Context, stage hook.Stage, p *hook.Plan, env []string) error
}

// Options configures a Runner.
type Options struct {
	SourceRoot  string
	ReplicaRoot string
	// Interval is the sleep between the end of one cycle and the start of the next.
	Interval time.Duration
}

// CycleReport describes one finished (or aborted) cycle.
type CycleReport struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Copy     mirror.PhaseReport
	Delete   mirror.PhaseReport
	Summary  metrics.Summary
}

// FailedItems returns the number of per-item failures across both phases.
func (r CycleReport) FailedItems() int {
	return len(r.Copy.Failed) + len(r.Delete.Failed)
}

// Runner drives synchronization cycles for one source/replica pair.
type Runner struct {
	opts       Options
	comparator Comparator
	executor   Executor
	sink       event.Sink
	clock      clockwork.Clock
	metrics    metrics.Metrics

	hooks    HookRunner
	hookPlan *hook.Plan
	wake     <-chan struct{}
}

// RunnerOption configures optional Runner collaborators.
type RunnerOption func(*Runner)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clockwork.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithMetrics sets the metrics that are reset and logged every cycle.
// They should be the same instance the comparator and executor update.
func WithMetrics(m metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithHooks runs p's commands before and after every cycle.
func WithHooks(h HookRunner, p *hook.Plan) RunnerOption {
	return func(r *Runner) {
		r.hooks = h
		r.hookPlan = p
	}
}

// WithWake lets a signal on ch end the inter-cycle sleep early.
func WithWake(ch <-chan struct{}) RunnerOption {
	return func(r *Runner) { r.wake = ch }
}

// NewRunner creates a Runner. The roots must already have been validated; the Runner never creates them.
func NewRunner(opts Options, comparator Comparator, executor Executor, sink event.Sink, options ...RunnerOption) *Runner {
	r := &Runner{
		opts:       opts,
		comparator: comparator,
		executor:   executor,
		sink:       sink,
		clock:      clockwork.NewRealClock(),
		metrics:    &metrics.NoopMetrics{},
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// RunCycle performs one copy phase followed by one delete phase.
// It returns a non-nil error only when the cycle was aborted.
func (r *Runner) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString(), Started: r.clock.Now()}
	r.metrics.Reset()

	plog.Info("Starting synchronization cycle", "cycle", report.ID, "source", r.opts.SourceRoot, "replica", r.opts.ReplicaRoot)
	r.runHooks(ctx, hook.PreCycle, report.ID)

	var err error
	report.Copy, err = r.executor.CopyPhase(ctx, r.comparator.FilesToCopy(ctx, r.opts.SourceRoot, r.opts.ReplicaRoot))
	if err != nil {
		return r.abort(ctx, report, err)
	}

	report.Delete, err = r.executor.DeletePhase(ctx, r.comparator.FilesToDelete(ctx, r.opts.ReplicaRoot, r.opts.SourceRoot))
	if err != nil {
		return r.abort(ctx, report, err)
	}

	if n := report.FailedItems(); n > 0 {
		plog.Warn(fmt.Sprintf("%d non-fatal errors occurred during the cycle", n), "cycle", report.ID)
	}
	r.sink.Emit(event.NewCycleCompleted(r.clock.Now()))
	r.runHooks(ctx, hook.PostCycle, report.ID)

	report.Finished = r.clock.Now()
	report.Summary = r.metrics.Snapshot()
	r.metrics.Log()
	plog.Info("Cycle finished", "cycle", report.ID, "duration", report.Finished.Sub(report.Started).Round(time.Millisecond))
	return report, nil
}

func (r *Runner) abort(ctx context.Context, report CycleReport, err error) (CycleReport, error) {
	report.Finished = r.clock.Now()
	report.Summary = r.metrics.Snapshot()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		plog.Info("Cycle interrupted", "cycle", report.ID)
		return report, err
	}
	r.sink.Emit(event.NewError(r.clock.Now(), "", "Synchronization cycle failed", err))
	return report, err
}

func (r *Runner) runHooks(ctx context.Context, stage hook.Stage, cycleID string) {
	if r.hooks == nil {
		return
	}
	env := []string{
		"PGL_MIRROR_SOURCE=" + r.opts.SourceRoot,
		"PGL_MIRROR_REPLICA=" + r.opts.ReplicaRoot,
		"PGL_MIRROR_CYCLE=" + cycleID,
	}
	if err := r.hooks.Run(ctx, stage, r.hookPlan, env); err != nil && !hints.IsHint(err) {
		if errors.Is(err, context.Canceled) {
			plog.Info(fmt.Sprintf("%s hooks skipped due to cancellation", stage))
			return
		}
		plog.Warn(fmt.Sprintf("%s hook failed", stage), "error", err)
	}
}

// Run repeats cycles until ctx is cancelled. Aborted cycles are logged and do
// not end the loop. Run returns nil after a cancellation.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if _, err := r.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			plog.Warn("Cycle aborted, retrying after the interval", "error", err)
		}

		if !r.sleep(ctx) {
			return nil
		}
	}
}

// sleep waits for the interval, a wake signal or cancellation. It reports
// whether the loop should continue.
func (r *Runner) sleep(ctx context.Context) bool {
	plog.Info("Waiting for next cycle", "interval", r.opts.Interval)
	timer := r.clock.NewTimer(r.opts.Interval)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-r.wake:
		plog.Info("Change detected in source, starting cycle early")
		return true
	case <-ctx.Done():
		return false
	}
}
