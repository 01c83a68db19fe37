package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/compare"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/engine"
	"github.com/paulschiretz/pgl-mirror/pkg/event"
	"github.com/paulschiretz/pgl-mirror/pkg/fingerprint"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
	"github.com/paulschiretz/pgl-mirror/pkg/fswatch"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/lockfile"
	"github.com/paulschiretz/pgl-mirror/pkg/logfile"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/mirror"
	"github.com/paulschiretz/pgl-mirror/pkg/planner"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
)

func newRunCommand(global *flagparse.Flags) *cobra.Command {
	c := &cobra.Command{
		Use:   "run [SOURCE REPLICA LOG INTERVAL]",
		Short: "Mirror the source into the replica every interval until stopped",
		Args:  cobra.MaximumNArgs(len(flagparse.PositionalNames)),
	}
	local := flagparse.Register(flagparse.Run, c.Flags())
	c.RunE = func(c *cobra.Command, args []string) error {
		flagMap, err := collect(global, local, args)
		if err != nil {
			return err
		}
		return RunMirror(c.Context(), flagMap, planner.Loop)
	}
	return c
}

// loadRunConfig loads the config file named by --config and overlays the flags.
func loadRunConfig(command flagparse.Command, flagMap map[string]any) (config.Config, error) {
	cfgPath, _ := flagMap["config"].(string)
	loaded, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return config.MergeConfigWithFlags(command, loaded, flagMap), nil
}

// RunMirror handles the logic for the mirror loop, or a single cycle with --once.
func RunMirror(ctx context.Context, flagMap map[string]any, mode planner.Mode) (err error) {
	if once, _ := flagMap["once"].(bool); once {
		mode = planner.Once
	}

	runConfig, err := loadRunConfig(flagparse.Run, flagMap)
	if err != nil {
		return err
	}
	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}
	plan, err := planner.GenerateMirrorPlan(runConfig, mode)
	if err != nil {
		return err
	}

	// The log file must not be created inside a root, so nesting is checked before it is opened.
	if err := preflight.CheckPathNesting(plan.Source, plan.Replica, plan.LogPath); err != nil {
		return err
	}
	logFile, err := logfile.Open(plan.LogPath, plan.Log)
	if err != nil {
		return &syncerr.ConfigError{Field: "log.path", Msg: fmt.Sprintf("Cannot open log file '%s'", plan.LogPath), Err: err}
	}
	defer logFile.Close()

	quiet, _ := flagMap["quiet"].(bool)
	previous, previousQuiet := plog.Logger(), plog.IsQuiet()
	logger := plog.Setup(plog.Options{File: logFile, Level: plog.LevelFromString(runConfig.Log.Level), Quiet: quiet})
	defer func() {
		plog.SetLogger(previous)
		plog.SetQuiet(previousQuiet)
	}()
	// From here on failures must reach the log file before it is closed.
	defer func() {
		if err != nil {
			ReportError(err)
			err = &LoggedError{Err: err}
		}
	}()

	plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "mode", plan.Mode)
	runConfig.LogSummary()

	if err := preflight.Run(plan.Preflight, plan.Source, plan.Replica, plan.LogPath); err != nil {
		return err
	}

	lock, err := lockfile.Acquire(plan.Replica, buildinfo.Name)
	if err != nil {
		return err
	}
	defer lock.Release()

	clock := clockwork.NewRealClock()
	sink := event.NewLogSink(logger)
	runner, cleanup, err := buildRunner(ctx, plan, afero.NewOsFs(), sink, clock)
	if err != nil {
		return err
	}
	defer cleanup()

	startTime := time.Now()
	switch plan.Mode {
	case planner.Once:
		report, err := runner.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n := report.FailedItems(); n > 0 {
			return fmt.Errorf("%d files could not be synchronized", n)
		}
	default:
		if err := runner.Run(ctx); err != nil {
			return err
		}
	}
	plog.Info(buildinfo.Name+" stopped.", "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}

// buildRunner wires the comparator, executor and the optional hooks and
// watcher for plan. cleanup stops the watcher.
func buildRunner(ctx context.Context, plan *planner.MirrorPlan, fs afero.Fs, sink event.Sink, clock clockwork.Clock) (*engine.Runner, func(), error) {
	m := &metrics.CycleMetrics{}

	var fpOpts []fingerprint.Option
	if plan.DigestCache.Size > 0 {
		fpOpts = append(fpOpts, fingerprint.WithCache(plan.DigestCache.Size, plan.DigestCache.TTL))
	}
	fp, err := fingerprint.New(fs, plan.Algorithm, fpOpts...)
	if err != nil {
		return nil, nil, err
	}

	comparator := compare.New(fs, fp, m)
	executor := mirror.New(fs, mirror.Options{
		SourceRoot:  plan.Source,
		ReplicaRoot: plan.Replica,
		Workers:     plan.Workers,
		DryRun:      plan.DryRun,
	}, sink, clock, m)

	opts := []engine.RunnerOption{engine.WithClock(clock), engine.WithMetrics(m)}
	if plan.Hooks != nil {
		opts = append(opts, engine.WithHooks(hook.NewHookExecutor(nil), plan.Hooks))
	}

	cleanup := func() {}
	if plan.Watch.Enabled {
		w, err := fswatch.New(plan.Source, plan.Watch.Debounce, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to watch source: %w", err)
		}
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, fswatch.ErrWatcherClosed) {
				plog.Warn("Source watcher stopped", "error", err)
			}
		}()
		cleanup = func() { _ = w.Close() }
		opts = append(opts, engine.WithWake(w.Changes()))
	}

	runner := engine.NewRunner(engine.Options{
		SourceRoot:  plan.Source,
		ReplicaRoot: plan.Replica,
		Interval:    plan.Interval,
	}, comparator, executor, sink, opts...)
	return runner, cleanup, nil
}
