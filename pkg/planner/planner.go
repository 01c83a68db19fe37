// Package planner turns a validated configuration into the concrete settings
// each component of a mirror run is built from.
package planner

import (
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/fingerprint"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/logfile"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
)

type DigestCachePlan struct {
	Size int
	TTL  time.Duration
}

type WatchPlan struct {
	Enabled  bool
	Debounce time.Duration
}

type MirrorPlan struct {
	Mode   Mode
	DryRun bool

	Source   string
	Replica  string
	LogPath  string
	Interval time.Duration

	Algorithm   fingerprint.Algorithm
	Workers     int
	DigestCache DigestCachePlan
	Watch       WatchPlan

	Preflight *preflight.Plan
	Log       logfile.Policy
	Hooks     *hook.Plan // nil when no hook is configured
}

// GenerateMirrorPlan builds the plan for mode. cfg must already be validated.
func GenerateMirrorPlan(cfg config.Config, mode Mode) (*MirrorPlan, error) {
	algo, err := fingerprint.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	plan := &MirrorPlan{
		Mode:      mode,
		DryRun:    cfg.Engine.DryRun,
		Source:    cfg.Source,
		Replica:   cfg.Replica,
		LogPath:   cfg.Log.Path,
		Interval:  cfg.IntervalDuration(),
		Algorithm: algo,
		Workers:   cfg.Engine.Workers,
		Log:       cfg.LogPolicy(),
		Hooks:     cfg.HookPlan(),
		Preflight: preflight.DefaultPlan(),
	}
	if cfg.Engine.DigestCacheSize > 0 {
		plan.DigestCache = DigestCachePlan{Size: cfg.Engine.DigestCacheSize, TTL: cfg.DigestCacheTTL()}
	}

	switch mode {
	case Loop:
		plan.Watch = WatchPlan{Enabled: cfg.Engine.Watch, Debounce: cfg.WatchDebounce()}
		if plan.Interval <= 0 {
			return nil, fmt.Errorf("loop mode needs a positive interval, got %s", plan.Interval)
		}
	case Once:
		// A single cycle has no sleep to shorten.
	case Listing:
		// Listing only reads both trees.
		plan.DryRun = true
		plan.Preflight.ReplicaWritable = false
		plan.Hooks = nil
		plan.LogPath = ""
	default:
		return nil, fmt.Errorf("unsupported mode: %s", mode)
	}

	if plan.Hooks != nil {
		plan.Hooks.DryRun = plan.DryRun
	}
	return plan, nil
}
