package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/compare"
	"github.com/paulschiretz/pgl-mirror/pkg/fingerprint"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/planner"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
	"github.com/paulschiretz/pgl-mirror/pkg/syncerr"
)

func newPlanCommand(global *flagparse.Flags) *cobra.Command {
	c := &cobra.Command{
		Use:   "plan [SOURCE REPLICA]",
		Short: "List the files the next cycle would copy and delete, without changing anything",
		Args:  cobra.MaximumNArgs(2),
	}
	local := flagparse.Register(flagparse.Plan, c.Flags())
	c.RunE = func(c *cobra.Command, args []string) error {
		flagMap, err := collect(global, local, args)
		if err != nil {
			return err
		}
		return RunPlan(c.Context(), c.OutOrStdout(), flagMap)
	}
	return c
}

// PlanSummary counts the entries printed by RunPlan.
type PlanSummary struct {
	Copy   int
	Delete int
	Errors int
}

// RunPlan writes one "copy <rel>" or "delete <rel>" line per pending action to w.
func RunPlan(ctx context.Context, w io.Writer, flagMap map[string]any) error {
	_, err := runPlan(ctx, w, afero.NewOsFs(), flagMap)
	return err
}

func runPlan(ctx context.Context, w io.Writer, fs afero.Fs, flagMap map[string]any) (PlanSummary, error) {
	var summary PlanSummary

	planConfig, err := loadRunConfig(flagparse.Plan, flagMap)
	if err != nil {
		return summary, err
	}
	if err := planConfig.Validate(false); err != nil {
		return summary, err
	}
	plog.SetLevel(plog.LevelFromString(planConfig.Log.Level))
	if quiet, _ := flagMap["quiet"].(bool); quiet {
		plog.SetQuiet(true)
		defer plog.SetQuiet(false)
	}

	plan, err := planner.GenerateMirrorPlan(planConfig, planner.Listing)
	if err != nil {
		return summary, err
	}
	if err := preflight.Run(plan.Preflight, plan.Source, plan.Replica, ""); err != nil {
		return summary, err
	}

	fp, err := fingerprint.New(fs, plan.Algorithm)
	if err != nil {
		return summary, err
	}
	comparator := compare.New(fs, fp, &metrics.NoopMetrics{})

	list := func(verb string, seq func(yield func(string, error) bool), count *int) error {
		for rel, err := range seq {
			if err != nil {
				if syncerr.IsCycleError(err) {
					return err
				}
				plog.Warn("Cannot decide on file", "path", rel, "error", err)
				summary.Errors++
				continue
			}
			*count++
			if _, err := fmt.Fprintf(w, "%s %s\n", verb, rel); err != nil {
				return err
			}
		}
		return nil
	}

	if err := list("copy", comparator.FilesToCopy(ctx, plan.Source, plan.Replica), &summary.Copy); err != nil {
		return summary, err
	}
	if err := list("delete", comparator.FilesToDelete(ctx, plan.Replica, plan.Source), &summary.Delete); err != nil {
		return summary, err
	}

	plog.Info("Plan complete", "copy", summary.Copy, "delete", summary.Delete, "errors", summary.Errors)
	return summary, nil
}
