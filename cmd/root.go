// Package cmd holds the cobra commands of the pgl-mirror binary.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
	"github.com/paulschiretz/pgl-mirror/pkg/planner"
)

// NewRootCommand builds the command tree. Without a subcommand the root
// behaves like "run", so the classic "SOURCE REPLICA LOG INTERVAL" form works.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   buildinfo.BinaryName + " [SOURCE REPLICA LOG INTERVAL]",
		Short: "Periodically mirror a source directory into a replica",
		Long: buildinfo.Name + " makes a replica directory converge to an exact copy of a source directory.\n" +
			"Files are compared by content hash, missing or changed files are copied and files that\n" +
			"only exist in the replica are deleted. The pass repeats after every interval.",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(len(flagparse.PositionalNames)),
	}

	global := flagparse.RegisterGlobal(root.PersistentFlags())
	rootRun := flagparse.Register(flagparse.Run, root.Flags())
	root.RunE = func(c *cobra.Command, args []string) error {
		flagMap, err := collect(global, rootRun, args)
		if err != nil {
			return err
		}
		return RunMirror(c.Context(), flagMap, planner.Loop)
	}

	root.AddCommand(
		newRunCommand(global),
		newPlanCommand(global),
		newInitCommand(global),
		newVersionCommand(),
	)
	return root
}

// collect merges the global and the command flags the user set.
func collect(global, local *flagparse.Flags, args []string) (map[string]any, error) {
	flagMap, err := local.ToMap(args)
	if err != nil {
		return nil, err
	}
	globalMap, err := global.ToMap(nil)
	if err != nil {
		return nil, err
	}
	for k, v := range globalMap {
		flagMap[k] = v
	}
	return flagMap, nil
}
