package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return RunVersion(c.OutOrStdout())
		},
	}
}

// RunVersion prints the application version.
func RunVersion(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s version %s (%s/%s)\n", buildinfo.Name, buildinfo.Version, runtime.GOOS, runtime.GOARCH)
	return err
}
