package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulschiretz/pgl-mirror/cmd"
)

// run encapsulates the main application logic and returns an error if something
// goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context, args []string) error {
	root := cmd.NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func main() {
	// Cancel the context on Ctrl+C or a service stop; the loop exits after the current cycle's in-flight copies finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		var logged *cmd.LoggedError
		if !errors.As(err, &logged) {
			cmd.ReportError(err)
		}
		os.Exit(1)
	}
}
