package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func newInitCommand(global *flagparse.Flags) *cobra.Command {
	c := &cobra.Command{
		Use:   "init [SOURCE REPLICA LOG INTERVAL]",
		Short: "Write a configuration file with the defaults and the given values",
		Long: "Write a configuration file with the defaults and the given values.\n" +
			"The file is written to --config, or " + config.DefaultConfigFileName + " in the current directory.",
		Args: cobra.MaximumNArgs(len(flagparse.PositionalNames)),
	}
	local := flagparse.Register(flagparse.Init, c.Flags())
	c.RunE = func(c *cobra.Command, args []string) error {
		flagMap, err := collect(global, local, args)
		if err != nil {
			return err
		}
		return RunInit(c.InOrStdin(), c.OutOrStdout(), flagMap)
	}
	return c
}

// RunInit generates a config file. An existing file is only replaced with
// --force or after the user confirms.
func RunInit(in io.Reader, out io.Writer, flagMap map[string]any) error {
	path, _ := flagMap["config"].(string)
	if path == "" {
		path = config.DefaultConfigFileName
	}
	force, _ := flagMap["force"].(bool)

	if _, err := os.Stat(path); err == nil && !force {
		if !PromptForConfirmation(in, out, fmt.Sprintf("Configuration file %s already exists. Overwrite it?", path), false) {
			plog.Info("Init aborted, existing configuration kept", "path", path)
			return nil
		}
		force = true
	}

	initConfig := config.MergeConfigWithFlags(flagparse.Init, config.NewDefault(), flagMap)
	return config.Generate(path, initConfig, force)
}

// PromptForConfirmation asks a yes/no question on out and reads the answer from in.
func PromptForConfirmation(in io.Reader, out io.Writer, prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s: ", prompt, suffix)

	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
