package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

// Stage selects which command list of a Plan runs.
type Stage string

const (
	PreCycle  Stage = "pre-cycle"
	PostCycle Stage = "post-cycle"
)

// Plan holds the shell commands run around every cycle.
// SECURITY: commands are executed as provided. They must come from a trusted source.
type Plan struct {
	Enabled bool

	PreCycleCommands  []string
	PostCycleCommands []string

	DryRun   bool
	FailFast bool
}

func (p *Plan) commands(stage Stage) []string {
	switch stage {
	case PreCycle:
		return p.PreCycleCommands
	case PostCycle:
		return p.PostCycleCommands
	default:
		return nil
	}
}

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewHookExecutor creates a HookExecutor. A nil commandContext uses exec.CommandContext.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &HookExecutor{commandContext: commandContext}
}

// Run executes the commands of stage in order. env entries ("KEY=value") are
// added to the inherited environment of every command. Without FailFast a
// failing command is logged and the remaining commands still run.
func (e *HookExecutor) Run(ctx context.Context, stage Stage, p *Plan, env []string) error {
	if p == nil || !p.Enabled {
		return ErrDisabled
	}
	commands := p.commands(stage)
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info(fmt.Sprintf("Running %s hook commands", stage))

	for _, hookCommand := range commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.DryRun {
			plog.Info("[DRY RUN] Executing command", "command", hookCommand)
			continue
		}
		plog.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		cmd.Env = append(cmd.Environ(), env...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// A cancelled context kills the command; report the cancellation, not the exit status.
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			if p.FailFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			plog.Warn("Hook command failed", "stage", stage, "command", hookCommand, "error", err)
		}
	}
	return nil
}
