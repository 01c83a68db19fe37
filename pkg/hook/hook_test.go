package hook_test

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-mirror/pkg/hints"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// TestHelperProcess is a helper for testing exec.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) > 0 && strings.Contains(args[0], "fail") {
		os.Exit(1)
	}
	if len(args) > 0 && strings.Contains(args[0], "check-env") && os.Getenv("PGL_MIRROR_CYCLE") != "cycle-1" {
		os.Exit(2)
	}
	os.Exit(0)
}

func mockExecutor(ctx context.Context, name string, arg ...string) *exec.Cmd {
	// The command line is wrapped in `sh -c` or `cmd /C`; pass only the command through.
	var cmdLine string
	if len(arg) > 1 && (arg[0] == "/C" || arg[0] == "-c") {
		cmdLine = strings.Join(arg[1:], " ")
	} else {
		cmdLine = name + " " + strings.Join(arg, " ")
	}

	cs := []string{"-test.run=TestHelperProcess", "--", cmdLine}
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestHookExecutor(t *testing.T) {
	tests := []struct {
		name          string
		plan          *hook.Plan
		stage         hook.Stage
		expectError   bool
		expectHint    bool
		errorContains string
	}{
		{
			name:  "Pre-cycle success",
			plan:  &hook.Plan{Enabled: true, PreCycleCommands: []string{"echo pre-hook-works"}},
			stage: hook.PreCycle,
		},
		{
			name:  "Post-cycle success",
			plan:  &hook.Plan{Enabled: true, PostCycleCommands: []string{"echo post-hook-works"}},
			stage: hook.PostCycle,
		},
		{
			name:          "Failure with FailFast",
			plan:          &hook.Plan{Enabled: true, PreCycleCommands: []string{"fail this"}, FailFast: true},
			stage:         hook.PreCycle,
			expectError:   true,
			errorContains: "command 'fail this' failed",
		},
		{
			name:  "Failure without FailFast",
			plan:  &hook.Plan{Enabled: true, PostCycleCommands: []string{"fail this", "echo still-runs"}},
			stage: hook.PostCycle,
		},
		{
			name:  "Dry run",
			plan:  &hook.Plan{Enabled: true, PreCycleCommands: []string{"fail should-not-run"}, DryRun: true, FailFast: true},
			stage: hook.PreCycle,
		},
		{
			name:          "Environment is passed",
			plan:  &hook.Plan{Enabled: true, PreCycleCommands: []string{"check-env"}, FailFast: true},
			stage: hook.PreCycle,
		},
		{
			name:        "Disabled",
			plan:        &hook.Plan{Enabled: false, PreCycleCommands: []string{"echo x"}},
			stage:       hook.PreCycle,
			expectError: true,
			expectHint:  true,
		},
		{
			name:        "Nothing to execute",
			plan:        &hook.Plan{Enabled: true},
			stage:       hook.PostCycle,
			expectError: true,
			expectHint:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			executor := hook.NewHookExecutor(mockExecutor)
			err := executor.Run(context.Background(), tc.stage, tc.plan, []string{"PGL_MIRROR_CYCLE=cycle-1"})

			if tc.expectError {
				if err == nil {
					t.Fatal("expected error, but got nil")
				}
				if tc.expectHint != hints.IsHint(err) {
					t.Errorf("expected hint=%v, got error %v", tc.expectHint, err)
				}
				if tc.errorContains != "" && !strings.Contains(err.Error(), tc.errorContains) {
					t.Errorf("expected error to contain %q, but got: %v", tc.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHookExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	executor := hook.NewHookExecutor(mockExecutor)
	err := executor.Run(ctx, hook.PreCycle, &hook.Plan{Enabled: true, PreCycleCommands: []string{"echo x"}}, nil)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
