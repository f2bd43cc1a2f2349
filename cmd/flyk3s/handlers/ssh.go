package handlers

import (
	"context"
	"os"
	"os/exec"

	"github.com/flyk3s/flyk3s/internal/util/prerequisites"
)

// Factory function variables for ssh - can be replaced in tests.
var (
	checkTools  = prerequisites.Check
	execCommand = exec.CommandContext
)

// SSH handles the -s operation: it opens an interactive console into a
// node of the control plane ("cp") or a worker group. The session is a
// pass-through to the platform CLI, which owns the WireGuard transport.
func SSH(ctx context.Context, configDir, target string) error {
	orch, _, err := newOrchestrator(configDir)
	if err != nil {
		return err
	}

	if err := checkTools(prerequisites.ConsoleTools()); err != nil {
		return err
	}

	app := orch.TargetApp(target)
	cmd := execCommand(ctx, "fly", "ssh", "console", "-a", app)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
