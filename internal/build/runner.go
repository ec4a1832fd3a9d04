package build

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner executes one build action. The default implementation runs
// through the system shell; tests and remote dispatchers substitute their
// own.
type CommandRunner interface {
	Run(ctx context.Context, dir, command string, env []string) error
}

type shellRunner struct{}

func (shellRunner) Run(ctx context.Context, dir, command string, env []string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
