package tools

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os/exec"
	"time"
)

// Exit codes reported when the program never started, following the shell.
const (
	ExitNotExecutable int32 = 126
	ExitNotFound      int32 = 127
)

// CommandRunner abstracts program execution for the run handler.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, output io.Writer) (int32, error)
}

// ExecRunner executes programs on the local host. Stdout and stderr share
// one output writer. Cancelling ctx kills the process.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after a kill.
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string, output io.Writer) (int32, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = time.Second
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return int32(exitErr.ExitCode()), err
	}

	var execErr *exec.Error
	switch {
	case errors.As(err, &execErr), errors.Is(err, fs.ErrNotExist):
		return ExitNotFound, err
	case errors.Is(err, fs.ErrPermission):
		return ExitNotExecutable, err
	}
	return 1, err
}
