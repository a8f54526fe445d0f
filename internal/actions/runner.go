package actions

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes a command. Arguments are passed as a vector; no shell is
// involved.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) error
}

// CommandError carries the stderr of a failed command.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log zerolog.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	r.Log.Debug().Str("cmd", name).Strs("args", args).Msg("exec")
	if err := cmd.Run(); err != nil {
		return &CommandError{
			Command: name + " " + strings.Join(args, " "),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return nil
}

// DryRunner logs commands instead of running them.
type DryRunner struct {
	Log zerolog.Logger
}

func (r DryRunner) Run(_ context.Context, name string, args []string, stdin []byte) error {
	r.Log.Info().Str("cmd", name).Strs("args", args).Int("stdin_bytes", len(stdin)).Msg("dry run, command not executed")
	return nil
}
