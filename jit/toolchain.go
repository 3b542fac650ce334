package jit

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// Command is one external toolchain invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner executes toolchain commands. A failed run is reported as a
// *ToolchainError.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes. Stdout, when set, receives
// the command's standard output; standard error is captured into the
// returned error.
type ExecRunner struct {
	Stdout io.Writer
}

func (r ExecRunner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Stdout = r.Stdout
	var stderr strings.Builder
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ToolchainError{Args: cmd.Argv(), ExitCode: code, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// splitFlags splits a flag string on whitespace. Quoting is not
// interpreted.
func splitFlags(s string) []string {
	return strings.Fields(s)
}
