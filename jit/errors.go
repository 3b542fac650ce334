package jit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStaticLibrary = errors.New("compiling to a static library is not supported")
	ErrNotCompiled   = errors.New("module has no loaded library")
	ErrSessionFailed = errors.New("module is in a failed state")
	ErrNoFunctions   = errors.New("module has no functions or source")
	ErrHostMemory    = errors.New("argument lives in host memory the device cannot read")
)

// ToolchainError is a failed external compiler, assembler or linker run.
type ToolchainError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolchainError) Unwrap() error { return e.Err }

func (e *ToolchainError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("compilation command failed (exit %d): %s\n%s", e.ExitCode, strings.Join(e.Args, " "), msg)
}

// LoadError reports a failure to open a library or resolve one of its symbols.
type LoadError struct {
	Path   string
	Symbol string
	Msg    string
}

func (e *LoadError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("symbol %s not found in %s: %s", e.Symbol, e.Path, e.Msg)
	}
	return fmt.Sprintf("failed to load generated code %s: %s", e.Path, e.Msg)
}

// CallError is a packed invocation that returned a non-zero status.
type CallError struct {
	Symbol string
	Status int
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Symbol, e.Status)
}
