package jit

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"unsafe"
)

// fakeRunner records commands and creates the file named after -o.
type fakeRunner struct {
	mu     sync.Mutex
	cmds   []Command
	failOn string
}

func (r *fakeRunner) Run(ctx context.Context, cmd Command) error {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
	if r.failOn != "" && cmd.Name == r.failOn {
		return &ToolchainError{Args: cmd.Argv(), ExitCode: 1, Stderr: "error: boom\n"}
	}
	for i, a := range cmd.Args {
		if a == "-o" && i+1 < len(cmd.Args) {
			if err := os.WriteFile(cmd.Args[i+1], []byte("ELF"), 0o755); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *fakeRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.cmds {
		out = append(out, c.Name)
	}
	return out
}

type fakeParallel struct {
	kind, chunk, threads int
}

func (p *fakeParallel) Schedule() (int, int) { return p.kind, p.chunk }
func (p *fakeParallel) SetSchedule(k, c int) { p.kind, p.chunk = k, c }
func (p *fakeParallel) MaxThreads() int      { return p.threads }
func (p *fakeParallel) SetNumThreads(n int)  { p.threads = n }

var fakeSymbol byte

type fakeLibrary struct {
	path     string
	symbols  []string
	invoke   func(args []unsafe.Pointer) int
	parallel *fakeParallel
	closed   bool
	called   string
}

func (l *fakeLibrary) Path() string { return l.path }

func (l *fakeLibrary) Symbol(name string) (unsafe.Pointer, error) {
	for _, s := range l.symbols {
		if s == name {
			l.called = name
			return unsafe.Pointer(&fakeSymbol), nil
		}
	}
	return nil, &LoadError{Path: l.path, Symbol: name, Msg: "undefined symbol"}
}

func (l *fakeLibrary) Invoke(fn unsafe.Pointer, args []unsafe.Pointer) int {
	if l.invoke == nil {
		return 0
	}
	return l.invoke(args)
}

func (l *fakeLibrary) Parallel() ParallelRuntime {
	if l.parallel == nil {
		return nil
	}
	return l.parallel
}

func (l *fakeLibrary) Close() error {
	l.closed = true
	return nil
}

type fakeLoader struct {
	libs    []*fakeLibrary
	fail    bool
	symbols []string
}

func (f *fakeLoader) Open(path string) (Library, error) {
	if f.fail {
		return nil, &LoadError{Path: path, Msg: "bad ELF"}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Path: path, Msg: err.Error()}
	}
	lib := &fakeLibrary{path: path, symbols: f.symbols}
	f.libs = append(f.libs, lib)
	return lib, nil
}

func (f *fakeLoader) last() *fakeLibrary {
	if len(f.libs) == 0 {
		return nil
	}
	return f.libs[len(f.libs)-1]
}

var errBoom = errors.New("boom")

func hasArgs(args []string, want ...string) bool {
	return strings.Contains(" "+strings.Join(args, " ")+" ", " "+strings.Join(want, " ")+" ")
}
