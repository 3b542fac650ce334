package jit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/thiremani/tensorjit/codegen"
	"github.com/thiremani/tensorjit/ir"
	"tinygo.org/x/go-llvm"
)

// State is the lifecycle position of a Module.
type State int

const (
	Empty State = iota
	FunctionsAdded
	SourceGenerated
	ToolchainInvoked
	Loaded
	// Fatal is terminal: the toolchain or the loader failed.
	Fatal
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case FunctionsAdded:
		return "functions-added"
	case SourceGenerated:
		return "source-generated"
	case ToolchainInvoked:
		return "toolchain-invoked"
	case Loaded:
		return "loaded"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type genPath int

const (
	pathC genPath = iota
	pathCUDA
	pathLLVM
)

func (p genPath) String() string {
	return [...]string{"c99", "cuda", "llvm"}[p]
}

// llvmModuleName is fixed so that the textual IR, and with it the cache
// key, does not depend on the session stem.
const llvmModuleName = "tensorjit"

type Option func(*Module)

// WithRand sets the source of library stems.
func WithRand(r *rand.Rand) Option { return func(m *Module) { m.rng = r } }

func WithTarget(t Target) Option { return func(m *Module) { m.target = t } }

func WithRunner(r Runner) Option { return func(m *Module) { m.runner = r } }

func WithLoader(l Loader) Option { return func(m *Module) { m.loader = l } }

func WithLogger(l *slog.Logger) Option { return func(m *Module) { m.log = l } }

// WithParallel sets the configuration applied around packed calls.
func WithParallel(p ParallelConfig) Option { return func(m *Module) { m.parallel = p } }

func WithCache(c *Cache) Option { return func(m *Module) { m.cache = c } }

// Module collects functions, builds them into a shared library in a
// private temporary directory and calls into the loaded library. A Module
// is not safe for concurrent use.
type Module struct {
	cfg      Config
	target   Target
	rng      *rand.Rand
	runner   Runner
	loader   Loader
	log      *slog.Logger
	parallel ParallelConfig
	// threads is the count given to WithParallel; zero defers to Config
	threads int
	cache   *Cache

	funcs          []*ir.Function
	dir            string
	stem           string
	header         string
	source         string
	fromUserSource bool

	lib     Library
	libPath string
	// built is the generation path of the loaded library
	built   genPath
	state   State
	failure error
}

func New(cfg Config, opts ...Option) (*Module, error) {
	m := &Module{
		cfg:    cfg,
		target: DefaultTarget(),
		runner: ExecRunner{},
		loader: DLLoader{},
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = defaultRand()
	}
	m.threads = m.parallel.NumThreads

	env, err := cfg.WithEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	m.applyThreads(env)
	dir, err := os.MkdirTemp(env.tmpDir(), "taco")
	if err != nil {
		return nil, fmt.Errorf("create module dir: %w", err)
	}
	m.dir = dir
	m.stem = newStem(m.rng)
	return m, nil
}

func (m *Module) applyThreads(cfg Config) {
	if m.threads == 0 {
		m.parallel.NumThreads = cfg.NumThreads
	}
}

func (m *Module) State() State { return m.state }

// Dir is the module's private temporary directory.
func (m *Module) Dir() string  { return m.dir }
func (m *Module) Stem() string { return m.stem }

// Source is the generated implementation: C or CUDA source, or textual
// LLVM IR on the native path.
func (m *Module) Source() string { return m.source }
func (m *Module) Header() string { return m.header }

// Err returns the failure that made the module fatal.
func (m *Module) Err() error { return m.failure }

func (m *Module) AddFunction(fn *ir.Function) error {
	if m.state == Fatal {
		return ErrSessionFailed
	}
	if fn == nil {
		return errors.New("add function: nil function")
	}
	m.funcs = append(m.funcs, fn)
	m.state = FunctionsAdded
	return nil
}

// SetSource appends hand-written source. The module then compiles that
// source as given instead of generating code for its functions; the
// functions still get shims.
func (m *Module) SetSource(src string) error {
	if m.state == Fatal {
		return ErrSessionFailed
	}
	m.source += src
	m.fromUserSource = true
	m.state = SourceGenerated
	return nil
}

// CompileToSource generates code for the added functions and writes the
// source, header and shims (plus bitcode on the native path) as
// dir/prefix.* without running the toolchain.
func (m *Module) CompileToSource(dir, prefix string) error {
	if m.state == Fatal {
		return ErrSessionFailed
	}
	if len(m.funcs) == 0 && !m.fromUserSource {
		return ErrNoFunctions
	}
	if prefix == "" || strings.ContainsRune(prefix, filepath.Separator) {
		return fmt.Errorf("compile to source: invalid prefix %q", prefix)
	}
	cfg, err := m.cfg.WithEnv(os.LookupEnv)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("compile to source: %w", err)
	}
	full := filepath.Join(dir, prefix)
	p := m.pathFor(cfg)
	if err := m.generate(p, full); err != nil {
		return err
	}
	if _, _, err := m.writeFiles(p, full); err != nil {
		return err
	}
	if m.state < SourceGenerated {
		m.state = SourceGenerated
	}
	m.log.Debug("wrote sources", "path", p, "prefix", full)
	return nil
}

func (m *Module) CompileToStaticLibrary() error {
	return ErrStaticLibrary
}

func (m *Module) pathFor(cfg Config) genPath {
	switch {
	case cfg.UseCUDA:
		return pathCUDA
	case m.fromUserSource:
		return pathC
	case m.target.Arch != C99 || cfg.UseLLVM:
		return pathLLVM
	}
	return pathC
}

func (m *Module) compiler(cfg Config) string {
	if m.target.CompilerEnv != "" {
		if cc, ok := os.LookupEnv(m.target.CompilerEnv); ok && cc != "" {
			return cc
		}
	}
	if cfg.CC != "" {
		return cfg.CC
	}
	if m.target.Compiler != "" {
		return m.target.Compiler
	}
	return "cc"
}

// generate fills source and header and, on the native path, writes the
// bitcode file.
func (m *Module) generate(p genPath, prefix string) error {
	cuda := p == pathCUDA
	newC := codegen.NewCBackend
	if cuda {
		newC = codegen.NewCUDABackend
	}

	hdr := newC(codegen.Header)
	for i, fn := range m.funcs {
		if err := hdr.Compile(fn, i == 0); err != nil {
			return fmt.Errorf("generate header: %w", err)
		}
	}
	m.header = hdr.Source()
	if m.fromUserSource {
		return nil
	}

	switch p {
	case pathLLVM:
		b := codegen.NewLLVMBackend(llvmModuleName)
		defer b.Dispose()
		for i, fn := range m.funcs {
			if err := b.Compile(fn, i == 0); err != nil {
				return fmt.Errorf("generate %s: %w", fn.Name, err)
			}
		}
		b.SetTarget(llvm.DefaultTargetTriple())
		if err := b.WriteBitcode(prefix + ".bc"); err != nil {
			return err
		}
		m.source = b.IR()
	default:
		src := newC(codegen.Implementation)
		for i, fn := range m.funcs {
			if err := src.Compile(fn, i == 0); err != nil {
				return fmt.Errorf("generate %s: %w", fn.Name, err)
			}
		}
		m.source = src.Source()
	}
	return nil
}

// writeFiles writes source, header and shims and returns the inputs of
// the final compile command.
func (m *Module) writeFiles(p genPath, prefix string) (inputs []string, shims string, err error) {
	shims, err = codegen.GenerateShims(m.funcs, p == pathCUDA, prefix+".h")
	if err != nil {
		return nil, "", err
	}
	write := func(path, text string) {
		if err == nil {
			err = os.WriteFile(path, []byte(text), 0o644)
		}
	}
	write(prefix+".h", m.header)
	switch p {
	case pathCUDA:
		write(prefix+".cu", m.source)
		write(prefix+"_shims.cpp", shims)
		inputs = []string{prefix + ".cu", prefix + "_shims.cpp"}
	case pathLLVM:
		// the object holds the kernels; the C file only the shims
		write(prefix+".c", shims)
		inputs = []string{prefix + ".o", prefix + ".c"}
	default:
		write(prefix+".c", m.source+"\n"+shims)
		inputs = []string{prefix + ".c"}
	}
	if err != nil {
		return nil, "", fmt.Errorf("write sources: %w", err)
	}
	return inputs, shims, nil
}

func (m *Module) commands(cfg Config, p genPath, prefix string, inputs []string) []Command {
	lib := prefix + ".so"
	if p == pathCUDA {
		flags := cfg.NVCCFlags
		if flags == "" {
			flags = DefaultNVCCFlags
		}
		args := append(splitFlags(flags), inputs...)
		args = append(args, "-o", lib, "-lm")
		return []Command{{Name: cfg.NVCC, Args: args}}
	}

	var cmds []Command
	flags := cfg.CFlags
	if flags == "" {
		flags = DefaultCFlags
		if p == pathLLVM {
			flags = DefaultLLVMCFlags
		}
	}
	if p == pathLLVM {
		cmds = append(cmds, Command{
			Name: cfg.LLC,
			Args: []string{"--filetype=obj", "-relocation-model=pic", prefix + ".bc", "-o", prefix + ".o"},
		})
	}
	args := append(splitFlags(flags), "-shared", "-fPIC")
	if cfg.UseOpenMP {
		args = append(args, "-fopenmp")
	}
	args = append(args, inputs...)
	args = append(args, "-o", lib, "-lm")
	return append(cmds, Command{Name: m.compiler(cfg), Args: args})
}

func (m *Module) fail(err error) (string, error) {
	m.state = Fatal
	m.failure = err
	m.log.Error("module failed", "stem", m.stem, "err", err)
	return "", err
}

// Compile generates code for every added function, builds the shared
// library and loads it, replacing any library loaded before. It returns
// the library path. Toolchain and load failures leave the module Fatal.
func (m *Module) Compile(ctx context.Context) (string, error) {
	if m.state == Fatal {
		return "", ErrSessionFailed
	}
	if len(m.funcs) == 0 && !m.fromUserSource {
		return "", ErrNoFunctions
	}
	cfg, err := m.cfg.WithEnv(os.LookupEnv)
	if err != nil {
		return "", err
	}
	m.applyThreads(cfg)
	cache := m.cache
	if cache == nil && cfg.CacheDir != "" {
		if cache, err = OpenCache(cfg.CacheDir); err != nil {
			return "", err
		}
		m.cache = cache
	}

	// dlopen returns the old handle for a path it already has open
	if m.lib != nil {
		m.stem = newStem(m.rng)
	}
	prefix := filepath.Join(m.dir, m.stem)
	p := m.pathFor(cfg)
	m.log.Debug("generating code", "path", p, "functions", len(m.funcs), "prefix", prefix)

	if err := m.generate(p, prefix); err != nil {
		return "", err
	}
	inputs, shims, err := m.writeFiles(p, prefix)
	if err != nil {
		return "", err
	}
	m.state = SourceGenerated

	cmds := m.commands(cfg, p, prefix, inputs)
	libPath := prefix + ".so"

	var key string
	hit := false
	if cache != nil {
		parts := []string{p.String(), m.source, m.header, shims}
		for _, cmd := range cmds {
			parts = append(parts, strings.Join(cmd.Argv(), "\x00"))
		}
		for i := range parts {
			parts[i] = strings.ReplaceAll(parts[i], prefix, "$PREFIX")
		}
		key = cacheKey(parts...)
		if hit, err = cache.Get(key, libPath); err != nil {
			m.log.Warn("cache lookup failed", "err", err)
			hit = false
		}
	}

	if hit {
		m.log.Info("using cached library", "dir", cache.Dir(), "key", key[:12])
	} else {
		for _, cmd := range cmds {
			m.log.Info("running toolchain", "cmd", cmd.String())
			if err := m.runner.Run(ctx, cmd); err != nil {
				if ctx.Err() != nil {
					return "", err
				}
				return m.fail(err)
			}
		}
		m.state = ToolchainInvoked
		if cache != nil {
			if err := cache.Put(key, libPath, cmds[len(cmds)-1].Argv()); err != nil {
				m.log.Warn("cache store failed", "dir", cache.Dir(), "err", err)
			}
		}
	}

	if m.lib != nil {
		if err := m.lib.Close(); err != nil {
			m.log.Warn("closing previous library", "path", m.libPath, "err", err)
		}
		m.lib = nil
	}
	lib, err := m.loader.Open(libPath)
	if err != nil {
		return m.fail(err)
	}
	m.lib = lib
	m.libPath = libPath
	m.built = p
	m.state = Loaded
	m.log.Debug("library loaded", "path", libPath)
	return libPath, nil
}

// LibPath is the path of the loaded library, or empty.
func (m *Module) LibPath() string { return m.libPath }

// FuncPtr returns the address of name in the loaded library, or nil.
func (m *Module) FuncPtr(name string) unsafe.Pointer {
	if m.lib == nil {
		return nil
	}
	p, err := m.lib.Symbol(name)
	if err != nil {
		return nil
	}
	return p
}

// CallPackedRaw calls symbol as int symbol(void** args) with the module's
// parallel configuration in effect. The previous configuration is back in
// place when it returns or panics.
func (m *Module) CallPackedRaw(symbol string, args []unsafe.Pointer) (int, error) {
	if m.state == Fatal {
		return 0, ErrSessionFailed
	}
	if m.lib == nil {
		return 0, ErrNotCompiled
	}
	fn, err := m.lib.Symbol(symbol)
	if err != nil {
		return 0, err
	}

	parallelMu.Lock()
	defer parallelMu.Unlock()
	restore := overrideParallel(m.lib.Parallel(), m.parallel)
	defer restore()

	status := m.lib.Invoke(fn, args)
	if status != 0 {
		return status, &CallError{Symbol: symbol, Status: status}
	}
	return 0, nil
}

// CallPacked calls the packed shim of the generated function name.
func (m *Module) CallPacked(name string, args []unsafe.Pointer) (int, error) {
	return m.CallPackedRaw(codegen.ShimName(name), args)
}

// Arg is anything that can occupy a parameter pack slot.
type Arg interface {
	Ptr() unsafe.Pointer
}

// hostArg is an Arg whose memory only the CPU can read.
type hostArg interface {
	hostMemory() bool
}

// Call packs args, outputs first, and calls the shim of name.
func (m *Module) Call(name string, args ...Arg) error {
	pack := make([]unsafe.Pointer, len(args))
	for i, a := range args {
		if h, ok := a.(hostArg); ok && h.hostMemory() && m.lib != nil && m.built == pathCUDA {
			return fmt.Errorf("call %s: argument %d: %w", name, i, ErrHostMemory)
		}
		pack[i] = a.Ptr()
	}
	_, err := m.CallPacked(name, pack)
	return err
}

// Close unloads the library and removes the module directory.
func (m *Module) Close() error {
	var errs []error
	if m.lib != nil {
		errs = append(errs, m.lib.Close())
		m.lib = nil
	}
	if m.dir != "" {
		errs = append(errs, os.RemoveAll(m.dir))
		m.dir = ""
	}
	return errors.Join(errs...)
}
