package jit

// Arch selects the generation path.
type Arch int

const (
	// C99 generates portable C (or CUDA when enabled).
	C99 Arch = iota
	// Native generates LLVM bitcode for the host and assembles it with llc.
	Native
)

func (a Arch) String() string {
	if a == Native {
		return "native"
	}
	return "c99"
}

// Target names the architecture and the C compiler used to build the
// shared library. CompilerEnv is the environment variable that overrides
// Compiler.
type Target struct {
	Arch        Arch
	Compiler    string
	CompilerEnv string
}

func DefaultTarget() Target {
	return Target{Arch: C99, Compiler: "cc", CompilerEnv: "TACO_CC"}
}
