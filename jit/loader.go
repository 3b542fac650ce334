package jit

import "unsafe"

// Library is a loaded shared object.
type Library interface {
	Path() string
	// Symbol returns the address of name, or a *LoadError.
	Symbol(name string) (unsafe.Pointer, error)
	// Invoke calls fn as int fn(void** args).
	Invoke(fn unsafe.Pointer, args []unsafe.Pointer) int
	// Parallel returns the parallel runtime the library links against,
	// or nil when it has none.
	Parallel() ParallelRuntime
	Close() error
}

// Loader opens shared objects produced by the toolchain.
type Loader interface {
	Open(path string) (Library, error)
}
