//go:build !cgo || !(linux || darwin)

package jit

import "runtime"

// DLLoader needs cgo and dlopen.
type DLLoader struct{}

func (DLLoader) Open(path string) (Library, error) {
	return nil, &LoadError{Path: path, Msg: "dynamic loading is not available on " + runtime.GOOS + " without cgo"}
}
