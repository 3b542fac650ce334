// Package codegen lowers ir functions to portable C, CUDA or in-memory LLVM
// IR, and generates the packed-argument shims the jit package calls
// through.
package codegen

import (
	"errors"
	"fmt"

	"github.com/thiremani/tensorjit/ir"
)

// Backend generates code for one function at a time. isFirst tells the
// backend to emit file-level boilerplate before the function.
type Backend interface {
	Compile(fn *ir.Function, isFirst bool) error
}

type OutputKind int

const (
	Implementation OutputKind = iota
	Header
)

type ErrorKind int

const (
	// Unsupported marks a valid IR construct the backend does not lower.
	Unsupported ErrorKind = iota
	// Internal marks a state that well-formed IR cannot reach.
	Internal
	// InvalidFunction marks a function the caller built wrong, such as one
	// that names the same parameter twice.
	InvalidFunction
)

func (k ErrorKind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case InvalidFunction:
		return "invalid function"
	}
	return "internal"
}

// Error is the single error type generators return.
type Error struct {
	Kind    ErrorKind
	Backend string
	Node    ir.Node
	Msg     string
	Err     error
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("%s backend: %s: %s (%T)", e.Backend, e.Kind, e.Msg, e.Node)
	}
	return fmt.Sprintf("%s backend: %s: %s", e.Backend, e.Kind, e.Msg)
}

// IsUnsupported reports whether err carries an Unsupported codegen error.
func IsUnsupported(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == Unsupported
}

func unsupported(backend string, n ir.Node, format string, args ...any) {
	panic(&Error{Kind: Unsupported, Backend: backend, Node: n, Msg: fmt.Sprintf(format, args...)})
}

func internal(backend string, n ir.Node, format string, args ...any) {
	panic(&Error{Kind: Internal, Backend: backend, Node: n, Msg: fmt.Sprintf(format, args...)})
}

// catch turns a panicking *Error into a returned error. Any other panic is
// re-raised.
func catch(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ce, ok := r.(*Error); ok {
		*err = ce
		return
	}
	panic(r)
}

// CType returns the C spelling of t.
func CType(t ir.Datatype) string {
	switch t.Kind {
	case ir.BoolKind:
		return "bool"
	case ir.IntKind:
		return fmt.Sprintf("int%d_t", t.Bits)
	case ir.UIntKind:
		return fmt.Sprintf("uint%d_t", t.Bits)
	case ir.FloatKind:
		switch t.Bits {
		case 32:
			return "float"
		case 64:
			return "double"
		}
	case ir.ComplexKind:
		switch t.Bits {
		case 64:
			return "float complex"
		case 128:
			return "double complex"
		}
	}
	return ""
}

// propertyHint is the identifier a canonical property variable is named
// after when the IR node carries no name of its own.
func propertyHint(tensor string, g *ir.GetProperty) string {
	if g.Name != "" {
		return g.Name
	}
	switch g.Property {
	case ir.Order:
		return tensor + "_order"
	case ir.Dimension:
		return fmt.Sprintf("%s%d_dimension", tensor, g.Mode+1)
	case ir.ComponentSize:
		return tensor + "_csize"
	case ir.ModeOrdering:
		return fmt.Sprintf("%s%d_mode_ordering", tensor, g.Mode+1)
	case ir.ModeTypes:
		return fmt.Sprintf("%s%d_mode_type", tensor, g.Mode+1)
	case ir.Indices:
		return fmt.Sprintf("%s%d_idx%d", tensor, g.Mode+1, g.Index)
	case ir.Values:
		return tensor + "_vals"
	case ir.ValuesSize:
		return tensor + "_vals_size"
	}
	return tensor + "_prop"
}

// isPointerProperty reports the properties held as arrays in generated code.
func isPointerProperty(p ir.TensorProperty) bool {
	return p == ir.Values || p == ir.Indices
}

// writesBack reports the properties an output tensor gets back from the
// generated function.
func writesBack(p ir.TensorProperty) bool {
	return p == ir.Values || p == ir.Indices || p == ir.ValuesSize
}

func validateFunction(backend string, fn *ir.Function) {
	if err := fn.Validate(); err != nil {
		panic(&Error{Kind: InvalidFunction, Backend: backend, Node: fn, Msg: err.Error(), Err: err})
	}
	if err := ValidateIdentifier(fn.Name); err != nil {
		unsupported(backend, fn, "function name: %v", err)
	}
	for _, p := range fn.Params() {
		if err := ValidateIdentifier(p.Name); err != nil {
			unsupported(backend, p, "parameter name: %v", err)
		}
	}
}
