// Package kernels builds lowered ir functions for a few dense and sparse
// tensor operations. They drive the CLI and the end-to-end tests.
package kernels

import (
	"fmt"
	"sort"

	"github.com/thiremani/tensorjit/ir"
)

// LoopOption adjusts the outermost loop of a kernel.
type LoopOption func(*ir.For)

// Parallel schedules the loop on CPU threads.
func Parallel(kind ir.LoopKind, chunk int) LoopOption {
	return func(f *ir.For) {
		f.Kind = kind
		f.Parallel = ir.CPUThread
		f.Chunk = chunk
	}
}

// OnGPU runs one loop iteration per GPU thread.
func OnGPU() LoopOption {
	return func(f *ir.For) {
		f.Parallel = ir.GPUThread
	}
}

func tensor(name string, t ir.Datatype) *ir.Var {
	return &ir.Var{Name: name, Typ: t, IsTensor: true}
}

func vals(v *ir.Var) *ir.GetProperty {
	return &ir.GetProperty{Tensor: v, Property: ir.Values, Typ: v.Typ}
}

func dim(v *ir.Var, mode int) *ir.GetProperty {
	return &ir.GetProperty{Tensor: v, Property: ir.Dimension, Mode: mode, Typ: ir.Int32}
}

func loop(i *ir.Var, end ir.Expr, body ir.Stmt, opts []LoopOption) *ir.For {
	f := &ir.For{
		Var:       i,
		Start:     ir.Int(0, ir.Int32),
		End:       end,
		Increment: ir.Int(1, ir.Int32),
		Contents:  body,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// VectorAdd computes A[i] = B[i] + C[i] for i below A's first dimension.
func VectorAdd(name string, t ir.Datatype, opts ...LoopOption) *ir.Function {
	A, B, C := tensor("A", t), tensor("B", t), tensor("C", t)
	i := &ir.Var{Name: "i", Typ: ir.Int32}
	body := &ir.Store{
		Arr:  vals(A),
		Loc:  i,
		Data: ir.NewBinary(ir.Add, &ir.Load{Arr: vals(B), Loc: i}, &ir.Load{Arr: vals(C), Loc: i}),
	}
	return &ir.Function{
		Name:    name,
		Outputs: []ir.Expr{A},
		Inputs:  []ir.Expr{B, C},
		Body:    ir.NewBlock(loop(i, dim(A, 0), body, opts)),
	}
}

// Scale computes A[i] = alpha * B[i] with alpha a scalar parameter.
func Scale(name string, t ir.Datatype, opts ...LoopOption) *ir.Function {
	A, B := tensor("A", t), tensor("B", t)
	alpha := &ir.Var{Name: "alpha", Typ: t}
	i := &ir.Var{Name: "i", Typ: ir.Int32}
	body := &ir.Store{
		Arr:  vals(A),
		Loc:  i,
		Data: ir.NewBinary(ir.Mul, alpha, &ir.Load{Arr: vals(B), Loc: i}),
	}
	return &ir.Function{
		Name:    name,
		Outputs: []ir.Expr{A},
		Inputs:  []ir.Expr{B, alpha},
		Body:    ir.NewBlock(loop(i, dim(B, 0), body, opts)),
	}
}

// Dot reduces B and C into A[0].
func Dot(name string, t ir.Datatype) *ir.Function {
	A, B, C := tensor("A", t), tensor("B", t), tensor("C", t)
	i := &ir.Var{Name: "i", Typ: ir.Int32}
	sum := &ir.Var{Name: "sum", Typ: t}
	zero := ir.Int(0, t)
	if t.IsFloat() {
		zero = ir.Float(0, t)
	}
	body := &ir.Assign{
		Lhs: sum,
		Rhs: ir.NewBinary(ir.Mul, &ir.Load{Arr: vals(B), Loc: i}, &ir.Load{Arr: vals(C), Loc: i}),
		Op:  ir.AssignAdd,
	}
	return &ir.Function{
		Name:    name,
		Outputs: []ir.Expr{A},
		Inputs:  []ir.Expr{B, C},
		Body: ir.NewBlock(
			&ir.Comment{Text: "dot product"},
			&ir.VarDecl{Var: sum, Rhs: zero},
			loop(i, dim(B, 0), body, nil),
			&ir.Store{Arr: vals(A), Loc: ir.Int(0, ir.Int32), Data: sum},
		),
	}
}

// CSRMatVec computes y = B x where B is stored with a dense row mode and
// a compressed column mode (pos and crd arrays of mode 1).
func CSRMatVec(name string, t ir.Datatype, opts ...LoopOption) *ir.Function {
	y, B, x := tensor("y", t), tensor("B", t), tensor("x", t)
	pos := &ir.GetProperty{Tensor: B, Property: ir.Indices, Mode: 1, Index: 0, Name: "B2_pos", Typ: ir.Int32}
	crd := &ir.GetProperty{Tensor: B, Property: ir.Indices, Mode: 1, Index: 1, Name: "B2_crd", Typ: ir.Int32}

	i := &ir.Var{Name: "i", Typ: ir.Int32}
	p := &ir.Var{Name: "p", Typ: ir.Int32}
	acc := &ir.Var{Name: "acc", Typ: t}
	zero := ir.Float(0, t)

	inner := &ir.For{
		Var:       p,
		Start:     &ir.Load{Arr: pos, Loc: i},
		End:       &ir.Load{Arr: pos, Loc: ir.NewBinary(ir.Add, i, ir.Int(1, ir.Int32))},
		Increment: ir.Int(1, ir.Int32),
		Contents: &ir.Assign{
			Lhs: acc,
			Rhs: ir.NewBinary(ir.Mul,
				&ir.Load{Arr: vals(B), Loc: p},
				&ir.Load{Arr: vals(x), Loc: &ir.Load{Arr: crd, Loc: p}}),
			Op: ir.AssignAdd,
		},
	}
	row := ir.NewBlock(
		&ir.VarDecl{Var: acc, Rhs: zero},
		inner,
		&ir.Store{Arr: vals(y), Loc: i, Data: acc},
	)
	return &ir.Function{
		Name:    name,
		Outputs: []ir.Expr{y},
		Inputs:  []ir.Expr{B, x},
		Body:    ir.NewBlock(loop(i, dim(B, 0), row, opts)),
	}
}

// Builder constructs a kernel with the given function name.
type Builder func(name string, t ir.Datatype, opts ...LoopOption) *ir.Function

var registry = map[string]Builder{
	"add":   VectorAdd,
	"scale": Scale,
	// dot reduces into one scalar, so its loop stays serial
	"dot": func(name string, t ir.Datatype, _ ...LoopOption) *ir.Function {
		return Dot(name, t)
	},
	"spmv": CSRMatVec,
}

// Lookup returns the builder registered under kind.
func Lookup(kind string) (Builder, error) {
	b, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kernel %q (have %v)", kind, Names())
	}
	return b, nil
}

// Names lists the registered kernels in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
