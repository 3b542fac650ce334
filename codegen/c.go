package codegen

import (
	"fmt"
	"strings"

	"github.com/thiremani/tensorjit/ir"
)

const cHeaders = `#ifndef TACO_C_HEADERS
#define TACO_C_HEADERS
#include <stdio.h>
#include <stdlib.h>
#include <stdint.h>
#include <stdbool.h>
#include <math.h>
#include <string.h>
%s#define TACO_MIN(_a,_b) ((_a) < (_b) ? (_a) : (_b))
#define TACO_MAX(_a,_b) ((_a) > (_b) ? (_a) : (_b))
#ifndef TACO_TENSOR_T_DEFINED
#define TACO_TENSOR_T_DEFINED
typedef struct {
  int32_t      order;
  int32_t*     dimensions;
  int32_t      csize;
  int32_t*     mode_ordering;
  int32_t*     mode_types;
  uint8_t***   indices;
  uint8_t*     vals;
  int32_t      vals_size;
} taco_tensor_t;
#endif
#endif

`

const kernelBlockSize = 256

// CBackend emits C99, or CUDA C++ when built with NewCUDABackend. Output
// for every compiled function accumulates and is read with Source.
type CBackend struct {
	kind OutputKind
	cuda bool
	out  strings.Builder

	fn      *ir.Function
	vf      *varFinder
	names   *nameGen
	syms    *Symbols[ir.Expr]
	writers []*strings.Builder
	indent  int

	kernels     strings.Builder
	kernelCount int
	inKernel    bool
}

func NewCBackend(kind OutputKind) *CBackend {
	return &CBackend{kind: kind}
}

func NewCUDABackend(kind OutputKind) *CBackend {
	return &CBackend{kind: kind, cuda: true}
}

func (b *CBackend) Source() string { return b.out.String() }

func (b *CBackend) backendName() string {
	if b.cuda {
		return "cuda"
	}
	return "c"
}

func (b *CBackend) restrict() string {
	if b.cuda {
		return "__restrict__"
	}
	return "restrict"
}

// Boilerplate returns the file prelude emitted before the first function.
func (b *CBackend) Boilerplate() string {
	if b.cuda {
		return fmt.Sprintf(cHeaders, "")
	}
	return fmt.Sprintf(cHeaders, "#include <complex.h>\n")
}

func (b *CBackend) Compile(fn *ir.Function, isFirst bool) (err error) {
	defer catch(&err)
	validateFunction(b.backendName(), fn)

	if isFirst {
		b.out.WriteString(b.Boilerplate())
	}
	b.fn = fn
	if b.kind == Header {
		b.out.WriteString(b.signature(fn) + ";\n")
		return nil
	}

	b.names = newNameGen()
	b.vf = newVarFinder(fn, b.names)
	b.syms = NewSymbols[ir.Expr]()
	b.kernels.Reset()
	b.kernelCount = 0
	b.inKernel = false

	var body strings.Builder
	b.pushWriter(&body)
	b.indent = 1
	for _, p := range fn.Params() {
		b.syms.Define(p.Name, ir.Expr(p))
	}
	b.declareProperties()
	b.stmt(fn.Body)
	b.writeBack()
	b.line("return 0;")
	b.popWriter()

	b.out.WriteString(b.kernels.String())
	b.out.WriteString(b.signature(fn) + " {\n")
	b.out.WriteString(body.String())
	b.out.WriteString("}\n\n")
	return nil
}

func (b *CBackend) signature(fn *ir.Function) string {
	params := make([]string, 0, len(fn.Params()))
	for _, p := range fn.Params() {
		params = append(params, b.paramDecl(p, p.Name))
	}
	return fmt.Sprintf("int %s(%s)", fn.Name, strings.Join(params, ", "))
}

func (b *CBackend) paramDecl(v *ir.Var, name string) string {
	switch {
	case v.IsTensor:
		return "taco_tensor_t *" + name
	case v.IsPtr:
		return b.ctype(v.Typ, v) + "* " + name
	default:
		return b.ctype(v.Typ, v) + " " + name
	}
}

func (b *CBackend) ctype(t ir.Datatype, n ir.Node) string {
	if b.cuda && t.IsComplex() {
		unsupported(b.backendName(), n, "complex type %s", t)
	}
	s := CType(t)
	if s == "" {
		internal(b.backendName(), n, "no C type for %s", t)
	}
	return s
}

func (b *CBackend) pushWriter(w *strings.Builder) {
	b.writers = append(b.writers, w)
}

func (b *CBackend) popWriter() {
	b.writers = b.writers[:len(b.writers)-1]
}

func (b *CBackend) w() *strings.Builder {
	return b.writers[len(b.writers)-1]
}

func (b *CBackend) line(format string, args ...any) {
	w := b.w()
	w.WriteString(strings.Repeat("  ", b.indent))
	fmt.Fprintf(w, format, args...)
	w.WriteByte('\n')
}

func (b *CBackend) declareProperties() {
	for _, g := range b.vf.varDecls {
		name, _ := b.vf.Name(g)
		tensor := b.expr(g.Tensor)
		switch g.Property {
		case ir.Order:
			b.line("int %s = (int)(%s->order);", name, tensor)
		case ir.Dimension:
			b.line("int %s = (int)(%s->dimensions[%d]);", name, tensor, g.Mode)
		case ir.ComponentSize:
			b.line("int %s = (int)(%s->csize);", name, tensor)
		case ir.ModeOrdering:
			b.line("int %s = (int)(%s->mode_ordering[%d]);", name, tensor, g.Mode)
		case ir.ModeTypes:
			b.line("int %s = (int)(%s->mode_types[%d]);", name, tensor, g.Mode)
		case ir.Indices:
			t := b.ctype(g.Typ, g)
			b.line("%s* %s %s = (%s*)(%s->indices[%d][%d]);", t, b.restrict(), name, t, tensor, g.Mode, g.Index)
		case ir.Values:
			t := b.ctype(g.Typ, g)
			b.line("%s* %s %s = (%s*)(%s->vals);", t, b.restrict(), name, t, tensor)
		case ir.ValuesSize:
			b.line("int %s = (int)(%s->vals_size);", name, tensor)
		default:
			internal(b.backendName(), g, "unknown tensor property %s", g.Property)
		}
		b.syms.Define(name, ir.Expr(g))
	}
}

func (b *CBackend) writeBack() {
	for _, g := range b.vf.outputProps {
		name, _ := b.vf.Name(g)
		tensor := b.expr(g.Tensor)
		switch g.Property {
		case ir.Values:
			b.line("%s->vals = (uint8_t*)%s;", tensor, name)
		case ir.Indices:
			b.line("%s->indices[%d][%d] = (uint8_t*)(%s);", tensor, g.Mode, g.Index, name)
		case ir.ValuesSize:
			b.line("%s->vals_size = %s;", tensor, name)
		}
	}
}

func (b *CBackend) ident(e ir.Expr) string {
	if g, ok := e.(*ir.GetProperty); ok {
		e = b.vf.Canonical(g)
	}
	name, ok := b.vf.Name(e)
	if !ok {
		internal(b.backendName(), e, "no identifier for %s", e)
	}
	if _, ok := b.syms.Lookup(name); !ok {
		internal(b.backendName(), e, "%s used outside its scope", name)
	}
	return name
}

var cBinaryOps = map[ir.BinaryOp]string{
	ir.Add: "+", ir.Sub: "-", ir.Mul: "*", ir.Div: "/", ir.Rem: "%",
	ir.BitAnd: "&", ir.BitOr: "|",
	ir.Eq: "==", ir.Neq: "!=", ir.Gt: ">", ir.Lt: "<", ir.Gte: ">=", ir.Lte: "<=",
	ir.And: "&&", ir.Or: "||",
}

func (b *CBackend) expr(e ir.Expr) string {
	switch e := e.(type) {
	case *ir.Var:
		return b.ident(e)
	case *ir.GetProperty:
		return b.ident(e)
	case *ir.Literal:
		if v, ok := e.Val.(bool); ok {
			if v {
				return "true"
			}
			return "false"
		}
		if e.Typ.IsComplex() {
			unsupported(b.backendName(), e, "complex literal")
		}
		return ir.FormatLiteral(e)
	case *ir.Unary:
		a := b.expr(e.A)
		switch e.Op {
		case ir.Neg:
			return "(-" + a + ")"
		case ir.Not:
			return "(!" + a + ")"
		case ir.Sqrt:
			if e.A.Type() == ir.Float32 {
				return "sqrtf(" + a + ")"
			}
			return "sqrt(" + a + ")"
		}
		internal(b.backendName(), e, "unknown unary operator %d", int(e.Op))
	case *ir.Binary:
		return b.binary(e)
	case *ir.Cast:
		return fmt.Sprintf("(%s)(%s)", b.ctype(e.Typ, e), b.expr(e.A))
	case *ir.Call:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = b.expr(a)
		}
		return fmt.Sprintf("%s(%s)", e.Func, strings.Join(args, ", "))
	case *ir.Load:
		return fmt.Sprintf("%s[%s]", b.expr(e.Arr), b.expr(e.Loc))
	case *ir.Sizeof:
		return fmt.Sprintf("sizeof(%s)", b.ctype(e.Of, e))
	case nil:
		internal(b.backendName(), nil, "nil expression")
	}
	internal(b.backendName(), e, "unknown expression")
	return ""
}

func (b *CBackend) binary(e *ir.Binary) string {
	a, c := b.expr(e.A), b.expr(e.B)
	if b.cuda {
		ta, tb := e.A.Type(), e.B.Type()
		if CType(ta) != CType(tb) {
			t := ir.MaxType(ta, tb)
			if ta != t {
				a = fmt.Sprintf("(%s)(%s)", b.ctype(t, e), a)
			}
			if tb != t {
				c = fmt.Sprintf("(%s)(%s)", b.ctype(t, e), c)
			}
		}
	}
	switch e.Op {
	case ir.Min:
		return fmt.Sprintf("TACO_MIN(%s, %s)", a, c)
	case ir.Max:
		return fmt.Sprintf("TACO_MAX(%s, %s)", a, c)
	case ir.Rem:
		if t := e.Type(); t.IsFloat() {
			if t.Bits == 32 {
				return fmt.Sprintf("fmodf(%s, %s)", a, c)
			}
			return fmt.Sprintf("fmod(%s, %s)", a, c)
		}
	case ir.BitAnd, ir.BitOr:
		if t := e.Type(); !t.IsIntegral() {
			unsupported(b.backendName(), e, "bitwise %s on %s", e.Op, t)
		}
	}
	op, ok := cBinaryOps[e.Op]
	if !ok {
		internal(b.backendName(), e, "unknown binary operator %d", int(e.Op))
	}
	return fmt.Sprintf("(%s %s %s)", a, op, c)
}

var cAssignOps = map[ir.AssignOp]string{
	ir.AssignPlain: "=", ir.AssignAdd: "+=", ir.AssignMul: "*=", ir.AssignBitOr: "|=",
}

// endsWithBreak reports whether s already leaves its switch case.
func endsWithBreak(s ir.Stmt) bool {
	switch s := s.(type) {
	case *ir.Break:
		return true
	case *ir.Block:
		return len(s.Contents) > 0 && endsWithBreak(s.Contents[len(s.Contents)-1])
	case *ir.Scope:
		return endsWithBreak(s.ScopedStmt)
	}
	return false
}

func (b *CBackend) block(s ir.Stmt) {
	b.indent++
	b.syms.Enter()
	b.stmt(s)
	b.syms.Leave()
	b.indent--
}

func (b *CBackend) stmt(s ir.Stmt) {
	switch s := s.(type) {
	case nil:
	case *ir.Block:
		for _, c := range s.Contents {
			b.stmt(c)
		}
	case *ir.Scope:
		b.syms.Enter()
		b.stmt(s.ScopedStmt)
		b.syms.Leave()
	case *ir.VarDecl:
		name, _ := b.vf.Name(s.Var)
		rhs := b.expr(s.Rhs)
		if s.Var.IsPtr {
			b.line("%s* %s %s = %s;", b.ctype(s.Var.Typ, s.Var), b.restrict(), name, rhs)
		} else {
			b.line("%s %s = %s;", b.ctype(s.Var.Typ, s.Var), name, rhs)
		}
		b.syms.Define(name, ir.Expr(s.Var))
	case *ir.Assign:
		op, ok := cAssignOps[s.Op]
		if !ok {
			internal(b.backendName(), s, "unknown assignment operator %d", int(s.Op))
		}
		b.line("%s %s %s;", b.expr(s.Lhs), op, b.expr(s.Rhs))
	case *ir.Store:
		b.store(s)
	case *ir.For:
		if b.cuda && s.OnDevice() && !b.inKernel {
			b.deviceLoop(s)
			return
		}
		b.forLoop(s)
	case *ir.While:
		b.line("while (%s) {", b.expr(s.Cond))
		b.block(s.Contents)
		b.line("}")
	case *ir.IfThenElse:
		b.line("if (%s) {", b.expr(s.Cond))
		b.block(s.Then)
		b.line("}")
		if s.Otherwise != nil {
			b.line("else {")
			b.block(s.Otherwise)
			b.line("}")
		}
	case *ir.Case:
		for i, c := range s.Clauses {
			last := i == len(s.Clauses)-1
			switch {
			case last && s.AlwaysMatch && i > 0:
				b.line("else {")
			case last && s.AlwaysMatch:
				b.line("{")
			case i == 0:
				b.line("if (%s) {", b.expr(c.Cond))
			default:
				b.line("else if (%s) {", b.expr(c.Cond))
			}
			b.block(c.Body)
			b.line("}")
		}
	case *ir.Switch:
		b.line("switch (%s) {", b.expr(s.Ctrl))
		b.indent++
		for _, c := range s.Cases {
			b.line("case %d: {", c.Value)
			b.block(c.Body)
			if !endsWithBreak(c.Body) {
				b.indent++
				b.line("break;")
				b.indent--
			}
			b.line("}")
		}
		b.indent--
		b.line("}")
	case *ir.Allocate:
		b.allocate(s)
	case *ir.Free:
		if b.cuda {
			b.line("cudaFree(%s);", b.expr(s.Var))
		} else {
			b.line("free(%s);", b.expr(s.Var))
		}
	case *ir.Comment:
		b.line("// %s", strings.ReplaceAll(s.Text, "\n", " "))
	case *ir.BlankLine:
		b.w().WriteByte('\n')
	case *ir.Break:
		b.line("break;")
	case *ir.Print:
		args := []string{cQuote(s.Fmt)}
		for _, p := range s.Params {
			args = append(args, b.expr(p))
		}
		b.line("printf(%s);", strings.Join(args, ", "))
	case *ir.Yield:
		unsupported(b.backendName(), s, "yield")
	case *ir.Function:
		unsupported(b.backendName(), s, "nested function %s", s.Name)
	default:
		internal(b.backendName(), s, "unknown statement")
	}
}

// atomicIncrement matches arr[loc] = arr[loc] + x and returns x.
func atomicIncrement(s *ir.Store) (ir.Expr, bool) {
	add, ok := s.Data.(*ir.Binary)
	if !ok || add.Op != ir.Add {
		return nil, false
	}
	ld, ok := add.A.(*ir.Load)
	if !ok || ld.Arr != s.Arr || ld.Loc != s.Loc {
		return nil, false
	}
	return add.B, true
}

func (b *CBackend) store(s *ir.Store) {
	target := fmt.Sprintf("%s[%s]", b.expr(s.Arr), b.expr(s.Loc))
	if !s.UseAtomics {
		b.line("%s = %s;", target, b.expr(s.Data))
		return
	}
	inc, isInc := atomicIncrement(s)
	if b.cuda {
		if !isInc {
			unsupported(b.backendName(), s, "atomic store other than an increment")
		}
		b.line("atomicAdd(&%s, %s);", target, b.expr(inc))
		return
	}
	if isInc {
		b.line("#pragma omp atomic")
		b.line("%s += %s;", target, b.expr(inc))
		return
	}
	b.line("#pragma omp atomic write")
	b.line("%s = %s;", target, b.expr(s.Data))
}

func (b *CBackend) allocate(s *ir.Allocate) {
	v := b.expr(s.Var)
	t := b.ctype(s.Var.Type(), s)
	n := b.expr(s.NumElements)
	switch {
	case b.cuda && s.IsRealloc:
		unsupported(b.backendName(), s, "realloc of managed memory")
	case b.cuda:
		b.line("cudaMallocManaged((void**)&%s, sizeof(%s) * (%s));", v, t, n)
	case s.IsRealloc:
		b.line("%s = (%s*)realloc(%s, sizeof(%s) * (%s));", v, t, v, t, n)
	default:
		b.line("%s = (%s*)malloc(sizeof(%s) * (%s));", v, t, t, n)
	}
}

func (b *CBackend) loopPragma(s *ir.For) {
	schedule := func(kind string) {
		if s.Chunk > 0 {
			b.line("#pragma omp parallel for schedule(%s, %d)", kind, s.Chunk)
			return
		}
		b.line("#pragma omp parallel for schedule(%s)", kind)
	}
	switch s.Kind {
	case ir.Static:
		schedule("static")
	case ir.Dynamic:
		schedule("dynamic")
	case ir.Runtime:
		b.line("#pragma omp parallel for schedule(runtime)")
	case ir.Vectorized:
		b.line("#pragma clang loop interleave(enable) vectorize(enable)")
	}
}

func (b *CBackend) forLoop(s *ir.For) {
	name, _ := b.vf.Name(s.Var)
	start, end := b.expr(s.Start), b.expr(s.End)
	inc := b.expr(s.Increment)
	step := fmt.Sprintf("%s += %s", name, inc)
	if lit, ok := s.Increment.(*ir.Literal); ok && ir.FormatLiteral(lit) == "1" {
		step = name + "++"
	}
	if !b.inKernel {
		b.loopPragma(s)
	}
	b.line("for (%s %s = %s; %s < %s; %s) {", b.ctype(s.Var.Typ, s.Var), name, start, name, end, step)
	b.indent++
	b.syms.Enter()
	b.syms.Define(name, ir.Expr(s.Var))
	b.stmt(s.Contents)
	b.syms.Leave()
	b.indent--
	b.line("}")
}

func cQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
