package codegen

import (
	"github.com/thiremani/tensorjit/ir"
	"tinygo.org/x/go-llvm"
)

// opClass selects between the signed, unsigned and floating-point forms
// of an instruction.
type opClass int

const (
	signedOp opClass = iota
	unsignedOp
	floatOp
)

func classOf(t ir.Datatype) opClass {
	switch t.Kind {
	case ir.FloatKind:
		return floatOp
	case ir.UIntKind, ir.BoolKind:
		return unsignedOp
	default:
		return signedOp
	}
}

// opKey is used as the key for operator functions. Both operands have
// already been converted to the common type.
type opKey struct {
	Op    ir.BinaryOp
	Class opClass
}

type opFunc func(b *LLVMBackend, left, right llvm.Value) llvm.Value

func icmp(pred llvm.IntPredicate, name string) opFunc {
	return func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateICmp(pred, l, r, name)
	}
}

func fcmp(pred llvm.FloatPredicate, name string) opFunc {
	return func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateFCmp(pred, l, r, name)
	}
}

// selectBy picks left when cmp(left, right) holds, else right.
func selectBy(cmp opFunc, name string) opFunc {
	return func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateSelect(cmp(b, l, r), l, r, name)
	}
}

var intOps = map[ir.BinaryOp]opFunc{
	ir.Add: func(b *LLVMBackend, l, r llvm.Value) llvm.Value { return b.builder.CreateAdd(l, r, "add_tmp") },
	ir.Sub: func(b *LLVMBackend, l, r llvm.Value) llvm.Value { return b.builder.CreateSub(l, r, "sub_tmp") },
	ir.Mul: func(b *LLVMBackend, l, r llvm.Value) llvm.Value { return b.builder.CreateMul(l, r, "mul_tmp") },
	ir.BitAnd: func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateAnd(l, r, "and_tmp")
	},
	ir.BitOr: func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateOr(l, r, "or_tmp")
	},
	ir.And: func(b *LLVMBackend, l, r llvm.Value) llvm.Value { return b.builder.CreateAnd(l, r, "land_tmp") },
	ir.Or:  func(b *LLVMBackend, l, r llvm.Value) llvm.Value { return b.builder.CreateOr(l, r, "lor_tmp") },
	ir.Eq:  icmp(llvm.IntEQ, "eq_tmp"),
	ir.Neq: icmp(llvm.IntNE, "neq_tmp"),
}

// defaultOps maps an operator and operand class to the instruction that
// implements it.
var defaultOps = func() map[opKey]opFunc {
	ops := make(map[opKey]opFunc)
	for op, f := range intOps {
		ops[opKey{op, signedOp}] = f
		ops[opKey{op, unsignedOp}] = f
	}

	// Signed integers
	ops[opKey{ir.Div, signedOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateSDiv(l, r, "sdiv_tmp")
	}
	ops[opKey{ir.Rem, signedOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateSRem(l, r, "srem_tmp")
	}
	ops[opKey{ir.Lt, signedOp}] = icmp(llvm.IntSLT, "lt_tmp")
	ops[opKey{ir.Lte, signedOp}] = icmp(llvm.IntSLE, "le_tmp")
	ops[opKey{ir.Gt, signedOp}] = icmp(llvm.IntSGT, "gt_tmp")
	ops[opKey{ir.Gte, signedOp}] = icmp(llvm.IntSGE, "ge_tmp")
	ops[opKey{ir.Min, signedOp}] = selectBy(icmp(llvm.IntSLT, "min_cmp"), "min_tmp")
	ops[opKey{ir.Max, signedOp}] = selectBy(icmp(llvm.IntSGT, "max_cmp"), "max_tmp")

	// Unsigned integers and booleans
	ops[opKey{ir.Div, unsignedOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateUDiv(l, r, "udiv_tmp")
	}
	ops[opKey{ir.Rem, unsignedOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateURem(l, r, "urem_tmp")
	}
	ops[opKey{ir.Lt, unsignedOp}] = icmp(llvm.IntULT, "lt_tmp")
	ops[opKey{ir.Lte, unsignedOp}] = icmp(llvm.IntULE, "le_tmp")
	ops[opKey{ir.Gt, unsignedOp}] = icmp(llvm.IntUGT, "gt_tmp")
	ops[opKey{ir.Gte, unsignedOp}] = icmp(llvm.IntUGE, "ge_tmp")
	ops[opKey{ir.Min, unsignedOp}] = selectBy(icmp(llvm.IntULT, "min_cmp"), "min_tmp")
	ops[opKey{ir.Max, unsignedOp}] = selectBy(icmp(llvm.IntUGT, "max_cmp"), "max_tmp")

	// Floats. Comparisons are ordered: any NaN operand compares false,
	// matching C.
	ops[opKey{ir.Add, floatOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateFAdd(l, r, "fadd_tmp")
	}
	ops[opKey{ir.Sub, floatOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateFSub(l, r, "fsub_tmp")
	}
	ops[opKey{ir.Mul, floatOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateFMul(l, r, "fmul_tmp")
	}
	ops[opKey{ir.Div, floatOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateFDiv(l, r, "fdiv_tmp")
	}
	ops[opKey{ir.Rem, floatOp}] = func(b *LLVMBackend, l, r llvm.Value) llvm.Value {
		return b.builder.CreateFRem(l, r, "frem_tmp")
	}
	ops[opKey{ir.Eq, floatOp}] = fcmp(llvm.FloatOEQ, "eq_tmp")
	ops[opKey{ir.Neq, floatOp}] = fcmp(llvm.FloatUNE, "neq_tmp")
	ops[opKey{ir.Lt, floatOp}] = fcmp(llvm.FloatOLT, "lt_tmp")
	ops[opKey{ir.Lte, floatOp}] = fcmp(llvm.FloatOLE, "le_tmp")
	ops[opKey{ir.Gt, floatOp}] = fcmp(llvm.FloatOGT, "gt_tmp")
	ops[opKey{ir.Gte, floatOp}] = fcmp(llvm.FloatOGE, "ge_tmp")
	ops[opKey{ir.Min, floatOp}] = selectBy(fcmp(llvm.FloatOLT, "min_cmp"), "min_tmp")
	ops[opKey{ir.Max, floatOp}] = selectBy(fcmp(llvm.FloatOGT, "max_cmp"), "max_tmp")
	return ops
}()

// operandType is the type both sides of e are converted to before the
// operator is applied.
func operandType(e *ir.Binary) ir.Datatype {
	t := ir.MaxType(e.A.Type(), e.B.Type())
	if e.Op == ir.And || e.Op == ir.Or {
		return ir.Bool
	}
	return t
}

func (b *LLVMBackend) binary(e *ir.Binary) llvm.Value {
	t := operandType(e)
	if t.IsComplex() {
		internal(b.backendName(), e, "complex arithmetic")
	}
	l := b.convert(b.expr(e.A), e.A.Type(), t)
	r := b.convert(b.expr(e.B), e.B.Type(), t)
	f, ok := defaultOps[opKey{e.Op, classOf(t)}]
	if !ok {
		unsupported(b.backendName(), e, "operator %s on %s", e.Op, t)
	}
	return f(b, l, r)
}

func (b *LLVMBackend) unary(e *ir.Unary) llvm.Value {
	t := e.A.Type()
	a := b.expr(e.A)
	switch e.Op {
	case ir.Neg:
		if t.IsFloat() {
			return b.builder.CreateFNeg(a, "fneg_tmp")
		}
		return b.builder.CreateNeg(a, "neg_tmp")
	case ir.Not:
		return b.builder.CreateNot(b.convert(a, t, ir.Bool), "not_tmp")
	case ir.Sqrt:
		name := SQRT_F64
		if t == ir.Float32 {
			name = SQRT_F32
		} else {
			a = b.convert(a, t, ir.Float64)
		}
		fnType, fn := b.GetCFunc(name)
		return b.builder.CreateCall(fnType, fn, []llvm.Value{a}, "sqrt_tmp")
	}
	internal(b.backendName(), e, "unknown unary operator %d", int(e.Op))
	return llvm.Value{}
}

// compound applies the arithmetic of a compound assignment.
func (b *LLVMBackend) compound(op ir.AssignOp, t ir.Datatype, cur, rhs llvm.Value, n ir.Node) llvm.Value {
	var bop ir.BinaryOp
	switch op {
	case ir.AssignAdd:
		bop = ir.Add
	case ir.AssignMul:
		bop = ir.Mul
	case ir.AssignBitOr:
		bop = ir.BitOr
	default:
		internal(b.backendName(), n, "unknown assignment operator %d", int(op))
	}
	f, ok := defaultOps[opKey{bop, classOf(t)}]
	if !ok {
		unsupported(b.backendName(), n, "compound %s on %s", bop, t)
	}
	return f(b, cur, rhs)
}

// convert emits the cast from one IR type to another.
func (b *LLVMBackend) convert(v llvm.Value, from, to ir.Datatype) llvm.Value {
	if from == to {
		return v
	}
	dst := b.mapType(to, nil)
	switch {
	case to.IsBool():
		if from.IsFloat() {
			return b.builder.CreateFCmp(llvm.FloatUNE, v, llvm.ConstNull(v.Type()), "tobool")
		}
		return b.builder.CreateICmp(llvm.IntNE, v, llvm.ConstNull(v.Type()), "tobool")
	case from.IsFloat() && to.IsFloat():
		if to.Bits > from.Bits {
			return b.builder.CreateFPExt(v, dst, "fpext")
		}
		return b.builder.CreateFPTrunc(v, dst, "fptrunc")
	case from.IsFloat() && to.IsInt():
		return b.builder.CreateFPToSI(v, dst, "fptosi")
	case from.IsFloat() && to.IsUInt():
		return b.builder.CreateFPToUI(v, dst, "fptoui")
	case from.IsInt() && to.IsFloat():
		return b.builder.CreateSIToFP(v, dst, "sitofp")
	case from.IsIntegral() && to.IsFloat():
		return b.builder.CreateUIToFP(v, dst, "uitofp")
	case from.IsIntegral() && to.IsIntegral():
		fromBits := from.Bits
		if from.IsBool() {
			fromBits = 1
		}
		switch {
		case to.Bits > fromBits && from.IsInt():
			return b.builder.CreateSExt(v, dst, "sext")
		case to.Bits > fromBits:
			return b.builder.CreateZExt(v, dst, "zext")
		case to.Bits < fromBits:
			return b.builder.CreateTrunc(v, dst, "trunc")
		}
		return v
	}
	internal(b.backendName(), nil, "cannot convert %s to %s", from, to)
	return llvm.Value{}
}
