package codegen

import (
	"fmt"
	"os"

	"fortio.org/safecast"
	"github.com/thiremani/tensorjit/ir"
	"tinygo.org/x/go-llvm"
)

// Field indices of taco_tensor_t. They follow ir.TensorProperty.
const (
	fieldIndices  = int(ir.Indices)
	fieldVals     = int(ir.Values)
	fieldValsSize = int(ir.ValuesSize)
)

// slot is what a generated identifier resolves to: a stack slot holding a
// value of typ, or an SSA value that cannot be assigned (loop induction
// variables and tensor parameters).
type slot struct {
	ptr    llvm.Value
	typ    llvm.Type
	val    llvm.Value
	direct bool
}

// LLVMBackend builds LLVM IR in memory. Every compiled function returns an
// i32 status and takes one pointer per tensor parameter.
type LLVMBackend struct {
	Context llvm.Context
	Module  llvm.Module
	builder llvm.Builder

	tensorType llvm.Type
	fnTypes    map[string]llvm.Type
	strCounter int

	fn           *ir.Function
	llvmFn       llvm.Value
	vf           *varFinder
	syms         *Symbols[slot]
	exit         llvm.BasicBlock
	breakTargets []llvm.BasicBlock
	tensorArgs   map[string]llvm.Value
}

func NewLLVMBackend(moduleName string) *LLVMBackend {
	ctx := llvm.NewContext()
	b := &LLVMBackend{
		Context: ctx,
		Module:  ctx.NewModule(moduleName),
		builder: ctx.NewBuilder(),
		fnTypes: make(map[string]llvm.Type),
	}
	b.tensorType = b.defineTensorType()
	return b
}

func (b *LLVMBackend) backendName() string { return "llvm" }

// defineTensorType declares taco_tensor_t with the field order of the C
// definition: {i32, ptr, i32, ptr, ptr, ptr, ptr, i32}.
func (b *LLVMBackend) defineTensorType() llvm.Type {
	i32 := b.Context.Int32Type()
	ptr := llvm.PointerType(b.Context.Int8Type(), 0)
	st := b.Context.StructCreateNamed("taco_tensor_t")
	st.StructSetBody([]llvm.Type{i32, ptr, i32, ptr, ptr, ptr, ptr, i32}, false)
	return st
}

func (b *LLVMBackend) TensorType() llvm.Type { return b.tensorType }

func (b *LLVMBackend) ptrType() llvm.Type {
	return llvm.PointerType(b.Context.Int8Type(), 0)
}

func (b *LLVMBackend) mapType(t ir.Datatype, n ir.Node) llvm.Type {
	switch t.Kind {
	case ir.BoolKind:
		return b.Context.Int1Type()
	case ir.IntKind, ir.UIntKind:
		switch t.Bits {
		case 8:
			return b.Context.Int8Type()
		case 16:
			return b.Context.Int16Type()
		case 32:
			return b.Context.Int32Type()
		case 64:
			return b.Context.Int64Type()
		}
	case ir.FloatKind:
		switch t.Bits {
		case 32:
			return b.Context.FloatType()
		case 64:
			return b.Context.DoubleType()
		}
	}
	internal(b.backendName(), n, "no LLVM type for %s", t)
	return llvm.Type{}
}

func (b *LLVMBackend) varType(v *ir.Var) llvm.Type {
	if v.IsTensor || v.IsPtr {
		return b.ptrType()
	}
	return b.mapType(v.Typ, v)
}

// Compile appends fn to the module. isFirst is accepted for the Backend
// contract; the module-level types are created with the backend.
func (b *LLVMBackend) Compile(fn *ir.Function, isFirst bool) (err error) {
	b.llvmFn = llvm.Value{}
	defer func() {
		if err != nil && !b.llvmFn.IsNil() {
			b.llvmFn.EraseFromParentAsFunction()
			b.llvmFn = llvm.Value{}
		}
	}()
	defer catch(&err)
	validateFunction(b.backendName(), fn)
	if !b.Module.NamedFunction(fn.Name).IsNil() {
		internal(b.backendName(), fn, "function %s already defined", fn.Name)
	}

	b.fn = fn
	b.vf = newVarFinder(fn, newNameGen())
	b.syms = NewSymbols[slot]()
	b.breakTargets = nil
	b.tensorArgs = make(map[string]llvm.Value)

	params := fn.Params()
	paramTypes := make([]llvm.Type, len(params))
	for i, p := range params {
		paramTypes[i] = b.varType(p)
	}
	fnType := llvm.FunctionType(b.Context.Int32Type(), paramTypes, false)
	b.llvmFn = llvm.AddFunction(b.Module, fn.Name, fnType)

	entry := b.Context.AddBasicBlock(b.llvmFn, "entry")
	b.exit = b.Context.AddBasicBlock(b.llvmFn, "exit")
	b.builder.SetInsertPointAtEnd(entry)

	for i, p := range params {
		arg := b.llvmFn.Param(i)
		arg.SetName(p.Name)
		if p.IsTensor {
			b.tensorArgs[p.Name] = arg
			b.syms.Define(p.Name, slot{val: arg, typ: paramTypes[i], direct: true})
			continue
		}
		alloca := b.createEntryBlockAlloca(paramTypes[i], p.Name+"_addr")
		b.builder.CreateStore(arg, alloca)
		b.syms.Define(p.Name, slot{ptr: alloca, typ: paramTypes[i]})
	}

	b.loadProperties()
	b.stmt(fn.Body)
	b.branchIfOpen(b.exit)

	if last := b.llvmFn.LastBasicBlock(); last != b.exit {
		b.exit.MoveAfter(last)
	}
	b.builder.SetInsertPointAtEnd(b.exit)
	b.storeProperties()
	b.builder.CreateRet(llvm.ConstInt(b.Context.Int32Type(), 0, false))

	if verr := llvm.VerifyFunction(b.llvmFn, llvm.ReturnStatusAction); verr != nil {
		internal(b.backendName(), fn, "invalid function %s: %v", fn.Name, verr)
	}
	return nil
}

// Verify checks the whole module.
func (b *LLVMBackend) Verify() error {
	if err := llvm.VerifyModule(b.Module, llvm.ReturnStatusAction); err != nil {
		return &Error{Kind: Internal, Backend: b.backendName(), Msg: "module verification failed: " + err.Error(), Err: err}
	}
	return nil
}

// IR returns the textual module.
func (b *LLVMBackend) IR() string {
	return b.Module.String()
}

// WriteBitcode verifies the module and writes it to path.
func (b *LLVMBackend) WriteBitcode(path string) error {
	if err := b.Verify(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating bitcode file: %w", err)
	}
	defer f.Close()
	if err := llvm.WriteBitcodeToFile(b.Module, f); err != nil {
		return fmt.Errorf("writing bitcode to %s: %w", path, err)
	}
	return nil
}

func (b *LLVMBackend) SetTarget(triple string) {
	b.Module.SetTarget(triple)
}

func (b *LLVMBackend) Dispose() {
	b.builder.Dispose()
	b.Module.Dispose()
	b.Context.Dispose()
}

func (b *LLVMBackend) createEntryBlockAlloca(ty llvm.Type, name string) llvm.Value {
	current := b.builder.GetInsertBlock()
	entry := b.llvmFn.EntryBasicBlock()
	first := entry.FirstInstruction()

	if first.IsNil() {
		b.builder.SetInsertPointAtEnd(entry)
	} else {
		b.builder.SetInsertPointBefore(first)
	}

	alloca := b.builder.CreateAlloca(ty, name)
	b.builder.SetInsertPointAtEnd(current)
	return alloca
}

func isTerminated(bb llvm.BasicBlock) bool {
	last := bb.LastInstruction()
	if last.IsNil() {
		return false
	}
	switch last.InstructionOpcode() {
	case llvm.Ret, llvm.Br, llvm.Switch, llvm.Unreachable:
		return true
	}
	return false
}

func (b *LLVMBackend) branchIfOpen(target llvm.BasicBlock) {
	if !isTerminated(b.builder.GetInsertBlock()) {
		b.builder.CreateBr(target)
	}
}

func (b *LLVMBackend) tensorArg(g *ir.GetProperty) llvm.Value {
	v, ok := g.Tensor.(*ir.Var)
	if !ok || !v.IsTensor {
		internal(b.backendName(), g, "property of non-tensor %s", g.Tensor)
	}
	arg, ok := b.tensorArgs[v.Name]
	if !ok || !b.vf.isParam(v) {
		internal(b.backendName(), g, "tensor %s is not a parameter", v.Name)
	}
	return arg
}

func (b *LLVMBackend) propertyType(g *ir.GetProperty) llvm.Type {
	if isPointerProperty(g.Property) {
		return b.ptrType()
	}
	return b.Context.Int32Type()
}

// constIndex is an i32 GEP index. Negative modes and indices never reach
// here from a valid function.
func (b *LLVMBackend) constIndex(n int) llvm.Value {
	u, err := safecast.Conv[uint32](n)
	if err != nil {
		internal(b.backendName(), nil, "index %d: %v", n, err)
	}
	return llvm.ConstInt(b.Context.Int32Type(), uint64(u), false)
}

// fieldElem returns a pointer to element idx of the i32 array stored in
// field f of the tensor.
func (b *LLVMBackend) fieldElem(tensor llvm.Value, f, idx int, name string) llvm.Value {
	i32 := b.Context.Int32Type()
	fieldPtr := b.builder.CreateStructGEP(b.tensorType, tensor, f, name+"_field")
	arr := b.builder.CreateLoad(b.ptrType(), fieldPtr, name+"_arr")
	return b.builder.CreateInBoundsGEP(i32, arr, []llvm.Value{b.constIndex(idx)}, name+"_ptr")
}

// indicesSlot returns a pointer to indices[mode][index].
func (b *LLVMBackend) indicesSlot(tensor llvm.Value, mode, index int, name string) llvm.Value {
	ptr := b.ptrType()
	fieldPtr := b.builder.CreateStructGEP(b.tensorType, tensor, fieldIndices, name+"_field")
	modes := b.builder.CreateLoad(ptr, fieldPtr, name+"_modes")
	modePtr := b.builder.CreateInBoundsGEP(ptr, modes, []llvm.Value{b.constIndex(mode)}, name+"_mode_ptr")
	arrays := b.builder.CreateLoad(ptr, modePtr, name+"_arrays")
	return b.builder.CreateInBoundsGEP(ptr, arrays, []llvm.Value{b.constIndex(index)}, name+"_ptr")
}

// loadProperties reads every canonical property once into a stack slot.
func (b *LLVMBackend) loadProperties() {
	i32 := b.Context.Int32Type()
	for _, g := range b.vf.varDecls {
		name, _ := b.vf.Name(g)
		tensor := b.tensorArg(g)
		var val llvm.Value
		switch g.Property {
		case ir.Order, ir.ComponentSize, ir.ValuesSize:
			fieldPtr := b.builder.CreateStructGEP(b.tensorType, tensor, int(g.Property), name+"_field")
			val = b.builder.CreateLoad(i32, fieldPtr, name+"_load")
		case ir.Dimension, ir.ModeOrdering, ir.ModeTypes:
			val = b.builder.CreateLoad(i32, b.fieldElem(tensor, int(g.Property), g.Mode, name), name+"_load")
		case ir.Indices:
			val = b.builder.CreateLoad(b.ptrType(), b.indicesSlot(tensor, g.Mode, g.Index, name), name+"_load")
		case ir.Values:
			fieldPtr := b.builder.CreateStructGEP(b.tensorType, tensor, fieldVals, name+"_field")
			val = b.builder.CreateLoad(b.ptrType(), fieldPtr, name+"_load")
		default:
			internal(b.backendName(), g, "unknown tensor property %s", g.Property)
		}
		ty := b.propertyType(g)
		alloca := b.createEntryBlockAlloca(ty, name)
		b.builder.CreateStore(val, alloca)
		b.syms.Define(name, slot{ptr: alloca, typ: ty})
	}
}

// storeProperties writes the output properties back into their tensors.
func (b *LLVMBackend) storeProperties() {
	for _, g := range b.vf.outputProps {
		name, _ := b.vf.Name(g)
		s, ok := b.syms.Lookup(name)
		if !ok {
			internal(b.backendName(), g, "no slot for %s", name)
		}
		val := b.builder.CreateLoad(s.typ, s.ptr, name+"_out")
		tensor := b.tensorArg(g)
		switch g.Property {
		case ir.Values:
			fieldPtr := b.builder.CreateStructGEP(b.tensorType, tensor, fieldVals, name+"_out_field")
			b.builder.CreateStore(val, fieldPtr)
		case ir.ValuesSize:
			fieldPtr := b.builder.CreateStructGEP(b.tensorType, tensor, fieldValsSize, name+"_out_field")
			b.builder.CreateStore(val, fieldPtr)
		case ir.Indices:
			b.builder.CreateStore(val, b.indicesSlot(tensor, g.Mode, g.Index, name+"_out"))
		}
	}
}

func (b *LLVMBackend) lookup(e ir.Expr) (string, slot) {
	if g, ok := e.(*ir.GetProperty); ok {
		e = b.vf.Canonical(g)
	}
	name, ok := b.vf.Name(e)
	if !ok {
		internal(b.backendName(), e, "no identifier for %s", e)
	}
	s, ok := b.syms.Lookup(name)
	if !ok {
		internal(b.backendName(), e, "%s used outside its scope", name)
	}
	return name, s
}

func (b *LLVMBackend) expr(e ir.Expr) llvm.Value {
	switch e := e.(type) {
	case *ir.Var, *ir.GetProperty:
		name, s := b.lookup(e)
		if s.direct {
			return s.val
		}
		return b.builder.CreateLoad(s.typ, s.ptr, name)
	case *ir.Literal:
		return b.literal(e)
	case *ir.Unary:
		return b.unary(e)
	case *ir.Binary:
		return b.binary(e)
	case *ir.Cast:
		return b.convert(b.expr(e.A), e.A.Type(), e.Typ)
	case *ir.Call:
		args := make([]llvm.Value, len(e.Args))
		types := make([]llvm.Type, len(e.Args))
		for i, a := range e.Args {
			args[i] = b.expr(a)
			types[i] = args[i].Type()
		}
		fnType, fn := b.externFunc(e.Func, b.mapType(e.Typ, e), types)
		return b.builder.CreateCall(fnType, fn, args, e.Func+"_call")
	case *ir.Load:
		elem := b.mapType(e.Arr.Type(), e)
		return b.builder.CreateLoad(elem, b.elementPtr(e.Arr, e.Loc), "load_tmp")
	case *ir.Sizeof:
		return llvm.ConstInt(b.Context.Int64Type(), uint64(sizeOf(e.Of)), false)
	case nil:
		internal(b.backendName(), nil, "nil expression")
	}
	internal(b.backendName(), e, "unknown expression")
	return llvm.Value{}
}

func sizeOf(t ir.Datatype) int {
	if t.IsBool() {
		return 1
	}
	return t.Bits / 8
}

func (b *LLVMBackend) literal(l *ir.Literal) llvm.Value {
	if l.Typ.IsComplex() {
		internal(b.backendName(), l, "complex literal")
	}
	ty := b.mapType(l.Typ, l)
	switch v := l.Val.(type) {
	case bool:
		if v {
			return llvm.ConstInt(ty, 1, false)
		}
		return llvm.ConstInt(ty, 0, false)
	case int64:
		if l.Typ.IsFloat() {
			return llvm.ConstFloat(ty, float64(v))
		}
		return llvm.ConstInt(ty, uint64(v), true)
	case uint64:
		if l.Typ.IsFloat() {
			return llvm.ConstFloat(ty, float64(v))
		}
		return llvm.ConstInt(ty, v, false)
	case float64:
		if !l.Typ.IsFloat() {
			internal(b.backendName(), l, "float value with type %s", l.Typ)
		}
		return llvm.ConstFloat(ty, v)
	}
	internal(b.backendName(), l, "literal of Go type %T", l.Val)
	return llvm.Value{}
}

// elementPtr computes &arr[loc] where arr is a pointer Var or an array
// property.
func (b *LLVMBackend) elementPtr(arr, loc ir.Expr) llvm.Value {
	base := b.expr(arr)
	idx := b.convert(b.expr(loc), loc.Type(), ir.Int64)
	elem := b.mapType(arr.Type(), arr)
	return b.builder.CreateInBoundsGEP(elem, base, []llvm.Value{idx}, "elem_ptr")
}

func (b *LLVMBackend) withScope(s ir.Stmt) {
	b.syms.Enter()
	b.stmt(s)
	b.syms.Leave()
}

func (b *LLVMBackend) stmt(s ir.Stmt) {
	switch s := s.(type) {
	case nil:
	case *ir.Block:
		for _, c := range s.Contents {
			b.stmt(c)
		}
	case *ir.Scope:
		b.withScope(s.ScopedStmt)
	case *ir.VarDecl:
		name, _ := b.vf.Name(s.Var)
		ty := b.varType(s.Var)
		alloca := b.createEntryBlockAlloca(ty, name)
		rhs := b.expr(s.Rhs)
		switch {
		case !s.Var.IsPtr && !s.Var.IsTensor:
			rhs = b.convert(rhs, s.Rhs.Type(), s.Var.Typ)
		case rhs.Type().TypeKind() != llvm.PointerTypeKind:
			rhs = b.builder.CreateIntToPtr(rhs, ty, name+"_ptr")
		}
		b.builder.CreateStore(rhs, alloca)
		b.syms.Define(name, slot{ptr: alloca, typ: ty})
	case *ir.Assign:
		b.assign(s)
	case *ir.Store:
		b.store(s)
	case *ir.For:
		b.forLoop(s)
	case *ir.While:
		b.whileLoop(s)
	case *ir.IfThenElse:
		b.ifThenElse(s)
	case *ir.Case:
		b.caseChain(s)
	case *ir.Switch:
		b.switchStmt(s)
	case *ir.Break:
		if len(b.breakTargets) == 0 {
			internal(b.backendName(), s, "break outside a loop or switch")
		}
		b.builder.CreateBr(b.breakTargets[len(b.breakTargets)-1])
		dead := b.Context.AddBasicBlock(b.llvmFn, "after_break")
		b.builder.SetInsertPointAtEnd(dead)
	case *ir.Allocate:
		b.allocate(s)
	case *ir.Free:
		fnType, fn := b.GetCFunc(FREE)
		b.builder.CreateCall(fnType, fn, []llvm.Value{b.expr(s.Var)}, "")
	case *ir.Print:
		b.print(s)
	case *ir.Comment, *ir.BlankLine:
	case *ir.Yield:
		unsupported(b.backendName(), s, "yield")
	case *ir.Function:
		unsupported(b.backendName(), s, "nested function %s", s.Name)
	default:
		internal(b.backendName(), s, "unknown statement")
	}
}

func (b *LLVMBackend) assign(s *ir.Assign) {
	name, sl := b.lookup(s.Lhs)
	if sl.direct {
		internal(b.backendName(), s, "cannot assign to %s", name)
	}
	t := s.Lhs.Type()
	if g, ok := s.Lhs.(*ir.GetProperty); ok && !isPointerProperty(g.Property) {
		t = ir.Int32
	}
	rhs := b.expr(s.Rhs)
	if !isPointerSlot(s.Lhs) {
		rhs = b.convert(rhs, s.Rhs.Type(), t)
	}
	if s.Op != ir.AssignPlain {
		cur := b.builder.CreateLoad(sl.typ, sl.ptr, name)
		rhs = b.compound(s.Op, t, cur, rhs, s)
	}
	b.builder.CreateStore(rhs, sl.ptr)
}

func isPointerSlot(e ir.Expr) bool {
	switch e := e.(type) {
	case *ir.Var:
		return e.IsPtr || e.IsTensor
	case *ir.GetProperty:
		return isPointerProperty(e.Property)
	}
	return false
}

func (b *LLVMBackend) store(s *ir.Store) {
	elemType := s.Arr.Type()
	ptr := b.elementPtr(s.Arr, s.Loc)
	if s.UseAtomics {
		inc, ok := atomicIncrement(s)
		if !ok || !elemType.IsIntegral() {
			unsupported(b.backendName(), s, "atomic store other than an integer increment")
		}
		val := b.convert(b.expr(inc), inc.Type(), elemType)
		b.builder.CreateAtomicRMW(llvm.AtomicRMWBinOpAdd, ptr, val, llvm.AtomicOrderingSequentiallyConsistent, false)
		return
	}
	data := b.convert(b.expr(s.Data), s.Data.Type(), elemType)
	b.builder.CreateStore(data, ptr)
}

// forLoop lowers [start, end) iteration into header, body, latch and exit
// blocks. The induction variable is a PHI in the header with one incoming
// edge from the preheader and one from the latch.
func (b *LLVMBackend) forLoop(s *ir.For) {
	t := s.Var.Typ
	if !t.IsInt() && !t.IsUInt() {
		unsupported(b.backendName(), s, "loop variable of type %s", t)
	}
	name, _ := b.vf.Name(s.Var)
	ty := b.mapType(t, s.Var)

	start := b.convert(b.expr(s.Start), s.Start.Type(), t)
	preheader := b.builder.GetInsertBlock()

	header := b.Context.AddBasicBlock(b.llvmFn, name+"_header")
	body := b.Context.AddBasicBlock(b.llvmFn, name+"_body")
	latch := b.Context.AddBasicBlock(b.llvmFn, name+"_latch")
	exit := b.Context.AddBasicBlock(b.llvmFn, name+"_exit")

	b.builder.CreateBr(header)
	b.builder.SetInsertPointAtEnd(header)
	iter := b.builder.CreatePHI(ty, name)
	iter.AddIncoming([]llvm.Value{start}, []llvm.BasicBlock{preheader})

	b.syms.Enter()
	b.syms.Define(name, slot{val: iter, typ: ty, direct: true})

	end := b.convert(b.expr(s.End), s.End.Type(), t)
	pred := llvm.IntSLT
	if t.IsUInt() {
		pred = llvm.IntULT
	}
	cond := b.builder.CreateICmp(pred, iter, end, name+"_cond")
	b.builder.CreateCondBr(cond, body, exit)

	b.builder.SetInsertPointAtEnd(body)
	b.breakTargets = append(b.breakTargets, exit)
	b.withScope(s.Contents)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.branchIfOpen(latch)

	b.builder.SetInsertPointAtEnd(latch)
	inc := b.convert(b.expr(s.Increment), s.Increment.Type(), t)
	next := b.builder.CreateAdd(iter, inc, name+"_next")
	b.builder.CreateBr(header)
	iter.AddIncoming([]llvm.Value{next}, []llvm.BasicBlock{latch})
	b.syms.Leave()

	b.builder.SetInsertPointAtEnd(exit)
}

func (b *LLVMBackend) whileLoop(s *ir.While) {
	header := b.Context.AddBasicBlock(b.llvmFn, "while_header")
	body := b.Context.AddBasicBlock(b.llvmFn, "while_body")
	exit := b.Context.AddBasicBlock(b.llvmFn, "while_exit")

	b.builder.CreateBr(header)
	b.builder.SetInsertPointAtEnd(header)
	cond := b.convert(b.expr(s.Cond), s.Cond.Type(), ir.Bool)
	b.builder.CreateCondBr(cond, body, exit)

	b.builder.SetInsertPointAtEnd(body)
	b.breakTargets = append(b.breakTargets, exit)
	b.withScope(s.Contents)
	b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
	b.branchIfOpen(header)

	b.builder.SetInsertPointAtEnd(exit)
}

// createIfElseCont emits a conditional branch and creates if/else/cont
// blocks in the current function.
func (b *LLVMBackend) createIfElseCont(cond llvm.Value, ifName, elseName, contName string) (llvm.BasicBlock, llvm.BasicBlock, llvm.BasicBlock) {
	ifBlock := b.Context.AddBasicBlock(b.llvmFn, ifName)
	elseBlock := b.Context.AddBasicBlock(b.llvmFn, elseName)
	contBlock := b.Context.AddBasicBlock(b.llvmFn, contName)
	b.builder.CreateCondBr(cond, ifBlock, elseBlock)
	return ifBlock, elseBlock, contBlock
}

func (b *LLVMBackend) ifThenElse(s *ir.IfThenElse) {
	cond := b.convert(b.expr(s.Cond), s.Cond.Type(), ir.Bool)
	thenBlock, elseBlock, cont := b.createIfElseCont(cond, "if_then", "if_else", "if_cont")

	b.builder.SetInsertPointAtEnd(thenBlock)
	b.withScope(s.Then)
	b.branchIfOpen(cont)

	b.builder.SetInsertPointAtEnd(elseBlock)
	if s.Otherwise != nil {
		b.withScope(s.Otherwise)
	}
	b.branchIfOpen(cont)

	b.builder.SetInsertPointAtEnd(cont)
}

func (b *LLVMBackend) caseChain(s *ir.Case) {
	cont := b.Context.AddBasicBlock(b.llvmFn, "case_cont")
	for i, c := range s.Clauses {
		if i == len(s.Clauses)-1 && s.AlwaysMatch {
			b.withScope(c.Body)
			b.branchIfOpen(cont)
			break
		}
		cond := b.convert(b.expr(c.Cond), c.Cond.Type(), ir.Bool)
		body := b.Context.AddBasicBlock(b.llvmFn, fmt.Sprintf("case_%d", i))
		next := b.Context.AddBasicBlock(b.llvmFn, fmt.Sprintf("case_%d_next", i))
		b.builder.CreateCondBr(cond, body, next)

		b.builder.SetInsertPointAtEnd(body)
		b.withScope(c.Body)
		b.branchIfOpen(cont)

		b.builder.SetInsertPointAtEnd(next)
	}
	b.branchIfOpen(cont)
	b.builder.SetInsertPointAtEnd(cont)
}

func (b *LLVMBackend) switchStmt(s *ir.Switch) {
	t := s.Ctrl.Type()
	if !t.IsIntegral() {
		unsupported(b.backendName(), s, "switch on %s", t)
	}
	ctrl := b.expr(s.Ctrl)
	ty := ctrl.Type()
	cont := b.Context.AddBasicBlock(b.llvmFn, "switch_cont")
	sw := b.builder.CreateSwitch(ctrl, cont, len(s.Cases))
	// break inside a case leaves the switch, not an enclosing loop
	b.breakTargets = append(b.breakTargets, cont)
	defer func() { b.breakTargets = b.breakTargets[:len(b.breakTargets)-1] }()
	for i, c := range s.Cases {
		block := b.Context.AddBasicBlock(b.llvmFn, fmt.Sprintf("switch_case_%d", i))
		sw.AddCase(llvm.ConstInt(ty, uint64(c.Value), true), block)
		b.builder.SetInsertPointAtEnd(block)
		b.withScope(c.Body)
		b.branchIfOpen(cont)
	}
	b.builder.SetInsertPointAtEnd(cont)
}

func (b *LLVMBackend) allocate(s *ir.Allocate) {
	_, sl := b.lookup(s.Var)
	if sl.direct {
		internal(b.backendName(), s, "cannot allocate into %s", s.Var)
	}
	i64 := b.Context.Int64Type()
	n := b.convert(b.expr(s.NumElements), s.NumElements.Type(), ir.Int64)
	size := llvm.ConstInt(i64, uint64(sizeOf(s.Var.Type())), false)

	var mem llvm.Value
	if s.IsRealloc {
		old := b.builder.CreateLoad(sl.typ, sl.ptr, "realloc_old")
		bytes := b.builder.CreateMul(n, size, "realloc_bytes")
		fnType, fn := b.GetCFunc(REALLOC)
		mem = b.builder.CreateCall(fnType, fn, []llvm.Value{old, bytes}, "realloc_mem")
	} else {
		fnType, fn := b.GetCFunc(CALLOC)
		mem = b.builder.CreateCall(fnType, fn, []llvm.Value{n, size}, "calloc_mem")
	}
	b.builder.CreateStore(mem, sl.ptr)
}

// createFormatStringGlobal stores a printf format as a private constant.
func (b *LLVMBackend) createFormatStringGlobal(formatted string) llvm.Value {
	formatConst := b.Context.ConstString(formatted, true)
	globalName := fmt.Sprintf("str_fmt_%d", b.strCounter)
	b.strCounter++

	arrayType := llvm.ArrayType(b.Context.Int8Type(), len(formatted)+1)
	global := llvm.AddGlobal(b.Module, arrayType, globalName)
	global.SetInitializer(formatConst)
	global.SetGlobalConstant(true)
	global.SetLinkage(llvm.PrivateLinkage)

	zero := llvm.ConstInt(b.Context.Int64Type(), 0, false)
	return b.builder.CreateGEP(arrayType, global, []llvm.Value{zero, zero}, "fmt_ptr")
}

func (b *LLVMBackend) print(s *ir.Print) {
	args := []llvm.Value{b.createFormatStringGlobal(s.Fmt)}
	for _, p := range s.Params {
		t := p.Type()
		v := b.expr(p)
		// C default argument promotions
		switch {
		case t.IsFloat() && t.Bits < 64:
			v = b.convert(v, t, ir.Float64)
		case t.IsIntegral() && (t.IsBool() || t.Bits < 32):
			to := ir.Int32
			if t.IsUInt() && t.Bits == 32 {
				to = ir.UInt32
			}
			v = b.convert(v, t, to)
		}
		args = append(args, v)
	}
	fnType, fn := b.GetCFunc(PRINTF)
	b.builder.CreateCall(fnType, fn, args, "printf_call")
}
