package codegen

import "tinygo.org/x/go-llvm"

const (
	PRINTF  = "printf"
	CALLOC  = "calloc"
	REALLOC = "realloc"
	FREE    = "free"

	SQRT_F32 = "llvm.sqrt.f32"
	SQRT_F64 = "llvm.sqrt.f64"
)

// GetFnType returns the LLVM FunctionType of a C runtime function or
// intrinsic the generated code calls.
func (b *LLVMBackend) GetFnType(name string) llvm.Type {
	ptr := llvm.PointerType(b.Context.Int8Type(), 0)
	i64 := b.Context.Int64Type()

	switch name {
	case PRINTF:
		return llvm.FunctionType(b.Context.Int32Type(), []llvm.Type{ptr}, true)
	case CALLOC:
		return llvm.FunctionType(ptr, []llvm.Type{i64, i64}, false)
	case REALLOC:
		return llvm.FunctionType(ptr, []llvm.Type{ptr, i64}, false)
	case FREE:
		return llvm.FunctionType(b.Context.VoidType(), []llvm.Type{ptr}, false)
	case SQRT_F32:
		f32 := b.Context.FloatType()
		return llvm.FunctionType(f32, []llvm.Type{f32}, false)
	case SQRT_F64:
		f64 := b.Context.DoubleType()
		return llvm.FunctionType(f64, []llvm.Type{f64}, false)
	default:
		internal(b.backendName(), nil, "unknown runtime function %s", name)
	}
	return llvm.Type{}
}

// GetCFunc declares the named runtime function on first use.
func (b *LLVMBackend) GetCFunc(name string) (llvm.Type, llvm.Value) {
	fnType := b.GetFnType(name)
	fn := b.Module.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(b.Module, name, fnType)
	}
	return fnType, fn
}

// externFunc declares a caller-named external function with the given
// signature, reusing an existing declaration.
func (b *LLVMBackend) externFunc(name string, ret llvm.Type, params []llvm.Type) (llvm.Type, llvm.Value) {
	if fnType, ok := b.fnTypes[name]; ok {
		return fnType, b.Module.NamedFunction(name)
	}
	fnType := llvm.FunctionType(ret, params, false)
	fn := b.Module.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(b.Module, name, fnType)
	}
	b.fnTypes[name] = fnType
	return fnType, fn
}
