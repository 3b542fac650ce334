package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/tensorjit/ir"
	"github.com/thiremani/tensorjit/kernels"
)

func generateC(t *testing.T, b *CBackend, fns ...*ir.Function) string {
	t.Helper()
	for i, fn := range fns {
		require.NoError(t, b.Compile(fn, i == 0))
	}
	return b.Source()
}

func TestCVectorAdd(t *testing.T) {
	src := generateC(t, NewCBackend(Implementation), kernels.VectorAdd("add", ir.Float64))

	want := `int add(taco_tensor_t *A, taco_tensor_t *B, taco_tensor_t *C) {
  int A1_dimension = (int)(A->dimensions[0]);
  double* restrict A_vals = (double*)(A->vals);
  double* restrict B_vals = (double*)(B->vals);
  double* restrict C_vals = (double*)(C->vals);
  for (int32_t i = 0; i < A1_dimension; i++) {
    A_vals[i] = (B_vals[i] + C_vals[i]);
  }
  A->vals = (uint8_t*)A_vals;
  return 0;
}
`
	assert.Contains(t, src, want)
	assert.True(t, strings.HasPrefix(src, "#ifndef TACO_C_HEADERS"))
	assert.Contains(t, src, "#define TACO_MIN(_a,_b)")
	assert.Contains(t, src, "uint8_t***   indices;")
}

func TestCBoilerplateOnlyFirst(t *testing.T) {
	src := generateC(t, NewCBackend(Implementation),
		kernels.VectorAdd("add", ir.Float64),
		kernels.Scale("scale", ir.Float64))
	assert.Equal(t, 1, strings.Count(src, "typedef struct"))
	assert.Contains(t, src, "int scale(taco_tensor_t *A, taco_tensor_t *B, double alpha) {")
}

func TestCHeader(t *testing.T) {
	src := generateC(t, NewCBackend(Header),
		kernels.VectorAdd("add", ir.Float64),
		kernels.Dot("dot", ir.Float32))
	assert.Contains(t, src, "int add(taco_tensor_t *A, taco_tensor_t *B, taco_tensor_t *C);\n")
	assert.Contains(t, src, "int dot(taco_tensor_t *A, taco_tensor_t *B, taco_tensor_t *C);\n")
	assert.NotContains(t, src, "return 0;")
}

func TestCCanonicalProperties(t *testing.T) {
	A := &ir.Var{Name: "A", Typ: ir.Float64, IsTensor: true}
	v1 := &ir.GetProperty{Tensor: A, Property: ir.Values, Typ: ir.Float64}
	v2 := &ir.GetProperty{Tensor: A, Property: ir.Values, Typ: ir.Float64}
	d1 := &ir.GetProperty{Tensor: A, Property: ir.Dimension, Mode: 0, Typ: ir.Int32}
	d2 := &ir.GetProperty{Tensor: A, Property: ir.Dimension, Mode: 1, Typ: ir.Int32}
	fn := &ir.Function{
		Name:    "copy",
		Outputs: []ir.Expr{A},
		Body: ir.NewBlock(
			&ir.Store{Arr: v1, Loc: ir.Int(0, ir.Int32), Data: &ir.Load{Arr: v2, Loc: ir.Int(1, ir.Int32)}},
			&ir.Store{Arr: v2, Loc: d1, Data: &ir.Cast{A: d2, Typ: ir.Float64}},
		),
	}
	src := generateC(t, NewCBackend(Implementation), fn)

	assert.Equal(t, 1, strings.Count(src, "double* restrict A_vals ="))
	assert.Contains(t, src, "A_vals[0] = A_vals[1];")
	assert.Contains(t, src, "int A1_dimension = (int)(A->dimensions[0]);")
	assert.Contains(t, src, "int A2_dimension = (int)(A->dimensions[1]);")
	assert.Contains(t, src, "A_vals[A1_dimension] = (double)(A2_dimension);")
	assert.Equal(t, 1, strings.Count(src, "A->vals = (uint8_t*)A_vals;"))
}

func TestCUniqueNames(t *testing.T) {
	t1 := &ir.Var{Name: "t", Typ: ir.Int32}
	t2 := &ir.Var{Name: "t", Typ: ir.Int32}
	kw := &ir.Var{Name: "for", Typ: ir.Int32}
	fn := &ir.Function{
		Name: "names",
		Body: ir.NewBlock(
			&ir.VarDecl{Var: t1, Rhs: ir.Int(1, ir.Int32)},
			&ir.Scope{ScopedStmt: &ir.VarDecl{Var: t2, Rhs: t1}},
			&ir.VarDecl{Var: kw, Rhs: ir.Int(3, ir.Int32)},
		),
	}
	src := generateC(t, NewCBackend(Implementation), fn)
	assert.Contains(t, src, "  int32_t t = 1;\n")
	assert.Contains(t, src, "  int32_t t0 = t;\n")
	assert.Contains(t, src, "  int32_t for0 = 3;\n")
}

func TestCDeterministic(t *testing.T) {
	gen := func() string {
		return generateC(t, NewCBackend(Implementation),
			kernels.CSRMatVec("spmv", ir.Float64, kernels.Parallel(ir.Static, 0)),
			kernels.Dot("dot", ir.Float64))
	}
	assert.Equal(t, gen(), gen())
}

func TestCStatements(t *testing.T) {
	n := &ir.Var{Name: "n", Typ: ir.Int32}
	buf := &ir.Var{Name: "buf", Typ: ir.Float32, IsPtr: true}
	x := &ir.Var{Name: "x", Typ: ir.Float32}
	k := &ir.Var{Name: "k", Typ: ir.Int32}
	fn := &ir.Function{
		Name:   "misc",
		Inputs: []ir.Expr{n},
		Body: ir.NewBlock(
			&ir.VarDecl{Var: buf, Rhs: ir.Int(0, ir.Int64)},
			&ir.Allocate{Var: buf, NumElements: n},
			&ir.VarDecl{Var: x, Rhs: &ir.Unary{Op: ir.Sqrt, A: ir.Float(2, ir.Float32)}},
			&ir.VarDecl{Var: k, Rhs: ir.Int(0, ir.Int32)},
			&ir.While{
				Cond: ir.NewBinary(ir.Lt, k, n),
				Contents: ir.NewBlock(
					&ir.IfThenElse{
						Cond:      ir.NewBinary(ir.Gt, x, ir.Float(4, ir.Float32)),
						Then:      &ir.Break{},
						Otherwise: &ir.Assign{Lhs: x, Rhs: ir.Float(2, ir.Float32), Op: ir.AssignMul},
					},
					&ir.Assign{Lhs: k, Rhs: ir.Int(1, ir.Int32), Op: ir.AssignAdd},
				),
			},
			&ir.Switch{Ctrl: k, Cases: []ir.SwitchCase{{Value: 2, Body: &ir.Comment{Text: "two"}}}},
			&ir.Case{
				Clauses: []ir.CaseClause{
					{Cond: ir.NewBinary(ir.Eq, k, ir.Int(0, ir.Int32)), Body: &ir.Print{Fmt: "zero\n"}},
					{Cond: ir.NewBinary(ir.Eq, k, ir.Int(1, ir.Int32)), Body: &ir.Print{Fmt: "%d\n", Params: []ir.Expr{k}}},
					{Body: &ir.Allocate{Var: buf, NumElements: k, IsRealloc: true}},
				},
				AlwaysMatch: true,
			},
			&ir.Store{Arr: buf, Loc: ir.Int(0, ir.Int32), Data: ir.NewBinary(ir.Rem, x, ir.NewBinary(ir.Max, x, ir.Float(1, ir.Float32)))},
			&ir.Free{Var: buf},
		),
	}
	src := generateC(t, NewCBackend(Implementation), fn)

	for _, want := range []string{
		"int misc(int32_t n) {",
		"float* restrict buf = 0;",
		"buf = (float*)malloc(sizeof(float) * (n));",
		"float x = sqrtf(2.0f);",
		"while ((k < n)) {",
		"if ((x > 4.0f)) {",
		"break;",
		"else {",
		"x *= 2.0f;",
		"k += 1;",
		"switch (k) {",
		"case 2: {",
		"// two",
		"if ((k == 0)) {",
		`printf("zero\n");`,
		"else if ((k == 1)) {",
		`printf("%d\n", k);`,
		"buf = (float*)realloc(buf, sizeof(float) * (k));",
		"buf[0] = fmodf(x, TACO_MAX(x, 1.0f));",
		"free(buf);",
	} {
		assert.Contains(t, src, want)
	}
}

func TestCOpenMP(t *testing.T) {
	src := generateC(t, NewCBackend(Implementation),
		kernels.VectorAdd("add", ir.Float64, kernels.Parallel(ir.Dynamic, 16)),
		kernels.Scale("scale", ir.Float64, kernels.Parallel(ir.Runtime, 0)))
	assert.Contains(t, src, "  #pragma omp parallel for schedule(dynamic, 16)\n  for (int32_t i = 0;")
	assert.Contains(t, src, "#pragma omp parallel for schedule(runtime)")
}

func TestCAtomicStore(t *testing.T) {
	A := &ir.Var{Name: "A", Typ: ir.Float64, IsTensor: true}
	vals := &ir.GetProperty{Tensor: A, Property: ir.Values, Typ: ir.Float64}
	loc := ir.Int(0, ir.Int32)
	fn := &ir.Function{
		Name:    "accum",
		Outputs: []ir.Expr{A},
		Body: &ir.Store{
			Arr:        vals,
			Loc:        loc,
			Data:       ir.NewBinary(ir.Add, &ir.Load{Arr: vals, Loc: loc}, ir.Float(1, ir.Float64)),
			UseAtomics: true,
		},
	}
	src := generateC(t, NewCBackend(Implementation), fn)
	assert.Contains(t, src, "  #pragma omp atomic\n  A_vals[0] += 1.0;\n")

	src = generateC(t, NewCUDABackend(Implementation), fn)
	assert.Contains(t, src, "atomicAdd(&A_vals[0], 1.0);")
}

func TestCErrors(t *testing.T) {
	A := &ir.Var{Name: "A", Typ: ir.Float64, IsTensor: true}
	i := &ir.Var{Name: "i", Typ: ir.Int32}

	t.Run("yield unsupported", func(t *testing.T) {
		fn := &ir.Function{Name: "y", Outputs: []ir.Expr{A}, Body: &ir.Yield{Val: ir.Float(1, ir.Float64)}}
		err := NewCBackend(Implementation).Compile(fn, true)
		require.Error(t, err)
		assert.True(t, IsUnsupported(err))
		assert.Contains(t, err.Error(), "yield")
	})

	t.Run("duplicate parameter", func(t *testing.T) {
		dup := &ir.Var{Name: "A", Typ: ir.Float64, IsTensor: true}
		fn := &ir.Function{Name: "d", Outputs: []ir.Expr{A}, Inputs: []ir.Expr{dup}, Body: ir.NewBlock()}
		err := NewCBackend(Implementation).Compile(fn, true)
		require.ErrorIs(t, err, ir.ErrDuplicateVar)
		var ce *Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, InvalidFunction, ce.Kind)
		assert.False(t, IsUnsupported(err))
	})

	t.Run("reserved parameter", func(t *testing.T) {
		p := &ir.Var{Name: "double", Typ: ir.Float64}
		fn := &ir.Function{Name: "r", Inputs: []ir.Expr{p}, Body: ir.NewBlock()}
		err := NewCBackend(Implementation).Compile(fn, true)
		assert.True(t, IsUnsupported(err))
	})

	t.Run("variable out of scope", func(t *testing.T) {
		loop := &ir.For{Var: i, Start: ir.Int(0, ir.Int32), End: ir.Int(4, ir.Int32), Increment: ir.Int(1, ir.Int32), Contents: ir.NewBlock()}
		fn := &ir.Function{Name: "s", Body: ir.NewBlock(loop, &ir.Print{Fmt: "%d", Params: []ir.Expr{i}})}
		err := NewCBackend(Implementation).Compile(fn, true)
		require.Error(t, err)
		assert.False(t, IsUnsupported(err))
		assert.Contains(t, err.Error(), "outside its scope")
	})
}
