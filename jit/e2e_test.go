//go:build cgo && (linux || darwin)

package jit

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/tensorjit/codegen"
	"github.com/thiremani/tensorjit/ir"
	"github.com/thiremani/tensorjit/kernels"
	"tinygo.org/x/go-llvm"
)

func requireTool(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not found in PATH", name)
		}
	}
}

func newNativeModule(t *testing.T, opts ...Option) *Module {
	t.Helper()
	clearEnv(t)
	cfg := DefaultConfig()
	cfg.TmpDir = t.TempDir()
	m, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func denseVector(t *testing.T, vals []float64) *Tensor {
	t.Helper()
	v, err := NewDense(ir.Float64, len(vals))
	require.NoError(t, err)
	t.Cleanup(v.Free)
	require.NoError(t, SetValues(v, vals))
	return v
}

func runVectorAdd(t *testing.T, m *Module) {
	t.Helper()
	require.NoError(t, m.AddFunction(kernels.VectorAdd("add", ir.Float64)))
	_, err := m.Compile(context.Background())
	require.NoError(t, err)
	require.Equal(t, Loaded, m.State())
	assert.NotNil(t, m.FuncPtr("add"))

	A := denseVector(t, []float64{0, 0, 0})
	B := denseVector(t, []float64{1, 2, 3})
	C := denseVector(t, []float64{4, 5, 6})
	require.NoError(t, m.Call("add", A, B, C))

	got, err := Values[float64](A)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 9}, got)
}

func TestVectorAddC(t *testing.T) {
	requireTool(t, "cc")
	runVectorAdd(t, newNativeModule(t))
}

func TestVectorAddLLVM(t *testing.T) {
	requireTool(t, "cc", "llc")
	runVectorAdd(t, newNativeModule(t, WithTarget(Target{Arch: Native, Compiler: "cc", CompilerEnv: "TACO_CC"})))
}

func TestSpMVAndDotC(t *testing.T) {
	requireTool(t, "cc")
	m := newNativeModule(t)
	require.NoError(t, m.AddFunction(kernels.CSRMatVec("spmv", ir.Float64)))
	require.NoError(t, m.AddFunction(kernels.Dot("dot", ir.Float64)))
	_, err := m.Compile(context.Background())
	require.NoError(t, err)

	// [1 0 2]
	// [0 3 0]
	B, err := NewCSR(ir.Float64, 2, 3, []int32{0, 2, 3}, []int32{0, 2, 1})
	require.NoError(t, err)
	defer B.Free()
	require.NoError(t, SetValues(B, []float64{1, 2, 3}))
	x := denseVector(t, []float64{1, 1, 2})
	y := denseVector(t, []float64{0, 0})

	require.NoError(t, m.Call("spmv", y, B, x))
	got, err := Values[float64](y)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 3}, got)

	out := denseVector(t, []float64{0})
	require.NoError(t, m.Call("dot", out, x, x))
	got, err = Values[float64](out)
	require.NoError(t, err)
	assert.Equal(t, []float64{6}, got)
}

func TestScalarArgument(t *testing.T) {
	requireTool(t, "cc")
	m := newNativeModule(t)
	require.NoError(t, m.AddFunction(kernels.Scale("scale", ir.Float32)))
	_, err := m.Compile(context.Background())
	require.NoError(t, err)

	A, err := NewDense(ir.Float32, 2)
	require.NoError(t, err)
	defer A.Free()
	B, err := NewDense(ir.Float32, 2)
	require.NoError(t, err)
	defer B.Free()
	require.NoError(t, SetValues(B, []float32{1.5, -2}))
	alpha := NewScalar(float32(2))
	defer alpha.Free()

	require.NoError(t, m.Call("scale", A, B, alpha))
	got, err := Values[float32](A)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, -4}, got)
}

func TestToolchainFailureRealCompiler(t *testing.T) {
	requireTool(t, "cc")
	m := newNativeModule(t)
	runVectorAdd(t, m)
	prev := m.LibPath()

	// corrupt the generated source
	require.NoError(t, m.SetSource("\nint broken(void) { return\n"))
	_, err := m.Compile(context.Background())
	var te *ToolchainError
	require.ErrorAs(t, err, &te)
	assert.NotEmpty(t, te.Stderr)
	assert.NotZero(t, te.ExitCode)
	assert.Equal(t, Fatal, m.State())

	assert.Equal(t, prev, m.LibPath())
	assert.FileExists(t, prev)
	assert.NotNil(t, m.FuncPtr("add"))
	_, err = m.CallPacked("add", nil)
	assert.ErrorIs(t, err, ErrSessionFailed)
}

func TestTensorLayoutMatchesLLVM(t *testing.T) {
	require.NoError(t, llvm.InitializeNativeTarget())
	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	require.NoError(t, err)
	tm := target.CreateTargetMachine(triple, "", "", llvm.CodeGenLevelDefault, llvm.RelocPIC, llvm.CodeModelDefault)
	defer tm.Dispose()
	td := tm.CreateTargetData()
	defer td.Dispose()

	b := codegen.NewLLVMBackend("layout")
	defer b.Dispose()
	offsets := tensorFieldOffsets()
	require.Len(t, b.TensorType().StructElementTypes(), len(offsets))
	for i, off := range offsets {
		assert.Equal(t, uint64(off), td.ElementOffset(b.TensorType(), i), "field %d", i)
	}
}

func TestTensorValidation(t *testing.T) {
	_, err := NewDense(ir.Datatype{Kind: ir.IntKind, Bits: 12}, 3)
	require.Error(t, err)

	_, err = NewCSR(ir.Float64, 2, 2, []int32{0, 1}, nil)
	require.ErrorContains(t, err, "pos has 2 entries")

	v, err := NewDense(ir.Float64, 2, 3)
	require.NoError(t, err)
	defer v.Free()
	assert.Equal(t, 6, v.Len())
	assert.Equal(t, []int{2, 3}, v.Dims())
	require.ErrorContains(t, SetValues(v, []float32{1, 2, 3, 4, 5, 6}), "does not match")
	require.ErrorContains(t, SetValues(v, []float64{1}), "got 1 values")
}

func countSkipping() *ir.Function {
	A := &ir.Var{Name: "A", Typ: ir.Float64, IsTensor: true}
	vals := &ir.GetProperty{Tensor: A, Property: ir.Values, Typ: ir.Float64}
	i := &ir.Var{Name: "i", Typ: ir.Int32}
	k := &ir.Var{Name: "k", Typ: ir.Int32}
	return &ir.Function{
		Name:    "count",
		Outputs: []ir.Expr{A},
		Body: ir.NewBlock(
			&ir.VarDecl{Var: k, Rhs: ir.Int(0, ir.Int32)},
			&ir.For{
				Var: i, Start: ir.Int(0, ir.Int32), End: ir.Int(4, ir.Int32), Increment: ir.Int(1, ir.Int32),
				Contents: ir.NewBlock(
					&ir.Switch{Ctrl: i, Cases: []ir.SwitchCase{{Value: 1, Body: &ir.Break{}}}},
					&ir.Assign{Lhs: k, Rhs: ir.Int(1, ir.Int32), Op: ir.AssignAdd},
				),
			},
			&ir.Store{Arr: vals, Loc: ir.Int(0, ir.Int32), Data: &ir.Cast{A: k, Typ: ir.Float64}},
		),
	}
}

func TestBackendsAgreeOnSwitchBreak(t *testing.T) {
	tests := []struct {
		name  string
		tools []string
		opts  []Option
	}{
		{"c", []string{"cc"}, nil},
		{"llvm", []string{"cc", "llc"}, []Option{WithTarget(Target{Arch: Native, Compiler: "cc"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireTool(t, tt.tools...)
			m := newNativeModule(t, tt.opts...)
			require.NoError(t, m.AddFunction(countSkipping()))
			_, err := m.Compile(context.Background())
			require.NoError(t, err)

			A := denseVector(t, []float64{0})
			require.NoError(t, m.Call("count", A))
			got, err := Values[float64](A)
			require.NoError(t, err)
			assert.Equal(t, []float64{4}, got)
		})
	}
}

func TestDLLoaderReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.so")
	require.NoError(t, os.WriteFile(path, []byte("not a shared object"), 0o644))

	_, err := DLLoader{}.Open(path)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, path, le.Path)
	assert.NotEmpty(t, le.Msg)
	assert.NotEqual(t, "unknown dynamic loader error", le.Msg)
}
