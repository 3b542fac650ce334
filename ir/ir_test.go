package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxType(t *testing.T) {
	tests := []struct {
		name string
		a, b Datatype
		want Datatype
	}{
		{"same", Int32, Int32, Int32},
		{"wider int", Int32, Int64, Int64},
		{"float beats int", Int64, Float32, Float32},
		{"wider float", Float32, Float64, Float64},
		{"signed beats unsigned", UInt32, Int32, Int32},
		{"wider unsigned", UInt64, Int32, UInt64},
		{"complex beats float", Float64, Complex64, Complex64},
		{"bool promotes", Bool, Int8, Int8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxType(tt.a, tt.b))
			assert.Equal(t, tt.want, MaxType(tt.b, tt.a))
		})
	}
}

func TestBinaryType(t *testing.T) {
	i := &Var{Name: "i", Typ: Int32}
	x := &Var{Name: "x", Typ: Float64}
	assert.Equal(t, Float64, NewBinary(Mul, i, x).Type())
	assert.Equal(t, Bool, NewBinary(Lt, i, x).Type())
	assert.Equal(t, Bool, (&Unary{Op: Not, A: NewBinary(Eq, i, i)}).Type())
}

func TestFunctionValidate(t *testing.T) {
	a := &Var{Name: "A", Typ: Float64, IsTensor: true}
	b := &Var{Name: "B", Typ: Float64, IsTensor: true}
	dup := &Var{Name: "A", Typ: Float64, IsTensor: true}

	fn := &Function{Name: "ok", Outputs: []Expr{a}, Inputs: []Expr{b}, Body: NewBlock()}
	require.NoError(t, fn.Validate())
	assert.Equal(t, []*Var{a, b}, fn.Params())
	assert.True(t, fn.IsOutput(a))
	assert.False(t, fn.IsOutput(b))

	fn = &Function{Name: "dup", Outputs: []Expr{a}, Inputs: []Expr{dup}, Body: NewBlock()}
	assert.ErrorIs(t, fn.Validate(), ErrDuplicateVar)

	fn = &Function{Name: "notvar", Outputs: []Expr{a}, Inputs: []Expr{Int(1, Int32)}, Body: NewBlock()}
	assert.ErrorIs(t, fn.Validate(), ErrNotVar)
}

func TestFormatLiteral(t *testing.T) {
	tests := []struct {
		name string
		lit  *Literal
		want string
	}{
		{"int", Int(3, Int32), "3"},
		{"double", Float(2, Float64), "2.0"},
		{"float", Float(0.5, Float32), "0.5f"},
		{"exponent", Float(1e300, Float64), "1e+300"},
		{"bool", &Literal{Val: true, Typ: Bool}, "1"},
		{"nan", Float(math.NaN(), Float64), "NAN"},
		{"inf", Float(math.Inf(1), Float32), "INFINITY"},
		{"negative inf", Float(math.Inf(-1), Float64), "-INFINITY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatLiteral(tt.lit))
		})
	}
}

func TestPrintStmt(t *testing.T) {
	a := &Var{Name: "A", Typ: Float64, IsTensor: true}
	vals := &GetProperty{Tensor: a, Property: Values, Typ: Float64}
	i := &Var{Name: "i", Typ: Int32}
	loop := &For{
		Var:       i,
		Start:     Int(0, Int32),
		End:       Int(4, Int32),
		Increment: Int(1, Int32),
		Contents:  &Store{Arr: vals, Loc: i, Data: Float(1, Float64)},
	}
	want := "for i in 0..4 step 1 {\n  A.Values(0,0)[i] = 1.0\n}\n"
	assert.Equal(t, want, loop.String())
}

func TestInspectOrder(t *testing.T) {
	a := &Var{Name: "a", Typ: Int32}
	b := &Var{Name: "b", Typ: Int32}
	body := NewBlock(
		&VarDecl{Var: a, Rhs: Int(1, Int32)},
		&IfThenElse{Cond: NewBinary(Lt, a, b), Then: &Assign{Lhs: b, Rhs: a}},
	)

	var names []string
	Inspect(body, func(n Node) bool {
		if v, ok := n.(*Var); ok {
			names = append(names, v.Name)
		}
		return true
	})
	assert.Equal(t, []string{"a", "a", "b", "b", "a"}, names)

	var visited int
	Inspect(body, func(n Node) bool {
		visited++
		_, isIf := n.(*IfThenElse)
		return !isIf
	})
	// block, decl, a, literal, if
	assert.Equal(t, 5, visited)
}
