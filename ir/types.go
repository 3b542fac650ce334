package ir

import "fmt"

type Kind int

const (
	UndefinedKind Kind = iota
	BoolKind
	UIntKind
	IntKind
	FloatKind
	ComplexKind
)

// Datatype is a scalar component type. Bits is the total width, so
// Complex128 carries two 64-bit floats.
type Datatype struct {
	Kind Kind
	Bits int
}

var (
	Undefined  = Datatype{}
	Bool       = Datatype{Kind: BoolKind, Bits: 8}
	Int8       = Datatype{Kind: IntKind, Bits: 8}
	Int16      = Datatype{Kind: IntKind, Bits: 16}
	Int32      = Datatype{Kind: IntKind, Bits: 32}
	Int64      = Datatype{Kind: IntKind, Bits: 64}
	UInt8      = Datatype{Kind: UIntKind, Bits: 8}
	UInt16     = Datatype{Kind: UIntKind, Bits: 16}
	UInt32     = Datatype{Kind: UIntKind, Bits: 32}
	UInt64     = Datatype{Kind: UIntKind, Bits: 64}
	Float32    = Datatype{Kind: FloatKind, Bits: 32}
	Float64    = Datatype{Kind: FloatKind, Bits: 64}
	Complex64  = Datatype{Kind: ComplexKind, Bits: 64}
	Complex128 = Datatype{Kind: ComplexKind, Bits: 128}
)

func (t Datatype) IsBool() bool    { return t.Kind == BoolKind }
func (t Datatype) IsInt() bool     { return t.Kind == IntKind }
func (t Datatype) IsUInt() bool    { return t.Kind == UIntKind }
func (t Datatype) IsFloat() bool   { return t.Kind == FloatKind }
func (t Datatype) IsComplex() bool { return t.Kind == ComplexKind }

// IsIntegral reports signed, unsigned and boolean types.
func (t Datatype) IsIntegral() bool {
	return t.Kind == IntKind || t.Kind == UIntKind || t.Kind == BoolKind
}

func (t Datatype) String() string {
	switch t.Kind {
	case BoolKind:
		return "bool"
	case IntKind:
		return fmt.Sprintf("int%d", t.Bits)
	case UIntKind:
		return fmt.Sprintf("uint%d", t.Bits)
	case FloatKind:
		return fmt.Sprintf("float%d", t.Bits)
	case ComplexKind:
		return fmt.Sprintf("complex%d", t.Bits)
	default:
		return "undefined"
	}
}

// MaxType returns the type both operands of a mixed binary operation are
// promoted to: floats win over integers, wider wins over narrower, and
// signed wins over unsigned at equal width.
func MaxType(a, b Datatype) Datatype {
	if a == b {
		return a
	}
	rank := func(t Datatype) int {
		switch t.Kind {
		case ComplexKind:
			return 4
		case FloatKind:
			return 3
		case IntKind:
			return 2
		case UIntKind:
			return 1
		default:
			return 0
		}
	}
	ra, rb := rank(a), rank(b)
	if ra >= 3 || rb >= 3 {
		if ra != rb {
			if ra > rb {
				return a
			}
			return b
		}
	}
	if a.Bits != b.Bits {
		if a.Bits > b.Bits {
			return a
		}
		return b
	}
	if ra >= rb {
		return a
	}
	return b
}

type TensorProperty int

// The order matches the field order of the tensor runtime structure.
const (
	Order TensorProperty = iota
	Dimension
	ComponentSize
	ModeOrdering
	ModeTypes
	Indices
	Values
	ValuesSize
)

func (p TensorProperty) String() string {
	switch p {
	case Order:
		return "Order"
	case Dimension:
		return "Dimension"
	case ComponentSize:
		return "ComponentSize"
	case ModeOrdering:
		return "ModeOrdering"
	case ModeTypes:
		return "ModeTypes"
	case Indices:
		return "Indices"
	case Values:
		return "Values"
	case ValuesSize:
		return "ValuesSize"
	default:
		return fmt.Sprintf("TensorProperty(%d)", int(p))
	}
}
