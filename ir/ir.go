// Package ir defines the lowered, target-independent statement and
// expression tree consumed by the code generators.
//
// Nodes are immutable once built and shared by pointer. Two nodes are the
// same node only if they are the same pointer; structurally equal nodes
// built separately are distinct.
package ir

// The base Node interface
type Node interface {
	String() string
}

// All expression nodes implement this
type Expr interface {
	Node
	Type() Datatype
	exprNode()
}

// All statement nodes implement this
type Stmt interface {
	Node
	stmtNode()
}

// Expressions

// Var is a scalar, pointer or tensor variable. Tensor variables are
// pointers to the tensor runtime structure.
type Var struct {
	Name     string
	Typ      Datatype
	IsPtr    bool
	IsTensor bool
}

func (v *Var) Type() Datatype { return v.Typ }
func (v *Var) exprNode()      {}
func (v *Var) String() string { return v.Name }

// Literal holds one of int64, uint64, float64 or bool.
type Literal struct {
	Val any
	Typ Datatype
}

func (l *Literal) Type() Datatype { return l.Typ }
func (l *Literal) exprNode()      {}
func (l *Literal) String() string { return printExpr(l) }

type UnaryOp int

const (
	Neg UnaryOp = iota
	Sqrt
	Not
)

type Unary struct {
	Op UnaryOp
	A  Expr
}

func (u *Unary) Type() Datatype {
	if u.Op == Not {
		return Bool
	}
	return u.A.Type()
}
func (u *Unary) exprNode()      {}
func (u *Unary) String() string { return printExpr(u) }

type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Rem
	Min
	Max
	BitAnd
	BitOr
	Eq
	Neq
	Gt
	Lt
	Gte
	Lte
	And
	Or
)

// IsComparison reports whether the operator yields a boolean.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case Eq, Neq, Gt, Lt, Gte, Lte, And, Or:
		return true
	}
	return false
}

type Binary struct {
	Op   BinaryOp
	A, B Expr
}

func (b *Binary) Type() Datatype {
	if b.Op.IsComparison() {
		return Bool
	}
	return MaxType(b.A.Type(), b.B.Type())
}
func (b *Binary) exprNode()      {}
func (b *Binary) String() string { return printExpr(b) }

type Cast struct {
	A   Expr
	Typ Datatype
}

func (c *Cast) Type() Datatype { return c.Typ }
func (c *Cast) exprNode()      {}
func (c *Cast) String() string { return printExpr(c) }

// Call invokes an external function by name.
type Call struct {
	Func string
	Args []Expr
	Typ  Datatype
}

func (c *Call) Type() Datatype { return c.Typ }
func (c *Call) exprNode()      {}
func (c *Call) String() string { return printExpr(c) }

// Load reads Arr[Loc]. Arr is a pointer Var or a Values/Indices property.
type Load struct {
	Arr Expr
	Loc Expr
}

func (l *Load) Type() Datatype { return l.Arr.Type() }
func (l *Load) exprNode()      {}
func (l *Load) String() string { return printExpr(l) }

type Sizeof struct {
	Of Datatype
}

func (s *Sizeof) Type() Datatype { return UInt64 }
func (s *Sizeof) exprNode()      {}
func (s *Sizeof) String() string { return printExpr(s) }

// GetProperty reads field Property of Tensor at (Mode, Index). Name is a
// hint for the generated variable; Typ is the element type for Values and
// Indices and int32 for the scalar fields.
type GetProperty struct {
	Tensor   Expr
	Property TensorProperty
	Mode     int
	Index    int
	Name     string
	Typ      Datatype
}

func (g *GetProperty) Type() Datatype { return g.Typ }
func (g *GetProperty) exprNode()      {}
func (g *GetProperty) String() string { return printExpr(g) }

// Statements

type IfThenElse struct {
	Cond      Expr
	Then      Stmt
	Otherwise Stmt // may be nil
}

func (*IfThenElse) stmtNode()        {}
func (s *IfThenElse) String() string { return printStmt(s) }

type CaseClause struct {
	Cond Expr
	Body Stmt
}

// Case is an if/else-if chain. When AlwaysMatch is set the last clause
// is emitted as the final else.
type Case struct {
	Clauses     []CaseClause
	AlwaysMatch bool
}

func (*Case) stmtNode()        {}
func (s *Case) String() string { return printStmt(s) }

type SwitchCase struct {
	Value int64
	Body  Stmt
}

type Switch struct {
	Ctrl  Expr
	Cases []SwitchCase
}

func (*Switch) stmtNode()        {}
func (s *Switch) String() string { return printStmt(s) }

type Store struct {
	Arr        Expr
	Loc        Expr
	Data       Expr
	UseAtomics bool
}

func (*Store) stmtNode()        {}
func (s *Store) String() string { return printStmt(s) }

type LoopKind int

const (
	Serial LoopKind = iota
	Static
	Dynamic
	Runtime
	Vectorized
)

type ParallelUnit int

const (
	NotParallel ParallelUnit = iota
	CPUThread
	GPUBlock
	GPUThread
)

// For iterates Var over [Start, End) by Increment.
type For struct {
	Var       *Var
	Start     Expr
	End       Expr
	Increment Expr
	Contents  Stmt
	Kind      LoopKind
	Parallel  ParallelUnit
	Chunk     int
}

func (*For) stmtNode()        {}
func (s *For) String() string { return printStmt(s) }

// OnDevice reports whether the loop is meant to run as a GPU kernel.
func (s *For) OnDevice() bool {
	return s.Parallel == GPUBlock || s.Parallel == GPUThread
}

type While struct {
	Cond     Expr
	Contents Stmt
}

func (*While) stmtNode()        {}
func (s *While) String() string { return printStmt(s) }

type Block struct {
	Contents []Stmt
}

func (*Block) stmtNode()        {}
func (s *Block) String() string { return printStmt(s) }

// Scope opens a lexical scope around ScopedStmt.
type Scope struct {
	ScopedStmt Stmt
}

func (*Scope) stmtNode()        {}
func (s *Scope) String() string { return printStmt(s) }

type VarDecl struct {
	Var *Var
	Rhs Expr
}

func (*VarDecl) stmtNode()        {}
func (s *VarDecl) String() string { return printStmt(s) }

// AssignOp selects compound assignment. AssignPlain is "=".
type AssignOp int

const (
	AssignPlain AssignOp = iota
	AssignAdd
	AssignMul
	AssignBitOr
)

// Assign writes Rhs to Lhs, which is a Var or a GetProperty.
type Assign struct {
	Lhs Expr
	Rhs Expr
	Op  AssignOp
}

func (*Assign) stmtNode()        {}
func (s *Assign) String() string { return printStmt(s) }

type Yield struct {
	Coords []Expr
	Val    Expr
}

func (*Yield) stmtNode()        {}
func (s *Yield) String() string { return printStmt(s) }

// Allocate (re)allocates NumElements elements of Var's type into Var.
type Allocate struct {
	Var         Expr
	NumElements Expr
	IsRealloc   bool
}

func (*Allocate) stmtNode()        {}
func (s *Allocate) String() string { return printStmt(s) }

type Free struct {
	Var Expr
}

func (*Free) stmtNode()        {}
func (s *Free) String() string { return printStmt(s) }

type Comment struct {
	Text string
}

func (*Comment) stmtNode()        {}
func (s *Comment) String() string { return printStmt(s) }

type BlankLine struct{}

func (*BlankLine) stmtNode()        {}
func (s *BlankLine) String() string { return "" }

type Break struct{}

func (*Break) stmtNode()        {}
func (s *Break) String() string { return "break" }

type Print struct {
	Fmt    string
	Params []Expr
}

func (*Print) stmtNode()        {}
func (s *Print) String() string { return printStmt(s) }

// Helpers used by kernel builders.

func NewBlock(stmts ...Stmt) *Block { return &Block{Contents: stmts} }

func Int(v int64, t Datatype) *Literal { return &Literal{Val: v, Typ: t} }

func Float(v float64, t Datatype) *Literal { return &Literal{Val: v, Typ: t} }

func NewBinary(op BinaryOp, a, b Expr) *Binary { return &Binary{Op: op, A: a, B: b} }
