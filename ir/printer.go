package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var unaryNames = map[UnaryOp]string{
	Neg:  "-",
	Sqrt: "sqrt",
	Not:  "!",
}

var binaryNames = map[BinaryOp]string{
	Add:    "+",
	Sub:    "-",
	Mul:    "*",
	Div:    "/",
	Rem:    "%",
	Min:    "min",
	Max:    "max",
	BitAnd: "&",
	BitOr:  "|",
	Eq:     "==",
	Neq:    "!=",
	Gt:     ">",
	Lt:     "<",
	Gte:    ">=",
	Lte:    "<=",
	And:    "&&",
	Or:     "||",
}

func (op UnaryOp) String() string {
	if s, ok := unaryNames[op]; ok {
		return s
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

func (op BinaryOp) String() string {
	if s, ok := binaryNames[op]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// FormatLiteral renders a literal value the way C source would spell it.
func FormatLiteral(l *Literal) string {
	switch v := l.Val.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		switch {
		case math.IsNaN(v):
			return "NAN"
		case math.IsInf(v, 1):
			return "INFINITY"
		case math.IsInf(v, -1):
			return "-INFINITY"
		}
		s := strconv.FormatFloat(v, 'g', -1, l.Typ.Bits)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		if l.Typ.Bits == 32 {
			s += "f"
		}
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func printExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func printExpr(e Expr) string {
	switch e := e.(type) {
	case *Var:
		return e.Name
	case *Literal:
		return FormatLiteral(e)
	case *Unary:
		if e.Op == Sqrt {
			return "sqrt(" + e.A.String() + ")"
		}
		return e.Op.String() + e.A.String()
	case *Binary:
		if e.Op == Min || e.Op == Max {
			return fmt.Sprintf("%s(%s, %s)", e.Op, e.A, e.B)
		}
		return fmt.Sprintf("(%s %s %s)", e.A, e.Op, e.B)
	case *Cast:
		return fmt.Sprintf("(%s)%s", e.Typ, e.A)
	case *Call:
		return fmt.Sprintf("%s(%s)", e.Func, printExprs(e.Args))
	case *Load:
		return fmt.Sprintf("%s[%s]", e.Arr, e.Loc)
	case *Sizeof:
		return fmt.Sprintf("sizeof(%s)", e.Of)
	case *GetProperty:
		return fmt.Sprintf("%s.%s(%d,%d)", e.Tensor, e.Property, e.Mode, e.Index)
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

func printStmt(s Stmt) string {
	var sb strings.Builder
	writeStmt(&sb, s, 0)
	return sb.String()
}

func writeStmt(sb *strings.Builder, s Stmt, depth int) {
	ind := strings.Repeat("  ", depth)
	line := func(format string, args ...any) {
		sb.WriteString(ind)
		fmt.Fprintf(sb, format, args...)
		sb.WriteString("\n")
	}
	switch s := s.(type) {
	case *Function:
		line("function %s(%s) -> (%s) {", s.Name, printExprs(s.Inputs), printExprs(s.Outputs))
		writeStmt(sb, s.Body, depth+1)
		line("}")
	case *Block:
		for _, c := range s.Contents {
			writeStmt(sb, c, depth)
		}
	case *Scope:
		writeStmt(sb, s.ScopedStmt, depth)
	case *For:
		line("for %s in %s..%s step %s {", s.Var, s.Start, s.End, s.Increment)
		writeStmt(sb, s.Contents, depth+1)
		line("}")
	case *While:
		line("while %s {", s.Cond)
		writeStmt(sb, s.Contents, depth+1)
		line("}")
	case *IfThenElse:
		line("if %s {", s.Cond)
		writeStmt(sb, s.Then, depth+1)
		if s.Otherwise != nil {
			line("} else {")
			writeStmt(sb, s.Otherwise, depth+1)
		}
		line("}")
	case *Case:
		for i, c := range s.Clauses {
			line("case %d: %s {", i, c.Cond)
			writeStmt(sb, c.Body, depth+1)
			line("}")
		}
	case *Switch:
		line("switch %s {", s.Ctrl)
		for _, c := range s.Cases {
			line("case %d:", c.Value)
			writeStmt(sb, c.Body, depth+1)
		}
		line("}")
	case *VarDecl:
		line("%s %s = %s", s.Var.Typ, s.Var, s.Rhs)
	case *Assign:
		line("%s = %s", s.Lhs, s.Rhs)
	case *Store:
		line("%s[%s] = %s", s.Arr, s.Loc, s.Data)
	case *Allocate:
		line("allocate %s[%s]", s.Var, s.NumElements)
	case *Free:
		line("free %s", s.Var)
	case *Yield:
		line("yield (%s) %s", printExprs(s.Coords), s.Val)
	case *Comment:
		line("// %s", s.Text)
	case *BlankLine:
		sb.WriteString("\n")
	case *Break:
		line("break")
	case *Print:
		line("print %q %s", s.Fmt, printExprs(s.Params))
	default:
		line("<%T>", s)
	}
}
