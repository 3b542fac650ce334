package ir

// Inspect traverses the tree rooted at n in depth-first pre-order, calling
// f for every node. If f returns false the children of that node are
// skipped. Nil children are not visited.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	walkChildren(n, f)
}

func inspectExprs(es []Expr, f func(Node) bool) {
	for _, e := range es {
		if e != nil {
			Inspect(e, f)
		}
	}
}

func inspectExpr(e Expr, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}

func inspectStmt(s Stmt, f func(Node) bool) {
	if s != nil {
		Inspect(s, f)
	}
}

func walkChildren(n Node, f func(Node) bool) {
	switch n := n.(type) {
	case *Var, *Literal, *Sizeof, *Comment, *BlankLine, *Break:
	case *Unary:
		inspectExpr(n.A, f)
	case *Binary:
		inspectExpr(n.A, f)
		inspectExpr(n.B, f)
	case *Cast:
		inspectExpr(n.A, f)
	case *Call:
		inspectExprs(n.Args, f)
	case *Load:
		inspectExpr(n.Arr, f)
		inspectExpr(n.Loc, f)
	case *GetProperty:
		inspectExpr(n.Tensor, f)
	case *Function:
		inspectExprs(n.Outputs, f)
		inspectExprs(n.Inputs, f)
		inspectStmt(n.Body, f)
	case *IfThenElse:
		inspectExpr(n.Cond, f)
		inspectStmt(n.Then, f)
		inspectStmt(n.Otherwise, f)
	case *Case:
		for _, c := range n.Clauses {
			inspectExpr(c.Cond, f)
			inspectStmt(c.Body, f)
		}
	case *Switch:
		inspectExpr(n.Ctrl, f)
		for _, c := range n.Cases {
			inspectStmt(c.Body, f)
		}
	case *Store:
		inspectExpr(n.Arr, f)
		inspectExpr(n.Loc, f)
		inspectExpr(n.Data, f)
	case *For:
		if n.Var != nil {
			Inspect(n.Var, f)
		}
		inspectExpr(n.Start, f)
		inspectExpr(n.End, f)
		inspectExpr(n.Increment, f)
		inspectStmt(n.Contents, f)
	case *While:
		inspectExpr(n.Cond, f)
		inspectStmt(n.Contents, f)
	case *Block:
		for _, s := range n.Contents {
			inspectStmt(s, f)
		}
	case *Scope:
		inspectStmt(n.ScopedStmt, f)
	case *VarDecl:
		if n.Var != nil {
			Inspect(n.Var, f)
		}
		inspectExpr(n.Rhs, f)
	case *Assign:
		inspectExpr(n.Lhs, f)
		inspectExpr(n.Rhs, f)
	case *Yield:
		inspectExprs(n.Coords, f)
		inspectExpr(n.Val, f)
	case *Allocate:
		inspectExpr(n.Var, f)
		inspectExpr(n.NumElements, f)
	case *Free:
		inspectExpr(n.Var, f)
	case *Print:
		inspectExprs(n.Params, f)
	}
}
