package ir

import (
	"errors"
	"fmt"
)

var (
	ErrNotVar       = errors.New("function parameter is not a variable")
	ErrDuplicateVar = errors.New("duplicate function parameter")
)

// Function is a named unit with ordered inputs, ordered outputs and a body.
// Generated code takes the outputs first, then the inputs.
type Function struct {
	Name    string
	Inputs  []Expr
	Outputs []Expr
	Body    Stmt
}

func (*Function) stmtNode()        {}
func (f *Function) String() string { return printStmt(f) }

// Params returns outputs followed by inputs, the order of the generated
// signature and of the packed argument array.
func (f *Function) Params() []*Var {
	params := make([]*Var, 0, len(f.Outputs)+len(f.Inputs))
	for _, e := range f.Outputs {
		if v, ok := e.(*Var); ok {
			params = append(params, v)
		}
	}
	for _, e := range f.Inputs {
		if v, ok := e.(*Var); ok {
			params = append(params, v)
		}
	}
	return params
}

// IsOutput reports whether v is one of the function's outputs.
func (f *Function) IsOutput(v Expr) bool {
	for _, o := range f.Outputs {
		if o == v {
			return true
		}
	}
	return false
}

// Validate checks that every parameter is a distinct Var and that no name
// is used twice across inputs and outputs.
func (f *Function) Validate() error {
	seen := make(map[string]struct{}, len(f.Inputs)+len(f.Outputs))
	check := func(kind string, params []Expr) error {
		for i, p := range params {
			v, ok := p.(*Var)
			if !ok {
				return fmt.Errorf("%s: %s %d (%T): %w", f.Name, kind, i, p, ErrNotVar)
			}
			if _, dup := seen[v.Name]; dup {
				return fmt.Errorf("%s: %s %q: %w", f.Name, kind, v.Name, ErrDuplicateVar)
			}
			seen[v.Name] = struct{}{}
		}
		return nil
	}
	if err := check("output", f.Outputs); err != nil {
		return err
	}
	return check("input", f.Inputs)
}
