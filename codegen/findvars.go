package codegen

import (
	"github.com/thiremani/tensorjit/ir"
)

// propKey identifies a tensor property independently of the node that
// reads it. Tensor is compared by pointer.
type propKey struct {
	tensor ir.Expr
	prop   ir.TensorProperty
	mode   int
	index  int
}

// varFinder collects, for one function, the identifier of every variable
// and property the body references. Property reads with the same
// (tensor, property, mode, index) share one canonical node and one
// identifier; that node is declared once in the prologue.
type varFinder struct {
	fn        *ir.Function
	names     *nameGen
	varMap    map[ir.Expr]string
	canonical map[propKey]*ir.GetProperty
	// first node per property tuple, in first-reference order
	varDecls []*ir.GetProperty
	// canonical properties of output tensors written back on return
	outputProps []*ir.GetProperty
	declared    map[*ir.Var]bool
}

func newVarFinder(fn *ir.Function, names *nameGen) *varFinder {
	vf := &varFinder{
		fn:        fn,
		names:     names,
		varMap:    make(map[ir.Expr]string),
		canonical: make(map[propKey]*ir.GetProperty),
		declared:  make(map[*ir.Var]bool),
	}
	for _, p := range fn.Params() {
		names.Reserve(p.Name)
		vf.varMap[p] = p.Name
	}
	ir.Inspect(fn.Body, vf.visit)
	return vf
}

func (vf *varFinder) visit(n ir.Node) bool {
	switch n := n.(type) {
	case *ir.GetProperty:
		vf.property(n)
		return false
	case *ir.VarDecl:
		vf.local(n.Var)
	case *ir.For:
		vf.local(n.Var)
	case *ir.Var:
		vf.ident(n)
	}
	return true
}

func (vf *varFinder) ident(v *ir.Var) string {
	if name, ok := vf.varMap[v]; ok {
		return name
	}
	name := vf.names.Unique(v.Name)
	vf.varMap[v] = name
	return name
}

func (vf *varFinder) local(v *ir.Var) {
	if v == nil || vf.declared[v] {
		return
	}
	vf.declared[v] = true
	vf.ident(v)
}

func (vf *varFinder) property(g *ir.GetProperty) {
	if _, ok := vf.varMap[g]; ok {
		return
	}
	if v, ok := g.Tensor.(*ir.Var); ok {
		vf.ident(v)
	}
	key := propKey{tensor: g.Tensor, prop: g.Property, mode: g.Mode, index: g.Index}
	if canon, ok := vf.canonical[key]; ok {
		vf.varMap[g] = vf.varMap[canon]
		return
	}
	vf.canonical[key] = g
	vf.varMap[g] = vf.names.Unique(propertyHint(vf.tensorName(g), g))
	vf.varDecls = append(vf.varDecls, g)
	if vf.fn.IsOutput(g.Tensor) && writesBack(g.Property) {
		vf.outputProps = append(vf.outputProps, g)
	}
}

func (vf *varFinder) tensorName(g *ir.GetProperty) string {
	if name, ok := vf.varMap[g.Tensor]; ok {
		return name
	}
	return g.Tensor.String()
}

// Name returns the identifier for a Var or GetProperty seen by the finder.
func (vf *varFinder) Name(e ir.Expr) (string, bool) {
	name, ok := vf.varMap[e]
	return name, ok
}

// Canonical returns the node that declares g's property.
func (vf *varFinder) Canonical(g *ir.GetProperty) *ir.GetProperty {
	return vf.canonical[propKey{tensor: g.Tensor, prop: g.Property, mode: g.Mode, index: g.Index}]
}

func (vf *varFinder) isParam(v *ir.Var) bool {
	for _, p := range vf.fn.Params() {
		if p == v {
			return true
		}
	}
	return false
}
