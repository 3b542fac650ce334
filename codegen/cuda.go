package codegen

import (
	"fmt"
	"strings"

	"github.com/thiremani/tensorjit/ir"
)

// KernelName is the device function generated for the i-th GPU loop of fn,
// counted in pre-order.
func KernelName(fn string, i int) string {
	return fmt.Sprintf("%sDeviceKernel%d", fn, i)
}

// freeVars returns the variables and canonical properties the loop body
// reads but does not declare, in first-reference order. They become the
// device function's parameters after start, end and increment.
func (b *CBackend) freeVars(loop *ir.For) []ir.Expr {
	inner := map[*ir.Var]bool{loop.Var: true}
	ir.Inspect(loop.Contents, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.VarDecl:
			inner[n.Var] = true
		case *ir.For:
			inner[n.Var] = true
		}
		return true
	})

	seen := make(map[string]bool)
	var free []ir.Expr
	add := func(e ir.Expr) {
		name, ok := b.vf.Name(e)
		if !ok {
			internal(b.backendName(), e, "no identifier for %s", e)
		}
		if !seen[name] {
			seen[name] = true
			free = append(free, e)
		}
	}
	ir.Inspect(loop.Contents, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.GetProperty:
			add(b.vf.Canonical(n))
			return false
		case *ir.Var:
			if !inner[n] {
				add(n)
			}
		}
		return true
	})
	return free
}

func (b *CBackend) kernelParam(e ir.Expr) string {
	name, _ := b.vf.Name(e)
	switch e := e.(type) {
	case *ir.Var:
		return b.paramDecl(e, name)
	case *ir.GetProperty:
		if isPointerProperty(e.Property) {
			return fmt.Sprintf("%s* %s %s", b.ctype(e.Typ, e), b.restrict(), name)
		}
		return "int " + name
	}
	internal(b.backendName(), e, "unexpected free expression")
	return ""
}

// deviceLoop replaces a GPU loop with a kernel launch and emits the loop
// body as a __global__ function. Each thread runs one iteration; threads
// past the end of the range return before touching memory.
func (b *CBackend) deviceLoop(s *ir.For) {
	kernel := KernelName(b.fn.Name, b.kernelCount)
	b.kernelCount++
	b.names.Reserve(kernel)

	free := b.freeVars(s)
	loopVar, _ := b.vf.Name(s.Var)

	start, end, inc := b.expr(s.Start), b.expr(s.End), b.expr(s.Increment)
	iters := b.names.Unique(loopVar + "_iterations")
	b.line("int32_t %s = ((%s) - (%s) + (%s) - 1) / (%s);", iters, end, start, inc, inc)
	args := []string{start, end, inc}
	for _, e := range free {
		args = append(args, b.ident(e))
	}
	// an empty range would otherwise wrap to a huge unsigned grid
	b.line("if (%s > 0) {", iters)
	b.indent++
	b.line("%s<<<(%s + %d) / %d, %d>>>(%s);", kernel, iters,
		kernelBlockSize-1, kernelBlockSize, kernelBlockSize, strings.Join(args, ", "))
	b.line("cudaDeviceSynchronize();")
	b.indent--
	b.line("}")

	var kb strings.Builder
	b.pushWriter(&kb)
	saved := b.indent
	b.indent = 0

	params := []string{"int32_t start", "int32_t end", "int32_t increment"}
	for _, e := range free {
		params = append(params, b.kernelParam(e))
	}
	b.line("__global__")
	b.line("void %s(%s) {", kernel, strings.Join(params, ", "))
	b.indent = 1

	b.syms.EnterFunc()
	for _, e := range free {
		name, _ := b.vf.Name(e)
		b.syms.Define(name, e)
	}
	b.syms.Define(loopVar, ir.Expr(s.Var))

	b.line("%s %s = start + (blockIdx.x * blockDim.x + threadIdx.x) * increment;", b.ctype(s.Var.Typ, s.Var), loopVar)
	b.line("if (%s >= end) {", loopVar)
	b.indent++
	b.line("return;")
	b.indent--
	b.line("}")

	b.inKernel = true
	b.stmt(s.Contents)
	b.inKernel = false
	b.syms.Leave()

	b.indent = 0
	b.line("}")
	b.w().WriteByte('\n')
	b.popWriter()
	b.indent = saved
	b.kernels.WriteString(kb.String())
}
