package codegen

import (
	"fmt"
	"strings"

	"github.com/thiremani/tensorjit/ir"
)

const shimPrefix = "_shim_"

// ShimName is the exported symbol of the packed-argument wrapper for fn.
func ShimName(fn string) string {
	return shimPrefix + fn
}

// GenerateShim returns a C wrapper with the signature int f(void**). Slot i
// of the pack holds the i-th parameter, outputs first: tensors are passed as
// taco_tensor_t pointers, scalars as pointers to their value.
func GenerateShim(fn *ir.Function, cuda bool) (src string, err error) {
	backend := "shim"
	defer catch(&err)
	validateFunction(backend, fn)

	args := make([]string, 0, len(fn.Params()))
	for i, p := range fn.Params() {
		switch {
		case p.IsTensor:
			args = append(args, fmt.Sprintf("(taco_tensor_t*)(parameterPack[%d])", i))
		case p.IsPtr:
			t := CType(p.Typ)
			args = append(args, fmt.Sprintf("(%s*)(parameterPack[%d])", t, i))
		default:
			t := CType(p.Typ)
			if t == "" || (cuda && p.Typ.IsComplex()) {
				unsupported(backend, p, "scalar parameter of type %s", p.Typ)
			}
			args = append(args, fmt.Sprintf("*(%s*)(parameterPack[%d])", t, i))
		}
	}

	var sb strings.Builder
	if cuda {
		sb.WriteString(`extern "C" `)
	}
	fmt.Fprintf(&sb, "int %s(void** parameterPack) {\n", ShimName(fn.Name))
	fmt.Fprintf(&sb, "  return %s(%s);\n", fn.Name, strings.Join(args, ", "))
	sb.WriteString("}\n")
	return sb.String(), nil
}

// GenerateShims concatenates the shims of fns. When include is not empty
// the result starts with an #include of that header.
func GenerateShims(fns []*ir.Function, cuda bool, include string) (string, error) {
	var sb strings.Builder
	if include != "" {
		fmt.Fprintf(&sb, "#include %q\n\n", include)
	}
	for _, fn := range fns {
		shim, err := GenerateShim(fn, cuda)
		if err != nil {
			return "", err
		}
		sb.WriteString(shim)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
