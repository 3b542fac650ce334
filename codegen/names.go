package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// Words that may not be used as generated identifiers: C99 and CUDA C++
// keywords, the libc and runtime functions the emitters call, and the
// fixed parameter names of device functions.
var reservedNames = []string{
	// C99
	"auto", "break", "case", "char", "const", "continue", "default", "do",
	"double", "else", "enum", "extern", "float", "for", "goto", "if",
	"inline", "int", "long", "register", "restrict", "return", "short",
	"signed", "sizeof", "static", "struct", "switch", "typedef", "union",
	"unsigned", "void", "volatile", "while", "_Bool", "_Complex", "_Imaginary",
	"bool", "true", "false", "complex",
	// C++ as seen by nvcc
	"class", "namespace", "new", "delete", "template", "this", "throw",
	"try", "catch", "public", "private", "protected", "virtual", "friend",
	"operator", "using", "typename", "mutable", "explicit", "export",
	"nullptr", "constexpr", "decltype", "noexcept", "static_assert",
	// CUDA
	"threadIdx", "blockIdx", "blockDim", "gridDim", "warpSize",
	"__global__", "__device__", "__host__", "__shared__", "__restrict__",
	// runtime
	"malloc", "calloc", "realloc", "free", "printf", "sqrt", "sqrtf", "fmod",
	"fmodf", "memset", "memcpy", "cudaMallocManaged", "cudaFree",
	"cudaDeviceSynchronize", "taco_tensor_t", "TACO_MIN", "TACO_MAX",
	"parameterPack",
	// device function parameters
	"start", "end", "increment",
}

var reservedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(reservedNames))
	for _, n := range reservedNames {
		m[n] = struct{}{}
	}
	return m
}()

// IsReserved reports whether name cannot be used as an identifier in
// generated C or CUDA.
func IsReserved(name string) bool {
	_, ok := reservedSet[name]
	return ok
}

// ValidateIdentifier checks that name can appear verbatim in generated
// source. Function and parameter names are never renamed, so they must
// pass this check.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("identifier %q starts with a digit", name)
			}
		default:
			return fmt.Errorf("invalid character %q at position %d in identifier %q", r, i, name)
		}
	}
	if strings.HasPrefix(name, "__") {
		return fmt.Errorf("identifier %q uses the implementation-reserved prefix __", name)
	}
	if IsReserved(name) {
		return fmt.Errorf("identifier %q is a reserved word", name)
	}
	return nil
}

// sanitize maps a hint onto the identifier alphabet.
func sanitize(hint string) string {
	var sb strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	s := strings.TrimLeft(sb.String(), "_")
	if s == "" {
		return "t"
	}
	if s[0] >= '0' && s[0] <= '9' {
		return "t" + s
	}
	return s
}

// nameGen hands out identifiers that are unique within one generation pass.
// The first request for a hint gets the hint itself; later requests append
// a per-hint counter.
type nameGen struct {
	used    map[string]struct{}
	counter map[string]int
}

func newNameGen() *nameGen {
	return &nameGen{
		used:    make(map[string]struct{}),
		counter: make(map[string]int),
	}
}

func (g *nameGen) Reserve(name string) {
	g.used[name] = struct{}{}
}

func (g *nameGen) taken(name string) bool {
	if _, ok := g.used[name]; ok {
		return true
	}
	return IsReserved(name)
}

func (g *nameGen) Unique(hint string) string {
	base := sanitize(hint)
	if !g.taken(base) {
		g.Reserve(base)
		return base
	}
	for {
		n := g.counter[base]
		g.counter[base]++
		cand := base + strconv.Itoa(n)
		if !g.taken(cand) {
			g.Reserve(cand)
			return cand
		}
	}
}
