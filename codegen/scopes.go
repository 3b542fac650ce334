package codegen

// Symbols maps generated identifiers to backend values through nested
// scopes. The C emitter stores the declared ir.Expr, the LLVM backend
// stores stack slots.
type Symbols[T any] struct {
	frames []frame[T]
}

type frame[T any] struct {
	names map[string]T
	// fn marks a function boundary; lookups do not cross it.
	fn bool
}

// NewSymbols returns a table holding one function scope.
func NewSymbols[T any]() *Symbols[T] {
	s := &Symbols[T]{}
	s.EnterFunc()
	return s
}

// Enter opens a block scope.
func (s *Symbols[T]) Enter() {
	s.frames = append(s.frames, frame[T]{names: make(map[string]T)})
}

// EnterFunc opens a scope that hides everything outside it, as a device
// kernel cannot see its host's locals.
func (s *Symbols[T]) EnterFunc() {
	s.frames = append(s.frames, frame[T]{names: make(map[string]T), fn: true})
}

func (s *Symbols[T]) Leave() {
	if len(s.frames) <= 1 {
		panic("cannot leave the outermost scope")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Define binds name in the innermost scope, replacing an earlier binding
// there.
func (s *Symbols[T]) Define(name string, v T) {
	s.frames[len(s.frames)-1].names[name] = v
}

func (s *Symbols[T]) Lookup(name string) (T, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if v, ok := f.names[name]; ok {
			return v, true
		}
		if f.fn {
			break
		}
	}
	var zero T
	return zero, false
}
