//go:build cgo

package jit

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
  int32_t      order;
  int32_t*     dimensions;
  int32_t      csize;
  int32_t*     mode_ordering;
  int32_t*     mode_types;
  uint8_t***   indices;
  uint8_t*     vals;
  int32_t      vals_size;
} taco_tensor_t;
*/
import "C"

import (
	"fmt"
	"unsafe"

	"fortio.org/safecast"
	"github.com/thiremani/tensorjit/ir"
)

// Mode formats stored in mode_types.
const (
	ModeDense  = 0
	ModeSparse = 1
)

// Number is an element type with a fixed-size C counterpart.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Tensor is a taco_tensor_t allocated in C memory, so its address can be
// placed in a parameter pack. Call Free when done.
//
// The arrays come from the C heap and are host-only: CUDA kernels read
// them directly, so Module.Call rejects a Tensor for a library built on
// the CUDA path. Pass managed memory through CallPacked instead.
type Tensor struct {
	typ  ir.Datatype
	dims []int
	c    *C.taco_tensor_t
}

func (*Tensor) hostMemory() bool { return true }

func elemSize(typ ir.Datatype) (int, error) {
	if typ.Kind == ir.UndefinedKind || typ.Bits%8 != 0 {
		return 0, fmt.Errorf("tensor: no C element type for %s", typ)
	}
	return typ.Bits / 8, nil
}

func cInt32s(vals []int32) *C.int32_t {
	if len(vals) == 0 {
		return nil
	}
	p := (*C.int32_t)(C.malloc(C.size_t(len(vals)) * 4))
	copy(unsafe.Slice((*int32)(unsafe.Pointer(p)), len(vals)), vals)
	return p
}

func newTensor(typ ir.Datatype, dims []int, modes []int32, nvals int) (*Tensor, error) {
	size, err := elemSize(typ)
	if err != nil {
		return nil, err
	}
	order, err := safecast.Conv[int32](len(dims))
	if err != nil {
		return nil, fmt.Errorf("tensor: order: %w", err)
	}
	cdims := make([]int32, len(dims))
	ordering := make([]int32, len(dims))
	for i, d := range dims {
		if cdims[i], err = safecast.Conv[int32](d); err != nil || d < 0 {
			return nil, fmt.Errorf("tensor: dimension %d: invalid size %d", i, d)
		}
		ordering[i] = int32(i)
	}
	csize, err := safecast.Conv[int32](size)
	if err != nil {
		return nil, err
	}
	valsSize, err := safecast.Conv[int32](nvals)
	if err != nil {
		return nil, fmt.Errorf("tensor: %d values: %w", nvals, err)
	}

	c := (*C.taco_tensor_t)(C.calloc(1, C.size_t(unsafe.Sizeof(C.taco_tensor_t{}))))
	c.order = C.int32_t(order)
	c.dimensions = cInt32s(cdims)
	c.csize = C.int32_t(csize)
	c.mode_ordering = cInt32s(ordering)
	c.mode_types = cInt32s(modes)
	if len(dims) > 0 {
		c.indices = (***C.uint8_t)(C.calloc(C.size_t(len(dims)), C.size_t(unsafe.Sizeof(uintptr(0)))))
	}
	if nvals > 0 {
		c.vals = (*C.uint8_t)(C.calloc(C.size_t(nvals), C.size_t(size)))
	}
	c.vals_size = C.int32_t(valsSize)
	return &Tensor{typ: typ, dims: dims, c: c}, nil
}

// NewDense allocates a zeroed dense tensor.
func NewDense(typ ir.Datatype, dims ...int) (*Tensor, error) {
	n := 1
	modes := make([]int32, len(dims))
	for i, d := range dims {
		n *= d
		modes[i] = ModeDense
	}
	return newTensor(typ, append([]int(nil), dims...), modes, n)
}

// NewCSR allocates a rows x cols matrix with a dense first mode and a
// compressed second mode. pos has rows+1 entries; crd and the zeroed
// values have pos[rows] entries.
func NewCSR(typ ir.Datatype, rows, cols int, pos, crd []int32) (*Tensor, error) {
	if len(pos) != rows+1 {
		return nil, fmt.Errorf("tensor: pos has %d entries, want %d", len(pos), rows+1)
	}
	nnz := int(pos[rows])
	if len(crd) != nnz {
		return nil, fmt.Errorf("tensor: crd has %d entries, want %d", len(crd), nnz)
	}
	t, err := newTensor(typ, []int{rows, cols}, []int32{ModeDense, ModeSparse}, nnz)
	if err != nil {
		return nil, err
	}
	levels := unsafe.Slice(t.c.indices, 2)
	arrs := (**C.uint8_t)(C.calloc(2, C.size_t(unsafe.Sizeof(uintptr(0)))))
	idx := unsafe.Slice(arrs, 2)
	idx[0] = (*C.uint8_t)(unsafe.Pointer(cInt32s(pos)))
	idx[1] = (*C.uint8_t)(unsafe.Pointer(cInt32s(crd)))
	levels[1] = arrs
	return t, nil
}

func (t *Tensor) Type() ir.Datatype { return t.typ }
func (t *Tensor) Dims() []int       { return t.dims }

// Ptr is the address of the C structure.
func (t *Tensor) Ptr() unsafe.Pointer { return unsafe.Pointer(t.c) }

// Len is the current number of stored values. Generated code may grow it.
func (t *Tensor) Len() int { return int(t.c.vals_size) }

func checkElem[T Number](t *Tensor) error {
	var zero T
	if size, _ := elemSize(t.typ); uintptr(size) != unsafe.Sizeof(zero) {
		return fmt.Errorf("tensor: %T does not match element type %s", zero, t.typ)
	}
	return nil
}

// SetValues copies vals into the tensor's value array.
func SetValues[T Number](t *Tensor, vals []T) error {
	if err := checkElem[T](t); err != nil {
		return err
	}
	if len(vals) != t.Len() {
		return fmt.Errorf("tensor: got %d values, want %d", len(vals), t.Len())
	}
	if len(vals) > 0 {
		copy(unsafe.Slice((*T)(unsafe.Pointer(t.c.vals)), len(vals)), vals)
	}
	return nil
}

// Values copies the tensor's value array out of C memory.
func Values[T Number](t *Tensor) ([]T, error) {
	if err := checkElem[T](t); err != nil {
		return nil, err
	}
	out := make([]T, t.Len())
	if len(out) > 0 && t.c.vals != nil {
		copy(out, unsafe.Slice((*T)(unsafe.Pointer(t.c.vals)), len(out)))
	}
	return out, nil
}

// Free releases the C structure and every array it points to.
func (t *Tensor) Free() {
	if t.c == nil {
		return
	}
	c := t.c
	t.c = nil
	if c.indices != nil {
		for _, level := range unsafe.Slice(c.indices, int(c.order)) {
			if level == nil {
				continue
			}
			for _, arr := range unsafe.Slice(level, 2) {
				C.free(unsafe.Pointer(arr))
			}
			C.free(unsafe.Pointer(level))
		}
		C.free(unsafe.Pointer(c.indices))
	}
	C.free(unsafe.Pointer(c.dimensions))
	C.free(unsafe.Pointer(c.mode_ordering))
	C.free(unsafe.Pointer(c.mode_types))
	C.free(unsafe.Pointer(c.vals))
	C.free(unsafe.Pointer(c))
}

// Scalar is a value boxed in C memory for a parameter pack.
type Scalar struct {
	p unsafe.Pointer
}

func NewScalar[T Number](v T) *Scalar {
	p := C.malloc(C.size_t(unsafe.Sizeof(v)))
	*(*T)(p) = v
	return &Scalar{p: p}
}

func (s *Scalar) Ptr() unsafe.Pointer { return s.p }

func (s *Scalar) Free() {
	C.free(s.p)
	s.p = nil
}

// tensorFieldOffsets reports the C layout of taco_tensor_t.
func tensorFieldOffsets() []uintptr {
	var t C.taco_tensor_t
	return []uintptr{
		unsafe.Offsetof(t.order),
		unsafe.Offsetof(t.dimensions),
		unsafe.Offsetof(t.csize),
		unsafe.Offsetof(t.mode_ordering),
		unsafe.Offsetof(t.mode_types),
		unsafe.Offsetof(t.indices),
		unsafe.Offsetof(t.vals),
		unsafe.Offsetof(t.vals_size),
	}
}
