//go:build cgo && (linux || darwin)

package jit

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

// dlerror is thread-local, so it is read in the same call as the
// operation that set it.
static void* tj_dlopen(const char* path, const char** err) {
	void* h = dlopen(path, RTLD_NOW | RTLD_LOCAL);
	*err = h ? NULL : dlerror();
	return h;
}
static int tj_dlclose(void* h, const char** err) {
	int rc = dlclose(h);
	*err = rc ? dlerror() : NULL;
	return rc;
}

// Clear dlerror, call dlsym, and return the error (if any) alongside the symbol.
static void* tj_dlsym_clear(void* h, const char* name, const char** err) {
	dlerror();
	void* p = dlsym(h, name);
	const char* e = dlerror();
	if (e) { if (err) *err = e; return NULL; }
	if (err) *err = NULL;
	return p;
}

typedef int (*tj_packed_fn)(void**);
static int tj_call_packed(void* fn, void** args) {
	return ((tj_packed_fn)fn)(args);
}

static void tj_omp_get_schedule(void* fn, int* kind, int* chunk) {
	((void (*)(int*, int*))fn)(kind, chunk);
}
static void tj_omp_set_schedule(void* fn, int kind, int chunk) {
	((void (*)(int, int))fn)(kind, chunk);
}
static int tj_omp_get_max_threads(void* fn) {
	return ((int (*)(void))fn)();
}
static void tj_omp_set_num_threads(void* fn, int n) {
	((void (*)(int))fn)(n);
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

// DLLoader opens libraries with dlopen(RTLD_NOW | RTLD_LOCAL).
type DLLoader struct{}

func (DLLoader) Open(path string) (Library, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var cerr *C.char
	h := C.tj_dlopen(cpath, &cerr)
	if h == nil {
		return nil, &LoadError{Path: path, Msg: dlMessage(cerr)}
	}
	return &NativeModule{path: path, handle: h}, nil
}

// NativeModule is a dlopen handle.
type NativeModule struct {
	path   string
	handle unsafe.Pointer

	ompOnce sync.Once
	omp     *ompRuntime
}

func (m *NativeModule) Path() string { return m.path }

func (m *NativeModule) Symbol(name string) (unsafe.Pointer, error) {
	if m.handle == nil {
		return nil, &LoadError{Path: m.path, Symbol: name, Msg: "library is closed"}
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var cerr *C.char
	p := C.tj_dlsym_clear(m.handle, cname, &cerr)
	if cerr != nil {
		return nil, &LoadError{Path: m.path, Symbol: name, Msg: C.GoString(cerr)}
	}
	if p == nil {
		return nil, &LoadError{Path: m.path, Symbol: name, Msg: "symbol is NULL"}
	}
	return p, nil
}

func (m *NativeModule) Invoke(fn unsafe.Pointer, args []unsafe.Pointer) int {
	var argv *unsafe.Pointer
	if len(args) > 0 {
		argv = &args[0]
	}
	return int(C.tj_call_packed(fn, argv))
}

// Parallel resolves the OpenMP entry points through the library's own
// dependency chain. Libraries built without OpenMP have none.
func (m *NativeModule) Parallel() ParallelRuntime {
	m.ompOnce.Do(func() {
		rt := &ompRuntime{}
		syms := []struct {
			name string
			dst  *unsafe.Pointer
		}{
			{"omp_get_schedule", &rt.getSchedule},
			{"omp_set_schedule", &rt.setSchedule},
			{"omp_get_max_threads", &rt.getMaxThreads},
			{"omp_set_num_threads", &rt.setNumThreads},
		}
		for _, s := range syms {
			p, err := m.Symbol(s.name)
			if err != nil {
				return
			}
			*s.dst = p
		}
		m.omp = rt
	})
	if m.omp == nil {
		return nil
	}
	return m.omp
}

func (m *NativeModule) Close() error {
	if m.handle == nil {
		return nil
	}
	h := m.handle
	m.handle = nil
	var cerr *C.char
	if C.tj_dlclose(h, &cerr) != 0 {
		return &LoadError{Path: m.path, Msg: dlMessage(cerr)}
	}
	return nil
}

func dlMessage(cerr *C.char) string {
	if cerr == nil {
		return "unknown dynamic loader error"
	}
	return C.GoString(cerr)
}

type ompRuntime struct {
	getSchedule   unsafe.Pointer
	setSchedule   unsafe.Pointer
	getMaxThreads unsafe.Pointer
	setNumThreads unsafe.Pointer
}

func (o *ompRuntime) Schedule() (kind, chunk int) {
	var k, c C.int
	C.tj_omp_get_schedule(o.getSchedule, &k, &c)
	return int(k), int(c)
}

func (o *ompRuntime) SetSchedule(kind, chunk int) {
	C.tj_omp_set_schedule(o.setSchedule, C.int(kind), C.int(chunk))
}

func (o *ompRuntime) MaxThreads() int {
	return int(C.tj_omp_get_max_threads(o.getMaxThreads))
}

func (o *ompRuntime) SetNumThreads(n int) {
	C.tj_omp_set_num_threads(o.setNumThreads, C.int(n))
}
