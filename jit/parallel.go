package jit

import (
	"sync"

	"github.com/thiremani/tensorjit/ir"
)

// OpenMP omp_sched_t values.
const (
	SchedStatic  = 1
	SchedDynamic = 2
)

// ParallelConfig is applied to the parallel runtime for the duration of a
// packed call. A zero NumThreads leaves the thread count alone, as does a
// Kind other than Static or Dynamic for the schedule.
type ParallelConfig struct {
	Kind       ir.LoopKind
	Chunk      int
	NumThreads int
}

// ParallelRuntime is process-global scheduling state, in OpenMP terms.
type ParallelRuntime interface {
	Schedule() (kind, chunk int)
	SetSchedule(kind, chunk int)
	MaxThreads() int
	SetNumThreads(n int)
}

// parallelMu serialises packed calls: the runtime configuration they
// override is shared by the whole process.
var parallelMu sync.Mutex

// overrideParallel applies cfg to rt and returns the function that puts
// the previous configuration back.
func overrideParallel(rt ParallelRuntime, cfg ParallelConfig) (restore func()) {
	if rt == nil {
		return func() {}
	}
	kind, chunk := rt.Schedule()
	threads := rt.MaxThreads()

	switch cfg.Kind {
	case ir.Static:
		rt.SetSchedule(SchedStatic, cfg.Chunk)
	case ir.Dynamic:
		rt.SetSchedule(SchedDynamic, cfg.Chunk)
	}
	if cfg.NumThreads > 0 {
		rt.SetNumThreads(cfg.NumThreads)
	}
	return func() {
		rt.SetSchedule(kind, chunk)
		rt.SetNumThreads(threads)
	}
}
