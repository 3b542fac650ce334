//go:build cgo

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/thiremani/tensorjit/ir"
	"github.com/thiremani/tensorjit/jit"
)

var (
	runBackend string
	runSize    int
	numThreads int
)

func init() {
	runCmd.Flags().StringVarP(&runBackend, "backend", "b", "c", "generation path (c|llvm)")
	runCmd.Flags().IntVarP(&runSize, "size", "n", 8, "vector length")
	runCmd.Flags().IntVar(&numThreads, "threads", 0, "OpenMP thread count during the call")
	addKernelFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <kernel>",
	Short: "Build a kernel into a shared library and run it on sample data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runSize <= 0 {
			return fmt.Errorf("--size must be positive, got %d", runSize)
		}
		fns, err := buildKernels(args)
		if err != nil {
			return err
		}
		fn := fns[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		target := jit.DefaultTarget()
		switch strings.ToLower(runBackend) {
		case "c":
		case "llvm":
			target.Arch = jit.Native
		default:
			return fmt.Errorf("unknown backend %q", runBackend)
		}
		kind := loopKinds[strings.ToLower(parallelKind)]
		if kind != ir.Serial {
			cfg.UseOpenMP = true
			if target.Arch == jit.Native {
				warnColor.Fprint(cmd.ErrOrStderr(), "warning: ")
				fmt.Fprintln(cmd.ErrOrStderr(), "the llvm path runs loops serially")
			}
		}

		mod, err := jit.New(cfg,
			jit.WithTarget(target),
			jit.WithLogger(slog.Default()),
			jit.WithParallel(jit.ParallelConfig{Kind: kind, Chunk: chunkSize, NumThreads: numThreads}),
		)
		if err != nil {
			return err
		}
		defer mod.Close()

		if err := mod.AddFunction(fn); err != nil {
			return err
		}
		lib, err := mod.Compile(cmd.Context())
		if err != nil {
			return err
		}
		okColor.Fprint(cmd.ErrOrStderr(), "built ")
		fmt.Fprintln(cmd.ErrOrStderr(), lib)

		var out string
		switch fn.Outputs[0].Type() {
		case ir.Float64:
			out, err = runSample[float64](mod, args[0], fn.Name, runSize)
		case ir.Float32:
			out, err = runSample[float32](mod, args[0], fn.Name, runSize)
		default:
			return fmt.Errorf("run supports float32 and float64, not %s", fn.Outputs[0].Type())
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

func dense[T float32 | float64](typ ir.Datatype, vals []T) (*jit.Tensor, error) {
	t, err := jit.NewDense(typ, len(vals))
	if err != nil {
		return nil, err
	}
	if err := jit.SetValues(t, vals); err != nil {
		t.Free()
		return nil, err
	}
	return t, nil
}

// tridiagonal builds the n x n CSR matrix with 2 on the diagonal and -1
// beside it.
func tridiagonal[T float32 | float64](typ ir.Datatype, n int) (*jit.Tensor, error) {
	pos := []int32{0}
	var crd []int32
	var vals []T
	for i := range n {
		for j := i - 1; j <= i+1; j++ {
			if j < 0 || j >= n {
				continue
			}
			crd = append(crd, int32(j))
			if i == j {
				vals = append(vals, 2)
			} else {
				vals = append(vals, -1)
			}
		}
		pos = append(pos, int32(len(crd)))
	}
	t, err := jit.NewCSR(typ, n, n, pos, crd)
	if err != nil {
		return nil, err
	}
	if err := jit.SetValues(t, vals); err != nil {
		t.Free()
		return nil, err
	}
	return t, nil
}

// runSample calls the kernel on B[i] = i+1, C[i] = 2(i+1) and returns the
// output values.
func runSample[T float32 | float64](mod *jit.Module, kernel, fn string, n int) (string, error) {
	typ := ir.Float64
	var zero T
	if _, ok := any(zero).(float32); ok {
		typ = ir.Float32
	}
	b := make([]T, n)
	c := make([]T, n)
	for i := range n {
		b[i] = T(i + 1)
		c[i] = T(2 * (i + 1))
	}

	var tensors []*jit.Tensor
	defer func() {
		for _, t := range tensors {
			t.Free()
		}
	}()
	track := func(t *jit.Tensor, err error) (*jit.Tensor, error) {
		if err == nil {
			tensors = append(tensors, t)
		}
		return t, err
	}

	outLen := n
	if kernel == "dot" {
		outLen = 1
	}
	A, err := track(jit.NewDense(typ, outLen))
	if err != nil {
		return "", err
	}
	B, err := track(dense(typ, b))
	if err != nil {
		return "", err
	}

	var args []jit.Arg
	switch kernel {
	case "add", "dot":
		C, err := track(dense(typ, c))
		if err != nil {
			return "", err
		}
		args = []jit.Arg{A, B, C}
	case "scale":
		alpha := jit.NewScalar(T(2))
		defer alpha.Free()
		args = []jit.Arg{A, B, alpha}
	case "spmv":
		M, err := track(tridiagonal[T](typ, n))
		if err != nil {
			return "", err
		}
		args = []jit.Arg{A, M, B}
	default:
		return "", fmt.Errorf("no sample inputs for kernel %q", kernel)
	}

	if err := mod.Call(fn, args...); err != nil {
		return "", err
	}
	vals, err := jit.Values[T](A)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(vals), nil
}
