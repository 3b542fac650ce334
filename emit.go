package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/thiremani/tensorjit/codegen"
	"github.com/thiremani/tensorjit/ir"
	"github.com/thiremani/tensorjit/kernels"
)

var (
	emitBackend  string
	elemType     string
	parallelKind string
	chunkSize    int
	onGPU        bool
)

func init() {
	emitCmd.Flags().StringVarP(&emitBackend, "backend", "b", "c", "output kind (c|cuda|header|llvm|shim)")
	addKernelFlags(emitCmd)
	emitCmd.Flags().BoolVar(&onGPU, "gpu", false, "map the outer loop to GPU threads")
}

func addKernelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&elemType, "type", "t", "float64", "element type")
	cmd.Flags().StringVar(&parallelKind, "parallel", "serial", "outer loop schedule (serial|static|dynamic|runtime|vectorized)")
	cmd.Flags().IntVar(&chunkSize, "chunk", 0, "schedule chunk size")
}

var loopKinds = map[string]ir.LoopKind{
	"serial":     ir.Serial,
	"static":     ir.Static,
	"dynamic":    ir.Dynamic,
	"runtime":    ir.Runtime,
	"vectorized": ir.Vectorized,
}

func loopOptions() ([]kernels.LoopOption, error) {
	kind, ok := loopKinds[strings.ToLower(parallelKind)]
	if !ok {
		return nil, fmt.Errorf("unknown schedule %q", parallelKind)
	}
	var opts []kernels.LoopOption
	if kind != ir.Serial {
		opts = append(opts, kernels.Parallel(kind, chunkSize))
	}
	if onGPU {
		opts = append(opts, kernels.OnGPU())
	}
	return opts, nil
}

// buildKernels instantiates each named kernel under its own name.
func buildKernels(names []string) ([]*ir.Function, error) {
	t, err := parseType(elemType)
	if err != nil {
		return nil, err
	}
	opts, err := loopOptions()
	if err != nil {
		return nil, err
	}
	fns := make([]*ir.Function, 0, len(names))
	for _, name := range names {
		build, err := kernels.Lookup(name)
		if err != nil {
			return nil, err
		}
		fns = append(fns, build(name, t, opts...))
	}
	return fns, nil
}

func emit(backend string, fns []*ir.Function) (string, error) {
	switch backend {
	case "c", "cuda", "header":
		kind := codegen.Implementation
		if backend == "header" {
			kind = codegen.Header
		}
		b := codegen.NewCBackend(kind)
		if backend == "cuda" {
			b = codegen.NewCUDABackend(kind)
		}
		for i, fn := range fns {
			if err := b.Compile(fn, i == 0); err != nil {
				return "", err
			}
		}
		return b.Source(), nil
	case "llvm":
		b := codegen.NewLLVMBackend("tensorjit")
		defer b.Dispose()
		for i, fn := range fns {
			if err := b.Compile(fn, i == 0); err != nil {
				return "", err
			}
		}
		if err := b.Verify(); err != nil {
			return "", err
		}
		return b.IR(), nil
	case "shim":
		return codegen.GenerateShims(fns, onGPU, "")
	}
	return "", fmt.Errorf("unknown backend %q", backend)
}

var emitCmd = &cobra.Command{
	Use:   "emit <kernel>...",
	Short: "Print generated code for kernels",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fns, err := buildKernels(args)
		if err != nil {
			return err
		}
		out, err := emit(strings.ToLower(emitBackend), fns)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available kernels",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range kernels.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}
