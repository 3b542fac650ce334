package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/tensorjit/ir"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	// flag values outlive a single Execute
	elemType, parallelKind, chunkSize, onGPU, emitBackend = "float64", "serial", 0, false, "c"
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want ir.Datatype
		err  bool
	}{
		{"float64", ir.Float64, false},
		{"Float32", ir.Float32, false},
		{"uint16", ir.UInt16, false},
		{"half", ir.Undefined, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseType(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv("TACO_CACHE_DIR", "/tmp/jitcache")
	assert.Equal(t, "/tmp/jitcache", defaultCacheDir())

	t.Setenv("TACO_CACHE_DIR", "")
	t.Setenv("XDG_CACHE_HOME", "/xdg")
	if dir := defaultCacheDir(); filepath.Base(dir) != "tensorjit" {
		t.Fatalf("unexpected cache dir %s", dir)
	}
}

func TestEmitCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"c", []string{"emit", "add"}, []string{"int add(taco_tensor_t *A, taco_tensor_t *B, taco_tensor_t *C) {"}},
		{"header", []string{"emit", "-b", "header", "add", "dot"}, []string{"int add(", "int dot("}},
		{"openmp", []string{"emit", "--parallel", "dynamic", "--chunk", "8", "scale"}, []string{"schedule(dynamic, 8)"}},
		{"cuda", []string{"emit", "-b", "cuda", "--gpu", "add"}, []string{"__global__", "addDeviceKernel0<<<"}},
		{"llvm", []string{"emit", "-b", "llvm", "-t", "float32", "spmv"}, []string{"define i32 @spmv(", "%taco_tensor_t = type"}},
		{"shim", []string{"emit", "-b", "shim", "scale"}, []string{"int _shim_scale(void** parameterPack)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestEmitErrors(t *testing.T) {
	_, err := execute(t, "emit", "conv")
	assert.ErrorContains(t, err, "unknown kernel")

	_, err = execute(t, "emit", "-t", "half", "add")
	assert.ErrorContains(t, err, "unknown element type")

	_, err = execute(t, "emit", "--parallel", "guided", "add")
	assert.ErrorContains(t, err, "unknown schedule")

	_, err = execute(t, "emit", "-b", "wasm", "add")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestListAndVersion(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "add\ndot\nscale\nspmv\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tensorjit dev")
}
