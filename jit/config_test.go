package jit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestConfigWithEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func(c *Config)
		wantErr string
	}{
		{
			name: "empty",
			env:  nil,
			want: func(c *Config) {},
		},
		{
			name: "strings",
			env: map[string]string{
				"TACO_CC":        "clang",
				"TACO_CFLAGS":    "-O2",
				"TACO_NVCC":      "/opt/cuda/bin/nvcc",
				"TACO_NVCCFLAGS": "-O1",
				"TACO_LLC":       "llc-18",
				"TACO_TMPDIR":    "/scratch",
				"TACO_CACHE_DIR": "/cache",
			},
			want: func(c *Config) {
				c.CC, c.CFlags, c.NVCC, c.NVCCFlags = "clang", "-O2", "/opt/cuda/bin/nvcc", "-O1"
				c.LLC, c.TmpDir, c.CacheDir = "llc-18", "/scratch", "/cache"
			},
		},
		{
			name: "switches",
			env:  map[string]string{"TACO_USE_CUDA": "1", "TACO_USE_LLVM": "true", "TACO_USE_OPENMP": " 0 ", "TACO_NUM_THREADS": "12"},
			want: func(c *Config) {
				c.UseCUDA, c.UseLLVM, c.UseOpenMP, c.NumThreads = true, true, false, 12
			},
		},
		{
			name: "blank switch keeps default",
			env:  map[string]string{"TACO_USE_LLVM": ""},
			want: func(c *Config) {},
		},
		{
			name: "blank strings keep defaults",
			env:  map[string]string{"TACO_LLC": "", "TACO_NVCC": " ", "TACO_CC": ""},
			want: func(c *Config) {},
		},
		{
			name:    "bad bool",
			env:     map[string]string{"TACO_USE_CUDA": "yes"},
			wantErr: "TACO_USE_CUDA",
		},
		{
			name:    "negative threads",
			env:     map[string]string{"TACO_NUM_THREADS": "-2"},
			wantErr: "invalid thread count",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultConfig().WithEnv(mapEnv(tt.env))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			want := DefaultConfig()
			tt.want(&want)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tensorjit.toml")
	data := `
cc = "gcc-13"
cflags = "-O2 -std=c99"
use_openmp = true
num_threads = 4
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gcc-13", cfg.CC)
	assert.True(t, cfg.UseOpenMP)
	assert.Equal(t, 4, cfg.NumThreads)
	// untouched keys keep defaults
	assert.Equal(t, "llc", cfg.LLC)
	assert.Equal(t, "nvcc", cfg.NVCC)

	// the environment wins over the file
	cfg, err = cfg.WithEnv(mapEnv(map[string]string{"TACO_CC": "clang", "TACO_NUM_THREADS": "2"}))
	require.NoError(t, err)
	assert.Equal(t, "clang", cfg.CC)
	assert.Equal(t, 2, cfg.NumThreads)
	assert.Equal(t, "-O2 -std=c99", cfg.CFlags)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("cc = \n"), 0o644))
	_, err := LoadConfig(bad)
	require.ErrorContains(t, err, "failed to parse TOML")

	neg := filepath.Join(dir, "neg.toml")
	require.NoError(t, os.WriteFile(neg, []byte("num_threads = -1\n"), 0o644))
	_, err = LoadConfig(neg)
	require.ErrorContains(t, err, "num_threads")

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}
