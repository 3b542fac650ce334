package jit

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultCFlags     = "-O3 -ffast-math -std=c99"
	DefaultLLVMCFlags = "-O3 -ffast-math"
	DefaultNVCCFlags  = "-w -O3 --shared -Xcompiler -fPIC,-ffast-math"
)

// Config holds toolchain settings. Empty strings fall back to the defaults
// of the generation path in use.
type Config struct {
	CC         string `toml:"cc"`
	CFlags     string `toml:"cflags"`
	NVCC       string `toml:"nvcc"`
	NVCCFlags  string `toml:"nvcc_flags"`
	LLC        string `toml:"llc"`
	UseCUDA    bool   `toml:"use_cuda"`
	UseLLVM    bool   `toml:"use_llvm"`
	UseOpenMP  bool   `toml:"use_openmp"`
	TmpDir     string `toml:"tmpdir"`
	CacheDir   string `toml:"cache_dir"`
	NumThreads int    `toml:"num_threads"`
}

func DefaultConfig() Config {
	return Config{NVCC: "nvcc", LLC: "llc"}
}

// LoadConfig reads a TOML file on top of DefaultConfig. Keys missing from
// the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if cfg.NumThreads < 0 {
		return Config{}, fmt.Errorf("%s: num_threads must not be negative", path)
	}
	return cfg, nil
}

// WithEnv returns cfg with the TACO_* environment overrides from lookup
// applied.
func (cfg Config) WithEnv(lookup func(string) (string, bool)) (Config, error) {
	strs := map[string]*string{
		"TACO_CC":        &cfg.CC,
		"TACO_CFLAGS":    &cfg.CFlags,
		"TACO_NVCC":      &cfg.NVCC,
		"TACO_NVCCFLAGS": &cfg.NVCCFlags,
		"TACO_LLC":       &cfg.LLC,
		"TACO_TMPDIR":    &cfg.TmpDir,
		"TACO_CACHE_DIR": &cfg.CacheDir,
	}
	// a set but blank variable keeps the configured value
	for name, dst := range strs {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"TACO_USE_CUDA":   &cfg.UseCUDA,
		"TACO_USE_LLVM":   &cfg.UseLLVM,
		"TACO_USE_OPENMP": &cfg.UseOpenMP,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}

	if v, ok := lookup("TACO_NUM_THREADS"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("TACO_NUM_THREADS: invalid thread count %q", v)
		}
		cfg.NumThreads = n
	}
	return cfg, nil
}

func (cfg Config) tmpDir() string {
	if cfg.TmpDir != "" {
		return cfg.TmpDir
	}
	return os.TempDir()
}
