package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/thiremani/tensorjit/ir"
	"github.com/thiremani/tensorjit/jit"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
)

var (
	verbose    bool
	configPath string
	useCache   bool
)

var rootCmd = &cobra.Command{
	Use:           "tensorjit",
	Short:         "Generate, build and run tensor kernels",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), verbose))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log code generation and toolchain steps")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML file with toolchain settings")
	rootCmd.PersistentFlags().BoolVar(&useCache, "cache", false, "reuse built libraries from the cache directory")
	rootCmd.AddCommand(emitCmd, listCmd, versionCmd)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// defaultCacheDir returns $TACO_CACHE_DIR if set, otherwise the
// platform's user cache location.
func defaultCacheDir() string {
	if env := os.Getenv("TACO_CACHE_DIR"); env != "" {
		return env
	}

	homeDir, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			return filepath.Join(localAppData, "tensorjit")
		}
		return filepath.Join(homeDir, "AppData", "Local", "tensorjit")
	case "darwin":
		return filepath.Join(homeDir, "Library", "Caches", "tensorjit")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "tensorjit")
		}
		return filepath.Join(homeDir, ".cache", "tensorjit")
	}
}

func loadConfig() (jit.Config, error) {
	cfg := jit.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = jit.LoadConfig(configPath); err != nil {
			return jit.Config{}, err
		}
	}
	if useCache && cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir()
	}
	return cfg, nil
}

var dataTypes = map[string]ir.Datatype{
	"bool":       ir.Bool,
	"int8":       ir.Int8,
	"int16":      ir.Int16,
	"int32":      ir.Int32,
	"int64":      ir.Int64,
	"uint8":      ir.UInt8,
	"uint16":     ir.UInt16,
	"uint32":     ir.UInt32,
	"uint64":     ir.UInt64,
	"float32":    ir.Float32,
	"float64":    ir.Float64,
	"complex64":  ir.Complex64,
	"complex128": ir.Complex128,
}

func parseType(name string) (ir.Datatype, error) {
	t, ok := dataTypes[strings.ToLower(name)]
	if !ok {
		return ir.Undefined, fmt.Errorf("unknown element type %q", name)
	}
	return t, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errColor.Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
