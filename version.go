package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build-time variables injected via linker flags:
//
//	go build -ldflags "-X main.Version=$(git describe --tags) -X main.Commit=$(git rev-parse --short HEAD)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "tensorjit %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
		if Commit != "unknown" {
			fmt.Fprintf(w, "  commit: %s\n", Commit)
		}
		if BuildDate != "unknown" {
			fmt.Fprintf(w, "  built:  %s\n", BuildDate)
		}
	},
}
