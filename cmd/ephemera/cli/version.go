package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/majorcontext/ephemera/internal/payload"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the build version string.
func Version() string {
	return version
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of ephemera",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ephemera %s\n", version)
		fmt.Fprintf(w, "  payload: v%d\n", payload.Version)
		if commit != "none" {
			fmt.Fprintf(w, "  commit:  %s\n", commit)
		}
		if date != "unknown" {
			fmt.Fprintf(w, "  built:   %s\n", date)
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(w, "  go:      %s\n", info.GoVersion)
		}
	},
}
