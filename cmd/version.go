package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/abhisek/instructoria/internal/lesson"
)

// version is set via -ldflags at build time.
var version = "(devel)"

// buildVersion falls back to the module version recorded by `go install`
// when no version was stamped in.
func buildVersion() string {
	if version != "(devel)" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return version
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version and supported lesson format",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "instructoria", buildVersion())
		fmt.Fprintln(out, "lesson format", lesson.CurrentMajor)
	},
}
