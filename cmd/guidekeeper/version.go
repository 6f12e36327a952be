package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

var (
	gitCommit = "unknown"
	buildDate = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("guidekeeper %s\n", version)
		cmd.Printf("  commit:  %s\n", gitCommit)
		cmd.Printf("  built:   %s\n", buildDate)
		cmd.Printf("  go:      %s\n", runtime.Version())
	},
}
