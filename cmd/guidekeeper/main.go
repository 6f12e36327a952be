// Package main implements the guidekeeper CLI.
//
// guidekeeper keeps the per-directory guide files of a repository (agents.md,
// CLAUDE.md) in step with code changes. It maps a change scope to the guides
// that cover it and updates them leaves first, so each parent sees what its
// children changed.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var (
	// repoDir is any path inside the repository to operate on
	repoDir string
	// configPath overrides <repo>/.guidekeeper/config.yaml
	configPath string
	// version information (set via ldflags during build)
	version = "dev"
)

// errRunFailed is returned after a failed run has been reported, so the
// process exits non-zero without printing the error twice.
var errRunFailed = errors.New("run failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "guidekeeper",
	Short: "Keep directory guides up to date with code changes",
	Long: `guidekeeper updates the agents.md / CLAUDE.md guides of a repository
from a change scope. Guides are updated in layers, deepest first, and every
parent is given the diffs of the child guides updated beneath it.

Scopes:
  staged   staged changes (default)
  head     the last commit
  pr       the branch against its upstream`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "path inside the repository")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <repo>/.guidekeeper/config.yaml)")
}
