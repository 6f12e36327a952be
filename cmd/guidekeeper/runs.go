package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

var (
	runsLimit int
	runsJSON  bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "print JSON")
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list")
}

// runsCmd groups the run history commands
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded update runs",
	Long: `Inspect the run history kept in the state database.

Examples:
  # List recent runs
  guidekeeper runs list

  # Show one run with its guide outcomes
  guidekeeper runs show 3f6c2a9e-1d2b-4c8e-9f1a-0b7d5e4c3a21`,
	Args: cobra.NoArgs,
	RunE: runRunsList,
}

// runsListCmd lists recent runs
var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

// runsShowCmd shows one run
var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its per-guide outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func runRunsList(cmd *cobra.Command, args []string) error {
	if runsLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", runsLimit)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, repoDir, configPath, appOptions{DryRun: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	runs, err := a.store.ListRuns(ctx, runsLimit)
	if err != nil {
		return err
	}
	if runsJSON {
		if runs == nil {
			runs = []store.Run{}
		}
		return writeJSON(cmd, runs)
	}
	renderRuns(cmd.OutOrStdout(), runs)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, repoDir, configPath, appOptions{DryRun: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	run, err := a.store.GetRun(ctx, args[0])
	if errors.Is(err, store.ErrRunNotFound) {
		return fmt.Errorf("no run with id %q", args[0])
	}
	if err != nil {
		return err
	}
	outcomes, err := a.store.ListOutcomes(ctx, run.ID)
	if err != nil {
		return err
	}

	if runsJSON {
		return writeJSON(cmd, struct {
			Run      *store.Run           `json:"run"`
			Outcomes []store.GuideOutcome `json:"outcomes"`
		}{run, outcomes})
	}
	renderRun(cmd.OutOrStdout(), run, outcomes)
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
