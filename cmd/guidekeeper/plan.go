package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

var (
	planScope string
	planJSON  bool
)

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&planScope, "scope", "s", "staged", "change scope: staged, head or pr")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
}

// planCmd previews the layers of a run
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which guides a change scope would update",
	Long: `Map the changed files of a scope to the guides covering them and print the
layers an update would run, deepest first. Nothing is dispatched.

Examples:
  # Preview staged changes
  guidekeeper plan

  # Preview the whole branch as JSON
  guidekeeper plan --scope pr --json`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	scope, err := vcs.ParseScope(planScope)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, repoDir, configPath, appOptions{DryRun: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	plan, err := a.registry.Orchestrator().Planner().Plan(ctx, scope)
	if err != nil {
		return err
	}

	if planJSON {
		return writeJSON(cmd, plan)
	}
	renderPlan(cmd.OutOrStdout(), plan)
	return nil
}
