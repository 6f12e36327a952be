package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

var (
	updateModel  string
	updatePolicy string
	updateDryRun bool
)

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVarP(&updateModel, "model", "m", "", "model passed to the agent (default from config)")
	updateCmd.Flags().StringVar(&updatePolicy, "policy", "", "final status policy: no-success or any-failure (default from config)")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "plan and record a run without invoking the agent")
}

// updateCmd runs the layered update
var updateCmd = &cobra.Command{
	Use:   "update [staged|head|pr]",
	Short: "Update the guides affected by a change scope",
	Long: `Update every guide covering a changed file, layer by layer from the deepest
guides up. Each parent guide sees the diffs of the child guides updated below
it. Exits non-zero when the run fails.

Examples:
  # Update guides for staged changes
  guidekeeper update

  # Update guides for the last commit with a specific model
  guidekeeper update head --model claude-opus-4-1

  # Fail the run if any guide fails
  guidekeeper update pr --policy any-failure`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"staged", "head", "pr"},
	RunE:      runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	scope := ""
	if len(args) == 1 {
		scope = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, repoDir, configPath, appOptions{DryRun: updateDryRun})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	opts, err := a.runOptions(scope, updateModel, updatePolicy)
	if err != nil {
		return err
	}
	opts.Meta = map[string]string{"trigger": "cli"}
	if updateDryRun {
		opts.Meta["dry_run"] = "true"
	}

	return executeRun(ctx, cmd, a.registry.Runner(), opts)
}

// runner is the part of services.Runner the CLI needs.
type runner interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Report, error)
}

// executeRun runs opts, prints the report and maps the outcome to the
// command's error: any returned error or a failed status fails the command.
func executeRun(ctx context.Context, cmd *cobra.Command, r runner, opts orchestrator.RunOptions) error {
	report, err := r.Run(ctx, opts)
	if report == nil {
		return err
	}
	renderReport(cmd.OutOrStdout(), report)
	if err != nil {
		return err
	}
	if report.Status == store.RunFailed {
		cmd.SilenceErrors = true
		return errRunFailed
	}
	return nil
}
