package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/watch"
)

var (
	watchModel  string
	watchPolicy string
	watchDryRun bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchModel, "model", "m", "", "model passed to the agent (default from config)")
	watchCmd.Flags().StringVar(&watchPolicy, "policy", "", "final status policy (default from config)")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "record runs without invoking the agent")
}

// watchCmd updates guides after every commit
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Update guides after each new commit",
	Long: `Follow the HEAD reflog and run the head scope once for every new commit.
Runs never overlap; commits made during a run are picked up when it ends.
Checkouts and resets do not trigger runs.

Examples:
  guidekeeper watch
  guidekeeper watch --model claude-haiku-4-5`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, repoDir, configPath, appOptions{DryRun: watchDryRun})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	opts, err := a.runOptions("head", watchModel, watchPolicy)
	if err != nil {
		return err
	}

	detector, err := watch.NewCommitDetector(a.registry.Repo().Root)
	if err != nil {
		return err
	}
	defer detector.Stop()
	if err := detector.Start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := watch.New(detector, a.registry.Runner(), watch.Config{
		Model:  opts.Model,
		Policy: opts.Policy,
		Logger: a.logger,
		OnReport: func(c watch.Commit, r *orchestrator.Report, err error) {
			if r != nil {
				renderReport(out, r)
			}
			if err != nil {
				a.logger.Warn(ctx, "run for commit failed", zap.String("commit", c.Hash), zap.Error(err))
			}
		},
	})
	cmd.Printf("Watching %s for commits (Ctrl-C to stop)\n", a.registry.Repo().Root)
	return w.Run(ctx)
}
