package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/guidekeeper/internal/services"
)

var treeJSON bool

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "print the inventory as JSON")
}

// treeCmd prints every guide in the repository
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print all guides as a forest with coverage",
	Long: `Discover every guide in the repository, link each to its nearest ancestor
guide and print the resulting forest. Guides holding nothing beyond headings
are marked draft.

Examples:
  guidekeeper tree
  guidekeeper tree --json`,
	Args: cobra.NoArgs,
	RunE: runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, repoDir, configPath, appOptions{DryRun: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	reg := a.registry
	inv, err := services.BuildInventory(ctx, reg.Reader(), reg.Config().Guides.Filenames, reg.Store())
	if err != nil {
		return err
	}

	if treeJSON {
		return writeJSON(cmd, inv)
	}
	renderTree(cmd.OutOrStdout(), inv)
	return nil
}
