package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/guidekeeper/internal/config"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

var forceInit bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing config file")
}

// initCmd prepares a repository for guidekeeper
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the starter config and create the state database",
	Long: `Write .guidekeeper/config.yaml with documented defaults and create the
empty run database next to it.

Examples:
  # Initialize the current repository
  guidekeeper init

  # Reset the config file to the defaults
  guidekeeper init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	repo, err := vcs.Open(repoDir)
	if err != nil {
		return err
	}
	root := repo.Root()

	path, err := config.Init(root, forceInit)
	switch {
	case errors.Is(err, fs.ErrExist):
		cmd.Printf("Config already exists at %s (use --force to overwrite)\n", path)
	case err != nil:
		return err
	default:
		cmd.Printf("Wrote %s\n", path)
	}

	cfg, err := config.Load(root, configPath)
	if err != nil {
		return err
	}
	dbPath := config.ResolvePath(root, cfg.Store.Path)
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create state database: %w", err)
	}
	if err := st.Close(); err != nil {
		return err
	}
	cmd.Printf("State database at %s\n", dbPath)
	return nil
}
