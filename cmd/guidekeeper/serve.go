package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/guidekeeper/internal/http"
	"github.com/fyrsmithlabs/guidekeeper/internal/mcp"
)

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the guide inventory, plans, runs and live run events over HTTP.
Runs started with POST /api/v1/runs execute in the background; at most one
run is active at a time.

Examples:
  guidekeeper serve
  guidekeeper serve --port 8080
  curl -X POST localhost:7717/api/v1/runs -d '{"scope":"head"}'`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// mcpCmd runs the MCP server on stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the guide tools over MCP on stdio",
	Long: `Expose guides_plan, guides_update and guides_runs to an MCP client over
stdin/stdout. Logs go to stderr.

Examples:
  claude mcp add guidekeeper -- guidekeeper mcp`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, repoDir, configPath, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	cfg := a.cfg.Server
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	srv, err := httpserver.NewServer(a.registry, a.logger, &httpserver.Config{
		Host:  cfg.Host,
		Port:  cfg.Port,
		Meter: a.telemetry.Meter("github.com/fyrsmithlabs/guidekeeper/http"),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "received signal, shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(ctx, "shutdown error", zap.Error(err))
		return err
	}
	return <-errCh
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, repoDir, configPath, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "guidekeeper",
		Version: version,
		Logger:  a.logger,
		Meter:   a.telemetry.Meter("github.com/fyrsmithlabs/guidekeeper/mcp"),
	}, a.registry, a.scrubber)
	if err != nil {
		return err
	}

	err = srv.Run(ctx)
	// a tool call may have been interrupted mid-run
	a.registry.Runner().Wait()
	return err
}
