package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
	"github.com/fyrsmithlabs/guidekeeper/internal/secrets"
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
)

// Server is an MCP server backed by the shared services.
type Server struct {
	mcp      *mcp.Server
	services services.Registry
	scrubber secrets.Scrubber
	metrics  *Metrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "guidekeeper")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *logging.Logger

	// Meter records tool metrics. Defaults to the global provider.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "guidekeeper",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates an MCP server with the guide tools registered.
func NewServer(cfg *Config, reg services.Registry, scrubber secrets.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if reg == nil || reg.Orchestrator() == nil || reg.Runner() == nil || reg.Store() == nil {
		return nil, fmt.Errorf("services registry with an orchestrator, a runner and a store is required")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "guidekeeper"
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		services: reg,
		scrubber: scrubber,
		metrics:  NewMetrics(cfg.Meter, logger.Underlying()),
		logger:   logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Used for in-process clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// instrument wraps a tool body with metrics and logging.
func (s *Server) instrument(ctx context.Context, tool string, fn func() error) error {
	s.metrics.IncrementActive(ctx, tool)
	start := time.Now()
	err := fn()
	s.metrics.DecrementActive(ctx, tool)
	s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
	if err != nil {
		s.logger.Warn(ctx, "tool failed", zap.String("tool", tool), zap.Error(err))
	}
	return err
}
