package main

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/agent"
	"github.com/fyrsmithlabs/guidekeeper/internal/config"
	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/ignore"
	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/prompt"
	"github.com/fyrsmithlabs/guidekeeper/internal/secrets"
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/telemetry"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// appOptions tweaks how the services are built for one command.
type appOptions struct {
	// DryRun swaps the agent for one that never edits files.
	DryRun bool

	// Updater replaces the agent entirely.
	Updater agent.Updater
}

// app holds the wired services of one command invocation.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     store.Store
	scrubber  secrets.Scrubber
	registry  services.Registry
}

// newApp loads configuration for the repository containing dir and wires
// every service. Close must be called when the command finishes.
func newApp(ctx context.Context, dir, cfgPath string, opts appOptions) (*app, error) {
	repo, err := vcs.Open(dir)
	if err != nil {
		return nil, err
	}
	root := repo.Root()

	cfg, err := config.Load(root, cfgPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, err
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	if err := a.wire(ctx, repo, opts); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, repo *vcs.Repository, opts appOptions) error {
	cfg := a.cfg
	root := repo.Root()
	meta := repo.Meta()

	allow, err := secrets.LoadAllowlist(config.ResolvePath(root, cfg.Secrets.AllowlistFile))
	if err != nil {
		return err
	}
	scrubCfg := secrets.DefaultConfig()
	scrubCfg.Enabled = cfg.Secrets.Enabled
	scrubCfg.Engine = secrets.Engine(cfg.Secrets.Engine)
	scrubCfg.AllowlistFile = cfg.Secrets.AllowlistFile
	a.scrubber, err = secrets.New(scrubCfg, allow)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	prompts, err := prompt.NewBuilder(
		prompt.WithScrubber(a.scrubber),
		prompt.WithMaxDiffChars(cfg.Agent.MaxDiffChars),
	)
	if err != nil {
		return err
	}

	st, err := store.OpenSQLite(config.ResolvePath(root, cfg.Store.Path))
	if err != nil {
		return err
	}
	a.store = st

	matcher, err := ignore.Load(root, cfg.Guides.Ignore)
	if err != nil {
		return err
	}

	updater, err := a.updater(root, opts)
	if err != nil {
		return err
	}

	policy, err := orchestrator.ParsePolicy(cfg.Run.Policy)
	if err != nil {
		return err
	}

	git := vcs.NewGit(root,
		vcs.WithBinary(cfg.VCS.Binary),
		vcs.WithUpstream(cfg.VCS.Upstream),
		vcs.WithTimeout(cfg.VCS.Timeout.Duration()),
	)
	reader := guides.NewDirReader(root)

	orch, err := orchestrator.New(orchestrator.Config{
		Planner: orchestrator.NewPlanner(git, guides.NewMapper(reader, cfg.Guides.Filenames), matcher),
		Reader:  reader,
		Updater: updater,
		Store:   st,
		Prompts: prompts,
		Repo:    meta,
		Policy:  policy,
		Logger:  a.logger,
		Tracer:  a.telemetry.Tracer("github.com/fyrsmithlabs/guidekeeper/orchestrator"),
	})
	if err != nil {
		return err
	}

	a.registry = services.NewRegistry(services.Options{
		Config:       cfg,
		Repo:         meta,
		Reader:       reader,
		Orchestrator: orch,
		Runner:       services.NewRunner(orch, a.logger),
		Store:        st,
		Telemetry:    a.telemetry,
	})
	a.logger.Debug(ctx, "services ready",
		zap.String("root", root),
		zap.String("branch", meta.Branch),
		zap.String("sha", meta.ShortSHA()),
	)
	return nil
}

func (a *app) updater(root string, opts appOptions) (agent.Updater, error) {
	switch {
	case opts.Updater != nil:
		return opts.Updater, nil
	case opts.DryRun:
		return agent.DryRun{}, nil
	}
	return agent.NewCommandUpdater(root, agent.Config{
		Command:   a.cfg.Agent.Command,
		Args:      a.cfg.Agent.Args,
		Model:     a.cfg.Agent.Model,
		APIKey:    a.cfg.Agent.APIKey.Value(),
		Timeout:   a.cfg.Agent.Timeout.Duration(),
		RateLimit: a.cfg.Agent.RateLimit,
		Burst:     a.cfg.Agent.Burst,
	}, a.logger)
}

// Close releases the store and flushes telemetry and logs.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(context.WithoutCancel(ctx)))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// runOptions applies config defaults to the flags shared by update-style
// commands.
func (a *app) runOptions(scope, model, policy string) (orchestrator.RunOptions, error) {
	s, err := vcs.ParseScope(scope)
	if err != nil {
		return orchestrator.RunOptions{}, err
	}
	opts := orchestrator.RunOptions{Scope: s, Model: model}
	if opts.Model == "" {
		opts.Model = a.cfg.Agent.Model
	}
	if policy != "" {
		if opts.Policy, err = orchestrator.ParsePolicy(policy); err != nil {
			return orchestrator.RunOptions{}, err
		}
	}
	return opts, nil
}
