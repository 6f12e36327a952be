package watch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// Runner executes one run to completion.
type Runner interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Report, error)
}

// Source yields commits to react to.
type Source interface {
	Commits() <-chan Commit
	Errors() <-chan error
}

// Config configures a Watcher.
type Config struct {
	// Model and Policy are passed to every run.
	Model  string
	Policy orchestrator.Policy

	// OnReport is called after each run with its report, which is nil when
	// the run could not be recorded.
	OnReport func(Commit, *orchestrator.Report, error)

	Logger *logging.Logger
}

// Watcher runs the head scope once per detected commit. Runs never overlap:
// commits that arrive during a run wait for it to finish.
type Watcher struct {
	source Source
	runner Runner
	cfg    Config
	logger *logging.Logger
}

// New creates a Watcher.
func New(source Source, runner Runner, cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{source: source, runner: runner, cfg: cfg, logger: logger.Named("watch")}
}

// Run reacts to commits until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "watching for commits")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.source.Errors():
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		case c, ok := <-w.source.Commits():
			if !ok {
				return nil
			}
			w.handle(ctx, c)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, c Commit) {
	w.logger.Info(ctx, "commit detected", zap.String("commit", c.Hash), zap.String("message", c.Message))

	report, err := w.runner.Run(ctx, orchestrator.RunOptions{
		Scope:  vcs.ScopeLastCommit,
		Model:  w.cfg.Model,
		Policy: w.cfg.Policy,
		Meta:   map[string]string{"trigger": "watch", "commit": c.Hash},
	})
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		w.logger.Info(ctx, "run interrupted", zap.String("commit", c.Hash))
	case err != nil:
		w.logger.Warn(ctx, "run failed", zap.String("commit", c.Hash), zap.Error(err))
	case report != nil:
		w.logger.Info(ctx, "run finished",
			zap.String("commit", c.Hash),
			zap.String("run_id", report.RunID),
			zap.String("status", string(report.Status)),
		)
	}
	if w.cfg.OnReport != nil {
		w.cfg.OnReport(c, report, err)
	}
}
