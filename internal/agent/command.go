package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
)

const (
	defaultTimeout = 10 * time.Minute
	outputTail     = 2000

	// APIKeyEnv is set for the agent process when an API key is configured.
	APIKeyEnv = "ANTHROPIC_API_KEY"
)

// Config configures a CommandUpdater.
type Config struct {
	Command string

	// Args may contain {{model}} and {{guide}} placeholders.
	Args []string

	Model   string
	APIKey  string `json:"-"`
	Timeout time.Duration

	// RateLimit is agent invocations per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Runner executes the agent process.
type Runner func(ctx context.Context, dir string, env []string, stdin string, name string, args ...string) (stdout, stderr []byte, err error)

// CommandUpdater runs an agent CLI in the repository root with the prompt on
// stdin.
type CommandUpdater struct {
	root    string
	cfg     Config
	limiter *rate.Limiter
	run     Runner
	logger  *logging.Logger
}

// NewCommandUpdater creates an updater rooted at the repository root.
func NewCommandUpdater(root string, cfg Config, logger *logging.Logger) (*CommandUpdater, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("agent command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &CommandUpdater{
		root:    root,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		run:     execRunner,
		logger:  logger.Named("agent"),
	}, nil
}

// WithRunner replaces the process runner.
func (u *CommandUpdater) WithRunner(r Runner) *CommandUpdater {
	u.run = r
	return u
}

// Update invokes the agent for guidePath and compares the guide hash before
// and after the call.
func (u *CommandUpdater) Update(ctx context.Context, guidePath, prompt string) (*Result, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrAgentFailed, err)
	}

	abs := filepath.Join(u.root, filepath.FromSlash(guidePath))
	before, err := hashFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrAgentFailed, guidePath, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, runErr := u.run(timeoutCtx, u.root, u.env(), prompt, u.cfg.Command, u.args(ctx, guidePath)...)
	u.logger.Debug(ctx, "agent finished",
		zap.String("guide", guidePath),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("stdout_bytes", len(stdout)),
	)
	if runErr != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timeout after %v", ErrAgentFailed, u.cfg.Timeout)
		}
		return nil, fmt.Errorf("%w: %v (stderr: %s)", ErrAgentFailed, runErr, tail(string(stderr), outputTail))
	}

	after, err := hashFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s after update: %v", ErrAgentFailed, guidePath, err)
	}

	out := tail(string(stdout), outputTail)
	return &Result{
		Changed:   before != after,
		NoChanges: before == after && strings.Contains(out, "NO-CHANGES"),
		Output:    out,
	}, nil
}

// args fills the placeholders; a per-run model from ctx wins over the
// configured one.
func (u *CommandUpdater) args(ctx context.Context, guidePath string) []string {
	model := u.cfg.Model
	if m, ok := ModelFromContext(ctx); ok {
		model = m
	}
	r := strings.NewReplacer("{{model}}", model, "{{guide}}", guidePath)
	out := make([]string, len(u.cfg.Args))
	for i, a := range u.cfg.Args {
		out[i] = r.Replace(a)
	}
	return out
}

func (u *CommandUpdater) env() []string {
	env := os.Environ()
	if u.cfg.APIKey != "" {
		env = append(env, APIKeyEnv+"="+u.cfg.APIKey)
	}
	return env
}

// hashFile returns "" for a missing file so creation counts as a change.
func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return guides.Hash(data), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func execRunner(ctx context.Context, dir string, env []string, stdin string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
