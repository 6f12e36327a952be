package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still executing.
var ErrRunInProgress = errors.New("a run is already in progress")

// keepStreams bounds how many finished runs keep their event history.
const keepStreams = 16

// Runner serialises runs and keeps an event stream per run.
type Runner struct {
	orch   *orchestrator.Orchestrator
	logger *logging.Logger

	mu      sync.Mutex
	busy    bool
	active  string
	cancel  context.CancelFunc
	streams map[string]*orchestrator.Broadcaster
	order   []string
	wg      sync.WaitGroup
}

// NewRunner creates a Runner around orch.
func NewRunner(orch *orchestrator.Orchestrator, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		orch:    orch,
		logger:  logger.Named("runner"),
		streams: make(map[string]*orchestrator.Broadcaster),
	}
}

// Run executes a run and blocks until it finishes.
func (r *Runner) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Report, error) {
	if err := r.acquire(nil); err != nil {
		return nil, err
	}
	defer r.release()

	opts.Sinks = r.attach(opts.Sinks, nil)
	return r.orch.Run(ctx, opts)
}

// Start launches a run in the background and returns its ID once the run is
// recorded. The run is not bound to ctx beyond that point; use Cancel to stop
// it.
func (r *Runner) Start(ctx context.Context, opts orchestrator.RunOptions) (string, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := r.acquire(cancel); err != nil {
		cancel()
		return "", err
	}

	started := make(chan string, 1)
	failed := make(chan error, 1)
	opts.Sinks = r.attach(opts.Sinks, func(id string) {
		select {
		case started <- id:
		default:
		}
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()
		defer cancel()

		report, err := r.orch.Run(runCtx, opts)
		if err != nil {
			if report == nil {
				failed <- err
				return
			}
			r.logger.Warn(runCtx, "background run ended with error",
				zap.String("run_id", report.RunID),
				zap.Error(err),
			)
		}
	}()

	select {
	case id := <-started:
		return id, nil
	case err := <-failed:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel stops the active background run, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// Wait blocks until background runs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Active returns the ID of the executing run.
func (r *Runner) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != ""
}

// Events returns the event stream of a recent run.
func (r *Runner) Events(runID string) (*orchestrator.Broadcaster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.streams[runID]
	return b, ok
}

func (r *Runner) acquire(cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return ErrRunInProgress
	}
	r.busy = true
	r.cancel = cancel
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
	r.active = ""
	r.cancel = nil
}

// attach adds a sink that tracks the run and feeds a fresh broadcaster.
func (r *Runner) attach(sinks []orchestrator.Sink, onStart func(id string)) []orchestrator.Sink {
	b := orchestrator.NewBroadcaster(0)
	track := func(e orchestrator.Event) {
		if e.Type == orchestrator.EventRunStart {
			r.track(e.RunID, b)
		}
		b.Publish(e)
		if e.Type == orchestrator.EventRunStart && onStart != nil {
			onStart(e.RunID)
		}
	}
	return append(append([]orchestrator.Sink(nil), sinks...), track)
}

func (r *Runner) track(runID string, b *orchestrator.Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = runID
	r.streams[runID] = b
	r.order = append(r.order, runID)
	for len(r.order) > keepStreams {
		old := r.order[0]
		r.order = r.order[1:]
		if s, ok := r.streams[old]; ok {
			s.Close()
			delete(r.streams, old)
		}
	}
}
