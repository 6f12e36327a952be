package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidekeeper/internal/agent"
	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
	"github.com/fyrsmithlabs/guidekeeper/internal/prompt"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

const instrumentationName = "github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"

// StateStore is what the orchestrator writes to.
type StateStore interface {
	store.RunStateStore
	store.GuideRegistry
}

// Config wires an Orchestrator.
type Config struct {
	Planner *Planner
	Reader  guides.Reader
	Updater agent.Updater
	Store   StateStore
	Prompts *prompt.Builder

	// Repo fills the repository line of every prompt.
	Repo vcs.Meta

	// Policy is used when RunOptions leaves it empty.
	Policy Policy

	Logger  *logging.Logger
	Metrics *Metrics
	Sinks   []Sink

	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator executes plans layer by layer.
type Orchestrator struct {
	planner *Planner
	reader  guides.Reader
	updater agent.Updater
	store   StateStore
	prompts *prompt.Builder
	repo    vcs.Meta
	policy  Policy
	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer
	sinks   []Sink
	now     func() time.Time
}

// New validates cfg and creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Planner == nil:
		return nil, errors.New("orchestrator: planner is required")
	case cfg.Reader == nil:
		return nil, errors.New("orchestrator: guide reader is required")
	case cfg.Updater == nil:
		return nil, errors.New("orchestrator: updater is required")
	case cfg.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	}

	o := &Orchestrator{
		planner: cfg.Planner,
		reader:  cfg.Reader,
		updater: cfg.Updater,
		store:   cfg.Store,
		prompts: cfg.Prompts,
		repo:    cfg.Repo,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer(instrumentationName),
		sinks:   cfg.Sinks,
		now:     cfg.Now,
	}
	if o.prompts == nil {
		b, err := prompt.NewBuilder()
		if err != nil {
			return nil, err
		}
		o.prompts = b
	}
	if o.policy == "" {
		o.policy = PolicyNoSuccess
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	o.logger = o.logger.Named("orchestrator")
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if cfg.Tracer != nil {
		o.tracer = cfg.Tracer
	}
	return o, nil
}

// Planner returns the orchestrator's planner.
func (o *Orchestrator) Planner() *Planner {
	return o.planner
}

// OnEvent adds a sink for every future run.
func (o *Orchestrator) OnEvent(s Sink) {
	o.sinks = append(o.sinks, s)
}

// Run plans opts.Scope and executes the plan. If the changed files cannot be
// listed, a failed run is still recorded and the error wraps ErrFatalVCS.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	plan, err := o.planner.Plan(ctx, opts.Scope)
	if err != nil {
		return o.abort(ctx, opts, err)
	}
	return o.Execute(ctx, plan, opts)
}

// run carries the mutable state of one execution. Only the goroutine running
// Execute touches it.
type run struct {
	id       string
	opts     RunOptions
	plan     *Plan
	report   *Report
	snapshot *vcs.Snapshot
	sinks    []Sink
	policy   Policy
}

// Execute runs plan. It returns the context error when cancelled and the run
// is then finalized as failed.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan, opts RunOptions) (*Report, error) {
	if opts.Scope == "" {
		opts.Scope = plan.ChangeSet.Scope
	}
	policy := opts.Policy
	if policy == "" {
		policy = o.policy
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("scope", string(opts.Scope)),
		attribute.Int("layers", len(plan.Layers)),
		attribute.Int("guides", plan.GuideCount()),
	)

	started := o.now()
	runID, err := o.store.CreateRun(ctx, store.NewRun{
		Scope:       string(opts.Scope),
		Model:       opts.Model,
		TotalLayers: len(plan.Layers),
		StartedAt:   started,
		Meta:        opts.Meta,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create run: %w", err)
	}
	span.SetAttributes(attribute.String("run.id", runID))
	ctx = logging.WithRun(ctx, runID)

	r := &run{
		id:   runID,
		opts: opts,
		plan: plan,
		report: &Report{
			RunID:     runID,
			Scope:     opts.Scope,
			StartedAt: started,
			Counts:    store.Counts{TotalLayers: len(plan.Layers)},
		},
		snapshot: vcs.NewSnapshot(o.planner.VCS(), opts.Scope),
		sinks:    append(append([]Sink(nil), o.sinks...), opts.Sinks...),
		policy:   policy,
	}

	o.metrics.ActiveRuns.Inc()
	defer o.metrics.ActiveRuns.Dec()

	o.logger.Info(ctx, "run started",
		zap.String("scope", string(opts.Scope)),
		zap.Int("layers", len(plan.Layers)),
		zap.Int("guides", plan.GuideCount()),
	)
	o.emit(r, Event{Type: EventRunStart, Guides: plan.ChangeSet.AffectedGuides, Message: fmt.Sprintf("%d layers", len(plan.Layers))})

	var prev store.LayerSummary
	for k, layer := range plan.Layers {
		if err := ctx.Err(); err != nil {
			return o.finalize(ctx, r, store.RunFailed, err)
		}

		summary := o.executeLayer(ctx, r, k, layer, prev)
		if err := ctx.Err(); err != nil {
			// the layer was interrupted; its summary is incomplete
			return o.finalize(ctx, r, store.RunFailed, err)
		}

		if err := o.store.SaveLayerSummary(ctx, runID, k, summary); err != nil {
			o.warn(ctx, r, "save layer summary failed", err)
		}
		r.report.Counts.LayersCompleted = k + 1
		prev = summary

		lr := r.report.Layers[len(r.report.Layers)-1]
		counts := lr.Counts
		o.emit(r, Event{Type: EventLayerDone, Layer: k, Guides: layer, Counts: &counts})
	}

	return o.finalize(ctx, r, r.policy.Decide(r.report.Counts), nil)
}

// executeLayer dispatches every guide of the layer, joins them and returns
// the layer summary.
func (o *Orchestrator) executeLayer(ctx context.Context, r *run, k int, layer []string, prev store.LayerSummary) store.LayerSummary {
	ctx = logging.WithLayer(ctx, k)
	ctx, span := o.tracer.Start(ctx, "orchestrator.layer")
	defer span.End()
	span.SetAttributes(attribute.Int("layer.index", k), attribute.Int("layer.size", len(layer)))

	start := o.now()
	lr := LayerReport{Index: k, Guides: layer}
	o.emit(r, Event{Type: EventLayerStart, Layer: k, Guides: layer})

	diffs := make(map[string]string, len(layer))
	idx, err := r.snapshot.Index(ctx)
	if err != nil {
		o.metrics.DiffFailures.Inc()
		span.RecordError(err)
		lr.DiffError = err.Error()
		o.warn(ctx, r, "layer diff failed, treating layer as unchanged", err)
	} else {
		for _, g := range layer {
			diffs[g] = idx.Scoped(guides.Dir(g), r.plan.ChangeSet.Contains)
		}
	}

	summary := store.LayerSummary{}
	if layerEmpty(diffs) {
		lr.Skipped = true
		for _, g := range layer {
			o.record(ctx, r, &lr, store.GuideOutcome{
				RunID: r.id, GuidePath: g, LayerIndex: k, Status: store.OutcomeUnchanged,
			})
		}
		o.closeLayer(r, &lr, start)
		return summary
	}

	results := make(chan dispatchResult, len(layer))
	var wg sync.WaitGroup
	for _, g := range layer {
		children := childUpdates(prev, g)
		if diffs[g] == "" && len(children) == 0 {
			o.record(ctx, r, &lr, store.GuideOutcome{
				RunID: r.id, GuidePath: g, LayerIndex: k, Status: store.OutcomeUnchanged,
			})
			continue
		}

		o.emit(r, Event{Type: EventGuideStart, Layer: k, Guide: g})
		wg.Add(1)
		go func(g string) {
			defer wg.Done()
			results <- o.updateGuide(logging.WithGuide(ctx, g), r, k, g, diffs[g], children)
		}(g)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		o.record(ctx, r, &lr, res.outcome)
		if res.outcome.Status == store.OutcomeUpdated {
			summary[res.outcome.GuidePath] = res.outcome.DiffSummary
			o.register(ctx, r, res)
		}
	}

	o.closeLayer(r, &lr, start)
	span.SetAttributes(
		attribute.Int("guides.updated", lr.Counts.Updated),
		attribute.Int("guides.failed", lr.Counts.Failed),
	)
	return summary
}

type dispatchResult struct {
	outcome store.GuideOutcome
	after   string
}

// updateGuide runs on its own goroutine and must not touch run state.
func (o *Orchestrator) updateGuide(ctx context.Context, r *run, k int, g, diff string, children []prompt.ChildUpdate) dispatchResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.guide")
	defer span.End()
	span.SetAttributes(attribute.String("guide.path", g))

	start := o.now()
	outcome := store.GuideOutcome{RunID: r.id, GuidePath: g, LayerIndex: k}
	fail := func(err error) dispatchResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome.Status = store.OutcomeFailed
		outcome.Error = err.Error()
		outcome.Duration = o.now().Sub(start)
		o.logger.Warn(ctx, "guide update failed", zap.Error(err))
		return dispatchResult{outcome: outcome}
	}

	before, err := o.reader.Read(g)
	if err != nil {
		return fail(fmt.Errorf("read guide: %w", err))
	}

	text, err := o.prompts.Build(prompt.Context{
		Repo:      o.repo.Name(),
		Branch:    o.repo.Branch,
		SHA:       o.repo.SHA,
		GuidePath: g,
		Diff:      diff,
		Guide:     before,
		Children:  children,
	})
	if err != nil {
		return fail(err)
	}

	res, err := o.updater.Update(agent.WithModel(ctx, r.opts.Model), g, text)
	if err != nil {
		return fail(err)
	}
	if res == nil {
		return fail(errors.New("agent returned no result"))
	}

	after, err := o.reader.Read(g)
	if err != nil {
		return fail(fmt.Errorf("read updated guide: %w", err))
	}

	outcome.Duration = o.now().Sub(start)
	if res.Changed && after != before {
		outcome.Status = store.OutcomeUpdated
		outcome.DiffSummary = guideDiff(g, before, after)
	} else {
		outcome.Status = store.OutcomeUnchanged
	}
	o.logger.Debug(ctx, "guide update finished", zap.String("status", string(outcome.Status)))
	return dispatchResult{outcome: outcome, after: after}
}

// record appends an outcome. Called only from the run goroutine.
func (o *Orchestrator) record(ctx context.Context, r *run, lr *LayerReport, outcome store.GuideOutcome) {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = o.now()
	}
	if err := o.store.AppendGuideOutcome(ctx, outcome); err != nil {
		o.warn(ctx, r, "append outcome failed", err)
	}
	lr.Outcomes = append(lr.Outcomes, outcome)
	lr.Counts.Add(outcome.Status)
	r.report.Counts.Add(outcome.Status)

	o.metrics.GuidesTotal.WithLabelValues(string(outcome.Status)).Inc()
	o.metrics.GuideDuration.WithLabelValues(string(outcome.Status)).Observe(outcome.Duration.Seconds())
	o.emit(r, Event{
		Type:    EventGuideDone,
		Layer:   outcome.LayerIndex,
		Guide:   outcome.GuidePath,
		Outcome: outcome.Status,
		Message: outcome.Error,
	})
}

func (o *Orchestrator) register(ctx context.Context, r *run, res dispatchResult) {
	g := res.outcome.GuidePath
	parent, _ := r.plan.Forest.Parent(g)
	err := o.store.UpsertGuide(ctx, store.Guide{
		Path:       g,
		ParentPath: parent,
		Status:     string(guides.Classify(res.after)),
		LastHash:   guides.HashString(res.after),
		UpdatedAt:  o.now(),
	})
	if err != nil {
		o.warn(ctx, r, "update guide registry failed", err)
	}
}

func (o *Orchestrator) closeLayer(r *run, lr *LayerReport, start time.Time) {
	lr.Duration = o.now().Sub(start)
	o.metrics.LayerDuration.Observe(lr.Duration.Seconds())
	r.report.Layers = append(r.report.Layers, *lr)
}

// finalize records the final status on a context that survives cancellation.
func (o *Orchestrator) finalize(ctx context.Context, r *run, status store.RunStatus, cause error) (*Report, error) {
	finished := o.now()
	r.report.Status = status
	r.report.FinishedAt = finished
	if cause != nil {
		r.report.Error = cause.Error()
	}

	wctx := context.WithoutCancel(ctx)
	if err := o.store.FinalizeRun(wctx, r.id, status, r.report.Counts, finished); err != nil {
		o.warn(wctx, r, "finalize run failed", err)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Int("guides.updated", r.report.Counts.Updated),
		attribute.Int("guides.unchanged", r.report.Counts.Unchanged),
		attribute.Int("guides.failed", r.report.Counts.Failed),
	)
	if status == store.RunFailed {
		span.SetStatus(codes.Error, "run failed")
	}
	o.metrics.RunsTotal.WithLabelValues(string(status)).Inc()

	counts := r.report.Counts
	o.logger.Info(wctx, "run finished",
		zap.String("status", string(status)),
		zap.Int("layers_completed", counts.LayersCompleted),
		zap.Int("updated", counts.Updated),
		zap.Int("unchanged", counts.Unchanged),
		zap.Int("failed", counts.Failed),
		zap.Duration("elapsed", finished.Sub(r.report.StartedAt)),
	)
	o.emit(r, Event{Type: EventRunEnd, RunStatus: status, Counts: &counts, Message: r.report.Error})

	return r.report, cause
}

// abort records a run that failed before any layer could be scheduled.
func (o *Orchestrator) abort(ctx context.Context, opts RunOptions, cause error) (*Report, error) {
	started := o.now()
	runID, err := o.store.CreateRun(ctx, store.NewRun{
		Scope:     string(opts.Scope),
		Model:     opts.Model,
		StartedAt: started,
		Meta:      opts.Meta,
	})
	if err != nil {
		return nil, errors.Join(cause, fmt.Errorf("create run: %w", err))
	}
	r := &run{
		id:     runID,
		opts:   opts,
		report: &Report{RunID: runID, Scope: opts.Scope, StartedAt: started},
		sinks:  append(append([]Sink(nil), o.sinks...), opts.Sinks...),
	}
	ctx = logging.WithRun(ctx, runID)
	o.logger.Error(ctx, "run aborted", zap.Error(cause))
	o.emit(r, Event{Type: EventRunStart})
	return o.finalize(ctx, r, store.RunFailed, cause)
}

func (o *Orchestrator) warn(ctx context.Context, r *run, msg string, err error) {
	o.logger.Warn(ctx, msg, zap.Error(err))
	o.emit(r, Event{Type: EventLog, Message: msg + ": " + err.Error()})
}

func (o *Orchestrator) emit(r *run, e Event) {
	e.RunID = r.id
	if e.Time.IsZero() {
		e.Time = o.now()
	}
	for _, s := range r.sinks {
		s(e)
	}
}

func layerEmpty(diffs map[string]string) bool {
	for _, d := range diffs {
		if strings.TrimSpace(d) != "" {
			return false
		}
	}
	return true
}
