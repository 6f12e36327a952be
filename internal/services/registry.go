package services

import (
	"github.com/fyrsmithlabs/guidekeeper/internal/config"
	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/telemetry"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// Registry provides access to the shared services.
type Registry interface {
	Config() *config.Config
	Repo() vcs.Meta
	Reader() *guides.FSReader
	Orchestrator() *orchestrator.Orchestrator
	Runner() *Runner
	Store() store.Store
	Telemetry() *telemetry.Telemetry
}

// Options configures the registry with service instances.
type Options struct {
	Config       *config.Config
	Repo         vcs.Meta
	Reader       *guides.FSReader
	Orchestrator *orchestrator.Orchestrator
	Runner       *Runner
	Store        store.Store
	Telemetry    *telemetry.Telemetry
}

type registry struct {
	config       *config.Config
	repo         vcs.Meta
	reader       *guides.FSReader
	orchestrator *orchestrator.Orchestrator
	runner       *Runner
	store        store.Store
	telemetry    *telemetry.Telemetry
}

// NewRegistry creates a registry. A nil Config selects config.Default and a
// nil Runner is built around the Orchestrator.
func NewRegistry(opts Options) Registry {
	r := &registry{
		config:       opts.Config,
		repo:         opts.Repo,
		reader:       opts.Reader,
		orchestrator: opts.Orchestrator,
		runner:       opts.Runner,
		store:        opts.Store,
		telemetry:    opts.Telemetry,
	}
	if r.config == nil {
		r.config = config.Default()
	}
	if r.runner == nil && r.orchestrator != nil {
		r.runner = NewRunner(r.orchestrator, nil)
	}
	return r
}

func (r *registry) Config() *config.Config                   { return r.config }
func (r *registry) Repo() vcs.Meta                           { return r.repo }
func (r *registry) Reader() *guides.FSReader                 { return r.reader }
func (r *registry) Orchestrator() *orchestrator.Orchestrator { return r.orchestrator }
func (r *registry) Runner() *Runner                          { return r.runner }
func (r *registry) Store() store.Store                       { return r.store }
func (r *registry) Telemetry() *telemetry.Telemetry          { return r.telemetry }
