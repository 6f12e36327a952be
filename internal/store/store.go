package store

import (
	"context"
	"time"
)

// RunStateStore is the write side used by the orchestrator.
type RunStateStore interface {
	CreateRun(ctx context.Context, run NewRun) (string, error)
	AppendGuideOutcome(ctx context.Context, outcome GuideOutcome) error
	SaveLayerSummary(ctx context.Context, runID string, layer int, summary LayerSummary) error
	FinalizeRun(ctx context.Context, runID string, status RunStatus, counts Counts, finishedAt time.Time) error
}

// RunReader is the read side used by reporting surfaces.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListOutcomes(ctx context.Context, runID string) ([]GuideOutcome, error)
	LayerSummary(ctx context.Context, runID string, layer int) (LayerSummary, error)
}

// GuideRegistry records the last known state of each guide.
type GuideRegistry interface {
	UpsertGuide(ctx context.Context, guide Guide) error
	ListGuides(ctx context.Context) ([]Guide, error)
}

// Store combines every capability.
type Store interface {
	RunStateStore
	RunReader
	GuideRegistry
	Close() error
}
