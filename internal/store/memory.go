package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs dry runs and tests.
type Memory struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	order     []string
	outcomes  map[string][]GuideOutcome
	summaries map[string]map[int]LayerSummary
	guides    map[string]Guide
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[string]*Run),
		outcomes:  make(map[string][]GuideOutcome),
		summaries: make(map[string]map[int]LayerSummary),
		guides:    make(map[string]Guide),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateRun(_ context.Context, run NewRun) (string, error) {
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id] = &Run{
		ID:          id,
		Scope:       run.Scope,
		Model:       run.Model,
		Status:      RunRunning,
		StartedAt:   started,
		TotalLayers: run.TotalLayers,
		Meta:        copyMeta(run.Meta),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) AppendGuideOutcome(_ context.Context, o GuideOutcome) error {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[o.RunID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, o.RunID)
	}
	m.outcomes[o.RunID] = append(m.outcomes[o.RunID], o)
	return nil
}

func (m *Memory) SaveLayerSummary(_ context.Context, runID string, layer int, summary LayerSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	cp := make(LayerSummary, len(summary))
	for k, v := range summary {
		cp[k] = v
	}
	if m.summaries[runID] == nil {
		m.summaries[runID] = make(map[int]LayerSummary)
	}
	m.summaries[runID][layer] = cp
	if layer+1 > run.LayersCompleted {
		run.LayersCompleted = layer + 1
	}
	return nil
}

func (m *Memory) FinalizeRun(_ context.Context, runID string, status RunStatus, c Counts, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Status = status
	run.FinishedAt = &finishedAt
	run.TotalLayers = c.TotalLayers
	run.LayersCompleted = c.LayersCompleted
	run.GuidesUpdated = c.Updated
	run.GuidesUnchanged = c.Unchanged
	run.GuidesFailed = c.Failed
	run.DurationMS = finishedAt.Sub(run.StartedAt).Milliseconds()
	return nil
}

func (m *Memory) GetRun(_ context.Context, runID string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	cp := *run
	cp.Meta = copyMeta(run.Meta)
	return &cp, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Run
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.runs[m.order[i]])
	}
	return out, nil
}

func (m *Memory) ListOutcomes(_ context.Context, runID string) ([]GuideOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]GuideOutcome(nil), m.outcomes[runID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].LayerIndex < out[j].LayerIndex })
	return out, nil
}

func (m *Memory) LayerSummary(_ context.Context, runID string, layer int) (LayerSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := LayerSummary{}
	for k, v := range m.summaries[runID][layer] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) UpsertGuide(_ context.Context, g Guide) error {
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	if g.Status == "" {
		g.Status = "active"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guides[g.Path] = g
	return nil
}

func (m *Memory) ListGuides(_ context.Context) ([]Guide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Guide, 0, len(m.guides))
	for _, g := range m.guides {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

var _ Store = (*Memory)(nil)
