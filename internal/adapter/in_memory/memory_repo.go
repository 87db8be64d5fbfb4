package in_memory

import (
	"context"
	"errors"
	"sync"

	"marketsim/internal/domain"
	"marketsim/internal/port"
)

var _ port.Repository = (*MemoryRepo)(nil)

// MemoryRepo is the default repository when no database is configured, and
// the one unit tests run against.
type MemoryRepo struct {
	mu    sync.Mutex
	runs  map[string]*domain.RunSummary
	fills map[string][]*domain.Fill
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		runs:  make(map[string]*domain.RunSummary),
		fills: make(map[string][]*domain.Fill),
	}
}

func (r *MemoryRepo) SaveRun(ctx context.Context, run *domain.RunSummary) error {
	if run == nil {
		return errors.New("nil run")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copyRun := *run
	r.runs[run.ID] = &copyRun
	return nil
}

func (r *MemoryRepo) SaveFill(ctx context.Context, f *domain.Fill) error {
	if f == nil {
		return errors.New("nil fill")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copyFill := *f
	r.fills[f.RunID] = append(r.fills[f.RunID], &copyFill)
	return nil
}

func (r *MemoryRepo) SaveRunWithFills(ctx context.Context, run *domain.RunSummary, fills []*domain.Fill) error {
	if run == nil {
		return errors.New("nil run")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copyRun := *run
	r.runs[run.ID] = &copyRun

	existing := make(map[string]struct{}, len(r.fills[run.ID]))
	for _, f := range r.fills[run.ID] {
		existing[f.ID] = struct{}{}
	}
	for _, f := range fills {
		if _, ok := existing[f.ID]; ok {
			continue
		}
		copyFill := *f
		r.fills[run.ID] = append(r.fills[run.ID], &copyFill)
	}
	return nil
}

func (r *MemoryRepo) LoadFills(ctx context.Context, runID string) ([]*domain.Fill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fills := r.fills[runID]
	out := make([]*domain.Fill, len(fills))
	for i, f := range fills {
		copyFill := *f
		out[i] = &copyFill
	}
	return out, nil
}

func (r *MemoryRepo) LoadRun(ctx context.Context, runID string) (*domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	copyRun := *run
	return &copyRun, nil
}

func (r *MemoryRepo) Close(ctx context.Context) {}
